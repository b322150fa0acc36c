package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"secureguard-lab/internal/platform/android"
)

func newInventoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Work with installed-application inventory files",
	}

	var (
		out    string
		device string
	)
	capture := &cobra.Command{
		Use:   "capture",
		Short: "Snapshot a connected device over adb into an inventory file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}

			adb := newADBRegistry(cfg.Registry, log)
			if err := adb.EnsureBinary(); err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			if device == "" {
				device = cfg.Registry.Serial
			}
			n, err := android.Capture(cmd.Context(), adb, device, w, log)
			if err != nil {
				return err
			}
			log.Info().Int("applications", n).Str("out", out).Msg("inventory captured")
			return nil
		},
	}
	capture.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	capture.Flags().StringVar(&device, "device", "", "Device label stored in the file")

	cmd.AddCommand(capture)
	return cmd
}
