package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/internal/streaming"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		types    []string
		minLevel string
		packages []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream scan events from NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if !cfg.NATS.Enabled {
				return errors.New("nats.enabled is false")
			}

			sub := &streaming.Subscription{Packages: packages}
			for _, t := range types {
				sub.Types = append(sub.Types, streaming.EventType(t))
			}
			if minLevel != "" {
				sub.MinRiskLevel = models.RiskLevel(strings.ToLower(minLevel))
				if !sub.MinRiskLevel.Valid() {
					return fmt.Errorf("invalid --min-level %q", minLevel)
				}
			}

			pub, err := streaming.NewNATSPublisher(cmd.Context(), cfg.NATS, log)
			if err != nil {
				return err
			}
			defer pub.Close()

			events, err := pub.Subscribe(cmd.Context(), sub)
			if err != nil {
				return err
			}
			for event := range events {
				if err := writeJSON(cmd.OutOrStdout(), event); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "Event types to show (scan_completed, high_risk_threat)")
	cmd.Flags().StringVar(&minLevel, "min-level", "", "Minimum risk level of threat events")
	cmd.Flags().StringSliceVar(&packages, "package", nil, "Only events about these packages")
	return cmd
}
