package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"secureguard-lab/internal/domain/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printThreats(w io.Writer, threats []models.Threat) error {
	if len(threats) == 0 {
		_, err := fmt.Fprintln(w, "No threats found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RISK\tTYPE\tAPP\tPACKAGE")
	for _, t := range threats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.RiskLevel, t.ThreatType.Label(), t.AppName, t.PackageName)
	}
	return tw.Flush()
}

func printReport(w io.Writer, report *models.ScanReport) error {
	if err := printThreats(w, report.Threats); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nScanned %d application(s) in %s\n", report.Scanned, report.Duration.Round(1e6))
	fmt.Fprintf(w, "Security score: %d (%s)\n", report.Posture.Score, report.Posture.Label)
	if report.Notified != nil {
		n := models.NewHighRiskNotification(*report.Notified)
		fmt.Fprintf(w, "%s %s\n", n.Title, n.Text)
	}
	return nil
}
