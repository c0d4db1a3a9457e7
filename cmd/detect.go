package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Records baseline identifiers missing from the catalog as region restricted",
		Long: `Collects the catalog, diffs it against the baseline and records every
missing identifier as region restricted. A collection that stops before the
catalog's end is reported as skipped and nothing is recorded. The command
fails only when no identifiers were collected or the run could not start.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Service().Detect(cmd.Context())
			if report.RunID != "" {
				if werr := writeJSON(cmd, report); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			if report.Skipped {
				appInstance.Logger().Warn("restrictions not recorded, collection incomplete",
					zap.String("stop_reason", report.SkipReason),
					zap.Int("current", report.CurrentCount),
					zap.Int("candidates", report.CandidateCount),
				)
			}
			return nil
		},
	}
}
