package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/service"
)

func newCollectCmd() *cobra.Command {
	var req service.CollectRequest
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collects identifiers from the catalog and validates them against the baseline",
		Long: `Pages through the catalog until the last page, an empty page, a fetch
failure or --max-pages, then prints the collection result as JSON. When a
baseline is configured the result carries a validation report. The command
fails only when no identifiers were collected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := appInstance.Service().Collect(cmd.Context(), req)
			if err != nil && !errors.Is(err, service.ErrNothingCollected) {
				return err
			}
			if werr := writeJSON(cmd, resp); werr != nil {
				return werr
			}
			if err != nil {
				return err
			}
			if v := resp.Result.Validation; v != nil && !v.IsValid {
				appInstance.Logger().Warn("collection did not pass validation",
					zap.Float64("coverage_pct", v.CoveragePercentage),
					zap.Int("missing", v.MissingCount),
					zap.Int("extra", v.ExtraCount),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&req.MaxPages, "max-pages", 0, "page cap for this run (0 uses collection.max_pages)")
	cmd.Flags().BoolVar(&req.Snapshot, "snapshot", false, "write the collected identifiers to the snapshot store")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
