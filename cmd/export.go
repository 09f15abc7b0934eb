package cmd

import (
	"context"

	"github.com/spigell/resume-screener/internal/audit"
	"github.com/spigell/resume-screener/internal/export"
	"github.com/spigell/resume-screener/internal/screening"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export evaluations and their evidence to an xlsx report",
	Run: func(cmd *cobra.Command, _ []string) {
		exportReport(cmd)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	addUserFlag(exportCmd)
	exportCmd.Flags().String("job", "", "only export evaluations for this job id")
	exportCmd.Flags().StringP("output", "o", "evaluations.xlsx", "report file")
	exportCmd.Flags().Int("limit", audit.MaxLimit, "how many evaluations to export (at most 100)")
}

func exportReport(cmd *cobra.Command) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	jobID, _ := cmd.Flags().GetString("job")
	output, _ := cmd.Flags().GetString("output")
	limit, _ := cmd.Flags().GetInt("limit")

	evals, err := rt.service.ListEvaluations(ctx, p, screening.ListFilter{JobID: jobID, Limit: limit})
	if err != nil {
		rt.logger.Fatal("loading evaluations", zap.Error(err))
	}

	path, err := export.WriteFile(output, evals)
	if err != nil {
		rt.logger.Fatal("writing report", zap.Error(err))
	}

	rt.logger.Info("report written", zap.String("filename", path), zap.Int("evaluations", len(evals)))
}
