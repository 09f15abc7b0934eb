package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spigell/resume-screener/internal/ai"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one resume against a job",
	Run: func(cmd *cobra.Command, _ []string) {
		evaluate(cmd)
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate several resumes against a job, one after another",
	Run: func(cmd *cobra.Command, _ []string) {
		batch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(batchCmd)

	addUserFlag(evaluateCmd)
	evaluateCmd.Flags().String("job", "", "job id")
	evaluateCmd.Flags().String("resume", "", "resume id")
	evaluateCmd.MarkFlagRequired("job")
	evaluateCmd.MarkFlagRequired("resume")

	addUserFlag(batchCmd)
	batchCmd.Flags().String("job", "", "job id")
	batchCmd.Flags().StringSlice("resume", nil, "resume ids, repeat or separate with commas")
	batchCmd.Flags().Int("max", 0, "how many resumes to process (default 10, at most 20)")
	batchCmd.MarkFlagRequired("job")
	batchCmd.MarkFlagRequired("resume")
}

func evaluate(cmd *cobra.Command) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, true)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	jobID, _ := cmd.Flags().GetString("job")
	resumeID, _ := cmd.Flags().GetString("resume")

	eval, err := rt.service.EvaluateOne(ctx, p, jobID, resumeID)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if kind := ai.KindOf(err); kind == ai.KindQuotaExceeded {
			fields = append(fields, zap.String("hint", "the provider account has no remaining quota or billing is not enabled"))
		}
		rt.logger.Fatal("evaluating resume", fields...)
	}

	printJSON(rt.logger, eval)
}

func batch(cmd *cobra.Command) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, true)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	jobID, _ := cmd.Flags().GetString("job")
	resumeIDs, _ := cmd.Flags().GetStringSlice("resume")
	limit, _ := cmd.Flags().GetInt("max")

	result, err := rt.service.EvaluateBatch(ctx, p, jobID, resumeIDs, limit)
	if err != nil {
		rt.logger.Fatal("evaluating batch", zap.Error(err))
	}

	for _, item := range result.Results {
		if item.Failed() {
			rt.logger.Warn("resume failed", zap.String("resume_id", item.ResumeID), zap.Error(item.Err))
		}
	}

	printJSON(rt.logger, result)
}

func printJSON(logger *zap.Logger, v any) {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Fatal("encoding output", zap.Error(err))
	}
	fmt.Fprintln(os.Stdout, string(pretty))
}
