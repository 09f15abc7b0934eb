package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/queue"
	"github.com/spigell/resume-screener/internal/screening"
	"github.com/spigell/resume-screener/internal/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued evaluation requests from RabbitMQ",
	Run: func(_ *cobra.Command, _ []string) {
		work()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func work() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, true)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	logger := rt.logger
	if rt.config.Queue.URL == "" {
		logger.Fatal("queue is not configured", zap.String("hint", "set RABBITMQ_URL or queue.url"))
	}

	mq, err := queue.Dial(rt.config.Queue.URL, rt.config.Queue.Name, logger.Named("queue"))
	if err != nil {
		logger.Fatal("connecting to the queue", zap.Error(err))
	}
	rt.closers = append(rt.closers, mq.Close)

	logger.Info("starting the resume-screener worker", zap.String("version", version))

	handler := batchHandler(rt.service, rt.config.Queue.Cooldown, logger)
	if err := mq.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", zap.Error(err))
	}
}

// batchHandler evaluates a queued request. When an item failed because the
// provider throttled or hiccuped, it waits for cooldown and reports the error
// so the message is redelivered. Finished items are reused on redelivery.
func batchHandler(svc *screening.Service, cooldown time.Duration, logger *zap.Logger) queue.Handler {
	return func(ctx context.Context, req queue.Request) error {
		p := screening.Principal{
			OwnerID: req.OwnerID,
			Email:   req.Email,
			Role:    req.Role,
		}

		result, err := svc.EvaluateBatch(ctx, p, req.JobID, req.ResumeIDs, req.Max)
		if err != nil {
			return err
		}

		var retry error
		for _, item := range result.Results {
			if !item.Failed() {
				continue
			}
			logger.Warn("queued resume failed", zap.String("resume_id", item.ResumeID), zap.Error(item.Err))
			var aiErr *ai.Error
			if retry == nil && errors.As(item.Err, &aiErr) && ai.Retryable(aiErr) {
				retry = item.Err
			}
		}

		logger.Info("queued batch processed",
			zap.String("job_id", req.JobID),
			zap.Int("processed", result.Count),
			zap.Int("failed", result.Failures()),
		)

		if retry != nil {
			if err := utils.WaitFor(ctx, cooldown); err != nil {
				return err
			}
			return retry
		}
		return nil
	}
}
