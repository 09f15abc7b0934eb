package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/httpapi"
	"github.com/spigell/resume-screener/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the screening HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")
	viper.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, true)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	logger := rt.logger
	logger.Info("starting the resume-screener api", zap.String("version", version))

	var enqueuer httpapi.Enqueuer
	if url := rt.config.Queue.URL; url != "" {
		mq, err := queue.Dial(url, rt.config.Queue.Name, logger.Named("queue"))
		if err != nil {
			logger.Fatal("connecting to the queue", zap.Error(err))
		}
		rt.closers = append(rt.closers, mq.Close)
		enqueuer = mq
	} else {
		logger.Info("queue is not configured, queued evaluation is disabled")
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	server := httpapi.New(rt.service, extract.New(logger.Named("extract")), enqueuer, httpapi.Config{
		RequestsPerMinute: rt.config.HTTP.RequestsPerMinute,
	}, logger.Named("http"))

	if err := server.Run(ctx, rt.config.HTTP.Listen); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}
}
