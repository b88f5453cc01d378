package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceName,
		Short: "Claimant change data consumer",
		Long:  "Consumes claimant, contract and statement change records, decrypts and pseudonymises them and writes them to the target store",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start consuming",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog().WithServiceName(constants.ServiceName)

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(logger.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				ServiceName: constants.ServiceName,
			})
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting claimant consumer",
				"topic_regex", cfg.Kafka.TopicRegex,
				"sink", cfg.Sink.Type)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				if serr := app.Shutdown(context.Background()); serr != nil {
					log.Warnw("Shutdown after failed initialization reported errors", "error", serr)
				}
				return err
			}

			log.InfowCtx(ctx, "Service running")
			runErr := app.Run(ctx)
			if err := app.Shutdown(context.Background()); err != nil {
				log.Warnw("Shutdown reported errors", "error", err)
			}

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Errorw("Service stopped with error", "error", runErr)
				return runErr
			}
			log.Info("Service shutdown complete")
			return nil
		},
	}
}
