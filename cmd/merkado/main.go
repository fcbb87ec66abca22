package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fekuna/merkado-order-service/config"
	"github.com/fekuna/merkado-order-service/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "merkado",
		Short:        "Merkado order service",
		Long:         "Order placement with batch allocation and inventory bookkeeping for Merkado Lite.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

// loadConfig reads .env when present, then the process environment.
func loadConfig() *config.Config {
	_ = godotenv.Load()
	return config.LoadEnv()
}

func newLogger(cfg *config.Config) logger.ZapLogger {
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             cfg.Logger.Level,
		ServiceName:       cfg.Server.ServiceName,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = "debug"
	}

	return logger.NewZapLogger(logConfig)
}
