package main

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fekuna/merkado-order-service/config"
	"github.com/fekuna/merkado-order-service/pkg/database/migrations"
	"github.com/fekuna/merkado-order-service/pkg/database/postgres"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the order service tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			appLogger := newLogger(cfg)
			defer appLogger.Sync()

			db, err := openPostgres(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Apply(cmd.Context(), db); err != nil {
				appLogger.Error("Migration failed", zap.Error(err))
				return err
			}
			appLogger.Info("Schema applied", zap.String("db_name", cfg.Postgres.DBName))
			return nil
		},
	}
}

func openPostgres(cfg *config.Config) (*sqlx.DB, error) {
	return postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
}
