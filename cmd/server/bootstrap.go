package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"liveline/internal/config"
	"liveline/internal/store/sqlstore"
)

var envFile string

// bootstrap loads configuration and builds the logger shared by every command.
func bootstrap() (*config.Config, *logrus.Logger, error) {
	config.LoadEnv(config.EnvFile(envFile))

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, sqlstore.Dialect, error) {
	dialect, err := sqlstore.DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, sqlstore.Dialect{}, err
	}

	db, err := sqlstore.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return nil, sqlstore.Dialect{}, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	return db, dialect, nil
}
