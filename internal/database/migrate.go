package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mehmetcc/tenantcore/migrations"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate applies every pending embedded migration and logs each one.
// Failures come back as errors; goose never exits the process.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	for _, res := range results {
		logMigration(logger, res)
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("schema up to date",
		zap.Int64("version", version),
		zap.Int("applied", len(results)),
	)
	return nil
}

func logMigration(logger *zap.Logger, res *goose.MigrationResult) {
	if res == nil || res.Source == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("version", res.Source.Version),
		zap.String("file", res.Source.Path),
		zap.String("direction", res.Direction),
		zap.Duration("took", res.Duration),
	}
	if res.Error != nil {
		logger.Error("migration failed", append(fields, zap.Error(res.Error))...)
		return
	}
	logger.Info("migration applied", fields...)
}
