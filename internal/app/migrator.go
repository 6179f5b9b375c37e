package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/Freeeeeet/lesson_scheduler/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrator applies goose migrations to the lesson database.
type Migrator struct {
	provider *goose.Provider
	source   string
	logger   *zap.Logger
}

// NewMigrator reads migrations from dir, or from the ones embedded in the binary
// when dir is empty.
func NewMigrator(pool *pgxpool.Pool, dir string, logger *zap.Logger) (*Migrator, error) {
	var fsys fs.FS = migrations.FS
	source := "embedded"
	if dir != "" {
		fsys, source = os.DirFS(dir), dir
	}

	// goose needs a *sql.DB; this one shares the pool's connections.
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool), fsys)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}

	return &Migrator{provider: provider, source: source, logger: logger}, nil
}

// Run applies all pending migrations.
func (mg *Migrator) Run(ctx context.Context) error {
	mg.logger.Info("Applying database migrations", zap.String("source", mg.source))

	results, err := mg.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		mg.logger.Info("Migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("took", r.Duration),
		)
	}

	version, err := mg.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	mg.logger.Info("Database schema is up to date", zap.Int64("version", version), zap.Int("applied", len(results)))

	return nil
}

// Close closes the sql.DB wrapper; the pool itself is owned by main.
func (mg *Migrator) Close() error {
	return mg.provider.Close()
}
