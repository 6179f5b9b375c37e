package main

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/app"
	"github.com/Freeeeeet/lesson_scheduler/internal/config"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type stores struct {
	users       service.UserStore
	courses     service.CourseStore
	enrollments service.EnrollmentStore
	lessons     service.LessonStore
	close       func()
}

// openStores connects to Postgres and applies migrations, or falls back to the
// in-memory store when DB_DSN is empty.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.DBDSN == "" {
		logger.Warn("DB_DSN is not set, using in-memory storage")
		mem := memory.NewStore()
		return &stores{
			users:       mem,
			courses:     mem,
			enrollments: mem,
			lessons:     mem,
			close:       func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Connected to database")

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &stores{
		users:       repository.NewUserRepository(pool),
		courses:     repository.NewCourseRepository(pool),
		enrollments: repository.NewEnrollmentRepository(pool),
		lessons:     repository.NewLessonRepository(pool),
		close:       pool.Close,
	}, nil
}
