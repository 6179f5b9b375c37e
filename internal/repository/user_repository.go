package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ service.UserStore = (*UserRepository)(nil)

const userColumns = `id, role, name, email, telegram_id, hourly_rate, availability, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var (
		user         model.User
		availability []byte
	)
	err := row.Scan(
		&user.ID,
		&user.Role,
		&user.Name,
		&user.Email,
		&user.TelegramID,
		&user.HourlyRate,
		&availability,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(availability) > 0 {
		if err := json.Unmarshal(availability, &user.Availability); err != nil {
			return nil, fmt.Errorf("decode availability: %w", err)
		}
	}
	return &user, nil
}

// CreateUser creates a student or mentor.
func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	availability, err := json.Marshal(user.Availability)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}

	query := `
		INSERT INTO users (id, role, name, email, telegram_id, hourly_rate, availability)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err = r.pool.QueryRow(
		ctx, query,
		user.ID,
		user.Role,
		user.Name,
		user.Email,
		user.TelegramID,
		user.HourlyRate,
		availability,
	).Scan(&user.CreatedAt)

	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	return user, nil
}

// SetTelegramID links a chat to the user, unlinking any other user that held
// it. A user already linked to a different chat is left untouched.
func (r *UserRepository) SetTelegramID(ctx context.Context, id uuid.UUID, telegramID int64) error {
	return base.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE users SET telegram_id = NULL WHERE telegram_id = $1 AND id <> $2`, telegramID, id); err != nil {
			return fmt.Errorf("unlink telegram id: %w", err)
		}

		n, err := base.ExecAffected(ctx, tx,
			`UPDATE users SET telegram_id = $1 WHERE id = $2 AND (telegram_id IS NULL OR telegram_id = $1)`,
			telegramID, id,
		)
		if err != nil {
			return fmt.Errorf("set telegram id: %w", err)
		}
		if n > 0 {
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return service.ErrUserNotFound
		}
		return service.ErrTelegramLinked
	})
}

func (r *UserRepository) UnlinkTelegram(ctx context.Context, telegramID int64) (bool, error) {
	n, err := base.ExecAffected(ctx, r.pool, `UPDATE users SET telegram_id = NULL WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return false, fmt.Errorf("unlink telegram id: %w", err)
	}
	return n > 0, nil
}
