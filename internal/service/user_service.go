package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	users  UserStore
	logger *zap.Logger
	now    func() time.Time
}

func NewUserService(users UserStore, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterUser stores a new student or mentor.
func (s *UserService) RegisterUser(ctx context.Context, user *model.User) error {
	var fields []model.FieldError
	if user.Name == "" {
		fields = append(fields, model.FieldError{Field: "name", Error: "is required"})
	}
	switch user.Role {
	case model.RoleStudent:
	case model.RoleMentor:
		if user.Email == "" {
			fields = append(fields, model.FieldError{Field: "email", Error: "is required for mentors"})
		}
		if err := user.Availability.Validate(); err != nil {
			fields = append(fields, err.(*model.ValidationError).Fields...)
		}
	default:
		fields = append(fields, model.FieldError{Field: "role", Error: "must be student or mentor"})
	}
	if len(fields) > 0 {
		return model.NewValidationError("invalid user", fields...)
	}

	user.ID = uuid.New()
	user.CreatedAt = s.now()

	if err := s.users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)

	return nil
}

// GetByID returns a user or ErrUserNotFound.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByTelegramID returns the user linked to a Telegram chat, or nil.
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.users.GetUserByTelegramID(ctx, telegramID)
}

// LinkTelegram attaches a Telegram chat to an existing user. A user already
// linked to another chat is refused with ErrTelegramLinked until that chat
// unlinks. A chat linked to another user moves to this one.
func (s *UserService) LinkTelegram(ctx context.Context, id uuid.UUID, telegramID int64) (*model.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.TelegramID != nil {
		if *user.TelegramID == telegramID {
			return user, nil
		}
		return nil, ErrTelegramLinked
	}

	previous, err := s.users.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	if err := s.users.SetTelegramID(ctx, id, telegramID); err != nil {
		if errors.Is(err, ErrTelegramLinked) {
			return nil, ErrTelegramLinked
		}
		return nil, fmt.Errorf("link telegram: %w", err)
	}
	user.TelegramID = &telegramID

	if previous != nil && previous.ID != id {
		s.logger.Warn("Telegram chat moved to another user",
			zap.Int64("telegram_id", telegramID),
			zap.String("previous_user_id", previous.ID.String()),
			zap.String("user_id", id.String()),
		)
	}
	s.logger.Info("Telegram linked",
		zap.String("user_id", id.String()),
		zap.Int64("telegram_id", telegramID),
	)

	return user, nil
}

// UnlinkTelegram detaches the chat from whichever user it is linked to.
func (s *UserService) UnlinkTelegram(ctx context.Context, telegramID int64) (bool, error) {
	removed, err := s.users.UnlinkTelegram(ctx, telegramID)
	if err != nil {
		return false, fmt.Errorf("unlink telegram: %w", err)
	}
	if removed {
		s.logger.Info("Telegram unlinked", zap.Int64("telegram_id", telegramID))
	}
	return removed, nil
}
