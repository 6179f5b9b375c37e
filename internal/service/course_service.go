package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CourseService struct {
	courses CourseStore
	users   UserStore
	logger  *zap.Logger
	now     func() time.Time
}

func NewCourseService(courses CourseStore, users UserStore, logger *zap.Logger) *CourseService {
	return &CourseService{
		courses: courses,
		users:   users,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateCourse validates and stores a course owned by a mentor.
func (s *CourseService) CreateCourse(ctx context.Context, course *model.Course) error {
	if err := course.Validate(); err != nil {
		return err
	}

	mentor, err := s.users.GetUser(ctx, course.MentorID)
	if err != nil {
		return fmt.Errorf("get mentor: %w", err)
	}
	if mentor == nil {
		return ErrUserNotFound
	}
	if mentor.Role != model.RoleMentor {
		return ErrNotAMentor
	}

	course.ID = uuid.New()
	course.CreatedAt = s.now()

	if err := s.courses.CreateCourse(ctx, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}

	s.logger.Info("Course created",
		zap.String("course_id", course.ID.String()),
		zap.String("mentor_id", course.MentorID.String()),
		zap.String("schedule", course.Schedule.String()),
	)

	return nil
}

// GetCourse returns a course or ErrCourseNotFound.
func (s *CourseService) GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	course, err := s.courses.GetCourse(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	return course, nil
}
