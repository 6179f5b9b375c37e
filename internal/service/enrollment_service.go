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

type EnrollmentService struct {
	enrollments EnrollmentStore
	courses     CourseStore
	users       UserStore
	lessons     *LessonService
	policy      ConflictPolicy
	notifier    Notifier
	logger      *zap.Logger
	now         func() time.Time
}

func NewEnrollmentService(
	enrollments EnrollmentStore,
	courses CourseStore,
	users UserStore,
	lessons *LessonService,
	policy ConflictPolicy,
	notifier Notifier,
	logger *zap.Logger,
) *EnrollmentService {
	if policy == nil {
		policy = ExactSlotConflictPolicy{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &EnrollmentService{
		enrollments: enrollments,
		courses:     courses,
		users:       users,
		lessons:     lessons,
		policy:      policy,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// TryEnroll validates and records an enrollment. Checks run in order and stop at
// the first failure: course exists, not already enrolled, capacity, schedule clash.
func (s *EnrollmentService) TryEnroll(ctx context.Context, studentID, courseID uuid.UUID) (*model.Enrollment, error) {
	var enrollment *model.Enrollment

	err := s.enrollments.InEnrollmentTx(ctx, courseID, studentID, func(tx EnrollmentTx) error {
		course, err := tx.GetCourse(ctx, courseID)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if course == nil {
			return ErrCourseNotFound
		}

		enrolled, err := tx.IsEnrolled(ctx, studentID, courseID)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if enrolled {
			return ErrAlreadyEnrolled
		}

		count, err := tx.CountEnrolled(ctx, courseID)
		if err != nil {
			return fmt.Errorf("count enrolled: %w", err)
		}
		if count >= course.EnrollmentSettings.MaxStudents {
			return ErrCourseFull
		}

		current, err := tx.ListStudentCourses(ctx, studentID)
		if err != nil {
			return fmt.Errorf("list student courses: %w", err)
		}
		for _, other := range current {
			if s.policy.Conflicts(other.Schedule, course.Schedule) {
				return &ScheduleClashError{CourseID: other.ID, Title: other.Title}
			}
		}

		enrollment = &model.Enrollment{
			ID:        uuid.New(),
			StudentID: studentID,
			CourseID:  courseID,
			CreatedAt: s.now(),
		}
		if err := tx.CreateEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Info("Enrollment rejected",
			zap.String("student_id", studentID.String()),
			zap.String("course_id", courseID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Student enrolled",
		zap.String("enrollment_id", enrollment.ID.String()),
		zap.String("student_id", studentID.String()),
		zap.String("course_id", courseID.String()),
	)

	return enrollment, nil
}

// CancelEnrollment removes the enrollment. Lessons already materialized are kept.
func (s *EnrollmentService) CancelEnrollment(ctx context.Context, studentID, courseID uuid.UUID) error {
	err := s.enrollments.InEnrollmentTx(ctx, courseID, studentID, func(tx EnrollmentTx) error {
		removed, err := tx.DeleteEnrollment(ctx, studentID, courseID)
		if err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}
		if !removed {
			return ErrNotEnrolled
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Enrollment canceled",
		zap.String("student_id", studentID.String()),
		zap.String("course_id", courseID.String()),
	)

	return nil
}

// EnrollmentResult is the outcome of Enroll.
type EnrollmentResult struct {
	Enrollment           *model.Enrollment
	LessonIDs            []uuid.UUID
	ProvisioningFailures []OccurrenceFailure
}

// Enroll runs TryEnroll and then materializes the student's lessons. Lessons that
// could not be provisioned are reported in the result; the enrollment stands.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID uuid.UUID) (*EnrollmentResult, error) {
	enrollment, err := s.TryEnroll(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	result := &EnrollmentResult{Enrollment: enrollment}

	ids, err := s.lessons.Materialize(ctx, courseID, studentID)
	result.LessonIDs = ids

	var merr *MaterializationError
	switch {
	case err == nil:
	case errors.As(err, &merr):
		result.ProvisioningFailures = merr.Failures
		s.logger.Warn("Enrollment materialized partially",
			zap.String("student_id", studentID.String()),
			zap.String("course_id", courseID.String()),
			zap.Int("lessons", len(ids)),
			zap.Int("failed", len(merr.Failures)),
		)
	default:
		// The enrollment is committed; lessons can be materialized again later.
		s.logger.Error("Failed to materialize lessons",
			zap.String("student_id", studentID.String()),
			zap.String("course_id", courseID.String()),
			zap.Error(err),
		)
		return result, fmt.Errorf("materialize lessons: %w", err)
	}

	s.notifyEnrolled(ctx, studentID, courseID, len(ids))

	return result, nil
}

func (s *EnrollmentService) notifyEnrolled(ctx context.Context, studentID, courseID uuid.UUID, lessons int) {
	student, err := s.users.GetUser(ctx, studentID)
	if err != nil || student == nil {
		return
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil || course == nil {
		return
	}
	if err := s.notifier.NotifyEnrolled(ctx, student, course, lessons); err != nil {
		s.logger.Warn("Failed to notify student",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
	}
}

// CancelFutureLessons cancels the student's lessons of the course that have not
// started yet.
func (s *EnrollmentService) CancelFutureLessons(ctx context.Context, studentID, courseID uuid.UUID) (int64, error) {
	n, err := s.lessons.lessons.CancelUpcoming(ctx, courseID, studentID, s.now())
	if err != nil {
		return 0, fmt.Errorf("cancel upcoming lessons: %w", err)
	}

	s.logger.Info("Upcoming lessons canceled",
		zap.String("student_id", studentID.String()),
		zap.String("course_id", courseID.String()),
		zap.Int64("count", n),
	)

	return n, nil
}

// ListStudentCourses returns the courses the student is enrolled in.
func (s *EnrollmentService) ListStudentCourses(ctx context.Context, studentID uuid.UUID) ([]*model.Course, error) {
	return s.courses.ListStudentCourses(ctx, studentID)
}

// ListCourseStudents returns the students enrolled in the course.
func (s *EnrollmentService) ListCourseStudents(ctx context.Context, courseID uuid.UUID) ([]*model.User, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	return s.courses.ListCourseStudents(ctx, courseID)
}

// Rematerialize runs Materialize again for an enrolled student, provisioning the
// lessons that are still missing a meeting.
func (s *EnrollmentService) Rematerialize(ctx context.Context, studentID, courseID uuid.UUID) ([]uuid.UUID, error) {
	courses, err := s.courses.ListStudentCourses(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	for _, c := range courses {
		if c.ID == courseID {
			return s.lessons.Materialize(ctx, courseID, studentID)
		}
	}
	return nil, ErrNotEnrolled
}
