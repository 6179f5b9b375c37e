package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

var _ service.EnrollmentStore = (*EnrollmentRepository)(nil)

// InEnrollmentTx takes a transaction-scoped advisory lock on the student and a row
// lock on the course before running fn. The student lock is taken first so two
// transactions never wait on each other in opposite order.
func (r *EnrollmentRepository) InEnrollmentTx(ctx context.Context, courseID, studentID uuid.UUID, fn func(tx service.EnrollmentTx) error) error {
	return base.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, studentID.String()); err != nil {
			return fmt.Errorf("lock student: %w", err)
		}

		course, err := getCourse(ctx, tx, courseID, true)
		if err != nil {
			return fmt.Errorf("lock course: %w", err)
		}

		return fn(&enrollmentTx{tx: tx, locked: course})
	})
}

type enrollmentTx struct {
	tx     pgx.Tx
	locked *model.Course
}

func (t *enrollmentTx) GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	if t.locked != nil && t.locked.ID == id {
		c := *t.locked
		return &c, nil
	}
	return getCourse(ctx, t.tx, id, false)
}

func (t *enrollmentTx) IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)`,
		studentID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

func (t *enrollmentTx) CountEnrolled(ctx context.Context, courseID uuid.UUID) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, courseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

func (t *enrollmentTx) ListStudentCourses(ctx context.Context, studentID uuid.UUID) ([]*model.Course, error) {
	return listStudentCourses(ctx, t.tx, studentID)
}

func (t *enrollmentTx) CreateEnrollment(ctx context.Context, enrollment *model.Enrollment) error {
	query := `
		INSERT INTO enrollments (id, student_id, course_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := t.tx.Exec(ctx, query, enrollment.ID, enrollment.StudentID, enrollment.CourseID, enrollment.CreatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return service.ErrAlreadyEnrolled
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	return nil
}

func (t *enrollmentTx) DeleteEnrollment(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	n, err := base.ExecAffected(ctx, t.tx,
		`DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID,
	)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	return n > 0, nil
}
