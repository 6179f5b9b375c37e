package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CourseRepository struct {
	pool *pgxpool.Pool
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

var _ service.CourseStore = (*CourseRepository)(nil)

const courseColumns = `c.id, c.mentor_id, c.title, c.description, c.subject,
	c.days_of_week, c.start_time, c.session_duration, c.timezone,
	c.enrollment_deadline, c.start_date, c.end_date,
	c.min_students, c.max_students, c.created_at`

func scanCourse(row interface{ Scan(dest ...any) error }) (*model.Course, error) {
	var (
		course   model.Course
		days     []string
		start    string
		duration int
		timezone string
	)
	err := row.Scan(
		&course.ID,
		&course.MentorID,
		&course.Title,
		&course.Description,
		&course.Subject,
		&days,
		&start,
		&duration,
		&timezone,
		&course.Timeline.EnrollmentDeadline,
		&course.Timeline.StartDate,
		&course.Timeline.EndDate,
		&course.EnrollmentSettings.MinStudents,
		&course.EnrollmentSettings.MaxStudents,
		&course.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	weekdays := make([]model.Weekday, 0, len(days))
	for _, d := range days {
		wd, err := model.ParseWeekday(d)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", course.ID, err)
		}
		weekdays = append(weekdays, wd)
	}
	clock, err := model.ParseClockTime(start)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", course.ID, err)
	}
	course.Schedule = model.RestoreSchedule(weekdays, clock, duration, timezone)

	return &course, nil
}

// CreateCourse stores a course with its schedule flattened into columns.
func (r *CourseRepository) CreateCourse(ctx context.Context, course *model.Course) error {
	days := make([]string, 0, len(course.Schedule.DaysOfWeek()))
	for _, d := range course.Schedule.DaysOfWeek() {
		days = append(days, string(d))
	}

	query := `
		INSERT INTO courses (
			id, mentor_id, title, description, subject,
			days_of_week, start_time, session_duration, timezone,
			enrollment_deadline, start_date, end_date,
			min_students, max_students
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		course.ID,
		course.MentorID,
		course.Title,
		course.Description,
		course.Subject,
		days,
		course.Schedule.StartTime().String(),
		course.Schedule.SessionDuration(),
		course.Schedule.Timezone(),
		course.Timeline.EnrollmentDeadline,
		course.Timeline.StartDate,
		course.Timeline.EndDate,
		course.EnrollmentSettings.MinStudents,
		course.EnrollmentSettings.MaxStudents,
	).Scan(&course.CreatedAt)

	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}

	return nil
}

func (r *CourseRepository) GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	return getCourse(ctx, r.pool, id, false)
}

func (r *CourseRepository) ListStudentCourses(ctx context.Context, studentID uuid.UUID) ([]*model.Course, error) {
	return listStudentCourses(ctx, r.pool, studentID)
}

// ListCourseStudents returns the enrolled students in enrollment order.
func (r *CourseRepository) ListCourseStudents(ctx context.Context, courseID uuid.UUID) ([]*model.User, error) {
	query := `
		SELECT u.id, u.role, u.name, u.email, u.telegram_id, u.hourly_rate, u.availability, u.created_at
		FROM enrollments e
		JOIN users u ON u.id = e.student_id
		WHERE e.course_id = $1
		ORDER BY e.created_at
	`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func getCourse(ctx context.Context, q base.Querier, id uuid.UUID, forUpdate bool) (*model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses c WHERE c.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	course, err := scanCourse(q.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get course by id: %w", err)
	}

	return course, nil
}

func listStudentCourses(ctx context.Context, q base.Querier, studentID uuid.UUID) ([]*model.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE e.student_id = $1
		ORDER BY e.created_at
	`

	rows, err := q.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	defer rows.Close()

	var courses []*model.Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}

	return courses, rows.Err()
}
