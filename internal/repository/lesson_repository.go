package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LessonRepository struct {
	pool *pgxpool.Pool
}

func NewLessonRepository(pool *pgxpool.Pool) *LessonRepository {
	return &LessonRepository{pool: pool}
}

var _ service.LessonStore = (*LessonRepository)(nil)

// One-off lessons have no course; they scan as uuid.Nil.
const noCourse = `'00000000-0000-0000-0000-000000000000'::uuid`

const lessonColumns = `id, COALESCE(course_id, ` + noCourse + `), mentor_id, student_id, subject, title, description,
	start_time, end_time, price, status, meeting_id, meeting_link,
	recording_url, recording_checked, recording_attempts, recording_unavailable,
	recording_polled_at, created_at, updated_at`

func scanLesson(row interface{ Scan(dest ...any) error }) (*model.Lesson, error) {
	var lesson model.Lesson
	err := row.Scan(
		&lesson.ID,
		&lesson.CourseID,
		&lesson.MentorID,
		&lesson.StudentID,
		&lesson.Subject,
		&lesson.Title,
		&lesson.Description,
		&lesson.StartTime,
		&lesson.EndTime,
		&lesson.Price,
		&lesson.Status,
		&lesson.MeetingID,
		&lesson.MeetingLink,
		&lesson.RecordingURL,
		&lesson.RecordingChecked,
		&lesson.RecordingAttempts,
		&lesson.RecordingUnavailable,
		&lesson.RecordingPolledAt,
		&lesson.CreatedAt,
		&lesson.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

// CreateLesson inserts the lesson; an existing row for the same course, student
// and start time is loaded into lesson instead. A NULL course never conflicts.
func (r *LessonRepository) CreateLesson(ctx context.Context, lesson *model.Lesson) (bool, error) {
	query := `
		INSERT INTO lessons (
			id, course_id, mentor_id, student_id, subject, title, description,
			start_time, end_time, price, status
		)
		VALUES ($1, NULLIF($2, `+noCourse+`), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (course_id, student_id, start_time) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		lesson.ID,
		lesson.CourseID,
		lesson.MentorID,
		lesson.StudentID,
		lesson.Subject,
		lesson.Title,
		lesson.Description,
		lesson.StartTime,
		lesson.EndTime,
		lesson.Price,
		lesson.Status,
	).Scan(&lesson.CreatedAt, &lesson.UpdatedAt)

	if err == nil {
		return true, nil
	}
	if !base.IsNotFound(err) {
		return false, fmt.Errorf("create lesson: %w", err)
	}

	existing, err := scanLesson(r.pool.QueryRow(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE course_id = $1 AND student_id = $2 AND start_time = $3`,
		lesson.CourseID, lesson.StudentID, lesson.StartTime,
	))
	if err != nil {
		return false, fmt.Errorf("get existing lesson: %w", err)
	}
	*lesson = *existing

	return false, nil
}

func (r *LessonRepository) GetLesson(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	lesson, err := scanLesson(r.pool.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lesson by id: %w", err)
	}
	return lesson, nil
}

// ClaimProvisioning stamps provisioning_started_at on a lesson that has no
// meeting and no live claim. Only one caller sees the row change.
func (r *LessonRepository) ClaimProvisioning(ctx context.Context, id uuid.UUID, now time.Time, staleAfter time.Duration) (bool, error) {
	query := `
		UPDATE lessons
		SET provisioning_started_at = $2
		WHERE id = $1
		  AND meeting_id = ''
		  AND status NOT IN ('completed', 'canceled')
		  AND (provisioning_started_at IS NULL OR provisioning_started_at <= $3)
	`

	n, err := base.ExecAffected(ctx, r.pool, query, id, now, now.Add(-staleAfter))
	if err != nil {
		return false, fmt.Errorf("claim lesson provisioning: %w", err)
	}
	return n > 0, nil
}

// SetProvisioning stores the meeting (when one was created and the lesson has
// none), moves a non-terminal lesson to status and drops the claim.
func (r *LessonRepository) SetProvisioning(ctx context.Context, id uuid.UUID, meetingID, meetingLink string, status model.LessonStatus) error {
	query := `
		UPDATE lessons
		SET meeting_id = CASE WHEN $2 = '' OR meeting_id <> '' THEN meeting_id ELSE $2 END,
		    meeting_link = CASE WHEN $2 = '' OR meeting_id <> '' THEN meeting_link ELSE $3 END,
		    status = CASE WHEN status IN ('completed', 'canceled') THEN status ELSE $4 END,
		    provisioning_started_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id, meetingID, meetingLink, status); err != nil {
		return fmt.Errorf("set lesson provisioning: %w", err)
	}
	return nil
}

func (r *LessonRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.LessonStatus) error {
	n, err := base.ExecAffected(ctx, r.pool,
		`UPDATE lessons SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	if n == 0 {
		return service.ErrLessonNotFound
	}
	return nil
}

func (r *LessonRepository) DeleteLesson(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := base.ExecAffected(ctx, r.pool, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete lesson: %w", err)
	}
	return n > 0, nil
}

func (r *LessonRepository) list(ctx context.Context, where string, args ...any) ([]*model.Lesson, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []*model.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}

	return lessons, rows.Err()
}

func (r *LessonRepository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*model.Lesson, error) {
	lessons, err := r.list(ctx, `course_id = $1 ORDER BY start_time`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons by course: %w", err)
	}
	return lessons, nil
}

func (r *LessonRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Lesson, error) {
	lessons, err := r.list(ctx, `student_id = $1 ORDER BY start_time`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list lessons by student: %w", err)
	}
	return lessons, nil
}

func (r *LessonRepository) ListByMentor(ctx context.Context, mentorID uuid.UUID) ([]*model.Lesson, error) {
	lessons, err := r.list(ctx, `mentor_id = $1 ORDER BY start_time`, mentorID)
	if err != nil {
		return nil, fmt.Errorf("list lessons by mentor: %w", err)
	}
	return lessons, nil
}

func (r *LessonRepository) ListByStudentBetween(ctx context.Context, studentID uuid.UUID, from, to time.Time) ([]*model.Lesson, error) {
	lessons, err := r.list(ctx,
		`student_id = $1 AND start_time >= $2 AND start_time < $3 ORDER BY start_time`,
		studentID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list lessons by student between: %w", err)
	}
	return lessons, nil
}

func (r *LessonRepository) CancelUpcoming(ctx context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE lessons
		SET status = 'canceled', updated_at = NOW()
		WHERE course_id = $1 AND student_id = $2
		  AND start_time > $3
		  AND status IN ('pending', 'scheduled')
	`

	n, err := base.ExecAffected(ctx, r.pool, query, courseID, studentID, now)
	if err != nil {
		return 0, fmt.Errorf("cancel upcoming lessons: %w", err)
	}
	return n, nil
}

// CompleteEnded is a single UPDATE, so repeated or overlapping sweeps converge.
func (r *LessonRepository) CompleteEnded(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE lessons
		SET status = 'completed', updated_at = NOW()
		WHERE end_time < $1
		  AND status NOT IN ('completed', 'canceled')
	`

	n, err := base.ExecAffected(ctx, r.pool, query, now)
	if err != nil {
		return 0, fmt.Errorf("complete ended lessons: %w", err)
	}
	return n, nil
}

// ListAwaitingRecording rotates through the backlog: never-polled lessons
// first, then the ones polled longest ago.
func (r *LessonRepository) ListAwaitingRecording(ctx context.Context, limit int) ([]*model.Lesson, error) {
	lessons, err := r.list(ctx, `
		status = 'completed'
		  AND recording_url = ''
		  AND meeting_id <> ''
		  AND NOT recording_unavailable
		ORDER BY recording_polled_at NULLS FIRST, end_time
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list lessons awaiting recording: %w", err)
	}
	return lessons, nil
}

func (r *LessonRepository) AttachRecording(ctx context.Context, id uuid.UUID, recordingURL string, at time.Time) (bool, error) {
	query := `
		UPDATE lessons
		SET recording_url = $2,
		    recording_checked = TRUE,
		    recording_unavailable = FALSE,
		    recording_polled_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND recording_url = ''
	`

	n, err := base.ExecAffected(ctx, r.pool, query, id, recordingURL, at)
	if err != nil {
		return false, fmt.Errorf("attach recording: %w", err)
	}
	return n > 0, nil
}

// RecordRecordingMiss only counts when recording_attempts still matches what
// the caller read, so two overlapping sweeps count a lesson once.
func (r *LessonRepository) RecordRecordingMiss(ctx context.Context, id uuid.UUID, seenAttempts, maxAttempts int, at time.Time) error {
	query := `
		UPDATE lessons
		SET recording_attempts = recording_attempts + 1,
		    recording_unavailable = ($2 > 0 AND recording_attempts + 1 >= $2),
		    recording_polled_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND recording_attempts = $3
	`

	if _, err := r.pool.Exec(ctx, query, id, maxAttempts, seenAttempts, at); err != nil {
		return fmt.Errorf("record recording miss: %w", err)
	}
	return nil
}

func (r *LessonRepository) MarkRecordingPolled(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE lessons SET recording_polled_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("mark recording polled: %w", err)
	}
	return nil
}
