package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/google/uuid"
)

// Storage contracts. Reads return nil, nil when a record does not exist.

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	// SetTelegramID links the chat to the user, moving it off any other user.
	// It returns ErrTelegramLinked when the user is linked to a different chat.
	SetTelegramID(ctx context.Context, id uuid.UUID, telegramID int64) error
	UnlinkTelegram(ctx context.Context, telegramID int64) (bool, error)
}

type CourseStore interface {
	CreateCourse(ctx context.Context, course *model.Course) error
	GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error)
	ListStudentCourses(ctx context.Context, studentID uuid.UUID) ([]*model.Course, error)
	ListCourseStudents(ctx context.Context, courseID uuid.UUID) ([]*model.User, error)
}

// EnrollmentTx is the view of storage inside an enrollment transaction. The
// transaction holds an exclusive lock on the course and on the student, so the
// counts and lists it returns stay valid until it commits.
type EnrollmentTx interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*model.Course, error)
	IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
	CountEnrolled(ctx context.Context, courseID uuid.UUID) (int, error)
	ListStudentCourses(ctx context.Context, studentID uuid.UUID) ([]*model.Course, error)
	CreateEnrollment(ctx context.Context, enrollment *model.Enrollment) error
	DeleteEnrollment(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
}

type EnrollmentStore interface {
	// InEnrollmentTx runs fn in a transaction locked on courseID and studentID.
	// The transaction commits when fn returns nil and rolls back otherwise.
	InEnrollmentTx(ctx context.Context, courseID, studentID uuid.UUID, fn func(tx EnrollmentTx) error) error
}

type LessonStore interface {
	// CreateLesson inserts the lesson unless one already exists for the same
	// course, student and start time; in that case lesson is filled from the
	// existing row and created is false. Lessons without a course never collide.
	CreateLesson(ctx context.Context, lesson *model.Lesson) (created bool, err error)
	GetLesson(ctx context.Context, id uuid.UUID) (*model.Lesson, error)
	// ClaimProvisioning reserves the lesson for one meeting request. It fails
	// when the lesson already has a meeting, is terminal, or holds a claim
	// younger than staleAfter.
	ClaimProvisioning(ctx context.Context, id uuid.UUID, now time.Time, staleAfter time.Duration) (bool, error)
	// SetProvisioning releases the claim. The meeting is stored only if the
	// lesson has none yet.
	SetProvisioning(ctx context.Context, id uuid.UUID, meetingID, meetingLink string, status model.LessonStatus) error
	SetStatus(ctx context.Context, id uuid.UUID, status model.LessonStatus) error
	DeleteLesson(ctx context.Context, id uuid.UUID) (bool, error)

	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*model.Lesson, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Lesson, error)
	ListByMentor(ctx context.Context, mentorID uuid.UUID) ([]*model.Lesson, error)
	ListByStudentBetween(ctx context.Context, studentID uuid.UUID, from, to time.Time) ([]*model.Lesson, error)

	// CancelUpcoming cancels pending/scheduled lessons of the pair that start after now.
	CancelUpcoming(ctx context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error)

	// CompleteEnded marks every lesson with end_time < now that is neither
	// completed nor canceled as completed.
	CompleteEnded(ctx context.Context, now time.Time) (int64, error)
	// ListAwaitingRecording returns never-polled lessons first, then the
	// least recently polled.
	ListAwaitingRecording(ctx context.Context, limit int) ([]*model.Lesson, error)
	// AttachRecording stores the url unless the lesson already has one.
	AttachRecording(ctx context.Context, id uuid.UUID, recordingURL string, at time.Time) (bool, error)
	// RecordRecordingMiss counts a poll that found nothing, provided the count
	// still equals seenAttempts. When maxAttempts > 0 and the count reaches it,
	// the lesson is flagged recording_unavailable.
	RecordRecordingMiss(ctx context.Context, id uuid.UUID, seenAttempts, maxAttempts int, at time.Time) error
	// MarkRecordingPolled stamps a poll that failed without an answer.
	MarkRecordingPolled(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Notifier delivers best-effort messages to users. Errors are logged by callers.
type Notifier interface {
	NotifyEnrolled(ctx context.Context, student *model.User, course *model.Course, lessons int) error
	NotifyRecording(ctx context.Context, student *model.User, lesson *model.Lesson) error
}

type nopNotifier struct{}

func (nopNotifier) NotifyEnrolled(context.Context, *model.User, *model.Course, int) error {
	return nil
}

func (nopNotifier) NotifyRecording(context.Context, *model.User, *model.Lesson) error {
	return nil
}
