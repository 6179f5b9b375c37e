package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/provisioning"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LessonOptions tunes the materializer.
type LessonOptions struct {
	// ProvisioningTimeout bounds each CreateMeeting call.
	ProvisioningTimeout time.Duration
	// PriceFromMentorRate prices each lesson at the mentor's hourly rate
	// prorated by session length. Otherwise lessons are free.
	PriceFromMentorRate bool
}

type LessonService struct {
	lessons LessonStore
	courses CourseStore
	users   UserStore
	gateway provisioning.Gateway
	opts    LessonOptions
	logger  *zap.Logger
	now     func() time.Time
}

func NewLessonService(
	lessons LessonStore,
	courses CourseStore,
	users UserStore,
	gateway provisioning.Gateway,
	opts LessonOptions,
	logger *zap.Logger,
) *LessonService {
	if opts.ProvisioningTimeout <= 0 {
		opts.ProvisioningTimeout = 15 * time.Second
	}
	return &LessonService{
		lessons: lessons,
		courses: courses,
		users:   users,
		gateway: gateway,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Occurrence is one dated session of a course.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Occurrences walks every calendar date of the timeline, inclusive, and returns a
// session for each date whose weekday is in the schedule. Dates are interpreted in
// the schedule's timezone. An empty schedule or an inverted timeline yields nothing.
func Occurrences(schedule model.Schedule, timeline model.Timeline) []Occurrence {
	if len(schedule.DaysOfWeek()) == 0 || timeline.EndDate.Before(timeline.StartDate) {
		return nil
	}

	loc := schedule.Location()
	first := dateIn(timeline.StartDate, loc)
	last := dateIn(timeline.EndDate, loc)

	var out []Occurrence
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !schedule.Includes(day.Weekday()) {
			continue
		}
		start := schedule.StartTime().On(day, loc)
		out = append(out, Occurrence{Start: start, End: start.Add(schedule.Duration())})
	}
	return out
}

// dateIn keeps the calendar date of t as written, placing it at midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Materialize creates one lesson per occurrence of the course for the student and
// requests a meeting for each. A provisioning failure leaves that lesson without
// a link and is reported in a *MaterializationError together with the full list
// of lesson ids. Running it again does not duplicate lessons and only provisions
// the ones still missing a meeting.
func (s *LessonService) Materialize(ctx context.Context, courseID, studentID uuid.UUID) ([]uuid.UUID, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	mentor, err := s.users.GetUser(ctx, course.MentorID)
	if err != nil {
		return nil, fmt.Errorf("get mentor: %w", err)
	}
	if mentor == nil {
		return nil, ErrUserNotFound
	}

	price := 0.0
	if s.opts.PriceFromMentorRate {
		price = mentor.HourlyRate * float64(course.Schedule.SessionDuration()) / 60
	}

	occurrences := Occurrences(course.Schedule, course.Timeline)
	ids := make([]uuid.UUID, 0, len(occurrences))
	var failures []OccurrenceFailure

	for _, occ := range occurrences {
		lesson := &model.Lesson{
			ID:          uuid.New(),
			CourseID:    course.ID,
			MentorID:    course.MentorID,
			StudentID:   studentID,
			Subject:     course.Subject,
			Title:       course.Title + " - Class",
			Description: course.Description,
			StartTime:   occ.Start,
			EndTime:     occ.End,
			Price:       price,
			Status:      model.LessonStatusPending,
		}

		created, err := s.lessons.CreateLesson(ctx, lesson)
		if err != nil {
			return ids, fmt.Errorf("create lesson at %s: %w", occ.Start.Format(time.RFC3339), err)
		}
		ids = append(ids, lesson.ID)

		if !created && (lesson.MeetingID != "" || lesson.Status.Terminal()) {
			continue
		}

		err = s.provision(ctx, lesson, mentor.Email)
		switch {
		case errors.Is(err, ErrProvisionBusy):
			// another request is creating this meeting
		case err != nil:
			failures = append(failures, OccurrenceFailure{LessonID: lesson.ID, Err: err})
		}
	}

	s.logger.Info("Lessons materialized",
		zap.String("course_id", courseID.String()),
		zap.String("student_id", studentID.String()),
		zap.Int("lessons", len(ids)),
		zap.Int("provisioning_failures", len(failures)),
	)

	if len(failures) > 0 {
		return ids, &MaterializationError{Failures: failures}
	}
	return ids, nil
}

// provision asks the gateway for a meeting and marks the lesson scheduled whether
// or not that succeeded. It returns ErrProvisionBusy without calling the gateway
// when the lesson is claimed by someone else or already has a meeting.
func (s *LessonService) provision(ctx context.Context, lesson *model.Lesson, host string) error {
	claimed, err := s.lessons.ClaimProvisioning(ctx, lesson.ID, s.now(), 2*s.opts.ProvisioningTimeout)
	if err != nil {
		return fmt.Errorf("claim lesson: %w", err)
	}
	if !claimed {
		return ErrProvisionBusy
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ProvisioningTimeout)
	meeting, perr := s.gateway.CreateMeeting(callCtx, lesson.Title, lesson.StartTime, lesson.DurationMinutes(), host)
	cancel()

	var meetingID, link string
	if perr != nil {
		s.logger.Warn("Failed to provision lesson",
			zap.String("lesson_id", lesson.ID.String()),
			zap.Time("start_time", lesson.StartTime),
			zap.Error(perr),
		)
	} else {
		meetingID, link = meeting.ExternalMeetingID, meeting.JoinURL
	}

	if err := s.lessons.SetProvisioning(ctx, lesson.ID, meetingID, link, model.LessonStatusScheduled); err != nil {
		s.logger.Error("Failed to save provisioning result",
			zap.String("lesson_id", lesson.ID.String()),
			zap.Error(err),
		)
		if perr == nil {
			return fmt.Errorf("save meeting: %w", err)
		}
	}
	lesson.MeetingID, lesson.MeetingLink, lesson.Status = meetingID, link, model.LessonStatusScheduled

	return perr
}

// ProvisionLesson requests a meeting for a single lesson that has none. A
// lesson that already has a meeting is returned unchanged.
func (s *LessonService) ProvisionLesson(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	lesson, err := s.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case lesson.Status == model.LessonStatusCanceled:
		return nil, ErrLessonCanceled
	case lesson.Status == model.LessonStatusCompleted:
		return nil, ErrLessonCompleted
	case lesson.MeetingID != "":
		return lesson, nil
	}

	mentor, err := s.users.GetUser(ctx, lesson.MentorID)
	if err != nil {
		return nil, fmt.Errorf("get mentor: %w", err)
	}
	if mentor == nil {
		return nil, ErrUserNotFound
	}

	err = s.provision(ctx, lesson, mentor.Email)
	var perr *provisioning.Error
	switch {
	case errors.As(err, &perr):
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	case errors.Is(err, ErrProvisionBusy):
		// lost the claim; report whatever the winner stored
		return s.GetLesson(ctx, id)
	case err != nil:
		return nil, err
	}

	s.logger.Info("Lesson provisioned", zap.String("lesson_id", id.String()))

	return lesson, nil
}

// BookingRequest asks for a one-off lesson outside any course.
type BookingRequest struct {
	MentorID  uuid.UUID
	StudentID uuid.UUID
	Subject   string
	StartTime time.Time
}

// BookLesson creates a one-hour pending lesson between a mentor and a student.
// No meeting is requested; use ProvisionLesson for that.
func (s *LessonService) BookLesson(ctx context.Context, req BookingRequest) (*model.Lesson, error) {
	var fields []model.FieldError
	if req.Subject == "" {
		fields = append(fields, model.FieldError{Field: "subject", Error: "is required"})
	}
	if req.StartTime.IsZero() {
		fields = append(fields, model.FieldError{Field: "start_time", Error: "is required"})
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("invalid booking", fields...)
	}

	mentor, err := s.users.GetUser(ctx, req.MentorID)
	if err != nil {
		return nil, fmt.Errorf("get mentor: %w", err)
	}
	if mentor == nil {
		return nil, ErrUserNotFound
	}
	if mentor.Role != model.RoleMentor {
		return nil, ErrNotAMentor
	}

	student, err := s.users.GetUser(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return nil, ErrUserNotFound
	}
	if student.Role != model.RoleStudent {
		return nil, ErrNotAStudent
	}

	price := 0.0
	if s.opts.PriceFromMentorRate {
		price = mentor.HourlyRate
	}

	lesson := &model.Lesson{
		ID:        uuid.New(),
		MentorID:  mentor.ID,
		StudentID: student.ID,
		Subject:   req.Subject,
		Title:     req.Subject + " Lesson",
		StartTime: req.StartTime,
		EndTime:   req.StartTime.Add(bookedLessonDuration),
		Price:     price,
		Status:    model.LessonStatusPending,
	}
	if _, err := s.lessons.CreateLesson(ctx, lesson); err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}

	s.logger.Info("Lesson booked",
		zap.String("lesson_id", lesson.ID.String()),
		zap.String("mentor_id", mentor.ID.String()),
		zap.String("student_id", student.ID.String()),
	)

	return lesson, nil
}

const bookedLessonDuration = time.Hour

// GetLesson returns a lesson or ErrLessonNotFound.
func (s *LessonService) GetLesson(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	lesson, err := s.lessons.GetLesson(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	if lesson == nil {
		return nil, ErrLessonNotFound
	}
	return lesson, nil
}

func (s *LessonService) ListCourseLessons(ctx context.Context, courseID uuid.UUID) ([]*model.Lesson, error) {
	return s.lessons.ListByCourse(ctx, courseID)
}

func (s *LessonService) ListStudentLessons(ctx context.Context, studentID uuid.UUID) ([]*model.Lesson, error) {
	return s.lessons.ListByStudent(ctx, studentID)
}

func (s *LessonService) ListMentorLessons(ctx context.Context, mentorID uuid.UUID) ([]*model.Lesson, error) {
	return s.lessons.ListByMentor(ctx, mentorID)
}

// UpcomingLessons returns the student's lessons that have not ended, canceled ones excluded.
func (s *LessonService) UpcomingLessons(ctx context.Context, studentID uuid.UUID) ([]*model.Lesson, error) {
	all, err := s.lessons.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []*model.Lesson
	for _, l := range all {
		if l.Status != model.LessonStatusCanceled && l.EndTime.After(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

// StudentWeek returns the Monday-to-Sunday week containing day and the student's
// lessons in it.
func (s *LessonService) StudentWeek(ctx context.Context, studentID uuid.UUID, day time.Time) (time.Time, []*model.Lesson, error) {
	weekStart := dateIn(day, day.Location())
	for weekStart.Weekday() != time.Monday {
		weekStart = weekStart.AddDate(0, 0, -1)
	}
	lessons, err := s.lessons.ListByStudentBetween(ctx, studentID, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return weekStart, nil, fmt.Errorf("list week lessons: %w", err)
	}
	return weekStart, lessons, nil
}

// CancelLesson moves a lesson to the terminal canceled state.
func (s *LessonService) CancelLesson(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	lesson, err := s.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	switch lesson.Status {
	case model.LessonStatusCanceled:
		return lesson, nil
	case model.LessonStatusCompleted:
		return nil, ErrLessonCompleted
	}

	if err := s.lessons.SetStatus(ctx, id, model.LessonStatusCanceled); err != nil {
		return nil, fmt.Errorf("cancel lesson: %w", err)
	}
	lesson.Status = model.LessonStatusCanceled

	s.logger.Info("Lesson canceled", zap.String("lesson_id", id.String()))

	return lesson, nil
}

// DeleteLesson removes the lesson record.
func (s *LessonService) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	removed, err := s.lessons.DeleteLesson(ctx, id)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if !removed {
		return ErrLessonNotFound
	}

	s.logger.Info("Lesson deleted", zap.String("lesson_id", id.String()))

	return nil
}
