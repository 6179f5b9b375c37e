package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func TestOccurrences(t *testing.T) {
	monWed, err := model.NewSchedule([]model.Weekday{model.Monday, model.Wednesday}, model.MustClockTime("10:00"), 60, "")
	require.NoError(t, err)

	got := service.Occurrences(monWed, january2024)
	require.Len(t, got, 4)

	for i, day := range []int{1, 3, 8, 10} {
		want := time.Date(2024, time.January, day, 10, 0, 0, 0, time.UTC)
		assert.True(t, want.Equal(got[i].Start), "start %d: %s", i, got[i].Start)
		assert.True(t, want.Add(time.Hour).Equal(got[i].End), "end %d: %s", i, got[i].End)
	}
}

func TestOccurrences_Empty(t *testing.T) {
	noDays := model.RestoreSchedule(nil, model.MustClockTime("10:00"), 60, "")
	assert.Empty(t, service.Occurrences(noDays, january2024))

	monday, err := model.NewSchedule([]model.Weekday{model.Monday}, model.MustClockTime("10:00"), 60, "")
	require.NoError(t, err)
	inverted := model.Timeline{StartDate: date(2024, time.January, 10), EndDate: date(2024, time.January, 1)}
	assert.Empty(t, service.Occurrences(monday, inverted))
}

func TestOccurrences_SingleDayTimeline(t *testing.T) {
	monday, err := model.NewSchedule([]model.Weekday{model.Monday}, model.MustClockTime("23:30"), 90, "")
	require.NoError(t, err)
	day := model.Timeline{StartDate: date(2024, time.January, 1), EndDate: date(2024, time.January, 1)}

	got := service.Occurrences(monday, day)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, time.January, 2, 1, 0, 0, 0, time.UTC), got[0].End.UTC())
}

func TestOccurrences_Timezone(t *testing.T) {
	berlin, err := model.NewSchedule([]model.Weekday{model.Monday}, model.MustClockTime("10:00"), 45, "Europe/Berlin")
	require.NoError(t, err)

	got := service.Occurrences(berlin, january2024)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC), got[0].Start.UTC())
	assert.Equal(t, 45*time.Minute, got[0].End.Sub(got[0].Start))
}

func TestMaterialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mentor := f.mentor(t)
	student := f.student(t)
	course := f.course(t, mentor, "10:00", 5, model.Monday, model.Wednesday)

	ids, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.NoError(t, err)
	require.Len(t, ids, 4)

	lessons, err := f.lessons.ListStudentLessons(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 4)

	first := lessons[0]
	assert.Equal(t, course.Title+" - Class", first.Title)
	assert.Equal(t, course.Subject, first.Subject)
	assert.Equal(t, mentor.ID, first.MentorID)
	assert.Equal(t, course.ID, first.CourseID)
	assert.Equal(t, model.LessonStatusScheduled, first.Status)
	assert.NotEmpty(t, first.MeetingID)
	assert.NotEmpty(t, first.MeetingLink)
	assert.Zero(t, first.Price)

	assert.Equal(t, mentor.Email, f.gateway.lastHost)
	assert.Equal(t, 60, f.gateway.lastMinutes)
}

func TestMaterialize_PartialFailureAndRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	student := f.student(t)
	course := f.course(t, f.mentor(t), "10:00", 5, model.Monday, model.Wednesday)

	failing := time.Date(2024, time.January, 8, 10, 0, 0, 0, time.UTC)
	f.gateway.failStarts[failing] = true

	ids, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.Len(t, ids, 4, "every occurrence gets a lesson")

	var merr *service.MaterializationError
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Failures, 1)
	assert.Equal(t, ids[2], merr.Failures[0].LessonID)

	var perr interface{ Retryable() bool }
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Retryable())
	assert.Equal(t, 3, f.gateway.createdCount())

	// the provider recovers; a second run fills only the gap
	delete(f.gateway.failStarts, failing)

	again, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, again)
	assert.Equal(t, 4, f.gateway.createdCount())

	lessons, err := f.lessons.ListCourseLessons(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 4)
	for _, l := range lessons {
		assert.NotEmpty(t, l.MeetingLink, l.StartTime.String())
	}
}

func TestMaterialize_InvertedTimelineCreatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mentor := f.mentor(t)
	student := f.student(t)

	sched, err := model.NewSchedule([]model.Weekday{model.Monday}, model.MustClockTime("10:00"), 60, "")
	require.NoError(t, err)
	course := &model.Course{
		MentorID: mentor.ID,
		Title:    "Broken",
		Schedule: sched,
		Timeline: model.Timeline{StartDate: date(2024, time.February, 1), EndDate: date(2024, time.January, 1)},
	}
	require.NoError(t, f.store.CreateCourse(ctx, course))

	ids, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, f.gateway.createdCount())
}

func TestMaterialize_PriceFromMentorRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mentor := f.mentor(t)
	student := f.student(t)

	sched, err := model.NewSchedule([]model.Weekday{model.Monday}, model.MustClockTime("10:00"), 90, "")
	require.NoError(t, err)
	course := &model.Course{
		MentorID:           mentor.ID,
		Title:              "Priced",
		Schedule:           sched,
		Timeline:           january2024,
		EnrollmentSettings: model.EnrollmentSettings{MinStudents: 1, MaxStudents: 1},
	}
	require.NoError(t, f.courses.CreateCourse(ctx, course))

	priced := service.NewLessonService(f.store, f.store, f.store, f.gateway,
		service.LessonOptions{PriceFromMentorRate: true}, zap.NewNop())

	ids, err := priced.Materialize(ctx, course.ID, student.ID)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	lesson, err := priced.GetLesson(ctx, ids[0])
	require.NoError(t, err)
	assert.InDelta(t, 60.0, lesson.Price, 0.001)
}

func TestMaterialize_UnknownCourse(t *testing.T) {
	f := newFixture(t)
	_, err := f.lessons.Materialize(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, service.ErrCourseNotFound)
}

func TestCancelAndDeleteLesson(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	student := f.student(t)
	course := f.course(t, f.mentor(t), "10:00", 5, model.Monday)

	ids, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	canceled, err := f.lessons.CancelLesson(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.LessonStatusCanceled, canceled.Status)

	_, err = f.lessons.CancelLesson(ctx, ids[0])
	assert.NoError(t, err, "cancel is idempotent")

	require.NoError(t, f.store.SetStatus(ctx, ids[1], model.LessonStatusCompleted))
	_, err = f.lessons.CancelLesson(ctx, ids[1])
	assert.ErrorIs(t, err, service.ErrLessonCompleted)

	require.NoError(t, f.lessons.DeleteLesson(ctx, ids[0]))
	_, err = f.lessons.GetLesson(ctx, ids[0])
	assert.ErrorIs(t, err, service.ErrLessonNotFound)
	assert.ErrorIs(t, f.lessons.DeleteLesson(ctx, ids[0]), service.ErrLessonNotFound)
}

func TestStudentWeek(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	student := f.student(t)
	course := f.course(t, f.mentor(t), "10:00", 5, model.Monday, model.Wednesday)

	_, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.NoError(t, err)

	// Thursday 4 Jan belongs to the week of Monday 1 Jan.
	weekStart, lessons, err := f.lessons.StudentWeek(ctx, student.ID, date(2024, time.January, 4))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 1), weekStart)
	require.Len(t, lessons, 2)
	assert.Equal(t, 3, lessons[1].StartTime.Day())

	// Sunday still counts towards the preceding Monday.
	weekStart, lessons, err = f.lessons.StudentWeek(ctx, student.ID, date(2024, time.January, 14))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 8), weekStart)
	assert.Len(t, lessons, 2)
}

func TestUpcomingLessons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	student := f.student(t)
	course := f.course(t, f.mentor(t), "10:00", 5, model.Monday, model.Wednesday)

	ids, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.NoError(t, err)
	_, err = f.lessons.CancelLesson(ctx, ids[3])
	require.NoError(t, err)

	f.lessons.SetClock(func() time.Time { return date(2024, time.January, 5) })

	upcoming, err := f.lessons.UpcomingLessons(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, ids[2], upcoming[0].ID)
}

func TestMaterialize_ConcurrentRunsCreateOneMeetingPerLesson(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	student := f.student(t)
	course := f.course(t, f.mentor(t), "10:00", 5, model.Monday, model.Wednesday)
	f.gateway.delay = 20 * time.Millisecond

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			_, err := f.lessons.Materialize(ctx, course.ID, student.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 4, f.gateway.createdCount())

	lessons, err := f.lessons.ListCourseLessons(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 4)
	seen := make(map[string]bool)
	for _, l := range lessons {
		require.NotEmpty(t, l.MeetingID)
		assert.False(t, seen[l.MeetingID], "meeting %s reused", l.MeetingID)
		seen[l.MeetingID] = true
	}
}

func TestProvisionLesson(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	student := f.student(t)
	course := f.course(t, f.mentor(t), "10:00", 5, model.Monday, model.Wednesday)

	failing := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	f.gateway.failStarts[failing] = true

	ids, err := f.lessons.Materialize(ctx, course.ID, student.ID)
	require.Error(t, err)

	_, err = f.lessons.ProvisionLesson(ctx, ids[0])
	assert.ErrorIs(t, err, service.ErrProvisioning)

	delete(f.gateway.failStarts, failing)

	got, err := f.lessons.ProvisionLesson(ctx, ids[0])
	require.NoError(t, err)
	assert.NotEmpty(t, got.MeetingLink)
	assert.Equal(t, model.LessonStatusScheduled, got.Status)
	assert.Equal(t, 4, f.gateway.createdCount())

	// a lesson with a meeting is left alone
	again, err := f.lessons.ProvisionLesson(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, got.MeetingID, again.MeetingID)
	assert.Equal(t, 4, f.gateway.createdCount())

	_, err = f.lessons.CancelLesson(ctx, ids[1])
	require.NoError(t, err)
	_, err = f.lessons.ProvisionLesson(ctx, ids[1])
	assert.ErrorIs(t, err, service.ErrLessonCanceled)

	_, err = f.lessons.ProvisionLesson(ctx, uuid.New())
	assert.ErrorIs(t, err, service.ErrLessonNotFound)
}

func TestBookLesson(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mentor := f.mentor(t)
	student := f.student(t)
	start := time.Date(2024, time.March, 4, 15, 0, 0, 0, time.UTC)

	lesson, err := f.lessons.BookLesson(ctx, service.BookingRequest{
		MentorID:  mentor.ID,
		StudentID: student.ID,
		Subject:   "physics",
		StartTime: start,
	})
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, lesson.CourseID)
	assert.Equal(t, "physics Lesson", lesson.Title)
	assert.Equal(t, start.Add(time.Hour), lesson.EndTime)
	assert.Equal(t, model.LessonStatusPending, lesson.Status)
	assert.Empty(t, lesson.MeetingID)
	assert.Zero(t, f.gateway.createdCount())

	// the same slot can be booked twice; one-off lessons never collide
	second, err := f.lessons.BookLesson(ctx, service.BookingRequest{
		MentorID:  mentor.ID,
		StudentID: student.ID,
		Subject:   "physics",
		StartTime: start,
	})
	require.NoError(t, err)
	assert.NotEqual(t, lesson.ID, second.ID)

	provisioned, err := f.lessons.ProvisionLesson(ctx, lesson.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, provisioned.MeetingLink)
	assert.Equal(t, mentor.Email, f.gateway.lastHost)
}

func TestBookLesson_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mentor := f.mentor(t)
	student := f.student(t)
	start := time.Date(2024, time.March, 4, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  service.BookingRequest
		want error
	}{
		{
			name: "unknown mentor",
			req:  service.BookingRequest{MentorID: uuid.New(), StudentID: student.ID, Subject: "math", StartTime: start},
			want: service.ErrUserNotFound,
		},
		{
			name: "student as mentor",
			req:  service.BookingRequest{MentorID: student.ID, StudentID: student.ID, Subject: "math", StartTime: start},
			want: service.ErrNotAMentor,
		},
		{
			name: "mentor as student",
			req:  service.BookingRequest{MentorID: mentor.ID, StudentID: mentor.ID, Subject: "math", StartTime: start},
			want: service.ErrNotAStudent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lessons.BookLesson(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.lessons.BookLesson(ctx, service.BookingRequest{MentorID: mentor.ID, StudentID: student.ID})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 2)
}
