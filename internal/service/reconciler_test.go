package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/provisioning"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var afterJanuary = date(2024, time.February, 1)

// enrolledLessons materializes the Monday/Wednesday January course for one student.
func enrolledLessons(t *testing.T, f *fixture) []*model.Lesson {
	t.Helper()
	ctx := context.Background()
	student := f.student(t)
	course := f.course(t, f.mentor(t), "10:00", 5, model.Monday, model.Wednesday)

	_, err := f.enrollments.Enroll(ctx, student.ID, course.ID)
	require.NoError(t, err)

	lessons, err := f.lessons.ListStudentLessons(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 4)
	return lessons
}

func mp4(url string) []provisioning.Recording {
	return []provisioning.Recording{
		{MediaType: "M4A", PlayURL: url + ".m4a"},
		{MediaType: "mp4", PlayURL: url},
	}
}

func TestSweep_CompletesEndedLessons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{})

	_, err := f.lessons.CancelLesson(ctx, lessons[0].ID)
	require.NoError(t, err)

	// A lesson whose end equals now has not ended yet.
	report, err := r.Sweep(ctx, time.Date(2024, time.January, 3, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Completed)

	report, err = r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Completed)

	again, err := r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Completed, "completion is idempotent")

	got, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.LessonStatusCanceled, got.Status, "canceled lessons stay canceled")

	got, err = f.lessons.GetLesson(ctx, lessons[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.LessonStatusCompleted, got.Status)
}

func TestSweep_AttachesRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{})

	f.gateway.recordings[lessons[0].MeetingID] = mp4("https://rec.example/a")

	report, err := r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RecordingsAttached)
	assert.Equal(t, 3, report.RecordingsMissing)

	got, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "https://rec.example/a", got.RecordingURL)
	assert.True(t, got.RecordingChecked)
	assert.Equal(t, model.LessonStatusCompleted, got.Status)
	assert.Equal(t, []string{"https://rec.example/a"}, f.notifier.recordings)

	// attached lessons are not polled again
	_, err = r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.listCalls[lessons[0].MeetingID])
}

func TestSweep_GatewayFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{})

	f.gateway.listErrors[lessons[0].MeetingID] = true
	f.gateway.recordings[lessons[1].MeetingID] = mp4("https://rec.example/b")

	report, err := r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.RecordingsAttached)

	failed, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	assert.Zero(t, failed.RecordingAttempts, "a gateway error is not a miss")

	attached, err := f.lessons.GetLesson(ctx, lessons[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "https://rec.example/b", attached.RecordingURL)
}

func TestSweep_UnboundedRetryByDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{})

	for i := 0; i < 5; i++ {
		_, err := r.Sweep(ctx, afterJanuary)
		require.NoError(t, err)
	}

	got, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RecordingAttempts)
	assert.False(t, got.RecordingUnavailable)
	assert.Empty(t, got.RecordingURL)

	// a late recording is still picked up
	f.gateway.recordings[lessons[0].MeetingID] = mp4("https://rec.example/late")
	report, err := r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RecordingsAttached)
}

func TestSweep_BoundedRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{RecordingMaxAttempts: 2})
	meeting := lessons[0].MeetingID

	for i := 0; i < 4; i++ {
		_, err := r.Sweep(ctx, afterJanuary)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, f.gateway.listCalls[meeting])

	got, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	assert.True(t, got.RecordingUnavailable)
	assert.Equal(t, model.LessonStatusCompleted, got.Status)
}

func TestSweep_SkipsLessonsWithoutMeeting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.failStarts[time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)] = true
	lessons := enrolledLessons(t, f)
	require.Empty(t, lessons[0].MeetingID)

	report, err := f.reconciler(service.ReconcilerOptions{}).Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Completed)
	assert.Equal(t, 3, report.RecordingsMissing)
}

func TestSweep_BacklogLargerThanBatchRotates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{RecordingBatchSize: 2})

	last := lessons[len(lessons)-1]
	f.gateway.recordings[last.MeetingID] = mp4("https://rec.example/last")

	attachedAt := -1
	for i := 0; i < 4 && attachedAt < 0; i++ {
		report, err := r.Sweep(ctx, afterJanuary.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		if report.RecordingsAttached > 0 {
			attachedAt = i
		}
	}
	assert.Equal(t, 1, attachedAt, "the second sweep reaches the lessons the first one skipped")

	got, err := f.lessons.GetLesson(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://rec.example/last", got.RecordingURL)

	for _, l := range lessons[:2] {
		assert.Equal(t, 1, f.gateway.listCalls[l.MeetingID])
	}
}

func TestSweep_GatewayErrorsDoNotBlockBacklog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{RecordingBatchSize: 2})

	f.gateway.listErrors[lessons[0].MeetingID] = true
	f.gateway.listErrors[lessons[1].MeetingID] = true
	f.gateway.recordings[lessons[3].MeetingID] = mp4("https://rec.example/d")

	first, err := r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Skipped)

	second, err := r.Sweep(ctx, afterJanuary.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, second.RecordingsAttached)
	assert.Equal(t, 1, second.RecordingsMissing)

	failed, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	require.NotNil(t, failed.RecordingPolledAt)
	assert.Equal(t, afterJanuary, *failed.RecordingPolledAt)
	assert.Zero(t, failed.RecordingAttempts)
}

func TestRecordRecordingMiss_StaleCountIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	_, err := f.reconciler(service.ReconcilerOptions{RecordingBatchSize: 1}).Sweep(ctx, afterJanuary)
	require.NoError(t, err)

	got, err := f.lessons.GetLesson(ctx, lessons[1].ID)
	require.NoError(t, err)
	require.Zero(t, got.RecordingAttempts)

	// two overlapping sweeps both saw zero attempts
	require.NoError(t, f.store.RecordRecordingMiss(ctx, got.ID, 0, 0, afterJanuary))
	require.NoError(t, f.store.RecordRecordingMiss(ctx, got.ID, 0, 0, afterJanuary))

	got, err = f.lessons.GetLesson(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RecordingAttempts)
}

func TestAttachRecording_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)

	attached, err := f.store.AttachRecording(ctx, lessons[0].ID, "https://rec.example/a", afterJanuary)
	require.NoError(t, err)
	assert.True(t, attached)

	attached, err = f.store.AttachRecording(ctx, lessons[0].ID, "https://rec.example/b", afterJanuary)
	require.NoError(t, err)
	assert.False(t, attached)

	got, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "https://rec.example/a", got.RecordingURL)
}

func TestRefreshRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{RecordingMaxAttempts: 1})

	_, err := r.Sweep(ctx, afterJanuary)
	require.NoError(t, err)

	gaveUp, err := f.lessons.GetLesson(ctx, lessons[0].ID)
	require.NoError(t, err)
	require.True(t, gaveUp.RecordingUnavailable)

	// nothing yet: the lesson comes back unchanged and no attempt is counted
	got, err := r.RefreshRecording(ctx, lessons[0].ID, afterJanuary)
	require.NoError(t, err)
	assert.Empty(t, got.RecordingURL)
	assert.Equal(t, 1, got.RecordingAttempts)

	f.gateway.recordings[lessons[0].MeetingID] = mp4("https://rec.example/manual")
	got, err = r.RefreshRecording(ctx, lessons[0].ID, afterJanuary)
	require.NoError(t, err)
	assert.Equal(t, "https://rec.example/manual", got.RecordingURL)
	assert.False(t, got.RecordingUnavailable)
	assert.Equal(t, []string{"https://rec.example/manual"}, f.notifier.recordings)

	f.gateway.listErrors[lessons[1].MeetingID] = true
	_, err = r.RefreshRecording(ctx, lessons[1].ID, afterJanuary)
	assert.ErrorIs(t, err, service.ErrProvisioning)
}

func TestRefreshRecording_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.failStarts[time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)] = true
	lessons := enrolledLessons(t, f)
	r := f.reconciler(service.ReconcilerOptions{})

	_, err := f.lessons.CancelLesson(ctx, lessons[1].ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		id   uuid.UUID
		want error
	}{
		{name: "unknown lesson", id: uuid.New(), want: service.ErrLessonNotFound},
		{name: "no meeting", id: lessons[0].ID, want: service.ErrNoMeeting},
		{name: "canceled", id: lessons[1].ID, want: service.ErrLessonCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RefreshRecording(ctx, tt.id, afterJanuary)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
