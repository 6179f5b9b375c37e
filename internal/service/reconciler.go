package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/provisioning"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcilerOptions tunes the lifecycle sweep.
type ReconcilerOptions struct {
	// RecordingMaxAttempts stops polling a lesson for its recording after this
	// many empty answers. Zero polls forever.
	RecordingMaxAttempts int
	// RecordingBatchSize caps lessons polled per sweep.
	RecordingBatchSize int
	// GatewayTimeout bounds each ListRecordings call.
	GatewayTimeout time.Duration
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Completed          int64
	RecordingsAttached int
	RecordingsMissing  int
	Skipped            int
}

// Reconciler advances lessons through their lifecycle independently of requests.
type Reconciler struct {
	lessons  LessonStore
	users    UserStore
	gateway  provisioning.Gateway
	notifier Notifier
	opts     ReconcilerOptions
	logger   *zap.Logger
}

func NewReconciler(
	lessons LessonStore,
	users UserStore,
	gateway provisioning.Gateway,
	notifier Notifier,
	opts ReconcilerOptions,
	logger *zap.Logger,
) *Reconciler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.RecordingBatchSize <= 0 {
		opts.RecordingBatchSize = 100
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 15 * time.Second
	}
	return &Reconciler{
		lessons:  lessons,
		users:    users,
		gateway:  gateway,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Sweep completes ended lessons and then polls for missing recordings. Only a
// failure of the bulk completion step is returned; per-lesson failures are
// logged as ReconciliationSkipped and retried on the next sweep.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	completed, err := r.lessons.CompleteEnded(ctx, now)
	if err != nil {
		return report, fmt.Errorf("complete ended lessons: %w", err)
	}
	report.Completed = completed

	lessons, err := r.lessons.ListAwaitingRecording(ctx, r.opts.RecordingBatchSize)
	if err != nil {
		return report, fmt.Errorf("list lessons awaiting recording: %w", err)
	}

	for _, lesson := range lessons {
		if ctx.Err() != nil {
			break
		}

		attached, err := r.reconcileRecording(ctx, lesson, now)
		switch {
		case err != nil:
			report.Skipped++
			r.logger.Warn("Lesson reconciliation skipped",
				zap.String("lesson_id", lesson.ID.String()),
				zap.Error(&ReconciliationSkipped{LessonID: lesson.ID, Err: err}),
			)
		case attached:
			report.RecordingsAttached++
		default:
			report.RecordingsMissing++
		}
	}

	r.logger.Info("Lesson sweep finished",
		zap.Int64("completed", report.Completed),
		zap.Int("recordings_attached", report.RecordingsAttached),
		zap.Int("recordings_missing", report.RecordingsMissing),
		zap.Int("skipped", report.Skipped),
	)

	return report, nil
}

// reconcileRecording polls one lesson. Every outcome stamps the lesson as
// polled so the next sweep moves on to others.
func (r *Reconciler) reconcileRecording(ctx context.Context, lesson *model.Lesson, now time.Time) (bool, error) {
	rec, found, err := r.findRecording(ctx, lesson)
	if err != nil {
		if serr := r.lessons.MarkRecordingPolled(ctx, lesson.ID, now); serr != nil {
			r.logger.Error("Failed to stamp recording poll",
				zap.String("lesson_id", lesson.ID.String()),
				zap.Error(serr),
			)
		}
		return false, err
	}

	if !found {
		err := r.lessons.RecordRecordingMiss(ctx, lesson.ID, lesson.RecordingAttempts, r.opts.RecordingMaxAttempts, now)
		if err != nil {
			return false, fmt.Errorf("record recording miss: %w", err)
		}
		r.logger.Debug("No playable recording yet",
			zap.String("lesson_id", lesson.ID.String()),
			zap.Int("attempts", lesson.RecordingAttempts+1),
		)
		return false, nil
	}

	return r.attachRecording(ctx, lesson, rec.PlayURL, now)
}

func (r *Reconciler) findRecording(ctx context.Context, lesson *model.Lesson) (provisioning.Recording, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.GatewayTimeout)
	recs, err := r.gateway.ListRecordings(callCtx, lesson.MeetingID)
	cancel()
	if err != nil {
		return provisioning.Recording{}, false, err
	}
	rec, ok := provisioning.PlayableRecording(recs)
	return rec, ok, nil
}

// attachRecording stores the url and notifies the student. It reports false
// when another sweep attached a recording first.
func (r *Reconciler) attachRecording(ctx context.Context, lesson *model.Lesson, url string, now time.Time) (bool, error) {
	attached, err := r.lessons.AttachRecording(ctx, lesson.ID, url, now)
	if err != nil {
		return false, fmt.Errorf("attach recording: %w", err)
	}
	if !attached {
		return false, nil
	}
	lesson.RecordingURL = url
	lesson.RecordingChecked = true
	lesson.RecordingUnavailable = false
	lesson.RecordingPolledAt = &now

	r.logger.Info("Recording attached", zap.String("lesson_id", lesson.ID.String()))

	r.notifyRecording(ctx, lesson)

	return true, nil
}

// RefreshRecording polls the provider for one lesson on demand. Unlike a
// sweep it ignores the attempt limit and an empty answer is not counted.
func (r *Reconciler) RefreshRecording(ctx context.Context, id uuid.UUID, now time.Time) (*model.Lesson, error) {
	lesson, err := r.lessons.GetLesson(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	switch {
	case lesson == nil:
		return nil, ErrLessonNotFound
	case lesson.Status == model.LessonStatusCanceled:
		return nil, ErrLessonCanceled
	case lesson.MeetingID == "":
		return nil, ErrNoMeeting
	case lesson.RecordingURL != "":
		return lesson, nil
	}

	rec, found, err := r.findRecording(ctx, lesson)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}
	if !found {
		return lesson, nil
	}

	if _, err := r.attachRecording(ctx, lesson, rec.PlayURL, now); err != nil {
		return nil, err
	}
	return r.lessons.GetLesson(ctx, id)
}

func (r *Reconciler) notifyRecording(ctx context.Context, lesson *model.Lesson) {
	student, err := r.users.GetUser(ctx, lesson.StudentID)
	if err != nil || student == nil {
		return
	}
	if err := r.notifier.NotifyRecording(ctx, student, lesson); err != nil {
		r.logger.Warn("Failed to notify student about recording",
			zap.String("lesson_id", lesson.ID.String()),
			zap.Error(err),
		)
	}
}
