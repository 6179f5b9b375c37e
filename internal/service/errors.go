package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
	ErrNotEnrolled     = errors.New("not enrolled in this course")
	ErrCourseFull      = errors.New("course is full")
	ErrScheduleClash   = errors.New("schedule clashes with another enrolled course")
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrLessonCompleted = errors.New("lesson is already completed")
	ErrLessonCanceled  = errors.New("lesson is canceled")
	ErrNoMeeting       = errors.New("lesson has no meeting")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotAMentor      = errors.New("user is not a mentor")
	ErrNotAStudent     = errors.New("user is not a student")
	ErrTelegramLinked  = errors.New("user is linked to another telegram chat")
	ErrProvisioning    = errors.New("meeting provisioning failed")
	ErrProvisionBusy   = errors.New("meeting provisioning already in progress")
)

// ScheduleClashError names the already enrolled course that clashes.
type ScheduleClashError struct {
	CourseID uuid.UUID
	Title    string
}

func (e *ScheduleClashError) Error() string {
	return fmt.Sprintf("%s: %q", ErrScheduleClash, e.Title)
}

func (e *ScheduleClashError) Is(target error) bool {
	return target == ErrScheduleClash
}

// OccurrenceFailure is a lesson whose provisioning failed.
type OccurrenceFailure struct {
	LessonID uuid.UUID
	Err      error
}

// MaterializationError lists the occurrences that were created without a meeting.
// The lessons themselves exist; the caller decides whether this is fatal.
type MaterializationError struct {
	Failures []OccurrenceFailure
}

func (e *MaterializationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.LessonID.String()+": "+f.Err.Error())
	}
	return fmt.Sprintf("provisioning failed for %d lesson(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *MaterializationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// ReconciliationSkipped is logged when one lesson could not be reconciled on a
// sweep. It never stops the sweep.
type ReconciliationSkipped struct {
	LessonID uuid.UUID
	Err      error
}

func (e *ReconciliationSkipped) Error() string {
	return fmt.Sprintf("reconciliation skipped for lesson %s: %v", e.LessonID, e.Err)
}

func (e *ReconciliationSkipped) Unwrap() error { return e.Err }
