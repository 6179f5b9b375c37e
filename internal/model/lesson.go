package model

import (
	"time"

	"github.com/google/uuid"
)

type LessonStatus string

const (
	LessonStatusPending   LessonStatus = "pending"   // created, provisioning not attempted yet
	LessonStatusScheduled LessonStatus = "scheduled" // provisioning attempted
	LessonStatusCompleted LessonStatus = "completed" // end time passed
	LessonStatusCanceled  LessonStatus = "canceled"  // canceled by a user
)

// Terminal reports whether the reconciler must leave the status alone.
func (s LessonStatus) Terminal() bool {
	return s == LessonStatusCompleted || s == LessonStatusCanceled
}

// Lesson is one dated occurrence of a course for one student.
type Lesson struct {
	ID                   uuid.UUID    `json:"id"`
	CourseID             uuid.UUID    `json:"course_id"`
	MentorID             uuid.UUID    `json:"mentor_id"`
	StudentID            uuid.UUID    `json:"student_id"`
	Subject              string       `json:"subject"`
	Title                string       `json:"title"`
	Description          string       `json:"description"`
	StartTime            time.Time    `json:"start_time"`
	EndTime              time.Time    `json:"end_time"`
	Price                float64      `json:"price"`
	Status               LessonStatus `json:"status"`
	MeetingID            string       `json:"meeting_id,omitempty"`
	MeetingLink          string       `json:"meeting_link,omitempty"`
	RecordingURL         string       `json:"recording_url,omitempty"`
	RecordingChecked     bool         `json:"recording_checked"`
	RecordingAttempts    int          `json:"recording_attempts"`
	RecordingUnavailable bool         `json:"recording_unavailable"`
	RecordingPolledAt    *time.Time   `json:"recording_polled_at,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// DurationMinutes rounds the lesson length up to whole minutes.
func (l *Lesson) DurationMinutes() int {
	d := l.EndTime.Sub(l.StartTime)
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

// AwaitingRecording reports whether the reconciler should poll for a recording.
func (l *Lesson) AwaitingRecording() bool {
	return l.Status == LessonStatusCompleted &&
		l.RecordingURL == "" &&
		l.MeetingID != "" &&
		!l.RecordingUnavailable
}
