package model

import (
	"time"

	"github.com/google/uuid"
)

// Course is a mentor's recurring class that students enroll in.
type Course struct {
	ID                 uuid.UUID          `json:"id"`
	MentorID           uuid.UUID          `json:"mentor_id"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	Subject            string             `json:"subject"`
	Schedule           Schedule           `json:"schedule"`
	Timeline           Timeline           `json:"timeline"`
	EnrollmentSettings EnrollmentSettings `json:"enrollment_settings"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Validate checks the embedded value objects. It is used when a course is created;
// persisted courses are trusted.
func (c *Course) Validate() error {
	var fields []FieldError
	if c.Title == "" {
		fields = append(fields, FieldError{Field: "title", Error: "is required"})
	}
	if c.MentorID == uuid.Nil {
		fields = append(fields, FieldError{Field: "mentor_id", Error: "is required"})
	}
	if len(c.Schedule.DaysOfWeek()) == 0 {
		fields = append(fields, FieldError{Field: "schedule", Error: "is required"})
	}
	for _, err := range []error{c.Timeline.Validate(), c.EnrollmentSettings.Validate()} {
		if ve, ok := err.(*ValidationError); ok {
			fields = append(fields, ve.Fields...)
		}
	}
	if c.Timeline.EnrollmentDeadline.After(c.Timeline.StartDate) {
		fields = append(fields, FieldError{Field: "enrollment_deadline", Error: "must not be after start_date"})
	}
	if len(fields) > 0 {
		return NewValidationError("invalid course", fields...)
	}
	return nil
}
