package model

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment is the single record linking a student to a course. Both the
// student's course list and the course's student list are read from it.
type Enrollment struct {
	ID        uuid.UUID `json:"id"`
	StudentID uuid.UUID `json:"student_id"`
	CourseID  uuid.UUID `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}
