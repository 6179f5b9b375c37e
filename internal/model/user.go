package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
)

type User struct {
	ID           uuid.UUID    `json:"id"`
	Role         Role         `json:"role"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	TelegramID   *int64       `json:"telegram_id,omitempty"`
	HourlyRate   float64      `json:"hourly_rate,omitempty"`
	Availability Availability `json:"availability,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// AvailabilityWindow is a weekly window a mentor advertises on the profile.
type AvailabilityWindow struct {
	Day   Weekday   `json:"day"`
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// Availability is descriptive profile data; lessons are not checked against it.
type Availability []AvailabilityWindow

func (a Availability) Validate() error {
	var fields []FieldError
	for i, w := range a {
		if !w.Day.Valid() {
			fields = append(fields, FieldError{Field: fmt.Sprintf("availability[%d].day", i), Error: "invalid weekday"})
		}
		if w.End.Minutes() <= w.Start.Minutes() {
			fields = append(fields, FieldError{Field: fmt.Sprintf("availability[%d].end", i), Error: "must be after start"})
		}
	}
	if len(fields) > 0 {
		return NewValidationError("invalid availability", fields...)
	}
	return nil
}
