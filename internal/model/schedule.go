package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekday is a day name as stored on a course schedule ("Monday" ... "Sunday").
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

var weekdays = map[Weekday]time.Weekday{
	Sunday:    time.Sunday,
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
}

// ParseWeekday validates s against the seven day names.
func ParseWeekday(s string) (Weekday, error) {
	d := Weekday(s)
	if _, ok := weekdays[d]; !ok {
		return "", fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

// Valid reports whether d is one of the seven day names.
func (d Weekday) Valid() bool {
	_, ok := weekdays[d]
	return ok
}

// Time converts d to time.Weekday. Invalid values map to Sunday, call Valid first.
func (d Weekday) Time() time.Weekday {
	return weekdays[d]
}

// WeekdayOf returns the day name for t.
func WeekdayOf(t time.Weekday) Weekday {
	for name, wd := range weekdays {
		if wd == t {
			return name
		}
	}
	return ""
}

// ClockTime is a wall-clock time of day in HH:MM, 24-hour form.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM". Both digits are required for hours and minutes.
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustClockTime is ParseClockTime for literals.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On combines the calendar date of date with c in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Schedule is the weekly recurrence of a course. Construct it with NewSchedule;
// the fields are unexported so a validated schedule cannot change afterwards.
type Schedule struct {
	days     []Weekday
	start    ClockTime
	duration int
	timezone string
}

// NewSchedule validates and builds a schedule. An empty timezone means UTC.
func NewSchedule(days []Weekday, start ClockTime, durationMinutes int, timezone string) (Schedule, error) {
	var fields []FieldError

	if len(days) == 0 {
		fields = append(fields, FieldError{Field: "days_of_week", Error: "at least one weekday is required"})
	}
	seen := make(map[Weekday]bool, len(days))
	for _, d := range days {
		if !d.Valid() {
			fields = append(fields, FieldError{Field: "days_of_week", Error: fmt.Sprintf("invalid weekday %q", d)})
			continue
		}
		if seen[d] {
			fields = append(fields, FieldError{Field: "days_of_week", Error: fmt.Sprintf("duplicate weekday %q", d)})
		}
		seen[d] = true
	}
	if start.Hour < 0 || start.Hour > 23 || start.Minute < 0 || start.Minute > 59 {
		fields = append(fields, FieldError{Field: "start_time", Error: "must be HH:MM"})
	}
	if durationMinutes <= 0 {
		fields = append(fields, FieldError{Field: "session_duration", Error: "must be greater than zero"})
	}
	if _, err := loadLocation(timezone); err != nil {
		fields = append(fields, FieldError{Field: "timezone", Error: err.Error()})
	}

	if len(fields) > 0 {
		return Schedule{}, NewValidationError("invalid schedule", fields...)
	}

	cp := make([]Weekday, len(days))
	copy(cp, days)
	return Schedule{days: cp, start: start, duration: durationMinutes, timezone: timezone}, nil
}

// RestoreSchedule rebuilds a schedule from persisted columns without validation.
func RestoreSchedule(days []Weekday, start ClockTime, durationMinutes int, timezone string) Schedule {
	cp := make([]Weekday, len(days))
	copy(cp, days)
	return Schedule{days: cp, start: start, duration: durationMinutes, timezone: timezone}
}

func (s Schedule) DaysOfWeek() []Weekday {
	cp := make([]Weekday, len(s.days))
	copy(cp, s.days)
	return cp
}

func (s Schedule) StartTime() ClockTime { return s.start }

// SessionDuration is the session length in minutes.
func (s Schedule) SessionDuration() int { return s.duration }

func (s Schedule) Timezone() string { return s.timezone }

// Location resolves the schedule timezone, falling back to UTC.
func (s Schedule) Location() *time.Location {
	loc, err := loadLocation(s.timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Includes reports whether t falls on one of the schedule days.
func (s Schedule) Includes(t time.Weekday) bool {
	for _, d := range s.days {
		if d.Valid() && d.Time() == t {
			return true
		}
	}
	return false
}

// Duration returns the session length as a time.Duration.
func (s Schedule) Duration() time.Duration {
	return time.Duration(s.duration) * time.Minute
}

func (s Schedule) String() string {
	names := make([]string, len(s.days))
	for i, d := range s.days {
		names[i] = string(d)
	}
	return fmt.Sprintf("%s at %s for %dm", strings.Join(names, "/"), s.start, s.duration)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Timeline is the calendar range of a course.
type Timeline struct {
	EnrollmentDeadline time.Time `json:"enrollment_deadline"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
}

// Validate checks start <= end. The enrollment deadline is not checked here.
func (t Timeline) Validate() error {
	if t.EndDate.Before(t.StartDate) {
		return NewValidationError("invalid timeline",
			FieldError{Field: "end_date", Error: "must not be before start_date"})
	}
	return nil
}

// EnrollmentSettings bounds the number of students in a course.
type EnrollmentSettings struct {
	MinStudents int `json:"min_students"`
	MaxStudents int `json:"max_students"`
}

func (e EnrollmentSettings) Validate() error {
	if e.MinStudents <= 0 || e.MinStudents > e.MaxStudents {
		return NewValidationError("invalid enrollment settings",
			FieldError{Field: "enrollment_settings", Error: "want 0 < min_students <= max_students"})
	}
	return nil
}

type scheduleJSON struct {
	DaysOfWeek      []Weekday `json:"days_of_week"`
	StartTime       ClockTime `json:"start_time"`
	SessionDuration int       `json:"session_duration"`
	Timezone        string    `json:"timezone,omitempty"`
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(scheduleJSON{
		DaysOfWeek:      s.days,
		StartTime:       s.start,
		SessionDuration: s.duration,
		Timezone:        s.timezone,
	})
}

// UnmarshalJSON decodes and validates a schedule.
func (s *Schedule) UnmarshalJSON(b []byte) error {
	var raw scheduleJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := NewSchedule(raw.DaysOfWeek, raw.StartTime, raw.SessionDuration, raw.Timezone)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
