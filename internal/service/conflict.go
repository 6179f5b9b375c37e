package service

import "github.com/Freeeeeet/lesson_scheduler/internal/model"

// ConflictPolicy decides whether two course schedules cannot both be attended.
type ConflictPolicy interface {
	Conflicts(a, b model.Schedule) bool
}

// ExactSlotConflictPolicy flags two schedules only when they share a weekday AND
// start at the same clock time. Sessions that overlap without starting together
// are not conflicts.
type ExactSlotConflictPolicy struct{}

func (ExactSlotConflictPolicy) Conflicts(a, b model.Schedule) bool {
	if a.StartTime() != b.StartTime() {
		return false
	}
	days := make(map[model.Weekday]struct{}, len(a.DaysOfWeek()))
	for _, d := range a.DaysOfWeek() {
		days[d] = struct{}{}
	}
	for _, d := range b.DaysOfWeek() {
		if _, ok := days[d]; ok {
			return true
		}
	}
	return false
}
