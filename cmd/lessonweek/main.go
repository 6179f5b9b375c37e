// Command lessonweek renders the current week of a sample course to a PNG, for
// checking the timetable layout without a database or a bot.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/render"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
)

func main() {
	out := flag.String("out", "week.png", "output file")
	days := flag.String("days", "Monday,Wednesday,Friday", "comma-separated course weekdays")
	start := flag.String("start", "10:00", "session start, HH:MM")
	duration := flag.Int("duration", 90, "session length in minutes")
	flag.Parse()

	if err := run(*out, *days, *start, *duration); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(out, days, start string, duration int) error {
	var weekdays []model.Weekday
	for _, name := range strings.Split(days, ",") {
		day, err := model.ParseWeekday(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		weekdays = append(weekdays, day)
	}
	clock, err := model.ParseClockTime(start)
	if err != nil {
		return err
	}
	schedule, err := model.NewSchedule(weekdays, clock, duration, "")
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	now := time.Now().UTC()
	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for weekStart.Weekday() != time.Monday {
		weekStart = weekStart.AddDate(0, 0, -1)
	}

	occurrences := service.Occurrences(schedule, model.Timeline{
		StartDate: weekStart,
		EndDate:   weekStart.AddDate(0, 0, 6),
	})

	lessons := make([]*model.Lesson, 0, len(occurrences))
	for _, occ := range occurrences {
		status := model.LessonStatusScheduled
		if occ.End.Before(now) {
			status = model.LessonStatusCompleted
		}
		lessons = append(lessons, &model.Lesson{
			ID:        uuid.New(),
			Title:     "Sample course - Class",
			StartTime: occ.Start,
			EndTime:   occ.End,
			Status:    status,
		})
	}

	image, err := render.Week(weekStart, lessons, now)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, image, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Printf("Rendered %d lessons to %s\n", len(lessons), out)
	return nil
}
