package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
)

const maxListedLessons = 10

func welcomeText(user *model.User) string {
	return fmt.Sprintf("Hi, %s! This chat is now linked to your account.\n\n%s", html.EscapeString(user.Name), helpText)
}

// formatLessons renders up to maxListedLessons lessons, earliest first.
func formatLessons(lessons []*model.Lesson, loc *time.Location) string {
	if len(lessons) == 0 {
		return "You have no upcoming lessons."
	}

	var sb strings.Builder
	sb.WriteString("<b>Upcoming lessons</b>\n")
	for i, l := range lessons {
		if i == maxListedLessons {
			fmt.Fprintf(&sb, "\n...and %d more", len(lessons)-maxListedLessons)
			break
		}
		sb.WriteString("\n")
		sb.WriteString(formatLesson(l, loc))
	}
	return sb.String()
}

func formatLesson(l *model.Lesson, loc *time.Location) string {
	start, end := l.StartTime.In(loc), l.EndTime.In(loc)
	line := fmt.Sprintf("%s %s-%s <b>%s</b>",
		start.Format("Mon 02.01"),
		start.Format("15:04"),
		end.Format("15:04"),
		html.EscapeString(l.Title),
	)
	if l.MeetingLink != "" {
		return line + fmt.Sprintf("\n<a href=\"%s\">Join</a>", html.EscapeString(l.MeetingLink))
	}
	return line + "\nLink pending"
}

func weekCaption(weekStart time.Time, lessons []*model.Lesson) string {
	active := 0
	for _, l := range lessons {
		if l.Status != model.LessonStatusCanceled {
			active++
		}
	}
	return fmt.Sprintf("Week of <b>%s</b>: %d lesson(s)", weekStart.Format("02.01.2006"), active)
}

func enrolledText(course *model.Course, lessons int) string {
	return fmt.Sprintf("You are enrolled in <b>%s</b>. %d lesson(s) scheduled, see /lessons.",
		html.EscapeString(course.Title), lessons)
}

func recordingText(lesson *model.Lesson, loc *time.Location) string {
	return fmt.Sprintf("The recording of <b>%s</b> on %s is ready:\n<a href=\"%s\">Watch</a>",
		html.EscapeString(lesson.Title),
		lesson.StartTime.In(loc).Format("02.01 15:04"),
		html.EscapeString(lesson.RecordingURL),
	)
}
