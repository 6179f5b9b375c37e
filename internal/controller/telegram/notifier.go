package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// MessageSender is the part of *bot.Bot the notifier needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier sends enrollment and recording notices to students with a linked
// chat. Students without one are skipped silently.
type Notifier struct {
	sender MessageSender
	loc    *time.Location
}

func NewNotifier(sender MessageSender, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{sender: sender, loc: loc}
}

func (n *Notifier) NotifyEnrolled(ctx context.Context, student *model.User, course *model.Course, lessons int) error {
	return n.send(ctx, student, enrolledText(course, lessons))
}

func (n *Notifier) NotifyRecording(ctx context.Context, student *model.User, lesson *model.Lesson) error {
	return n.send(ctx, student, recordingText(lesson, n.loc))
}

func (n *Notifier) send(ctx context.Context, user *model.User, text string) error {
	if user == nil || user.TelegramID == nil {
		return nil
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    *user.TelegramID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
