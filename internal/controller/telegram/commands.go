package telegram

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/render"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	helpText = "Commands:\n" +
		"/start &lt;account id&gt; - link this chat to your account\n" +
		"/lessons - upcoming lessons with join links\n" +
		"/week - this week's timetable\n" +
		"/unlink - stop notifications in this chat\n" +
		"/help - this message"
	notLinkedText = "This chat is not linked yet. Send /start followed by your account id."
	failureText   = "Something went wrong. Please try again later."
)

// HandleStart links the chat to the account id given after the command.
func (c *Controller) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/start"))
	if arg == "" {
		c.reply(ctx, b, chatID, "Welcome!\n\n"+helpText)
		return
	}

	userID, err := uuid.Parse(arg)
	if err != nil {
		c.reply(ctx, b, chatID, "That does not look like an account id.")
		return
	}

	user, err := c.users.LinkTelegram(ctx, userID, update.Message.From.ID)
	if errors.Is(err, service.ErrUserNotFound) {
		c.reply(ctx, b, chatID, "No account with that id.")
		return
	}
	if errors.Is(err, service.ErrTelegramLinked) {
		c.reply(ctx, b, chatID, "That account is linked to another chat. Send /unlink there first.")
		return
	}
	if err != nil {
		c.logger.Error("Failed to link telegram",
			zap.String("user_id", userID.String()),
			zap.Int64("telegram_id", update.Message.From.ID),
			zap.Error(err),
		)
		c.reply(ctx, b, chatID, failureText)
		return
	}

	c.reply(ctx, b, chatID, welcomeText(user))
}

// HandleUnlink detaches the chat from its account.
func (c *Controller) HandleUnlink(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	removed, err := c.users.UnlinkTelegram(ctx, update.Message.From.ID)
	if err != nil {
		c.logger.Error("Failed to unlink telegram", zap.Int64("telegram_id", update.Message.From.ID), zap.Error(err))
		c.reply(ctx, b, chatID, failureText)
		return
	}
	if !removed {
		c.reply(ctx, b, chatID, notLinkedText)
		return
	}
	c.reply(ctx, b, chatID, "This chat is no longer linked to your account.")
}

func (c *Controller) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	c.reply(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleLessons lists the linked student's upcoming lessons.
func (c *Controller) HandleLessons(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := c.linkedUser(ctx, b, update)
	if !ok {
		return
	}

	lessons, err := c.lessons.UpcomingLessons(ctx, user.ID)
	if err != nil {
		c.logger.Error("Failed to list upcoming lessons", zap.String("user_id", user.ID.String()), zap.Error(err))
		c.reply(ctx, b, update.Message.Chat.ID, failureText)
		return
	}

	c.reply(ctx, b, update.Message.Chat.ID, formatLessons(lessons, c.loc))
}

// HandleWeek sends the current week's timetable as an image.
func (c *Controller) HandleWeek(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := c.linkedUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID
	now := c.now().In(c.loc)

	weekStart, lessons, err := c.lessons.StudentWeek(ctx, user.ID, now)
	if err != nil {
		c.logger.Error("Failed to load week", zap.String("user_id", user.ID.String()), zap.Error(err))
		c.reply(ctx, b, chatID, failureText)
		return
	}

	image, err := render.Week(weekStart, lessons, now)
	if err != nil {
		c.logger.Error("Failed to render week", zap.String("user_id", user.ID.String()), zap.Error(err))
		c.reply(ctx, b, chatID, failureText)
		return
	}

	_, err = b.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileUpload{Filename: "week.png", Data: bytes.NewReader(image)},
		Caption:   weekCaption(weekStart, lessons),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		c.logger.Warn("Failed to send week image", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// linkedUser resolves the sender to an account, replying when it is not linked.
func (c *Controller) linkedUser(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, bool) {
	if update.Message == nil || update.Message.From == nil {
		return nil, false
	}

	user, err := c.users.GetByTelegramID(ctx, update.Message.From.ID)
	if err != nil {
		c.logger.Error("Failed to get user by telegram id",
			zap.Int64("telegram_id", update.Message.From.ID),
			zap.Error(err),
		)
		c.reply(ctx, b, update.Message.Chat.ID, failureText)
		return nil, false
	}
	if user == nil {
		c.reply(ctx, b, update.Message.Chat.ID, notLinkedText)
		return nil, false
	}
	return user, true
}

func (c *Controller) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		c.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
