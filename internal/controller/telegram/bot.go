// Package telegram exposes a student's lessons through a Telegram bot and
// delivers enrollment and recording notifications to linked chats.
package telegram

import (
	"context"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type Controller struct {
	bot     *bot.Bot
	users   *service.UserService
	lessons *service.LessonService
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

// NewController builds the command handlers. Lesson times are shown in loc,
// UTC when nil.
func NewController(
	b *bot.Bot,
	users *service.UserService,
	lessons *service.LessonService,
	loc *time.Location,
	logger *zap.Logger,
) *Controller {
	if loc == nil {
		loc = time.UTC
	}
	return &Controller{
		bot:     b,
		users:   users,
		lessons: lessons,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

// RegisterHandlers wires the commands and publishes the command menu.
func (c *Controller) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/lessons", bot.MatchTypeExact, c.HandleLessons)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/week", bot.MatchTypeExact, c.HandleWeek)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/unlink", bot.MatchTypeExact, c.HandleUnlink)

	return c.setCommands(ctx)
}

func (c *Controller) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "Link this chat to your account"},
		{Command: "lessons", Description: "Upcoming lessons with join links"},
		{Command: "week", Description: "This week's timetable"},
		{Command: "unlink", Description: "Stop notifications in this chat"},
		{Command: "help", Description: "Command reference"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start polls for updates until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
