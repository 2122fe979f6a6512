package telegram

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Callback data
const (
	BookLesson    = "book_lesson:"    // book_lesson:slot_id
	CancelBooking = "cancel_booking:" // cancel_booking:booking_id
	ConfirmCancel = "confirm_cancel:" // confirm_cancel:booking_id
	KeepBooking   = "keep_booking"
)

const maxListedSlots = 10

type UserFinder interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

type BookingSvc interface {
	Reserve(ctx context.Context, slotID, studentID int64) (*service.ReserveResult, error)
	Cancel(ctx context.Context, bookingID int64, actor model.Actor, reason string) (*model.Booking, error)
	ListStudentBookings(ctx context.Context, studentID int64) ([]*model.Booking, error)
}

type SlotSvc interface {
	GetSlot(ctx context.Context, slotID int64, actor model.Actor) (*model.Slot, error)
	ListSlots(ctx context.Context, filter model.SlotFilter, actor model.Actor) ([]*model.Slot, error)
}

// BotController - команды бота для студентов: список слотов, запись и отмена.
// Пользователь сопоставляется по telegram_id, привязка делается вне бота.
type BotController struct {
	bot      *bot.Bot
	users    UserFinder
	bookings BookingSvc
	slots    SlotSvc
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewBotController(
	botInstance *bot.Bot,
	users UserFinder,
	bookings BookingSvc,
	slots SlotSvc,
	location *time.Location,
	logger *zap.Logger,
) *BotController {
	if location == nil {
		location = time.UTC
	}
	return &BotController{
		bot:      botInstance,
		users:    users,
		bookings: bookings,
		slots:    slots,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterHandlers регистрирует обработчики команд и кнопок
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/slots", bot.MatchTypeExact, c.HandleSlots)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/mybookings", bot.MatchTypeExact, c.HandleMyBookings)

	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.HandleCallbackQuery)

	return c.setCommands(ctx)
}

func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "help", Description: "❓ Справка по командам"},
		{Command: "slots", Description: "📅 Свободные занятия"},
		{Command: "mybookings", Description: "📝 Мои записи"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: commands})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает long polling и блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting telegram bot")
	c.bot.Start(ctx)
}
