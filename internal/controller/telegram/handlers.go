package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notification"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	textNotLinked = "🔗 Ваш Telegram не привязан к аккаунту.\n\n" +
		"Ваш Telegram ID: %d\n" +
		"Передайте его администратору, чтобы записываться на занятия и получать уведомления."
	textInternalError = "❌ Произошла ошибка. Попробуйте позже."
)

// userErrorTexts - ответы пользователю на доменные ошибки
var userErrorTexts = map[string]string{
	model.MsgSlotNotFound:         "❌ Занятие не найдено",
	model.MsgBookingNotFound:      "❌ Запись не найдена",
	model.MsgSlotPrivate:          "🔒 Это закрытое занятие",
	model.MsgSlotUnavailable:      "😔 Занятие больше недоступно",
	model.MsgSlotFullyBooked:      "😔 Свободных мест нет",
	model.MsgPastSlot:             "⏰ Занятие уже началось",
	model.MsgAlreadyBooked:        "ℹ️ Вы уже записаны на это занятие",
	model.MsgTooManyAttempts:      "⏳ Слишком много одновременных записей, попробуйте ещё раз",
	model.MsgBookingNotCancelable: "ℹ️ Эту запись уже нельзя отменить",
	model.MsgCancelNotAllowed:     "❌ Это не ваша запись",
	model.MsgCancellationWindow:   "⏰ Отменить запись можно не позднее чем за 24 часа до начала",
}

func errorText(err error) string {
	if text, ok := userErrorTexts[model.MessageOf(err)]; ok {
		return text
	}
	if msg := model.MessageOf(err); msg != "" {
		return "❌ " + msg
	}
	return textInternalError
}

// actorFor находит пользователя по Telegram ID. nil - аккаунт не привязан или ошибка уже отправлена.
func (c *BotController) actorFor(ctx context.Context, b *bot.Bot, telegramID int64) *model.Actor {
	user, err := c.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		c.logger.Error("Failed to get user by telegram id", zap.Int64("telegram_id", telegramID), zap.Error(err))
		c.send(ctx, b, telegramID, textInternalError, nil)
		return nil
	}
	if user == nil {
		c.send(ctx, b, telegramID, fmt.Sprintf(textNotLinked, telegramID), nil)
		return nil
	}
	return &model.Actor{UserID: user.ID, Role: user.Role}
}

func (c *BotController) send(ctx context.Context, b *bot.Bot, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		c.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *BotController) answer(ctx context.Context, b *bot.Bot, callbackID, text string, alert bool) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		c.logger.Warn("Failed to answer callback query", zap.Error(err))
	}
}

// HandleStart обрабатывает команду /start
func (c *BotController) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	telegramID := update.Message.From.ID
	user, err := c.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		c.logger.Error("Failed to get user by telegram id", zap.Int64("telegram_id", telegramID), zap.Error(err))
		c.send(ctx, b, update.Message.Chat.ID, textInternalError, nil)
		return
	}
	if user == nil {
		c.send(ctx, b, update.Message.Chat.ID, fmt.Sprintf(textNotLinked, telegramID), nil)
		return
	}

	c.send(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Здесь можно записаться на занятие и отменить запись.\n\n"+
			"/slots - Свободные занятия\n"+
			"/mybookings - Мои записи\n"+
			"/help - Справка",
		user.FullName,
	), nil)
}

// HandleHelp обрабатывает команду /help
func (c *BotController) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	c.send(ctx, b, update.Message.Chat.ID, "📚 Справка по командам:\n\n"+
		"/slots - Ближайшие свободные занятия\n"+
		"/mybookings - Мои записи и отмена\n\n"+
		"Отменить запись можно не позднее чем за 24 часа до начала занятия.", nil)
}

// HandleSlots показывает ближайшие свободные слоты с кнопками записи
func (c *BotController) HandleSlots(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	actor := c.actorFor(ctx, b, update.Message.From.ID)
	if actor == nil {
		return
	}

	slots, err := c.slots.ListSlots(ctx, model.SlotFilter{From: c.now(), OnlyAvailable: true}, *actor)
	if err != nil {
		c.logger.Error("Failed to list slots", zap.Int64("user_id", actor.UserID), zap.Error(err))
		c.send(ctx, b, chatID, errorText(err), nil)
		return
	}
	if len(slots) == 0 {
		c.send(ctx, b, chatID, "📭 Свободных занятий пока нет.", nil)
		return
	}
	if len(slots) > maxListedSlots {
		slots = slots[:maxListedSlots]
	}

	var text strings.Builder
	text.WriteString("📅 Свободные занятия:\n")
	var buttons [][]models.InlineKeyboardButton
	for _, slot := range slots {
		fmt.Fprintf(&text, "\n%s\n%s, мест: %d/%d\n",
			notification.SlotTitle(slot),
			notification.SlotWhen(slot, c.location),
			slot.CurrentParticipants,
			slot.MaxParticipants,
		)
		buttons = append(buttons, []models.InlineKeyboardButton{{
			Text:         "✍️ " + slot.StartTime.In(c.location).Format("02.01 15:04") + " " + notification.SlotTitle(slot),
			CallbackData: fmt.Sprintf("%s%d", BookLesson, slot.ID),
		}})
	}

	c.send(ctx, b, chatID, text.String(), &models.InlineKeyboardMarkup{InlineKeyboard: buttons})
}

// HandleMyBookings показывает активные записи студента с кнопкой отмены
func (c *BotController) HandleMyBookings(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	actor := c.actorFor(ctx, b, update.Message.From.ID)
	if actor == nil {
		return
	}

	bookings, err := c.bookings.ListStudentBookings(ctx, actor.UserID)
	if err != nil {
		c.logger.Error("Failed to list bookings", zap.Int64("user_id", actor.UserID), zap.Error(err))
		c.send(ctx, b, chatID, textInternalError, nil)
		return
	}

	shown := 0
	for _, booking := range bookings {
		if booking.Status != model.BookingStatusConfirmed {
			continue
		}

		slot, err := c.slots.GetSlot(ctx, booking.SlotID, *actor)
		if err != nil {
			c.logger.Warn("Failed to get slot for booking",
				zap.Int64("booking_id", booking.ID),
				zap.Int64("slot_id", booking.SlotID),
				zap.Error(err),
			)
			continue
		}

		text := fmt.Sprintf("✅ Запись #%d\n\n%s\n📅 %s",
			booking.ID,
			notification.SlotTitle(slot),
			notification.SlotWhen(slot, c.location),
		)
		keyboard := &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{
				{Text: fmt.Sprintf("❌ Отменить запись #%d", booking.ID), CallbackData: fmt.Sprintf("%s%d", CancelBooking, booking.ID)},
			}},
		}
		c.send(ctx, b, chatID, text, keyboard)
		shown++
	}

	if shown == 0 {
		c.send(ctx, b, chatID, "📭 У вас нет активных записей.\n\nСвободные занятия: /slots", nil)
	}
}

// HandleCallbackQuery разбирает нажатия на inline кнопки
func (c *BotController) HandleCallbackQuery(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	callback := update.CallbackQuery
	data := callback.Data

	c.logger.Debug("Callback received", zap.String("data", data), zap.Int64("telegram_id", callback.From.ID))

	switch {
	case data == KeepBooking:
		c.answer(ctx, b, callback.ID, "👌 Запись сохранена", false)
	case strings.HasPrefix(data, BookLesson):
		c.handleBook(ctx, b, callback, strings.TrimPrefix(data, BookLesson))
	case strings.HasPrefix(data, CancelBooking):
		c.handleCancelPrompt(ctx, b, callback, strings.TrimPrefix(data, CancelBooking))
	case strings.HasPrefix(data, ConfirmCancel):
		c.handleConfirmCancel(ctx, b, callback, strings.TrimPrefix(data, ConfirmCancel))
	default:
		c.answer(ctx, b, callback.ID, "", false)
	}
}

func (c *BotController) handleBook(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, rawID string) {
	slotID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		c.answer(ctx, b, callback.ID, textInternalError, true)
		return
	}

	actor := c.actorFor(ctx, b, callback.From.ID)
	if actor == nil {
		c.answer(ctx, b, callback.ID, "", false)
		return
	}

	result, err := c.bookings.Reserve(ctx, slotID, actor.UserID)
	if err != nil {
		if model.KindOf(err) == "" {
			c.logger.Error("Failed to reserve slot", zap.Int64("slot_id", slotID), zap.Int64("user_id", actor.UserID), zap.Error(err))
		}
		c.answer(ctx, b, callback.ID, errorText(err), true)
		return
	}

	// подробности придут уведомлением о записи
	c.answer(ctx, b, callback.ID, fmt.Sprintf("✅ Вы записаны, бронирование #%d", result.Booking.ID), false)
}

func (c *BotController) handleCancelPrompt(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, rawID string) {
	bookingID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		c.answer(ctx, b, callback.ID, textInternalError, true)
		return
	}

	keyboard := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "✅ Да, отменить", CallbackData: fmt.Sprintf("%s%d", ConfirmCancel, bookingID)},
			{Text: "↩️ Нет", CallbackData: KeepBooking},
		}},
	}
	c.send(ctx, b, callback.From.ID, fmt.Sprintf("⚠️ Отменить запись #%d?", bookingID), keyboard)
	c.answer(ctx, b, callback.ID, "", false)
}

func (c *BotController) handleConfirmCancel(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, rawID string) {
	bookingID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		c.answer(ctx, b, callback.ID, textInternalError, true)
		return
	}

	actor := c.actorFor(ctx, b, callback.From.ID)
	if actor == nil {
		c.answer(ctx, b, callback.ID, "", false)
		return
	}

	if _, err := c.bookings.Cancel(ctx, bookingID, *actor, ""); err != nil {
		if model.KindOf(err) == "" {
			c.logger.Error("Failed to cancel booking", zap.Int64("booking_id", bookingID), zap.Int64("user_id", actor.UserID), zap.Error(err))
		}
		c.answer(ctx, b, callback.ID, errorText(err), true)
		return
	}

	c.answer(ctx, b, callback.ID, "Запись отменена", false)
}
