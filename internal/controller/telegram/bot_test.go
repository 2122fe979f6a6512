package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	linkedChat   int64 = 555
	unlinkedChat int64 = 777
)

type apiCall struct {
	method string
	fields map[string]string
}

// fakeTelegram записывает вызовы Bot API
type fakeTelegram struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	fields := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
		}
	} else {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for k, v := range body {
				raw, _ := json.Marshal(v)
				fields[k] = strings.Trim(string(raw), `"`)
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, fields: fields})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if method == "sendMessage" {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
}

func (f *fakeTelegram) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

type fakeUsers map[int64]*model.User

func (f fakeUsers) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	if telegramID == 666 {
		return nil, errors.New("db is down")
	}
	return f[telegramID], nil
}

type fakeBookings struct {
	reserveErr error
	cancelErr  error
	bookings   []*model.Booking
	reserved   []int64
	cancelled  []int64
	lastActor  model.Actor
}

func (f *fakeBookings) Reserve(_ context.Context, slotID, studentID int64) (*service.ReserveResult, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	f.reserved = append(f.reserved, slotID)
	return &service.ReserveResult{Booking: &model.Booking{ID: 42, SlotID: slotID, StudentID: studentID}}, nil
}

func (f *fakeBookings) Cancel(_ context.Context, bookingID int64, actor model.Actor, _ string) (*model.Booking, error) {
	f.lastActor = actor
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, bookingID)
	return &model.Booking{ID: bookingID}, nil
}

func (f *fakeBookings) ListStudentBookings(context.Context, int64) ([]*model.Booking, error) {
	return f.bookings, nil
}

type fakeSlots struct {
	slots []*model.Slot
}

func (f *fakeSlots) GetSlot(_ context.Context, slotID int64, _ model.Actor) (*model.Slot, error) {
	for _, s := range f.slots {
		if s.ID == slotID {
			return s, nil
		}
	}
	return nil, model.NotFound(model.MsgSlotNotFound)
}

func (f *fakeSlots) ListSlots(context.Context, model.SlotFilter, model.Actor) ([]*model.Slot, error) {
	return f.slots, nil
}

func testSlot(id int64) *model.Slot {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return &model.Slot{
		ID:              id,
		ProfessorID:     100,
		Title:           "Calculus",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		Type:            model.SlotTypeGroup,
		MaxParticipants: 3,
		Status:          model.SlotStatusAvailable,
	}
}

type testEnv struct {
	api      *fakeTelegram
	bot      *bot.Bot
	bookings *fakeBookings
	slots    *fakeSlots
	ctrl     *BotController
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	api := &fakeTelegram{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := bot.New("test-token", bot.WithSkipGetMe(), bot.WithServerURL(srv.URL))
	require.NoError(t, err)

	users := fakeUsers{linkedChat: {ID: 1, FullName: "Alice", Role: model.RoleStudent}}
	env := &testEnv{
		api:      api,
		bot:      b,
		bookings: &fakeBookings{},
		slots:    &fakeSlots{slots: []*model.Slot{testSlot(7)}},
	}
	env.ctrl = NewBotController(b, users, env.bookings, env.slots, time.UTC, zaptest.NewLogger(t))
	return env
}

func message(chatID int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		From: &models.User{ID: chatID},
		Chat: models.Chat{ID: chatID},
		Text: text,
	}}
}

func callback(chatID int64, data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb-1",
		From: models.User{ID: chatID},
		Data: data,
	}}
}

func TestHandleStart(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.ctrl.HandleStart(ctx, env.bot, message(linkedChat, "/start"))
	env.ctrl.HandleStart(ctx, env.bot, message(unlinkedChat, "/start"))

	sent := env.api.byMethod("sendMessage")
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].fields["text"], "Привет, Alice")
	assert.Contains(t, sent[1].fields["text"], "не привязан")
	assert.Contains(t, sent[1].fields["text"], "777")
}

func TestHandleSlots(t *testing.T) {
	env := setup(t)

	env.ctrl.HandleSlots(context.Background(), env.bot, message(linkedChat, "/slots"))

	sent := env.api.byMethod("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].fields["text"], "Calculus")
	assert.Contains(t, sent[0].fields["text"], "04.03.2026, 10:00-11:00")
	assert.Contains(t, sent[0].fields["reply_markup"], "book_lesson:7")
}

func TestHandleMyBookings(t *testing.T) {
	env := setup(t)
	env.bookings.bookings = []*model.Booking{
		{ID: 5, SlotID: 7, Status: model.BookingStatusConfirmed},
		{ID: 6, SlotID: 7, Status: model.BookingStatusCancelledByStudent},
	}

	env.ctrl.HandleMyBookings(context.Background(), env.bot, message(linkedChat, "/mybookings"))

	sent := env.api.byMethod("sendMessage")
	require.Len(t, sent, 1, "only confirmed bookings are listed")
	assert.Contains(t, sent[0].fields["text"], "Запись #5")
	assert.Contains(t, sent[0].fields["reply_markup"], "cancel_booking:5")
}

func TestHandleMyBookings_Empty(t *testing.T) {
	env := setup(t)

	env.ctrl.HandleMyBookings(context.Background(), env.bot, message(linkedChat, "/mybookings"))

	sent := env.api.byMethod("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].fields["text"], "нет активных записей")
}

func TestCallback_Book(t *testing.T) {
	env := setup(t)

	env.ctrl.HandleCallbackQuery(context.Background(), env.bot, callback(linkedChat, "book_lesson:7"))

	assert.Equal(t, []int64{7}, env.bookings.reserved)
	answers := env.api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].fields["text"], "#42")
}

func TestCallback_BookFullSlot(t *testing.T) {
	env := setup(t)
	env.bookings.reserveErr = model.InvalidState(model.MsgSlotFullyBooked)

	env.ctrl.HandleCallbackQuery(context.Background(), env.bot, callback(linkedChat, "book_lesson:7"))

	answers := env.api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].fields["text"], "Свободных мест нет")
	assert.Equal(t, "true", answers[0].fields["show_alert"])
}

func TestCallback_CancelFlow(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.ctrl.HandleCallbackQuery(ctx, env.bot, callback(linkedChat, "cancel_booking:5"))
	prompts := env.api.byMethod("sendMessage")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].fields["reply_markup"], "confirm_cancel:5")
	assert.Empty(t, env.bookings.cancelled, "prompt does not cancel")

	env.ctrl.HandleCallbackQuery(ctx, env.bot, callback(linkedChat, "confirm_cancel:5"))
	assert.Equal(t, []int64{5}, env.bookings.cancelled)
	assert.Equal(t, model.Actor{UserID: 1, Role: model.RoleStudent}, env.bookings.lastActor)
}

func TestCallback_CancelInsideWindow(t *testing.T) {
	env := setup(t)
	env.bookings.cancelErr = model.InvalidState(model.MsgCancellationWindow)

	env.ctrl.HandleCallbackQuery(context.Background(), env.bot, callback(linkedChat, "confirm_cancel:5"))

	answers := env.api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].fields["text"], "24 часа")
}

func TestCallback_UnlinkedUser(t *testing.T) {
	env := setup(t)

	env.ctrl.HandleCallbackQuery(context.Background(), env.bot, callback(unlinkedChat, "book_lesson:7"))

	assert.Empty(t, env.bookings.reserved)
	sent := env.api.byMethod("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].fields["text"], "не привязан")
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "😔 Свободных мест нет", errorText(model.InvalidState(model.MsgSlotFullyBooked)))
	assert.Equal(t, "❌ custom", errorText(model.Validation("custom")))
	assert.Equal(t, textInternalError, errorText(errors.New("boom")))
}
