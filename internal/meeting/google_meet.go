package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleMeetProvider создаёт событие в календаре преподавателя с конференцией Google Meet.
// Ссылка на конференцию хранится в слоте как имя комнаты.
type GoogleMeetProvider struct {
	service    *calendar.Service
	calendarID string
}

// NewGoogleMeetProvider авторизуется по JSON-ключу сервисного аккаунта
func NewGoogleMeetProvider(ctx context.Context, credentialsFile, calendarID string) (*GoogleMeetProvider, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}

	config, err := google.JWTConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}

	return NewGoogleMeetProviderWithOptions(ctx, calendarID, option.WithHTTPClient(config.Client(ctx)))
}

func NewGoogleMeetProviderWithOptions(ctx context.Context, calendarID string, opts ...option.ClientOption) (*GoogleMeetProvider, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleMeetProvider{service: service, calendarID: calendarID}, nil
}

// eventID детерминирован по слоту: повторная вставка даёт 409 вместо второго события
func eventID(slotID int64) string {
	return fmt.Sprintf("tutorslot%010d", slotID)
}

func (p *GoogleMeetProvider) CreateRoom(ctx context.Context, slot *model.Slot) (string, error) {
	id := eventID(slot.ID)
	event := &calendar.Event{
		Id:      id,
		Summary: slot.Title,
		Start:   &calendar.EventDateTime{DateTime: slot.StartTime.UTC().Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: slot.EndTime.UTC().Format(time.RFC3339)},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             id,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := p.service.Events.Insert(p.calendarID, event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusConflict {
			return "", fmt.Errorf("insert calendar event: %w", err)
		}

		created, err = p.service.Events.Get(p.calendarID, id).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("get calendar event: %w", err)
		}
	}

	if created.HangoutLink == "" {
		return "", fmt.Errorf("calendar event %s has no meet link yet", id)
	}
	return created.HangoutLink, nil
}

// JoinURL возвращает ссылку как есть: Meet не принимает имя участника в URL
func (p *GoogleMeetProvider) JoinURL(room, _ string) (string, error) {
	if room == "" {
		return "", fmt.Errorf("empty room name")
	}
	return room, nil
}
