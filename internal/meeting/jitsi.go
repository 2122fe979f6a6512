package meeting

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/google/uuid"
)

// roomNamespace фиксирован: имя комнаты слота одинаково между перезапусками
var roomNamespace = uuid.MustParse("5b0c8f0e-3d7a-4b8e-9c55-6f1a2d4e7b10")

// JitsiProvider выдаёт комнаты Jitsi Meet. Комната создаётся при первом входе,
// поэтому достаточно детерминированного имени.
type JitsiProvider struct {
	baseURL *url.URL
}

func NewJitsiProvider(baseURL string) (*JitsiProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse jitsi base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("jitsi base url must be absolute: %q", baseURL)
	}
	return &JitsiProvider{baseURL: u}, nil
}

func (p *JitsiProvider) CreateRoom(_ context.Context, slot *model.Slot) (string, error) {
	id := uuid.NewSHA1(roomNamespace, []byte(strconv.FormatInt(slot.ID, 10)))
	return "tutor-" + strings.ReplaceAll(id.String(), "-", ""), nil
}

func (p *JitsiProvider) JoinURL(room, displayName string) (string, error) {
	if room == "" {
		return "", fmt.Errorf("empty room name")
	}

	u := *p.baseURL
	u.Path = path.Join("/", u.Path, room)
	if displayName != "" {
		u.Fragment = `userInfo.displayName="` + displayName + `"`
	}
	return u.String(), nil
}
