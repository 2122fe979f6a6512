package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultIdempotencyTTL = 24 * time.Hour

	pendingMarker = "pending"
)

// ErrRequestInProgress - запрос с тем же ключом ещё выполняется
var ErrRequestInProgress = errors.New("request with this idempotency key is in progress")

// StoredResponse - сохранённый ответ на первый запрос с ключом
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
	// RequestHash - отпечаток тела запроса, на который дан ответ
	RequestHash string `json:"request_hash,omitempty"`
}

// Matches сообщает, что сохранённый ответ относится к запросу с таким телом
func (r *StoredResponse) Matches(requestHash string) bool {
	return r.RequestHash == requestHash
}

// Fingerprint - SHA-256 тела запроса в hex
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// IdempotencyStore хранит ответы по ключу Idempotency-Key в Redis
type IdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewIdempotencyStore(client redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// scope - метод и путь запроса, один ключ на разных маршрутах не пересекается
func idempotencyKey(userID int64, scope, key string) string {
	return fmt.Sprintf("idem:%d:%s:%s", userID, scope, key)
}

// Begin занимает ключ. Если ответ уже сохранён, возвращает его;
// (nil, nil) означает, что запрос нужно выполнить и затем вызвать Save или Release.
func (s *IdempotencyStore) Begin(ctx context.Context, userID int64, scope, key string) (*StoredResponse, error) {
	k := idempotencyKey(userID, scope, key)

	acquired, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if acquired {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// ключ успел истечь или был освобождён
		return s.Begin(ctx, userID, scope, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	if raw == pendingMarker {
		return nil, ErrRequestInProgress
	}

	var resp StoredResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &resp, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, userID int64, scope, key string, resp StoredResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode stored response: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKey(userID, scope, key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}

// Release освобождает ключ, чтобы клиент мог повторить запрос
func (s *IdempotencyStore) Release(ctx context.Context, userID int64, scope, key string) error {
	if err := s.client.Del(ctx, idempotencyKey(userID, scope, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
