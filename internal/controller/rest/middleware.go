package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/cache"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey = "request_id"
	actorKey     = "actor"
	retryableKey = "retryable"

	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
	maxIdempotentBody    = 1 << 20
)

// Claims - содержимое access токена
type Claims struct {
	UserID int64      `json:"user_id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// IdempotencyStore хранит первый ответ на запрос с Idempotency-Key
type IdempotencyStore interface {
	Begin(ctx context.Context, userID int64, scope, key string) (*cache.StoredResponse, error)
	Save(ctx context.Context, userID int64, scope, key string, resp cache.StoredResponse) error
	Release(ctx context.Context, userID int64, scope, key string) error
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(headerRequestID, rid)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if actor, ok := ActorFrom(c); ok {
			fields = append(fields, zap.Int64("user_id", actor.UserID))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}

func CORS(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", headerIdempotencyKey, headerRequestID},
		ExposeHeaders: []string{headerRequestID, headerReplayed},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

// Auth проверяет Bearer токен (HS256) и кладёт в контекст model.Actor
func Auth(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.UserID <= 0 || (claims.Role != model.RoleStudent && claims.Role != model.RoleAdmin) {
			abortWithError(c, http.StatusUnauthorized, "invalid token claims")
			return
		}

		c.Set(actorKey, model.Actor{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if !actor.IsAdmin() {
			abortWithError(c, http.StatusForbidden, model.MsgAdminOnly)
			return
		}
		c.Next()
	}
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency повторяет сохранённый ответ для запроса с уже виденным Idempotency-Key.
// Ключ действует в пределах пользователя, метода и пути; повтор с другим телом отклоняется.
// Ответы 5xx и временные ошибки не сохраняются, такой запрос можно повторить.
// Если хранилище недоступно, запрос выполняется без защиты от повторов.
func Idempotency(store IdempotencyStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			abortWithError(c, http.StatusBadRequest, "idempotency key is too long")
			return
		}

		actor, ok := ActorFrom(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotentBody+1))
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > maxIdempotentBody {
			abortWithError(c, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		scope := c.Request.Method + " " + c.Request.URL.Path
		requestHash := cache.Fingerprint(body)

		ctx := c.Request.Context()
		stored, err := store.Begin(ctx, actor.UserID, scope, key)
		switch {
		case errors.Is(err, cache.ErrRequestInProgress):
			abortWithError(c, http.StatusConflict, err.Error())
			return
		case err != nil:
			logger.Warn("Idempotency store unavailable, processing request without it",
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err),
			)
			c.Next()
			return
		case stored != nil:
			if !stored.Matches(requestHash) {
				abortWithError(c, http.StatusUnprocessableEntity, "idempotency key was already used with a different request")
				return
			}
			c.Header(headerReplayed, "true")
			c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		// запрос уже завершён, клиент мог отключиться
		saveCtx := context.WithoutCancel(ctx)
		status := recorder.Status()
		if status >= http.StatusInternalServerError || c.GetBool(retryableKey) {
			if err := store.Release(saveCtx, actor.UserID, scope, key); err != nil {
				logger.Warn("Failed to release idempotency key", zap.String("request_id", GetRequestID(c)), zap.Error(err))
			}
			return
		}

		var respBody json.RawMessage
		if recorder.body.Len() > 0 {
			respBody = json.RawMessage(recorder.body.Bytes())
		}
		resp := cache.StoredResponse{Status: status, Body: respBody, RequestHash: requestHash}
		if err := store.Save(saveCtx, actor.UserID, scope, key, resp); err != nil {
			logger.Warn("Failed to save idempotent response", zap.String("request_id", GetRequestID(c)), zap.Error(err))
		}
	}
}
