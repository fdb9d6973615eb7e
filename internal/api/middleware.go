package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eventparse/chrono/internal/database"
	"github.com/eventparse/chrono/internal/models"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	apiKeyContextKey contextKey = "apiKey"
	requestIDKey     contextKey = "requestID"
)

// AuthMiddleware authenticates requests by bearer API key. Keys are stored
// hashed; the raw key never touches the database.
func AuthMiddleware(store database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "Missing or malformed Authorization header")
				return
			}

			sum := sha256.Sum256([]byte(raw))
			key, err := store.GetAPIKeyByHash(r.Context(), hex.EncodeToString(sum[:]))
			if err != nil {
				log.Error().Err(err).Msg("API key lookup failed")
				http.Error(w, `{"error": "Internal server error"}`, http.StatusInternalServerError)
				return
			}
			if key == nil {
				unauthorized(w, "Invalid API key")
				return
			}

			// Last-used bookkeeping must not hold up the request.
			go func() {
				_ = store.UpdateAPIKeyLastUsed(context.Background(), key.ID, time.Now())
			}()

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		token, found = strings.CutPrefix(header, "bearer ")
	}
	token = strings.TrimSpace(token)
	return token, found && token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error": "`+msg+`"}`, http.StatusUnauthorized)
}

// RequestIDMiddleware tags every request with an ID, honoring one supplied
// by the client.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// LoggingMiddleware emits one structured log line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestIDFrom(r.Context())).
			Msg("Request completed")
	})
}

// AuditMiddleware records each authenticated request in the store. Writes
// happen off the request path; a failed audit write is logged, not surfaced.
func AuditMiddleware(store database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			entry := &models.AuditLog{
				ID:           uuid.New().String(),
				Endpoint:     r.URL.Path,
				Method:       r.Method,
				RequestSize:  r.ContentLength,
				ResponseCode: ww.status,
				DurationMs:   time.Since(start).Milliseconds(),
				Timestamp:    start,
			}
			if key := apiKeyFrom(r.Context()); key != nil {
				entry.APIKeyID = key.ID
			}

			go func() {
				if err := store.LogRequest(context.Background(), entry); err != nil {
					log.Error().Err(err).Msg("Audit write failed")
				}
			}()
		})
	}
}

// RateLimitMiddleware enforces per-key request limits. Each key carries its
// own requests-per-minute allowance; unauthenticated requests fall back to
// the default limit keyed by remote address. Limiter state is shared per
// allowance value, keyed by API key ID underneath.
func RateLimitMiddleware(defaultLimit int) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		limiters = map[int]func(http.Handler) http.Handler{}
	)

	limiterFor := func(rpm int) func(http.Handler) http.Handler {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters[rpm]; ok {
			return l
		}
		l := httprate.Limit(
			rpm,
			time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				if key := apiKeyFrom(r.Context()); key != nil {
					return key.ID, nil
				}
				return r.RemoteAddr, nil
			}),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "Rate limit exceeded"}`, http.StatusTooManyRequests)
			}),
		)
		limiters[rpm] = l
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rpm := defaultLimit
			if key := apiKeyFrom(r.Context()); key != nil && key.RequestsPerMinute > 0 {
				rpm = key.RequestsPerMinute
			}
			limiterFor(rpm)(next).ServeHTTP(w, r)
		})
	}
}

// statusWriter captures the response status for logging and auditing.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func apiKeyFrom(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
