package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/onnwee/swipestack/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader is set on responses served from the store.
const IdempotentReplayHeader = "Idempotent-Replayed"

// captureWriter records the status and body while passing them through.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *captureWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

// inFlight tracks keys whose first request has not finished yet.
type inFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (f *inFlight) acquire(k string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[k]; busy {
		return false
	}
	f.keys[k] = struct{}{}
	return true
}

func (f *inFlight) release(k string) {
	f.mu.Lock()
	delete(f.keys, k)
	f.mu.Unlock()
}

// Idempotency replays the stored response of an earlier POST carrying the
// same Idempotency-Key from the same user. Requests without the header pass
// through unchanged. It must run inside RequireAuth. Only 2xx responses are
// stored, for ttl. A store outage disables replay rather than failing the
// request. metrics may be nil.
func Idempotency(store idempotency.Store, ttl time.Duration, metrics *Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = idempotency.DefaultExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	pending := &inFlight{keys: make(map[string]struct{})}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			userID := GetUserID(r.Context())
			if r.Method != http.MethodPost || key == "" || userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			route := normalizePath(r.URL.Path)
			if err := idempotency.ValidateKey(key); err != nil {
				metrics.IncIdempotency(route, IdempotencyRejected)
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					writeError(w, r, http.StatusBadRequest, "idempotency_key_too_long",
						"Idempotency-Key exceeds maximum length of "+strconv.Itoa(idempotency.MaxKeyLength)+" characters")
					return
				}
				writeError(w, r, http.StatusBadRequest, "invalid_idempotency_key", "Invalid Idempotency-Key format")
				return
			}

			ctx := r.Context()
			existing, err := store.Get(ctx, userID, key)
			switch {
			case err == nil:
				if !existing.Matches(r.Method, r.URL.Path) {
					metrics.IncIdempotency(route, IdempotencyRejected)
					writeError(w, r, http.StatusUnprocessableEntity, "idempotency_key_reused",
						"Idempotency-Key was already used for a different request")
					return
				}
				metrics.IncIdempotency(route, IdempotencyReplayed)
				logger.DebugContext(ctx, "replaying stored response", "route", r.URL.Path, "status", existing.StatusCode)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(existing.StatusCode)
				_, _ = w.Write(existing.Body)
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				metrics.IncIdempotency(route, IdempotencyStoreError)
				logger.WarnContext(ctx, "idempotency lookup failed, serving without replay", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			scoped := userID + ":" + key
			if !pending.acquire(scoped) {
				metrics.IncIdempotency(route, IdempotencyRejected)
				writeError(w, r, http.StatusConflict, "idempotency_key_in_flight",
					"A request with this Idempotency-Key is still being processed")
				return
			}
			defer pending.release(scoped)

			cw := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(cw, r)
			if cw.statusCode < 200 || cw.statusCode >= 300 {
				return
			}

			body := cw.body.Bytes()
			err = store.Put(ctx, &idempotency.Record{
				Key:          key,
				UserID:       userID,
				Method:       r.Method,
				Route:        r.URL.Path,
				StatusCode:   cw.statusCode,
				Body:         body,
				ResponseHash: idempotency.ComputeResponseHash(body),
			}, ttl)
			switch {
			case err == nil:
				metrics.IncIdempotency(route, IdempotencyStored)
			case !errors.Is(err, idempotency.ErrKeyExists):
				metrics.IncIdempotency(route, IdempotencyStoreError)
				logger.WarnContext(ctx, "failed to store idempotent response", "error", err)
			}
		})
	}
}
