package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/medflowlabs/trialops-backend/api/responses"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	pkgredis "github.com/medflowlabs/trialops-backend/pkg/redis"
)

const (
	standardReplayTTL   = 24 * time.Hour
	allocationReplayTTL = 7 * 24 * time.Hour
)

// replayGuard marks one route whose responses are stored under the caller's
// Idempotency-Key and replayed on retry. Either exact is set, or the route
// is matched by prefix+suffix around its path parameter.
type replayGuard struct {
	method string
	exact  string
	prefix string
	suffix string
	ttl    time.Duration
}

func (g replayGuard) matches(method, pattern string) bool {
	if g.method != method {
		return false
	}
	if g.exact != "" {
		return strings.TrimSuffix(pattern, "/") == g.exact
	}
	return strings.HasPrefix(pattern, g.prefix) && strings.HasSuffix(pattern, g.suffix)
}

// Allocation and acknowledgment submissions keep their records for a week:
// a retried submission must get the stored response back rather than
// consume stock or kit rows twice.
var replayGuards = []replayGuard{
	{method: http.MethodPost, exact: "/api/v1/shipments", ttl: standardReplayTTL},
	{method: http.MethodPost, prefix: "/api/v1/shipments/", suffix: "/sent", ttl: standardReplayTTL},
	{method: http.MethodPost, exact: "/api/v1/kits/import", ttl: standardReplayTTL},
	{method: http.MethodPost, prefix: "/api/v1/drugs/", suffix: "/restock", ttl: standardReplayTTL},
	{method: http.MethodPut, prefix: "/api/v1/drugs/", suffix: "/quantity", ttl: standardReplayTTL},
	{method: http.MethodPost, prefix: "/api/v1/notifications/", suffix: "/read", ttl: standardReplayTTL},
	{method: http.MethodPost, exact: "/api/v1/notifications/read-all", ttl: standardReplayTTL},
	{method: http.MethodPost, prefix: "/api/v1/shipments/", suffix: "/acknowledge", ttl: allocationReplayTTL},
	{method: http.MethodPost, exact: "/api/v1/enrollments", ttl: allocationReplayTTL},
}

// storedReply is the response snapshot kept in Redis. RequestHash pins the
// key to the original request body, so key reuse with a different payload
// is detectable.
type storedReply struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays stored responses for guarded mutation routes.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := guardTTL(r)
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if idempotencyKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			requestHash := hashRequest(body)

			scope := strings.Join([]string{
				UserIDFromContext(r.Context()),
				SiteIDFromContext(r.Context()),
				r.Method,
				r.URL.Path,
			}, "|")
			key := store.IdempotencyKey(scope, idempotencyKey)

			stored, getErr := store.Get(r.Context(), key)
			if getErr != nil && !errors.Is(getErr, redis.Nil) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, getErr, "check idempotency"))
				return
			}
			if stored != "" {
				replayStored(r.Context(), logg, w, stored, requestHash)
				return
			}

			rec := &replyRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			reply := storedReply{
				Status:      rec.statusOr(http.StatusOK),
				Body:        rec.body.Bytes(),
				ContentType: rec.Header().Get("Content-Type"),
				RequestHash: requestHash,
			}
			payload, marshalErr := json.Marshal(reply)
			if marshalErr != nil {
				if logg != nil {
					logg.Error(r.Context(), "marshal idempotency record", marshalErr)
				}
				return
			}
			if _, setErr := store.SetNX(r.Context(), key, string(payload), ttl); setErr != nil && logg != nil {
				logg.Error(r.Context(), "persist idempotency record", setErr)
			}
		})
	}
}

func replayStored(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, stored, requestHash string) {
	var reply storedReply
	if err := json.Unmarshal([]byte(stored), &reply); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if reply.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if reply.ContentType != "" {
		w.Header().Set("Content-Type", reply.ContentType)
	}
	w.WriteHeader(reply.Status)
	_, _ = w.Write(reply.Body)
}

// guardTTL resolves the chi route pattern of the request and looks it up in
// the guard table.
func guardTTL(r *http.Request) (time.Duration, bool) {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			pattern = p
		}
	}
	if pattern == "" {
		return 0, false
	}
	for _, guard := range replayGuards {
		if guard.matches(r.Method, pattern) {
			return guard.ttl, true
		}
	}
	return 0, false
}

func hashRequest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type replyRecorder struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *replyRecorder) statusOr(fallback int) int {
	if r.status == 0 {
		return fallback
	}
	return r.status
}

func (r *replyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *replyRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
