package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/portal-crm-backend/api/responses"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/portal-crm-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	idempotencyHeader     = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 255
	maxReplayBody     = 1 << 20
)

// idempotencyRule matches a route by path segments. A "{param}" segment
// matches any single value, so rules accept chi patterns and concrete paths.
type idempotencyRule struct {
	method   string
	segments []string
	required bool
}

var idempotencyRules = []idempotencyRule{
	newRule(http.MethodPost, "/api/quotes", false),
	newRule(http.MethodPost, "/api/quotes/{quoteId}/clone", true),
	newRule(http.MethodPost, "/api/quotes/{quoteId}/convert-to-deal", true),
}

// replayedHeaders are copied from the first response into the stored record.
var replayedHeaders = []string{"Content-Type", "Location"}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        []byte            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

func newRule(method, pattern string, required bool) idempotencyRule {
	return idempotencyRule{method: method, segments: splitPath(pattern), required: required}
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func (rule idempotencyRule) matches(method, path string) bool {
	if rule.method != method {
		return false
	}
	parts := splitPath(path)
	if len(parts) != len(rule.segments) {
		return false
	}
	for i, seg := range rule.segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if seg != parts[i] {
			return false
		}
	}
	return true
}

func matchRule(method, path string) (idempotencyRule, bool) {
	for _, rule := range idempotencyRules {
		if rule.matches(method, path) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the quote write routes. Keys are scoped per caller, method and path. 5xx
// and retryable error responses are not stored so the client can retry with
// the same key. A ttl of zero uses 24h.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case key == "" && !rule.required:
				next.ServeHTTP(w, r)
				return
			case key == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(key) > maxIdempotencyKey:
				responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key must be at most %d characters", maxIdempotencyKey))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReplayBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large"))
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			storeKey := store.IdempotencyKey(scopeFor(r), key)

			stored, found, err := store.Lookup(r.Context(), storeKey)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if found {
				var record idempotencyRecord
				if err := json.Unmarshal([]byte(stored), &record); err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if record.RequestHash != requestHash {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				replay(w, record)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if !rec.storable() {
				return
			}

			payload, err := json.Marshal(rec.record(requestHash))
			if err != nil {
				logError(r, logg, "marshal idempotency record", err)
				return
			}
			if _, err := store.SetNX(r.Context(), storeKey, string(payload), ttl); err != nil {
				logError(r, logg, "persist idempotency record", err)
			}
		})
	}
}

func scopeFor(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func replay(w http.ResponseWriter, record idempotencyRecord) {
	for name, value := range record.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) storable() bool {
	if c.status >= http.StatusInternalServerError {
		return false
	}
	return c.Header().Get(responses.RetryableHeader) == ""
}

func (c *responseCapture) record(requestHash string) idempotencyRecord {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	record := idempotencyRecord{Status: status, Body: c.body.Bytes(), RequestHash: requestHash}
	for _, name := range replayedHeaders {
		if value := c.Header().Get(name); value != "" {
			if record.Headers == nil {
				record.Headers = map[string]string{}
			}
			record.Headers[name] = value
		}
	}
	return record
}

func logError(r *http.Request, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(r.Context(), msg, err)
}
