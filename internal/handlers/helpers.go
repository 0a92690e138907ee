package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vastra-market/api/internal/platform/auth"
	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/services"
)

// HandlerOption customises route-level middleware shared by the handler groups.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	idempotency func(http.Handler) http.Handler
	rateLimit   func(http.Handler) http.Handler
}

// WithIdempotency wraps mutating routes with the Idempotency-Key middleware.
func WithIdempotency(mw func(http.Handler) http.Handler) HandlerOption {
	return func(cfg *handlerConfig) {
		cfg.idempotency = mw
	}
}

// WithRateLimit wraps abuse-prone routes with a per-user limiter.
func WithRateLimit(mw func(http.Handler) http.Handler) HandlerOption {
	return func(cfg *handlerConfig) {
		cfg.rateLimit = mw
	}
}

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	var cfg handlerConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c handlerConfig) mutating() []func(http.Handler) http.Handler {
	if c.idempotency == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{c.idempotency}
}

func (c handlerConfig) limited() []func(http.Handler) http.Handler {
	chain := make([]func(http.Handler) http.Handler, 0, 2)
	if c.rateLimit != nil {
		chain = append(chain, c.rateLimit)
	}
	if c.idempotency != nil {
		chain = append(chain, c.idempotency)
	}
	return chain
}

// UserRateLimitKey keys the limiter by authenticated user, falling back to the client address.
func UserRateLimitKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.UID) != "" {
		return "user:" + strings.TrimSpace(identity.UID)
	}
	return "ip:" + strings.TrimSpace(r.RemoteAddr)
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		message := err.Error()
		if errors.Is(err, httpx.ErrEmptyBody) {
			message = "request body is required"
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body and leaves dst untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := httpx.DecodeJSON(r, dst); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

var kindStatus = map[services.ErrorKind]int{
	services.KindNotFound:        http.StatusNotFound,
	services.KindValidation:      http.StatusBadRequest,
	services.KindConflict:        http.StatusConflict,
	services.KindPolicyViolation: http.StatusUnprocessableEntity,
	services.KindUnavailable:     http.StatusServiceUnavailable,
}

// writeServiceError translates a service error into the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	kind := services.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
		return
	}
	message := err.Error()
	if kind == services.KindUnavailable {
		message = "service temporarily unavailable"
		w.Header().Set("Retry-After", "1")
	}
	httpx.WriteError(ctx, w, httpx.NewError(services.CodeOf(err), message, status))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimeParam(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}
