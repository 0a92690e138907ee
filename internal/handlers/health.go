package handlers

import (
	"net/http"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/platform/requestctx"
	"github.com/vastra-market/api/internal/services"

	"go.uber.org/zap"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the service used for readiness probes.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers. Without a system service /readyz reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthResponse struct {
	Status       string               `json:"status"`
	Version      string               `json:"version,omitempty"`
	CommitSHA    string               `json:"commitSha,omitempty"`
	Environment  string               `json:"environment,omitempty"`
	Uptime       string               `json:"uptime"`
	Timestamp    string               `json:"timestamp"`
	Dependencies []dependencyResponse `json:"dependencies,omitempty"`
}

type dependencyResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Healthz reports liveness; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:      string(domain.HealthStatusOK),
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz probes dependencies. Degraded optional dependencies still answer 200.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		h.Healthz(w, r)
		return
	}
	report, err := h.system.HealthReport(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("readiness probe failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "readiness probe failed", http.StatusServiceUnavailable))
		return
	}

	resp := healthResponse{
		Status:       string(report.Status),
		Version:      report.Version,
		CommitSHA:    report.CommitSHA,
		Environment:  report.Environment,
		Uptime:       report.Uptime.Round(time.Second).String(),
		Timestamp:    report.GeneratedAt.UTC().Format(time.RFC3339),
		Dependencies: make([]dependencyResponse, 0, len(report.Dependencies)),
	}
	for _, dep := range report.Dependencies {
		resp.Dependencies = append(resp.Dependencies, dependencyResponse{
			Name:      dep.Name,
			Status:    string(dep.Status),
			Detail:    dep.Detail,
			LatencyMS: dep.Latency.Milliseconds(),
		})
	}
	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp)
}
