package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
)

type stubHealthRepository struct {
	probeFn func(ctx context.Context) (domain.HealthReport, error)
}

func (s stubHealthRepository) Probe(ctx context.Context) (domain.HealthReport, error) {
	return s.probeFn(ctx)
}

func TestSystemService_HealthReport(t *testing.T) {
	started := testNow.Add(-90 * time.Second)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{probeFn: func(context.Context) (domain.HealthReport, error) {
			return domain.HealthReport{
				Status:       domain.HealthStatusDegraded,
				Dependencies: []domain.DependencyHealth{{Name: "redis", Status: domain.HealthStatusError}},
			}, nil
		}},
		Clock: fixedClock(testNow),
		Build: BuildInfo{Version: " 1.4.0 ", CommitSHA: "abc123", Environment: "staging", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded || len(report.Dependencies) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Version != "1.4.0" || report.Environment != "staging" {
		t.Fatalf("unexpected build info %+v", report)
	}
	if report.Uptime != 90*time.Second {
		t.Fatalf("expected uptime 90s, got %s", report.Uptime)
	}
	if !report.GeneratedAt.Equal(testNow) {
		t.Fatalf("expected generatedAt to default to now, got %s", report.GeneratedAt)
	}
}

func TestSystemService_PropagatesProbeError(t *testing.T) {
	probeErr := errors.New("probe failed")
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{probeFn: func(context.Context) (domain.HealthReport, error) {
			return domain.HealthReport{}, probeErr
		}},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, probeErr) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error without health repository")
	}
}
