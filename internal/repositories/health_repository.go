package repositories

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// HealthRepository probes backing services for the readiness endpoint.
type HealthRepository interface {
	Probe(ctx context.Context) (domain.HealthReport, error)
}

// DependencyCheck describes a dependency probe executed during readiness checks.
// Optional dependencies only degrade the report when they fail.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Optional bool
	Check    func(context.Context) error
}

type probeHealthRepository struct {
	checks []DependencyCheck
	now    func() time.Time
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// NewProbeHealthRepository constructs a HealthRepository evaluating checks concurrently.
func NewProbeHealthRepository(checks []DependencyCheck, clock func() time.Time) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" || check.Check == nil {
			return nil, errors.New("health repository: dependency checks need a name and a check function")
		}
	}
	if clock == nil {
		clock = time.Now
	}
	return &probeHealthRepository{
		checks: append([]DependencyCheck(nil), checks...),
		now:    clock,
	}, nil
}

func (r *probeHealthRepository) Probe(ctx context.Context) (domain.HealthReport, error) {
	if ctx == nil {
		return domain.HealthReport{}, errors.New("health repository: context is required")
	}

	results := make([]domain.DependencyHealth, len(r.checks))
	var wg sync.WaitGroup
	for i, check := range r.checks {
		wg.Add(1)
		go func(i int, check DependencyCheck) {
			defer wg.Done()
			results[i] = r.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	overall := domain.HealthStatusOK
	for i, result := range results {
		if result.Status == domain.HealthStatusOK {
			continue
		}
		if r.checks[indexOf(r.checks, result.Name)].Optional {
			results[i].Status = domain.HealthStatusDegraded
			if overall == domain.HealthStatusOK {
				overall = domain.HealthStatusDegraded
			}
			continue
		}
		overall = domain.HealthStatusError
	}

	return domain.HealthReport{
		Status:       overall,
		Dependencies: results,
		GeneratedAt:  r.now(),
	}, nil
}

func (r *probeHealthRepository) run(ctx context.Context, check DependencyCheck) domain.DependencyHealth {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(probeCtx)
	end := r.now()

	result := domain.DependencyHealth{
		Name:      check.Name,
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil && probeCtx.Err() == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
	case err != nil:
		result.Status = domain.HealthStatusError
		result.Detail = err.Error()
	default:
		result.Status = domain.HealthStatusError
		result.Detail = probeCtx.Err().Error()
	}
	return result
}

func indexOf(checks []DependencyCheck, name string) int {
	for i, check := range checks {
		if check.Name == name {
			return i
		}
	}
	return 0
}
