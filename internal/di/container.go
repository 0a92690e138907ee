package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vastra-market/api/internal/platform/config"
	"github.com/vastra-market/api/internal/platform/observability"
	"github.com/vastra-market/api/internal/repositories"
	"github.com/vastra-market/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders     services.OrderService
	Coupons    services.CouponValidator
	Reviews    services.ReviewService
	Ratings    services.RatingAggregator
	Reconciler services.CouponReconciler
	System     services.SystemService
}

// Collaborators carries the infrastructure adapters built outside the repository registry. Nil
// adapters disable the matching behaviour: no notifications, no media checks, no metrics.
type Collaborators struct {
	Notifications services.NotificationSink
	Media         services.MediaVerifier
	Metrics       services.CommerceMetrics
	Logger        *zap.Logger
	Build         services.BuildInfo
	Clock         func() time.Time
	IDGenerator   func() string
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, collab Collaborators) (Services, error) {
	var svc Services

	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := collab.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	eventLogger := observability.ServiceLogger(logger.Named("services"))

	pricing, err := services.NewPricingCalculator(services.PricingPolicy{
		TaxRateBasisPoints:    cfg.Pricing.TaxRateBasisPoints,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		ShippingFee:           cfg.Pricing.ShippingFee,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing calculator: %w", err)
	}

	validator, err := services.NewCouponValidator(services.CouponValidatorDeps{
		Coupons:  reg.Coupons(),
		Orders:   reg.Orders(),
		Products: reg.Products(),
		Pricing:  pricing,
		Metrics:  collab.Metrics,
		Clock:    clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon validator: %w", err)
	}
	svc.Coupons = validator

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Items:         reg.OrderItems(),
		Coupons:       reg.Coupons(),
		Products:      reg.Products(),
		Carts:         reg.Carts(),
		UnitOfWork:    reg,
		Validator:     validator,
		Pricing:       pricing,
		Notifications: collab.Notifications,
		Metrics:       collab.Metrics,
		Clock:         clock,
		IDGenerator:   collab.IDGenerator,
		Logger:        eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	ratings, err := services.NewRatingAggregator(services.RatingAggregatorDeps{
		Reviews:  reg.Reviews(),
		Products: reg.Products(),
		Clock:    clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rating aggregator: %w", err)
	}
	svc.Ratings = ratings

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:    reg.Reviews(),
		Orders:     reg.Orders(),
		OrderItems: reg.OrderItems(),
		Ratings:    ratings,
		Media:      collab.Media,
		Clock:      clock,
		Logger:     eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	reconciler, err := services.NewCouponReconciler(services.CouponReconcilerDeps{
		Orders:   reg.Orders(),
		Coupons:  reg.Coupons(),
		Lookback: cfg.Reconciliation.Lookback,
		Limit:    cfg.Reconciliation.BatchSize,
		Clock:    clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon reconciler: %w", err)
	}
	svc.Reconciler = reconciler

	if healthRepo := reg.Health(); healthRepo != nil {
		build := collab.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
