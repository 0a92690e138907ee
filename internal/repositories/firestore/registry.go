package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
	"github.com/vastra-market/api/internal/repositories"
)

// Registry wires every Firestore repository to a shared provider.
type Registry struct {
	*pfirestore.UnitOfWork

	provider *pfirestore.Provider
	orders   *OrderRepository
	items    *OrderItemRepository
	coupons  *CouponRepository
	reviews  *ReviewRepository
	products *ProductRepository
	carts    *CartRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repositories. The health repository probes Firestore in addition to
// any extra checks supplied by the caller.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	reg := &Registry{
		UnitOfWork: pfirestore.NewUnitOfWork(provider),
		provider:   provider,
	}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.items, err = NewOrderItemRepository(provider); err != nil {
		return nil, err
	}
	if reg.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, err
	}
	if reg.reviews, err = NewReviewRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{
		Name:  "firestore",
		Check: provider.Ping,
	}}, extraChecks...)
	if reg.health, err = repositories.NewProbeHealthRepository(checks, nil); err != nil {
		return nil, fmt.Errorf("health repository: %w", err)
	}
	return reg, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) OrderItems() repositories.OrderItemRepository { return r.items }
func (r *Registry) Coupons() repositories.CouponRepository       { return r.coupons }
func (r *Registry) Reviews() repositories.ReviewRepository       { return r.reviews }
func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Carts() repositories.CartRepository           { return r.carts }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }
