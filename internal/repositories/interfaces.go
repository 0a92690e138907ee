package repositories

import (
	"context"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Coupons() CouponRepository
	Reviews() ReviewRepository
	Products() ProductRepository
	Carts() CartRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Repositories invoked with the context passed to fn participate in the same transaction; all
// reads must happen before the first write.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// HasCouponOrder reports whether the user has any order, in any status, carrying the code.
	HasCouponOrder(ctx context.Context, userID string, code string) (bool, error)
	// ListWithCoupon returns orders that carry a coupon code, oldest first.
	ListWithCoupon(ctx context.Context, filter CouponOrderFilter) ([]domain.Order, error)
}

// OrderItemRepository persists the line items underneath an order. Items are immutable apart from
// their status.
type OrderItemRepository interface {
	InsertAll(ctx context.Context, orderID string, items []domain.OrderItem) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	UpdateStatus(ctx context.Context, orderID string, itemIDs []string, status domain.OrderStatus, now time.Time) error
}

// CouponRepository stores coupons and their redemption ledger.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	// Redeem atomically increments the usage counter when it is below the limit and records the
	// redemption for the user. It fails with a CouponRedemptionError when the coupon is exhausted
	// or the user already redeemed it.
	Redeem(ctx context.Context, redemption domain.CouponRedemption) (domain.Coupon, error)
	FindRedemption(ctx context.Context, code string, userID string) (domain.CouponRedemption, error)
	CountRedemptions(ctx context.Context, code string) (int64, error)
	// RaiseUsedCount sets the usage counter to value when the stored counter is lower.
	RaiseUsedCount(ctx context.Context, code string, value int64, now time.Time) (domain.Coupon, error)
}

// ReviewRepository persists product reviews.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	Update(ctx context.Context, review domain.Review) error
	Delete(ctx context.Context, reviewID string) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	FindByKey(ctx context.Context, userID, productID, orderID string) (domain.Review, error)
	ListByProduct(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[domain.Review], error)
	// ApprovedRatings returns the rating of every approved review for the product.
	ApprovedRatings(ctx context.Context, productID string) ([]int, error)
	AdjustHelpful(ctx context.Context, reviewID string, delta int, now time.Time) (domain.Review, error)
}

// ProductRepository is the engine's view of the catalog: read products, write back rating aggregates.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	UpdateRating(ctx context.Context, rating domain.ProductRating) error
}

// CartRepository exposes the only cart mutation the engine performs.
type CartRepository interface {
	Clear(ctx context.Context, userID string) error
}

// OrderListFilter narrows order listings for a user.
type OrderListFilter struct {
	UserID     string
	Status     []string
	Pagination domain.Pagination
}

// CouponOrderFilter narrows the reconciliation scan.
type CouponOrderFilter struct {
	CreatedAfter time.Time
	Limit        int
}

// ReviewListFilter narrows review listings for a product.
type ReviewListFilter struct {
	ProductID  string
	Status     []domain.ReviewStatus
	Pagination domain.Pagination
}
