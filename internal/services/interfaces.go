package services

import (
	"context"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination       = domain.Pagination
	Order            = domain.Order
	OrderItem        = domain.OrderItem
	OrderStatus      = domain.OrderStatus
	Coupon           = domain.Coupon
	Review           = domain.Review
	ReviewStatus     = domain.ReviewStatus
	Address          = domain.Address
	PriceLine        = domain.PriceLine
	PricingBreakdown = domain.PricingBreakdown
	PricingPolicy    = domain.PricingPolicy
	Notification     = domain.Notification
	HealthReport     = domain.HealthReport
)

// NotificationSink delivers user notifications. Delivery failures never fail the calling operation.
type NotificationSink interface {
	Notify(ctx context.Context, notification Notification) error
}

// MediaVerifier confirms that review image references point at uploaded objects.
type MediaVerifier interface {
	VerifyImages(ctx context.Context, refs []string) error
}

// CommerceMetrics records business counters for the order flows.
type CommerceMetrics interface {
	OrderCreated(ctx context.Context, total int64, withCoupon bool)
	CouponRejected(ctx context.Context, reason string)
	StatusChanged(ctx context.Context, from, to string)
}

// CouponValidator checks a coupon against an order without consuming it.
type CouponValidator interface {
	Validate(ctx context.Context, cmd CouponValidationCommand) (CouponQuote, error)
}

// OrderService places orders, exposes them to their owners and drives the fulfilment lifecycle.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (OrderDetail, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// RatingAggregator recomputes a product's rating from its approved reviews.
type RatingAggregator interface {
	Recompute(ctx context.Context, productID string) (domain.ProductRating, error)
}

// ReviewService manages review submission, author edits and moderation.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	Delete(ctx context.Context, cmd DeleteReviewCommand) error
	Get(ctx context.Context, reviewID string) (Review, error)
	ListByProduct(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[Review], error)
	MarkHelpful(ctx context.Context, cmd MarkHelpfulCommand) (Review, error)
	Report(ctx context.Context, cmd ReportReviewCommand) (Review, error)
	Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error)
}

// CouponReconciler repairs drift between coupon-carrying orders and coupon usage.
type CouponReconciler interface {
	Reconcile(ctx context.Context, cmd ReconcileCouponsCommand) (ReconciliationReport, error)
}

// SystemService exposes health information for probes.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CouponValidationCommand describes a prospective order for coupon validation.
type CouponValidationCommand struct {
	Code       string
	UserID     string
	Subtotal   int64
	ProductIDs []string
}

// CouponQuote is the outcome of a successful validation.
type CouponQuote struct {
	Code           string
	Type           domain.CouponType
	Value          int64
	Discount       int64
	MinOrderAmount int64
	MaxDiscount    *int64
	ValidUntil     time.Time
}

// OrderLineCommand is a requested product line.
type OrderLineCommand struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

// CreateOrderCommand carries a checkout request.
type CreateOrderCommand struct {
	UserID          string
	Items           []OrderLineCommand
	ShippingAddress Address
	BillingAddress  *Address
	PaymentMethod   string
	CouponCode      string
	Notes           string
}

// CouponRejection explains why a requested coupon was not applied to an order.
type CouponRejection struct {
	Code    string
	Reason  string
	Message string
}

// CreateOrderResult is the persisted order, its items and any coupon rejection.
type CreateOrderResult struct {
	Order           Order
	Items           []OrderItem
	CouponRejection *CouponRejection
}

// GetOrderCommand reads an order. When RequireOwner is set, orders of other users are not found.
type GetOrderCommand struct {
	OrderID      string
	ActorID      string
	RequireOwner bool
}

// OrderDetail is an order with its items.
type OrderDetail struct {
	Order Order
	Items []OrderItem
}

// OrderListFilter narrows a user's order listing.
type OrderListFilter struct {
	UserID     string
	Status     []string
	Pagination Pagination
}

// UpdateOrderStatusCommand is a staff partial update; nil fields are left untouched.
type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         *string
	PaymentStatus  *string
	ShippingStatus *string
	TrackingNumber *string
	ActorID        string
}

// CancelOrderCommand cancels an order.
type CancelOrderCommand struct {
	OrderID      string
	Reason       string
	ActorID      string
	RequireOwner bool
}

// CreateReviewCommand submits a review for a delivered order.
type CreateReviewCommand struct {
	UserID    string
	ProductID string
	OrderID   string
	Rating    int
	Title     string
	Comment   string
	Images    []string
}

// UpdateReviewCommand edits a review; nil fields are left untouched.
type UpdateReviewCommand struct {
	ReviewID string
	UserID   string
	Rating   *int
	Title    *string
	Comment  *string
	Images   *[]string
}

// DeleteReviewCommand removes the author's review.
type DeleteReviewCommand struct {
	ReviewID string
	UserID   string
}

// ReviewListFilter pages through approved reviews of a product.
type ReviewListFilter struct {
	ProductID  string
	Pagination Pagination
}

// MarkHelpfulCommand adjusts a review's helpful counter by +1 or -1.
type MarkHelpfulCommand struct {
	ReviewID string
	UserID   string
	Delta    int
}

// ReportReviewCommand flags a review for moderation.
type ReportReviewCommand struct {
	ReviewID string
	UserID   string
}

// ModerateReviewCommand sets the moderation status of a review.
type ModerateReviewCommand struct {
	ReviewID string
	Status   ReviewStatus
	ActorID  string
}

// ReconcileCouponsCommand bounds a reconciliation pass.
type ReconcileCouponsCommand struct {
	Since  time.Time
	Limit  int
	DryRun bool
}

// ReconciliationIssue describes drift that could not or should not be repaired automatically.
type ReconciliationIssue struct {
	Kind    string
	Code    string
	OrderID string
	UserID  string
	Detail  string
}

// ReconciliationReport summarises one reconciliation pass.
type ReconciliationReport struct {
	Scanned  int
	Repaired int
	Issues   []ReconciliationIssue
	DryRun   bool
}

// SystemHealthReport is the readiness report enriched with build metadata.
type SystemHealthReport struct {
	HealthReport
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
}
