package domain

import (
	"time"
)

// Currency is the single settlement currency used for every monetary field.
const Currency = "INR"

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates the fulfilment lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial status of a freshly placed order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the seller accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the parcel left the seller.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal; the parcel reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal; the order will not be fulfilled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsTerminal reports whether no further transitions are possible from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Address is structured postal data; the engine stores it without interpretation.
type Address struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Order is a single checkout transaction and its computed totals.
type Order struct {
	ID                 string
	UserID             string
	Status             OrderStatus
	PaymentStatus      string
	ShippingStatus     string
	PaymentMethod      string
	Currency           string
	Subtotal           int64
	Tax                int64
	Shipping           int64
	Discount           int64
	Total              int64
	CouponCode         *string
	ShippingAddress    Address
	BillingAddress     Address
	Notes              string
	ItemCount          int
	TrackingNumber     *string
	CancellationReason *string
	DeliveredAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderItem is one product line of an order with a price snapshot taken at purchase time.
type OrderItem struct {
	ID           string
	OrderID      string
	ProductID    string
	ProductName  string
	ProductImage string
	Price        int64
	Quantity     int
	Size         string
	Color        string
	SellerID     string
	ShopID       string
	Total        int64
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CouponType distinguishes percentage coupons from fixed amount coupons.
type CouponType string

const (
	// CouponTypePercentage discounts a percentage of the subtotal, optionally capped.
	CouponTypePercentage CouponType = "percentage"
	// CouponTypeFixed discounts a fixed amount, never more than the subtotal.
	CouponTypeFixed CouponType = "fixed"
)

// Coupon is a promotional code with usage and validity constraints.
type Coupon struct {
	Code                 string
	Type                 CouponType
	Value                int64
	MinOrderAmount       int64
	MaxDiscount          *int64
	UsageLimit           int64
	UsedCount            int64
	ValidFrom            time.Time
	ValidUntil           time.Time
	IsActive             bool
	ApplicableCategories []string
	ApplicableProducts   []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Restricted reports whether the coupon only applies to specific products or categories.
func (c Coupon) Restricted() bool {
	return len(c.ApplicableCategories) > 0 || len(c.ApplicableProducts) > 0
}

// CouponRedemption records that a user consumed a coupon on a specific order.
type CouponRedemption struct {
	Code       string
	UserID     string
	OrderID    string
	RedeemedAt time.Time
}

// ReviewStatus represents moderation state for a review.
type ReviewStatus string

const (
	// ReviewStatusApproved reviews are public and count towards product ratings.
	ReviewStatusApproved ReviewStatus = "approved"
	// ReviewStatusPending reviews await moderation.
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusRejected reviews are hidden.
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Review is a customer's rating of a product bought through a specific order.
type Review struct {
	ID           string
	UserID       string
	ProductID    string
	OrderID      string
	Rating       int
	Title        string
	Comment      string
	Images       []string
	IsVerified   bool
	HelpfulCount int
	IsReported   bool
	Status       ReviewStatus
	ModeratedBy  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Product is the catalog view the engine reads when snapshotting order items.
type Product struct {
	ID          string
	Name        string
	Price       int64
	Images      []string
	SellerID    string
	ShopID      string
	CategoryID  string
	InStock     bool
	Rating      float64
	ReviewCount int
}

// Thumbnail returns the first product image, if any.
func (p Product) Thumbnail() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ProductRating is the aggregate written back onto a product after reviews change.
type ProductRating struct {
	ProductID   string
	Average     float64
	ReviewCount int
	UpdatedAt   time.Time
}

// Notification is a message addressed to a single user, delivered by an external sink.
type Notification struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Data    map[string]string
}

// Notification types emitted by the order flows.
const (
	NotificationOrderPlaced    = "order_placed"
	NotificationOrderStatus    = "order_status"
	NotificationOrderCancelled = "order_cancelled"
)
