package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vastra-market/api/internal/domain"
	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
	"github.com/vastra-market/api/internal/platform/pagination"
	"github.com/vastra-market/api/internal/repositories"
)

const (
	ordersCollection      = "orders"
	defaultReconcileBatch = 500
)

// OrderRepository persists order headers in the orders collection.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection),
	}, nil
}

type orderDocument struct {
	UserID             string          `firestore:"userId"`
	Status             string          `firestore:"status"`
	PaymentStatus      string          `firestore:"paymentStatus"`
	ShippingStatus     string          `firestore:"shippingStatus"`
	PaymentMethod      string          `firestore:"paymentMethod"`
	Currency           string          `firestore:"currency"`
	Subtotal           int64           `firestore:"subtotal"`
	Tax                int64           `firestore:"tax"`
	Shipping           int64           `firestore:"shipping"`
	Discount           int64           `firestore:"discount"`
	Total              int64           `firestore:"total"`
	CouponCode         *string         `firestore:"couponCode"`
	HasCoupon          bool            `firestore:"hasCoupon"`
	ShippingAddress    addressDocument `firestore:"shippingAddress"`
	BillingAddress     addressDocument `firestore:"billingAddress"`
	Notes              string          `firestore:"notes,omitempty"`
	ItemCount          int             `firestore:"itemCount"`
	TrackingNumber     *string         `firestore:"trackingNumber"`
	CancellationReason *string         `firestore:"cancellationReason"`
	DeliveredAt        *time.Time      `firestore:"deliveredAt"`
	CreatedAt          time.Time       `firestore:"createdAt"`
	UpdatedAt          time.Time       `firestore:"updatedAt"`
}

type addressDocument struct {
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

// Insert creates the order document; an existing id is reported as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, id, encodeOrder(order))
}

// Update overwrites the order header.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Set(ctx, id, encodeOrder(order))
}

// FindByID loads the order header.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, pfirestore.NotFoundError("orders.get", "order id is required")
	}
	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// List returns the user's orders newest first using createdAt/id cursors.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	limit := pagination.Limit(filter.Pagination.PageSize)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if statuses := nonEmpty(filter.Status); len(statuses) > 0 {
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor.ID != "" {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), limit))}
	for i, doc := range docs {
		if i == limit {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	return page, nil
}

// HasCouponOrder reports whether the user placed any order carrying the code.
func (r *OrderRepository) HasCouponOrder(ctx context.Context, userID string, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = normaliseCode(code)
	if userID == "" || code == "" {
		return false, nil
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).Where("couponCode", "==", code).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// ListWithCoupon returns coupon-carrying orders created at or after the filter's bound, oldest first.
func (r *OrderRepository) ListWithCoupon(ctx context.Context, filter repositories.CouponOrderFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultReconcileBatch
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("hasCoupon", "==", true)
		if !filter.CreatedAfter.IsZero() {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		return q.OrderBy("createdAt", firestore.Asc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

func encodeOrder(order domain.Order) orderDocument {
	code := trimmedPtr(order.CouponCode)
	if code != nil {
		upper := normaliseCode(*code)
		code = &upper
	}
	doc := orderDocument{
		UserID:             strings.TrimSpace(order.UserID),
		Status:             string(order.Status),
		PaymentStatus:      order.PaymentStatus,
		ShippingStatus:     order.ShippingStatus,
		PaymentMethod:      order.PaymentMethod,
		Currency:           strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:           order.Subtotal,
		Tax:                order.Tax,
		Shipping:           order.Shipping,
		Discount:           order.Discount,
		Total:              order.Total,
		CouponCode:         code,
		HasCoupon:          code != nil,
		ShippingAddress:    encodeAddress(order.ShippingAddress),
		BillingAddress:     encodeAddress(order.BillingAddress),
		Notes:              order.Notes,
		ItemCount:          order.ItemCount,
		TrackingNumber:     trimmedPtr(order.TrackingNumber),
		CancellationReason: trimmedPtr(order.CancellationReason),
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
	}
	if order.DeliveredAt != nil {
		at := order.DeliveredAt.UTC()
		doc.DeliveredAt = &at
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                 id,
		UserID:             doc.UserID,
		Status:             domain.OrderStatus(doc.Status),
		PaymentStatus:      doc.PaymentStatus,
		ShippingStatus:     doc.ShippingStatus,
		PaymentMethod:      doc.PaymentMethod,
		Currency:           doc.Currency,
		Subtotal:           doc.Subtotal,
		Tax:                doc.Tax,
		Shipping:           doc.Shipping,
		Discount:           doc.Discount,
		Total:              doc.Total,
		CouponCode:         trimmedPtr(doc.CouponCode),
		ShippingAddress:    decodeAddress(doc.ShippingAddress),
		BillingAddress:     decodeAddress(doc.BillingAddress),
		Notes:              doc.Notes,
		ItemCount:          doc.ItemCount,
		TrackingNumber:     trimmedPtr(doc.TrackingNumber),
		CancellationReason: trimmedPtr(doc.CancellationReason),
		CreatedAt:          doc.CreatedAt.UTC(),
		UpdatedAt:          doc.UpdatedAt.UTC(),
	}
	if order.Currency == "" {
		order.Currency = domain.Currency
	}
	if doc.DeliveredAt != nil {
		at := doc.DeliveredAt.UTC()
		order.DeliveredAt = &at
	}
	return order
}

func encodeAddress(a domain.Address) addressDocument {
	return addressDocument{
		Name:       strings.TrimSpace(a.Name),
		Phone:      strings.TrimSpace(a.Phone),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
}

func decodeAddress(a addressDocument) domain.Address {
	return domain.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
