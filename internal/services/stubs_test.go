package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/repositories"
)

type fakeRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepositoryError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	case e.unavailable:
		return "unavailable"
	}
	return "repository error"
}

func (e fakeRepositoryError) IsNotFound() bool    { return e.notFound }
func (e fakeRepositoryError) IsConflict() bool    { return e.conflict }
func (e fakeRepositoryError) IsUnavailable() bool { return e.unavailable }

var errNotFound = fakeRepositoryError{notFound: true}

// memoryStore backs every repository stub with maps and gives RunInTx rollback semantics.
type memoryStore struct {
	mu          sync.Mutex
	orders      map[string]domain.Order
	items       map[string][]domain.OrderItem
	coupons     map[string]domain.Coupon
	redemptions map[string]domain.CouponRedemption
	reviews     map[string]domain.Review
	products    map[string]domain.Product
	carts       map[string]bool

	failCartClear   error
	failFindCoupon  error
	failRedeem      error
	failUpdateRate  error
	ratingUpdates   []domain.ProductRating
	transactions    int
	redeemAttempted int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:      map[string]domain.Order{},
		items:       map[string][]domain.OrderItem{},
		coupons:     map[string]domain.Coupon{},
		redemptions: map[string]domain.CouponRedemption{},
		reviews:     map[string]domain.Review{},
		products:    map[string]domain.Product{},
		carts:       map[string]bool{},
	}
}

func redemptionKey(code, userID string) string { return code + "/" + userID }

func (m *memoryStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	m.transactions++
	orders := maps.Clone(m.orders)
	items := maps.Clone(m.items)
	coupons := maps.Clone(m.coupons)
	redemptions := maps.Clone(m.redemptions)
	carts := maps.Clone(m.carts)
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.orders, m.items, m.coupons, m.redemptions, m.carts = orders, items, coupons, redemptions, carts
		m.mu.Unlock()
		return err
	}
	return nil
}

type memoryOrders struct{ *memoryStore }

func (m memoryOrders) Insert(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return fakeRepositoryError{conflict: true}
	}
	m.orders[order.ID] = order
	return nil
}

func (m memoryOrders) Update(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; !ok {
		return errNotFound
	}
	m.orders[order.ID] = order
	return nil
}

func (m memoryOrders) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFound
	}
	return order, nil
}

func (m memoryOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, order := range m.orders {
		if order.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, string(order.Status)) {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

func (m memoryOrders) HasCouponOrder(_ context.Context, userID string, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.UserID == userID && order.CouponCode != nil && *order.CouponCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m memoryOrders) ListWithCoupon(_ context.Context, filter repositories.CouponOrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, order := range m.orders {
		if order.CouponCode != nil && !order.CreatedAt.Before(filter.CreatedAfter) {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memoryItems struct{ *memoryStore }

func (m memoryItems) InsertAll(_ context.Context, orderID string, items []domain.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[orderID] = append(slices.Clone(m.items[orderID]), items...)
	return nil
}

func (m memoryItems) ListByOrder(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items[orderID]), nil
}

func (m memoryItems) UpdateStatus(_ context.Context, orderID string, itemIDs []string, status domain.OrderStatus, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := slices.Clone(m.items[orderID])
	for i := range items {
		if slices.Contains(itemIDs, items[i].ID) {
			items[i].Status = status
			items[i].UpdatedAt = now
		}
	}
	m.items[orderID] = items
	return nil
}

type memoryCoupons struct{ *memoryStore }

func (m memoryCoupons) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFindCoupon != nil {
		return domain.Coupon{}, m.failFindCoupon
	}
	coupon, ok := m.coupons[code]
	if !ok {
		return domain.Coupon{}, errNotFound
	}
	return coupon, nil
}

func (m memoryCoupons) Redeem(_ context.Context, redemption domain.CouponRedemption) (domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redeemAttempted++
	if m.failRedeem != nil {
		return domain.Coupon{}, m.failRedeem
	}
	coupon, ok := m.coupons[redemption.Code]
	if !ok {
		return domain.Coupon{}, errNotFound
	}
	if _, ok := m.redemptions[redemptionKey(redemption.Code, redemption.UserID)]; ok {
		return domain.Coupon{}, repositories.NewCouponRedemptionError(repositories.CouponRedemptionDuplicate, "", nil)
	}
	if coupon.UsedCount >= coupon.UsageLimit {
		return domain.Coupon{}, repositories.NewCouponRedemptionError(repositories.CouponRedemptionExhausted, "", nil)
	}
	coupon.UsedCount++
	m.coupons[redemption.Code] = coupon
	m.redemptions[redemptionKey(redemption.Code, redemption.UserID)] = redemption
	return coupon, nil
}

func (m memoryCoupons) FindRedemption(_ context.Context, code string, userID string) (domain.CouponRedemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	redemption, ok := m.redemptions[redemptionKey(code, userID)]
	if !ok {
		return domain.CouponRedemption{}, errNotFound
	}
	return redemption, nil
}

func (m memoryCoupons) CountRedemptions(_ context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.redemptions {
		if r.Code == code {
			n++
		}
	}
	return n, nil
}

func (m memoryCoupons) RaiseUsedCount(_ context.Context, code string, value int64, now time.Time) (domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coupon, ok := m.coupons[code]
	if !ok {
		return domain.Coupon{}, errNotFound
	}
	if coupon.UsedCount < value {
		coupon.UsedCount = value
		coupon.UpdatedAt = now
		m.coupons[code] = coupon
	}
	return coupon, nil
}

type memoryReviews struct{ *memoryStore }

func (m memoryReviews) Insert(_ context.Context, review domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[review.ID]; ok {
		return fakeRepositoryError{conflict: true}
	}
	m.reviews[review.ID] = review
	return nil
}

func (m memoryReviews) Update(_ context.Context, review domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[review.ID]; !ok {
		return errNotFound
	}
	m.reviews[review.ID] = review
	return nil
}

func (m memoryReviews) Delete(_ context.Context, reviewID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reviews, reviewID)
	return nil
}

func (m memoryReviews) FindByID(_ context.Context, reviewID string) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[reviewID]
	if !ok {
		return domain.Review{}, errNotFound
	}
	return review, nil
}

func (m memoryReviews) FindByKey(_ context.Context, userID, productID, orderID string) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, review := range m.reviews {
		if review.UserID == userID && review.ProductID == productID && review.OrderID == orderID {
			return review, nil
		}
	}
	return domain.Review{}, errNotFound
}

func (m memoryReviews) ListByProduct(_ context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Review
	for _, review := range m.reviews {
		if review.ProductID == filter.ProductID && slices.Contains(filter.Status, review.Status) {
			out = append(out, review)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.CursorPage[domain.Review]{Items: out}, nil
}

func (m memoryReviews) ApprovedRatings(_ context.Context, productID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, review := range m.reviews {
		if review.ProductID == productID && review.Status == domain.ReviewStatusApproved {
			out = append(out, review.Rating)
		}
	}
	return out, nil
}

func (m memoryReviews) AdjustHelpful(_ context.Context, reviewID string, delta int, now time.Time) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[reviewID]
	if !ok {
		return domain.Review{}, errNotFound
	}
	review.HelpfulCount = max(review.HelpfulCount+delta, 0)
	review.UpdatedAt = now
	m.reviews[reviewID] = review
	return review, nil
}

type memoryProducts struct{ *memoryStore }

func (m memoryProducts) FindByID(_ context.Context, productID string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[productID]
	if !ok {
		return domain.Product{}, errNotFound
	}
	return product, nil
}

func (m memoryProducts) UpdateRating(_ context.Context, rating domain.ProductRating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdateRate != nil {
		return m.failUpdateRate
	}
	product, ok := m.products[rating.ProductID]
	if !ok {
		return errNotFound
	}
	product.Rating = rating.Average
	product.ReviewCount = rating.ReviewCount
	m.products[rating.ProductID] = product
	m.ratingUpdates = append(m.ratingUpdates, rating)
	return nil
}

type memoryCarts struct{ *memoryStore }

func (m memoryCarts) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCartClear != nil {
		return m.failCartClear
	}
	delete(m.carts, userID)
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	sent  []domain.Notification
	failN error
}

func (s *recordingSink) Notify(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN != nil {
		return s.failN
	}
	s.sent = append(s.sent, n)
	return nil
}

type recordingMetrics struct {
	created     int
	withCoupon  int
	rejections  []string
	transitions []string
}

func (m *recordingMetrics) OrderCreated(_ context.Context, _ int64, withCoupon bool) {
	if m == nil {
		return
	}
	m.created++
	if withCoupon {
		m.withCoupon++
	}
}

func (m *recordingMetrics) CouponRejected(_ context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejections = append(m.rejections, reason)
}

func (m *recordingMetrics) StatusChanged(_ context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions = append(m.transitions, fmt.Sprintf("%s->%s", from, to))
}

type recordedEvent struct {
	name   string
	fields map[string]any
}

type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *eventLog) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{name: event, fields: fields})
}

func (l *eventLog) has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.name == name {
			return true
		}
	}
	return false
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%04d", n)
	}
}

func ptr[T any](v T) *T { return &v }
