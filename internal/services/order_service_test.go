package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/repositories"
)

type orderHarness struct {
	store   *memoryStore
	sink    *recordingSink
	metrics *recordingMetrics
	events  *eventLog
	service OrderService
}

func newOrderHarness(t *testing.T) *orderHarness {
	t.Helper()
	store := newMemoryStore()
	store.products["p-kurta"] = domain.Product{ID: "p-kurta", Name: "Silk Kurta", Price: 1200, Images: []string{"kurta.jpg"}, SellerID: "s1", ShopID: "shop1", CategoryID: "kurtas"}
	store.products["p-dupatta"] = domain.Product{ID: "p-dupatta", Name: "Cotton Dupatta", Price: 300, SellerID: "s2", ShopID: "shop2", CategoryID: "dupattas"}
	store.carts["u1"] = true

	h := &orderHarness{
		store:   store,
		sink:    &recordingSink{},
		metrics: &recordingMetrics{},
		events:  &eventLog{},
	}
	validator, err := NewCouponValidator(CouponValidatorDeps{
		Coupons:  memoryCoupons{store},
		Orders:   memoryOrders{store},
		Products: memoryProducts{store},
		Clock:    fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("NewCouponValidator: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:        memoryOrders{store},
		Items:         memoryItems{store},
		Coupons:       memoryCoupons{store},
		Products:      memoryProducts{store},
		Carts:         memoryCarts{store},
		UnitOfWork:    store,
		Validator:     validator,
		Notifications: h.sink,
		Metrics:       h.metrics,
		Clock:         fixedClock(testNow),
		IDGenerator:   sequentialIDs(),
		Logger:        h.events.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	h.service = svc
	return h
}

func testAddress() Address {
	return Address{Name: "Asha Rao", Phone: "9999999999", Line1: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001"}
}

func basicOrderCommand() CreateOrderCommand {
	return CreateOrderCommand{
		UserID: "u1",
		Items: []OrderLineCommand{
			{ProductID: "p-kurta", Quantity: 2, Size: "M", Color: "Maroon"},
			{ProductID: "p-dupatta", Quantity: 1},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "COD",
	}
}

func TestOrderService_CreateOrderPricesAndPersists(t *testing.T) {
	h := newOrderHarness(t)

	result, err := h.service.CreateOrder(context.Background(), basicOrderCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	order := result.Order
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.Subtotal != 2700 || order.Tax != 486 || order.Shipping != 0 || order.Total != 3186 {
		t.Fatalf("unexpected totals %+v", order)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentMethod != "cod" || order.Currency != "INR" {
		t.Fatalf("unexpected order header %+v", order)
	}
	if order.BillingAddress != order.ShippingAddress || order.ShippingAddress.Country != "IN" {
		t.Fatalf("billing should default to shipping, got %+v", order.BillingAddress)
	}
	if order.ItemCount != 2 || len(h.store.items[order.ID]) != 2 {
		t.Fatalf("expected 2 persisted items, got %d", len(h.store.items[order.ID]))
	}
	kurta := result.Items[0]
	if kurta.ProductName != "Silk Kurta" || kurta.ProductImage != "kurta.jpg" || kurta.Price != 1200 || kurta.Total != 2400 || kurta.SellerID != "s1" {
		t.Fatalf("unexpected item snapshot %+v", kurta)
	}
	if _, ok := h.store.carts["u1"]; ok {
		t.Fatalf("expected cart to be cleared")
	}
	if len(h.sink.sent) != 1 || h.sink.sent[0].Type != domain.NotificationOrderPlaced {
		t.Fatalf("expected order_placed notification, got %+v", h.sink.sent)
	}
	if h.metrics.created != 1 || h.metrics.withCoupon != 0 {
		t.Fatalf("unexpected metrics %+v", h.metrics)
	}
}

func TestOrderService_ItemSnapshotsSurviveCatalogChanges(t *testing.T) {
	h := newOrderHarness(t)
	result, err := h.service.CreateOrder(context.Background(), basicOrderCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	product := h.store.products["p-kurta"]
	product.Price = 9999
	product.Name = "Renamed"
	h.store.products["p-kurta"] = product

	detail, err := h.service.GetOrder(context.Background(), GetOrderCommand{OrderID: result.Order.ID, ActorID: "u1", RequireOwner: true})
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if detail.Items[0].Price != 1200 || detail.Items[0].ProductName != "Silk Kurta" {
		t.Fatalf("expected snapshot to be immutable, got %+v", detail.Items[0])
	}
}

func TestOrderService_CreateOrderAppliesCoupon(t *testing.T) {
	h := newOrderHarness(t)
	coupon := activeCoupon("FESTIVE20")
	coupon.Value = 20
	coupon.MaxDiscount = ptr(int64(500))
	h.store.coupons["FESTIVE20"] = coupon

	cmd := basicOrderCommand()
	cmd.CouponCode = "festive20"
	result, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.CouponRejection != nil {
		t.Fatalf("unexpected rejection %+v", result.CouponRejection)
	}
	if result.Order.Discount != 500 || result.Order.Total != 3186-500 {
		t.Fatalf("unexpected discount applied %+v", result.Order)
	}
	if result.Order.CouponCode == nil || *result.Order.CouponCode != "FESTIVE20" {
		t.Fatalf("expected coupon code on order")
	}
	if h.store.coupons["FESTIVE20"].UsedCount != 1 {
		t.Fatalf("expected usage to be incremented")
	}
	if _, ok := h.store.redemptions[redemptionKey("FESTIVE20", "u1")]; !ok {
		t.Fatalf("expected redemption to be recorded")
	}
	if h.metrics.withCoupon != 1 {
		t.Fatalf("expected coupon order metric")
	}
}

func TestOrderService_InvalidCouponDoesNotBlockOrder(t *testing.T) {
	h := newOrderHarness(t)
	cmd := basicOrderCommand()
	cmd.CouponCode = "GHOST"

	result, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.Order.Discount != 0 || result.Order.CouponCode != nil {
		t.Fatalf("expected no discount, got %+v", result.Order)
	}
	if result.CouponRejection == nil || result.CouponRejection.Reason != "coupon_not_found" {
		t.Fatalf("expected coupon_not_found rejection, got %+v", result.CouponRejection)
	}
	if !h.events.has(orderEventCouponDropped) {
		t.Fatalf("expected coupon drop to be logged")
	}
}

func TestOrderService_CouponLookupOutageFailsOrder(t *testing.T) {
	h := newOrderHarness(t)
	h.store.coupons["SAVE10"] = activeCoupon("SAVE10")
	h.store.failFindCoupon = fakeRepositoryError{unavailable: true}

	cmd := basicOrderCommand()
	cmd.CouponCode = "SAVE10"
	result, err := h.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrUnavailable) || !IsRetryable(err) {
		t.Fatalf("expected retryable ErrUnavailable, got %v (result %+v)", err, result)
	}
	if len(h.store.orders) != 0 || h.store.transactions != 0 {
		t.Fatalf("expected no order to be written, got %d", len(h.store.orders))
	}
	if !h.store.carts["u1"] {
		t.Fatalf("cart must not be cleared")
	}
	if len(h.metrics.rejections) != 0 {
		t.Fatalf("outage must not count as a coupon rejection, got %v", h.metrics.rejections)
	}
}

func TestOrderService_CouponExhaustedAtRedemptionFallsBackToNoDiscount(t *testing.T) {
	h := newOrderHarness(t)
	h.store.coupons["LAST"] = activeCoupon("LAST")
	h.store.failRedeem = repositories.NewCouponRedemptionError(repositories.CouponRedemptionExhausted, "", nil)

	cmd := basicOrderCommand()
	cmd.CouponCode = "LAST"
	result, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.Order.Discount != 0 || result.Order.CouponCode != nil {
		t.Fatalf("expected order without coupon, got %+v", result.Order)
	}
	if result.CouponRejection == nil || result.CouponRejection.Reason != "coupon_exhausted" {
		t.Fatalf("expected coupon_exhausted rejection, got %+v", result.CouponRejection)
	}
	if _, ok := h.store.orders[result.Order.ID]; !ok {
		t.Fatalf("expected order to be persisted")
	}
	if len(h.metrics.rejections) != 1 {
		t.Fatalf("expected rejection metric, got %v", h.metrics.rejections)
	}
}

func TestOrderService_SecondOrderWithSameCouponIsRejected(t *testing.T) {
	h := newOrderHarness(t)
	h.store.coupons["ONCE"] = activeCoupon("ONCE")
	cmd := basicOrderCommand()
	cmd.CouponCode = "ONCE"

	if _, err := h.service.CreateOrder(context.Background(), cmd); err != nil {
		t.Fatalf("first CreateOrder: %v", err)
	}
	second, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second CreateOrder: %v", err)
	}
	if second.CouponRejection == nil || second.CouponRejection.Reason != "coupon_already_used" {
		t.Fatalf("expected coupon_already_used, got %+v", second.CouponRejection)
	}
	if h.store.coupons["ONCE"].UsedCount != 1 {
		t.Fatalf("expected usage counted once, got %d", h.store.coupons["ONCE"].UsedCount)
	}
}

func TestOrderService_UnknownProductWritesNothing(t *testing.T) {
	h := newOrderHarness(t)
	cmd := basicOrderCommand()
	cmd.Items = append(cmd.Items, OrderLineCommand{ProductID: "p-missing", Quantity: 1})

	_, err := h.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrProductNotFound) || !strings.Contains(err.Error(), "p-missing") {
		t.Fatalf("expected ErrProductNotFound naming the product, got %v", err)
	}
	if len(h.store.orders) != 0 || h.store.transactions != 0 {
		t.Fatalf("expected no writes, got %d orders", len(h.store.orders))
	}
	if !h.store.carts["u1"] {
		t.Fatalf("cart must not be cleared")
	}
}

func TestOrderService_FailureInsideTransactionRollsBack(t *testing.T) {
	h := newOrderHarness(t)
	h.store.coupons["SAVE10"] = activeCoupon("SAVE10")
	h.store.failCartClear = fakeRepositoryError{unavailable: true}

	cmd := basicOrderCommand()
	cmd.CouponCode = "SAVE10"
	_, err := h.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(h.store.orders) != 0 || len(h.store.items) != 0 {
		t.Fatalf("expected order and items to be rolled back")
	}
	if h.store.coupons["SAVE10"].UsedCount != 0 || len(h.store.redemptions) != 0 {
		t.Fatalf("expected coupon usage to be rolled back")
	}
	if len(h.sink.sent) != 0 {
		t.Fatalf("no notification expected for failed order")
	}
}

func TestOrderService_NotificationFailureIsLoggedOnly(t *testing.T) {
	h := newOrderHarness(t)
	h.sink.failN = errors.New("pubsub down")

	if _, err := h.service.CreateOrder(context.Background(), basicOrderCommand()); err != nil {
		t.Fatalf("CreateOrder should succeed despite notification failure: %v", err)
	}
	if !h.events.has(notificationEventFailed) {
		t.Fatalf("expected notification failure to be logged")
	}
}

func TestOrderService_CreateOrderValidation(t *testing.T) {
	tests := map[string]func(*CreateOrderCommand){
		"no items":        func(c *CreateOrderCommand) { c.Items = nil },
		"zero quantity":   func(c *CreateOrderCommand) { c.Items[0].Quantity = 0 },
		"missing user":    func(c *CreateOrderCommand) { c.UserID = " " },
		"missing payment": func(c *CreateOrderCommand) { c.PaymentMethod = "" },
		"missing city":    func(c *CreateOrderCommand) { c.ShippingAddress.City = "" },
		"long size":       func(c *CreateOrderCommand) { c.Items[0].Size = strings.Repeat("x", 33) },
		"control color":   func(c *CreateOrderCommand) { c.Items[0].Color = "red\x00" },
		"bad billing":     func(c *CreateOrderCommand) { c.BillingAddress = &Address{Name: "x"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			h := newOrderHarness(t)
			cmd := basicOrderCommand()
			mutate(&cmd)
			if _, err := h.service.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestOrderService_NotesAreSanitised(t *testing.T) {
	h := newOrderHarness(t)
	cmd := basicOrderCommand()
	cmd.Notes = "<script>alert(1)</script>Leave at <b>gate</b>"

	result, err := h.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if strings.Contains(result.Order.Notes, "<") {
		t.Fatalf("expected markup to be stripped, got %q", result.Order.Notes)
	}
	if !strings.Contains(result.Order.Notes, "Leave at") {
		t.Fatalf("expected text to survive, got %q", result.Order.Notes)
	}
}

func TestOrderService_GetOrderHidesOtherUsersOrders(t *testing.T) {
	h := newOrderHarness(t)
	result, err := h.service.CreateOrder(context.Background(), basicOrderCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	_, err = h.service.GetOrder(context.Background(), GetOrderCommand{OrderID: result.Order.ID, ActorID: "intruder", RequireOwner: true})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := h.service.GetOrder(context.Background(), GetOrderCommand{OrderID: result.Order.ID, ActorID: "staff"}); err != nil {
		t.Fatalf("staff read should succeed: %v", err)
	}
	if _, err := h.service.GetOrder(context.Background(), GetOrderCommand{OrderID: "ord_missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for missing order, got %v", err)
	}
}

func TestOrderService_ListOrdersValidatesStatus(t *testing.T) {
	h := newOrderHarness(t)
	if _, err := h.service.CreateOrder(context.Background(), basicOrderCommand()); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	page, err := h.service.ListOrders(context.Background(), OrderListFilter{UserID: "u1", Status: []string{"PENDING"}})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one order, got %d", len(page.Items))
	}
	if _, err := h.service.ListOrders(context.Background(), OrderListFilter{UserID: "u1", Status: []string{"lost"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}
}
