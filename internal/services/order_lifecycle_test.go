package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/vastra-market/api/internal/domain"
)

func placeTestOrder(t *testing.T, h *orderHarness) Order {
	t.Helper()
	result, err := h.service.CreateOrder(context.Background(), basicOrderCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	h.sink.sent = nil
	return result.Order
}

func advance(t *testing.T, h *orderHarness, orderID string, statuses ...string) Order {
	t.Helper()
	var order Order
	for _, status := range statuses {
		var err error
		order, err = h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: orderID, Status: ptr(status), ActorID: "staff-1"})
		if err != nil {
			t.Fatalf("UpdateStatus(%s): %v", status, err)
		}
	}
	return order
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]OrderStatus{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed},
		{domain.OrderStatusConfirmed, domain.OrderStatusProcessing},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}
	denied := [][2]OrderStatus{
		{domain.OrderStatusPending, domain.OrderStatusShipped},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled},
		{domain.OrderStatusCancelled, domain.OrderStatusPending},
		{domain.OrderStatusShipped, domain.OrderStatusConfirmed},
	}
	for _, pair := range denied {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be denied", pair[0], pair[1])
		}
	}
}

func TestOrderService_UpdateStatusPropagatesToItems(t *testing.T) {
	h := newOrderHarness(t)
	order := placeTestOrder(t, h)

	updated := advance(t, h, order.ID, "confirmed", "processing")
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected status %s", updated.Status)
	}
	for _, item := range h.store.items[order.ID] {
		if item.Status != domain.OrderStatusProcessing {
			t.Fatalf("item %s not propagated: %s", item.ID, item.Status)
		}
	}
	if len(h.sink.sent) != 2 || h.sink.sent[1].Type != domain.NotificationOrderStatus {
		t.Fatalf("expected status notifications, got %+v", h.sink.sent)
	}
	if got := h.metrics.transitions; len(got) != 2 || got[0] != "pending->confirmed" {
		t.Fatalf("unexpected transitions %v", got)
	}
}

func TestOrderService_DeliveredStampsTimestampAndTracking(t *testing.T) {
	h := newOrderHarness(t)
	order := placeTestOrder(t, h)
	advance(t, h, order.ID, "confirmed", "processing")

	shipped, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:        order.ID,
		Status:         ptr("shipped"),
		TrackingNumber: ptr("  DTDC-123 "),
		ShippingStatus: ptr("In_Transit"),
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if shipped.TrackingNumber == nil || *shipped.TrackingNumber != "DTDC-123" || shipped.ShippingStatus != "in_transit" {
		t.Fatalf("unexpected shipment fields %+v", shipped)
	}
	last := h.sink.sent[len(h.sink.sent)-1]
	if last.Title != "Order shipped" {
		t.Fatalf("unexpected notification %+v", last)
	}

	delivered := advance(t, h, order.ID, "delivered")
	if delivered.DeliveredAt == nil || !delivered.DeliveredAt.Equal(testNow) {
		t.Fatalf("expected deliveredAt stamp, got %v", delivered.DeliveredAt)
	}
}

func TestOrderService_UpdateStatusRejectsIllegalTransition(t *testing.T) {
	h := newOrderHarness(t)
	order := placeTestOrder(t, h)

	_, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: ptr("delivered")})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
	if h.store.orders[order.ID].Status != domain.OrderStatusPending {
		t.Fatalf("order must remain pending")
	}
	if KindOf(err) != KindPolicyViolation {
		t.Fatalf("expected policy violation kind, got %s", KindOf(err))
	}
}

func TestOrderService_UpdateStatusValidation(t *testing.T) {
	h := newOrderHarness(t)
	order := placeTestOrder(t, h)

	cases := []UpdateOrderStatusCommand{
		{OrderID: order.ID},
		{OrderID: order.ID, Status: ptr("teleported")},
		{OrderID: order.ID, PaymentStatus: ptr("paid!")},
		{OrderID: "", Status: ptr("confirmed")},
	}
	for i, cmd := range cases {
		if _, err := h.service.UpdateStatus(context.Background(), cmd); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
	if _, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_missing", Status: ptr("confirmed")}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderService_PaymentStatusOnlyUpdateKeepsItems(t *testing.T) {
	h := newOrderHarness(t)
	order := placeTestOrder(t, h)

	updated, err := h.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, PaymentStatus: ptr("paid")})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.PaymentStatus != "paid" || updated.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order %+v", updated)
	}
	if len(h.sink.sent) != 0 {
		t.Fatalf("no notification expected without a status change")
	}
}

func TestOrderService_CancelByOwner(t *testing.T) {
	h := newOrderHarness(t)
	order := placeTestOrder(t, h)

	cancelled, err := h.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, Reason: "Ordered <i>wrong</i> size", ActorID: "u1", RequireOwner: true})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancellationReason == nil || *cancelled.CancellationReason != "Ordered wrong size" {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}
	for _, item := range h.store.items[order.ID] {
		if item.Status != domain.OrderStatusCancelled {
			t.Fatalf("item %s not cancelled", item.ID)
		}
	}
	if len(h.sink.sent) != 1 || h.sink.sent[0].Type != domain.NotificationOrderCancelled || h.sink.sent[0].Data["reason"] != "Ordered wrong size" {
		t.Fatalf("expected cancellation notification, got %+v", h.sink.sent)
	}

	if _, err := h.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, ActorID: "u1", RequireOwner: true}); !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable on second cancel, got %v", err)
	}
}

func TestOrderService_CancelGuards(t *testing.T) {
	h := newOrderHarness(t)
	order := placeTestOrder(t, h)

	if _, err := h.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, ActorID: "someone-else", RequireOwner: true}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for non-owner, got %v", err)
	}

	advance(t, h, order.ID, "confirmed", "processing", "shipped", "delivered")
	if _, err := h.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, ActorID: "staff-1"}); !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable for delivered order, got %v", err)
	}
	if h.store.orders[order.ID].Status != domain.OrderStatusDelivered {
		t.Fatalf("delivered order must not change")
	}
}
