package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/services"
)

func newAdminRouter(handler *AdminHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminHandlersGetOrderSkipsOwnership(t *testing.T) {
	var captured services.GetOrderCommand
	orders := &stubOrderService{
		getFn: func(ctx context.Context, cmd services.GetOrderCommand) (services.OrderDetail, error) {
			captured = cmd
			return services.OrderDetail{Order: services.Order{ID: cmd.OrderID, UserID: "user-1"}}, nil
		},
	}
	router := newAdminRouter(NewAdminHandlers(nil, orders, nil))

	req := withUser(httptest.NewRequest(http.MethodGet, "/admin/orders/ord_9", nil), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_9" || captured.RequireOwner {
		t.Fatalf("expected unscoped read, got %#v", captured)
	}
}

func TestAdminHandlersUpdateOrderStatus(t *testing.T) {
	now := time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC)
	var captured services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		updateFn: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			tracking := *cmd.TrackingNumber
			return services.Order{
				ID:             cmd.OrderID,
				Status:         domain.OrderStatusShipped,
				ShippingStatus: "in_transit",
				TrackingNumber: &tracking,
				UpdatedAt:      now,
			}, nil
		},
	}
	router := newAdminRouter(NewAdminHandlers(nil, orders, nil))

	req := withUser(httptest.NewRequest(http.MethodPatch, "/admin/orders/ord_9/status", strings.NewReader(`{"status":"shipped","trackingNumber":"AWB123"}`)), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_9" || captured.ActorID != "staff-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.Status == nil || *captured.Status != "shipped" || captured.PaymentStatus != nil || captured.ShippingStatus != nil {
		t.Fatalf("expected only status and tracking set, got %#v", captured)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.Status != "shipped" || resp.Order.TrackingNumber == nil || *resp.Order.TrackingNumber != "AWB123" {
		t.Fatalf("unexpected order payload %#v", resp.Order)
	}
}

func TestAdminHandlersUpdateOrderStatusInvalidTransition(t *testing.T) {
	orders := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}
	router := newAdminRouter(NewAdminHandlers(nil, orders, nil))

	req := withUser(httptest.NewRequest(http.MethodPatch, "/admin/orders/ord_9/status", strings.NewReader(`{"status":"pending"}`)), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "invalid_status_transition" {
		t.Fatalf("expected invalid_status_transition, got %v", body["error"])
	}
}

func TestAdminHandlersCancelOrder(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusCancelled}, nil
		},
	}
	router := newAdminRouter(NewAdminHandlers(nil, orders, nil))

	req := withUser(httptest.NewRequest(http.MethodPost, "/admin/orders/ord_9:cancel", strings.NewReader(`{"reason":"out of stock"}`)), "staff-1", "admin")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.RequireOwner || captured.ActorID != "staff-1" || captured.Reason != "out of stock" {
		t.Fatalf("unexpected cancel command %#v", captured)
	}
}

func TestAdminHandlersModerateReview(t *testing.T) {
	now := time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC)
	var captured services.ModerateReviewCommand
	reviews := &stubReviewService{
		moderateFn: func(ctx context.Context, cmd services.ModerateReviewCommand) (services.Review, error) {
			captured = cmd
			review := sampleReview(now)
			review.Status = cmd.Status
			actor := cmd.ActorID
			review.ModeratedBy = &actor
			return review, nil
		},
	}
	router := newAdminRouter(NewAdminHandlers(nil, nil, reviews))

	req := withUser(httptest.NewRequest(http.MethodPut, "/admin/reviews/rev_1/status", strings.NewReader(`{"status":"rejected"}`)), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ReviewID != "rev_1" || captured.Status != domain.ReviewStatusRejected || captured.ActorID != "staff-1" {
		t.Fatalf("unexpected moderation command %#v", captured)
	}

	var resp map[string]map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	review := resp["review"]
	if review["status"] != "rejected" || review["moderatedBy"] != "staff-1" || review["isReported"] != true {
		t.Fatalf("expected staff view with moderation fields, got %#v", review)
	}
}

func TestAdminHandlersServiceUnavailable(t *testing.T) {
	router := newAdminRouter(NewAdminHandlers(nil, nil, nil))

	req := withUser(httptest.NewRequest(http.MethodGet, "/admin/orders/ord_9", nil), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
