package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vastra-market/api/internal/platform/auth"
	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/services"
)

// AdminHandlers exposes back-office order fulfilment and review moderation for staff.
type AdminHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	reviews services.ReviewService
	cfg     handlerConfig
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, reviews services.ReviewService, opts ...HandlerOption) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		orders:  orders,
		reviews: reviews,
		cfg:     newHandlerConfig(opts),
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/orders/{orderID}", h.getOrder)
	r.With(h.cfg.mutating()...).Patch("/orders/{orderID}/status", h.updateOrderStatus)
	r.With(h.cfg.mutating()...).Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.With(h.cfg.mutating()...).Put("/reviews/{reviewID}/status", h.moderateReview)
}

type updateOrderStatusRequest struct {
	Status         *string `json:"status"`
	PaymentStatus  *string `json:"paymentStatus"`
	ShippingStatus *string `json:"shippingStatus"`
	TrackingNumber *string `json:"trackingNumber"`
}

type moderateReviewRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	detail, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderDetailResponse(detail))
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		Status:         req.Status,
		PaymentStatus:  req.PaymentStatus,
		ShippingStatus: req.ShippingStatus,
		TrackingNumber: req.TrackingNumber,
		ActorID:        identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  req.Reason,
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) moderateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req moderateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := h.reviews.Moderate(ctx, services.ModerateReviewCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		Status:   services.ReviewStatus(req.Status),
		ActorID:  identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review, true)})
}
