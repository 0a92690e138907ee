package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vastra-market/api/internal/platform/auth"
	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/services"
)

// CouponHandlers exposes coupon validation ahead of checkout.
type CouponHandlers struct {
	authn     *auth.Authenticator
	validator services.CouponValidator
	cfg       handlerConfig
}

// NewCouponHandlers constructs a new CouponHandlers instance.
func NewCouponHandlers(authn *auth.Authenticator, validator services.CouponValidator, opts ...HandlerOption) *CouponHandlers {
	return &CouponHandlers{
		authn:     authn,
		validator: validator,
		cfg:       newHandlerConfig(opts),
	}
}

// Routes registers POST /coupons:validate on the API root.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	chain := make([]func(http.Handler) http.Handler, 0, 2)
	if h.authn != nil {
		chain = append(chain, h.authn.RequireFirebaseAuth())
	}
	if h.cfg.rateLimit != nil {
		chain = append(chain, h.cfg.rateLimit)
	}
	r.With(chain...).Post("/coupons:validate", h.validate)
}

type validateCouponRequest struct {
	Code        string   `json:"code"`
	OrderAmount int64    `json:"orderAmount"`
	ProductIDs  []string `json:"productIds"`
}

type validateCouponResponse struct {
	Valid   bool           `json:"valid"`
	Coupon  *couponPayload `json:"coupon,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

type couponPayload struct {
	Code           string `json:"code"`
	Type           string `json:"type"`
	Value          int64  `json:"value"`
	Discount       int64  `json:"discount"`
	MinOrderAmount int64  `json:"minOrderAmount"`
	MaxDiscount    *int64 `json:"maxDiscount,omitempty"`
	ValidUntil     string `json:"validUntil"`
}

// validate answers 200 with valid=false for business rejections. Internal and unavailable errors
// use the error envelope.
func (h *CouponHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.validator == nil {
		serviceUnavailable(ctx, w, "coupon")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}

	quote, err := h.validator.Validate(ctx, services.CouponValidationCommand{
		Code:       req.Code,
		UserID:     identity.UID,
		Subtotal:   req.OrderAmount,
		ProductIDs: req.ProductIDs,
	})
	if err != nil {
		switch services.KindOf(err) {
		case services.KindInternal, services.KindUnavailable:
			writeServiceError(ctx, w, err)
		default:
			httpx.WriteJSON(w, http.StatusOK, validateCouponResponse{
				Valid:   false,
				Error:   services.CodeOf(err),
				Message: err.Error(),
			})
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, validateCouponResponse{
		Valid: true,
		Coupon: &couponPayload{
			Code:           quote.Code,
			Type:           string(quote.Type),
			Value:          quote.Value,
			Discount:       quote.Discount,
			MinOrderAmount: quote.MinOrderAmount,
			MaxDiscount:    quote.MaxDiscount,
			ValidUntil:     formatTime(quote.ValidUntil),
		},
	})
}
