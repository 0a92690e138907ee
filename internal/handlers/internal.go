package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vastra-market/api/internal/platform/auth"
	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/platform/requestctx"
	"github.com/vastra-market/api/internal/services"
)

// InternalHandlers exposes maintenance endpoints invoked by Cloud Scheduler.
type InternalHandlers struct {
	reconciler services.CouponReconciler
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(reconciler services.CouponReconciler) *InternalHandlers {
	return &InternalHandlers{reconciler: reconciler}
}

// Routes registers the /internal endpoints. Authentication is applied by the router group.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/coupons:reconcile", h.reconcileCoupons)
}

type reconcileCouponsRequest struct {
	Since  string `json:"since"`
	Limit  int    `json:"limit"`
	DryRun bool   `json:"dryRun"`
}

type reconcileCouponsResponse struct {
	Scanned  int                          `json:"scanned"`
	Repaired int                          `json:"repaired"`
	DryRun   bool                         `json:"dryRun"`
	Issues   []reconciliationIssuePayload `json:"issues"`
}

type reconciliationIssuePayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	OrderID string `json:"orderId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (h *InternalHandlers) reconcileCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciler_unavailable", "coupon reconciliation unavailable", http.StatusServiceUnavailable))
		return
	}
	var req reconcileCouponsRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	cmd := services.ReconcileCouponsCommand{Limit: req.Limit, DryRun: req.DryRun}
	if strings.TrimSpace(req.Since) != "" {
		since, err := parseTimeParam(req.Since)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "since must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Since = since
	}

	report, err := h.reconciler.Reconcile(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		requestctx.Logger(ctx).Info("coupon reconciliation triggered",
			zap.String("caller", caller.Email),
			zap.Int("repaired", report.Repaired),
		)
	}

	resp := reconcileCouponsResponse{
		Scanned:  report.Scanned,
		Repaired: report.Repaired,
		DryRun:   report.DryRun,
		Issues:   make([]reconciliationIssuePayload, 0, len(report.Issues)),
	}
	for _, issue := range report.Issues {
		resp.Issues = append(resp.Issues, reconciliationIssuePayload{
			Kind:    issue.Kind,
			Code:    issue.Code,
			OrderID: issue.OrderID,
			UserID:  issue.UserID,
			Detail:  issue.Detail,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
