package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/repositories"
)

const (
	reconcileEventCompleted = "coupon.reconcile.completed"
	reconcileEventIssue     = "coupon.reconcile.issue"
	defaultReconcileLimit   = 500
	defaultReconcileWindow  = 7 * 24 * time.Hour
)

// Reconciliation issue kinds.
const (
	IssueOverLimit         = "over_limit"
	IssueCouponMissing     = "coupon_missing"
	IssueMissingRedemption = "missing_redemption"
	IssueCounterLag        = "counter_lag"
	IssueDuplicateUse      = "duplicate_use"
)

// CouponReconcilerDeps bundles collaborators required to construct the reconciler.
type CouponReconcilerDeps struct {
	Orders   repositories.OrderRepository
	Coupons  repositories.CouponRepository
	Lookback time.Duration
	Limit    int
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type couponReconciler struct {
	orders   repositories.OrderRepository
	coupons  repositories.CouponRepository
	lookback time.Duration
	limit    int
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ CouponReconciler = (*couponReconciler)(nil)

// NewCouponReconciler wires the reconciliation pass.
func NewCouponReconciler(deps CouponReconcilerDeps) (CouponReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("coupon reconciler: order repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("coupon reconciler: coupon repository is required")
	}
	lookback := deps.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileWindow
	}
	limit := deps.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponReconciler{
		orders:   deps.Orders,
		coupons:  deps.Coupons,
		lookback: lookback,
		limit:    limit,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (r *couponReconciler) Reconcile(ctx context.Context, cmd ReconcileCouponsCommand) (ReconciliationReport, error) {
	now := r.clock()
	since := cmd.Since.UTC()
	if cmd.Since.IsZero() {
		since = now.Add(-r.lookback)
	}
	if since.After(now) {
		return ReconciliationReport{}, fmt.Errorf("%w: since must not be in the future", ErrInvalidInput)
	}
	limit := cmd.Limit
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	orders, err := r.orders.ListWithCoupon(ctx, repositories.CouponOrderFilter{CreatedAfter: since, Limit: limit})
	if err != nil {
		return ReconciliationReport{}, mapRepositoryError(err, nil)
	}

	report := ReconciliationReport{DryRun: cmd.DryRun, Issues: []ReconciliationIssue{}}
	touched := map[string]struct{}{}
	for _, order := range orders {
		if order.CouponCode == nil {
			continue
		}
		report.Scanned++
		code := normaliseCouponCode(*order.CouponCode)
		touched[code] = struct{}{}
		if err := r.reconcileOrder(ctx, order, code, cmd.DryRun, &report); err != nil {
			return report, err
		}
	}

	codes := make([]string, 0, len(touched))
	for code := range touched {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		if err := r.reconcileCounter(ctx, code, cmd.DryRun, &report); err != nil {
			return report, err
		}
	}

	r.logger(ctx, reconcileEventCompleted, map[string]any{
		"scanned":  report.Scanned,
		"repaired": report.Repaired,
		"issues":   len(report.Issues),
		"dryRun":   report.DryRun,
		"since":    since.Format(time.RFC3339),
	})
	return report, nil
}

func (r *couponReconciler) reconcileOrder(ctx context.Context, order Order, code string, dryRun bool, report *ReconciliationReport) error {
	redemption, err := r.coupons.FindRedemption(ctx, code, order.UserID)
	switch {
	case err == nil:
		if redemption.OrderID != order.ID {
			r.issue(ctx, report, ReconciliationIssue{
				Kind:    IssueDuplicateUse,
				Code:    code,
				OrderID: order.ID,
				UserID:  order.UserID,
				Detail:  "redemption belongs to order " + redemption.OrderID,
			})
		}
		return nil
	case !isRepositoryNotFound(err):
		return mapRepositoryError(err, nil)
	}

	coupon, err := r.coupons.FindByCode(ctx, code)
	if err != nil {
		if isRepositoryNotFound(err) {
			r.issue(ctx, report, ReconciliationIssue{Kind: IssueCouponMissing, Code: code, OrderID: order.ID, UserID: order.UserID})
			return nil
		}
		return mapRepositoryError(err, nil)
	}
	if coupon.UsedCount >= coupon.UsageLimit {
		r.overLimit(ctx, report, order, code)
		return nil
	}
	if dryRun {
		r.issue(ctx, report, ReconciliationIssue{
			Kind:    IssueMissingRedemption,
			Code:    code,
			OrderID: order.ID,
			UserID:  order.UserID,
		})
		return nil
	}

	_, err = r.coupons.Redeem(ctx, domain.CouponRedemption{
		Code:       code,
		UserID:     order.UserID,
		OrderID:    order.ID,
		RedeemedAt: order.CreatedAt,
	})
	reason, isRedemption := repositories.CouponRedemptionCode(err)
	switch {
	case err == nil:
		report.Repaired++
	case isRedemption && reason == repositories.CouponRedemptionExhausted:
		r.overLimit(ctx, report, order, code)
	case isRedemption && reason == repositories.CouponRedemptionDuplicate:
		// A concurrent checkout or pass recorded it first.
	default:
		return mapRepositoryError(err, nil)
	}
	return nil
}

// reconcileCounter raises usedCount to the redemption count; it never lowers the counter and never
// pushes it past the usage limit.
func (r *couponReconciler) reconcileCounter(ctx context.Context, code string, dryRun bool, report *ReconciliationReport) error {
	coupon, err := r.coupons.FindByCode(ctx, code)
	if err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return mapRepositoryError(err, nil)
	}
	count, err := r.coupons.CountRedemptions(ctx, code)
	if err != nil {
		return mapRepositoryError(err, nil)
	}
	if count > coupon.UsageLimit {
		r.issue(ctx, report, ReconciliationIssue{
			Kind:   IssueOverLimit,
			Code:   code,
			Detail: fmt.Sprintf("%d redemptions exceed usage limit %d", count, coupon.UsageLimit),
		})
	}
	target := min(count, coupon.UsageLimit)
	if coupon.UsedCount >= target {
		return nil
	}
	if dryRun {
		r.issue(ctx, report, ReconciliationIssue{
			Kind:   IssueCounterLag,
			Code:   code,
			Detail: fmt.Sprintf("usedCount %d lags %d redemptions", coupon.UsedCount, target),
		})
		return nil
	}
	if _, err := r.coupons.RaiseUsedCount(ctx, code, target, r.clock()); err != nil {
		return mapRepositoryError(err, nil)
	}
	report.Repaired++
	return nil
}

func (r *couponReconciler) overLimit(ctx context.Context, report *ReconciliationReport, order Order, code string) {
	r.issue(ctx, report, ReconciliationIssue{
		Kind:    IssueOverLimit,
		Code:    code,
		OrderID: order.ID,
		UserID:  order.UserID,
		Detail:  "coupon is at its usage limit; redemption not credited",
	})
}

func (r *couponReconciler) issue(ctx context.Context, report *ReconciliationReport, issue ReconciliationIssue) {
	issue.Detail = strings.TrimSpace(issue.Detail)
	report.Issues = append(report.Issues, issue)
	r.logger(ctx, reconcileEventIssue, map[string]any{
		"kind":    issue.Kind,
		"code":    issue.Code,
		"orderId": issue.OrderID,
		"detail":  issue.Detail,
	})
}
