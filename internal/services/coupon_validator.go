package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vastra-market/api/internal/repositories"
)

const couponEventRejected = "coupon.validation.rejected"

// CouponValidatorDeps bundles collaborators required to construct the coupon validator.
type CouponValidatorDeps struct {
	Coupons  repositories.CouponRepository
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Pricing  *PricingCalculator
	Metrics  CommerceMetrics
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type couponValidator struct {
	coupons  repositories.CouponRepository
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	pricing  *PricingCalculator
	metrics  CommerceMetrics
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ CouponValidator = (*couponValidator)(nil)

// NewCouponValidator wires the validator. Validation never mutates coupon usage.
func NewCouponValidator(deps CouponValidatorDeps) (CouponValidator, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon validator: coupon repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("coupon validator: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("coupon validator: product repository is required")
	}
	pricing := deps.Pricing
	if pricing == nil {
		var err error
		if pricing, err = NewPricingCalculator(PricingPolicy{}); err != nil {
			return nil, err
		}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponValidator{
		coupons:  deps.Coupons,
		orders:   deps.Orders,
		products: deps.Products,
		pricing:  pricing,
		metrics:  deps.Metrics,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (v *couponValidator) Validate(ctx context.Context, cmd CouponValidationCommand) (CouponQuote, error) {
	quote, err := v.validate(ctx, cmd)
	if err != nil {
		if kind := KindOf(err); kind != KindInternal && kind != KindUnavailable {
			v.logger(ctx, couponEventRejected, map[string]any{
				"code":   normaliseCouponCode(cmd.Code),
				"userId": cmd.UserID,
				"reason": CodeOf(err),
			})
			if v.metrics != nil {
				v.metrics.CouponRejected(ctx, CodeOf(err))
			}
		}
		return CouponQuote{}, err
	}
	return quote, nil
}

func (v *couponValidator) validate(ctx context.Context, cmd CouponValidationCommand) (CouponQuote, error) {
	code := normaliseCouponCode(cmd.Code)
	if code == "" {
		return CouponQuote{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CouponQuote{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if cmd.Subtotal < 0 {
		return CouponQuote{}, fmt.Errorf("%w: order amount must not be negative", ErrInvalidInput)
	}

	coupon, err := v.coupons.FindByCode(ctx, code)
	if err != nil {
		return CouponQuote{}, mapRepositoryError(err, ErrCouponNotFound)
	}
	now := v.clock()
	if !coupon.IsActive || now.Before(coupon.ValidFrom) || now.After(coupon.ValidUntil) {
		return CouponQuote{}, fmt.Errorf("%w: %s", ErrCouponNotFound, code)
	}
	if coupon.UsedCount >= coupon.UsageLimit {
		return CouponQuote{}, fmt.Errorf("%w: %s", ErrCouponExhausted, code)
	}
	if cmd.Subtotal < coupon.MinOrderAmount {
		return CouponQuote{}, fmt.Errorf("%w: minimum order amount is %d", ErrCouponMinimumNotMet, coupon.MinOrderAmount)
	}

	used, err := v.alreadyUsed(ctx, code, userID)
	if err != nil {
		return CouponQuote{}, err
	}
	if used {
		return CouponQuote{}, fmt.Errorf("%w: %s", ErrCouponAlreadyUsed, code)
	}

	if coupon.Restricted() {
		applicable, err := v.applicable(ctx, coupon, cmd.ProductIDs)
		if err != nil {
			return CouponQuote{}, err
		}
		if !applicable {
			return CouponQuote{}, fmt.Errorf("%w: %s", ErrCouponNotApplicable, code)
		}
	}

	discount, err := v.pricing.Discount(coupon, cmd.Subtotal)
	if err != nil {
		return CouponQuote{}, err
	}
	return CouponQuote{
		Code:           coupon.Code,
		Type:           coupon.Type,
		Value:          coupon.Value,
		Discount:       discount,
		MinOrderAmount: coupon.MinOrderAmount,
		MaxDiscount:    coupon.MaxDiscount,
		ValidUntil:     coupon.ValidUntil,
	}, nil
}

// alreadyUsed treats any order carrying the code, cancelled ones included, as a prior use.
func (v *couponValidator) alreadyUsed(ctx context.Context, code, userID string) (bool, error) {
	used, err := v.orders.HasCouponOrder(ctx, userID, code)
	if err != nil {
		return false, mapRepositoryError(err, nil)
	}
	if used {
		return true, nil
	}
	if _, err := v.coupons.FindRedemption(ctx, code, userID); err == nil {
		return true, nil
	} else if !isRepositoryNotFound(err) {
		return false, mapRepositoryError(err, nil)
	}
	return false, nil
}

func (v *couponValidator) applicable(ctx context.Context, coupon Coupon, productIDs []string) (bool, error) {
	for _, raw := range productIDs {
		productID := strings.TrimSpace(raw)
		if productID == "" {
			continue
		}
		if slices.Contains(coupon.ApplicableProducts, productID) {
			return true, nil
		}
		if len(coupon.ApplicableCategories) == 0 {
			continue
		}
		product, err := v.products.FindByID(ctx, productID)
		if err != nil {
			if isRepositoryNotFound(err) {
				continue
			}
			return false, mapRepositoryError(err, nil)
		}
		if slices.Contains(coupon.ApplicableCategories, product.CategoryID) {
			return true, nil
		}
	}
	return false, nil
}

func normaliseCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
