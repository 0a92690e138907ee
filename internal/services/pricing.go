package services

import (
	"fmt"
	"math"

	domain "github.com/vastra-market/api/internal/domain"
)

// PricingCalculator applies the marketplace's flat-rate pricing policy. It is pure and safe for
// concurrent use.
type PricingCalculator struct {
	policy PricingPolicy
}

// NewPricingCalculator builds a calculator; zero policy fields fall back to the default policy.
func NewPricingCalculator(policy PricingPolicy) (*PricingCalculator, error) {
	defaults := domain.DefaultPricingPolicy()
	if policy.TaxRateBasisPoints == 0 {
		policy.TaxRateBasisPoints = defaults.TaxRateBasisPoints
	}
	if policy.FreeShippingThreshold == 0 {
		policy.FreeShippingThreshold = defaults.FreeShippingThreshold
	}
	if policy.ShippingFee == 0 {
		policy.ShippingFee = defaults.ShippingFee
	}
	if policy.TaxRateBasisPoints < 0 || policy.FreeShippingThreshold < 0 || policy.ShippingFee < 0 {
		return nil, fmt.Errorf("%w: pricing policy values must not be negative", ErrInvalidInput)
	}
	return &PricingCalculator{policy: policy}, nil
}

// Policy returns the effective pricing policy.
func (c *PricingCalculator) Policy() PricingPolicy {
	return c.policy
}

// Price computes subtotal, tax, shipping and total for the lines with the discount applied.
// Tax is rounded half-up on the subtotal; shipping is free once the subtotal exceeds the threshold.
func (c *PricingCalculator) Price(lines []PriceLine, discount int64) (PricingBreakdown, error) {
	if discount < 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: discount must not be negative", ErrInvalidInput)
	}

	var subtotal int64
	for i, line := range lines {
		if line.UnitPrice < 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %d has a negative price", ErrInvalidInput, i)
		}
		if line.Quantity < 1 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %d quantity must be at least 1", ErrInvalidInput, i)
		}
		lineTotal, ok := mulInt64(line.UnitPrice, int64(line.Quantity))
		if !ok {
			return PricingBreakdown{}, fmt.Errorf("%w: line %d total overflows", ErrInvalidInput, i)
		}
		if subtotal, ok = addInt64(subtotal, lineTotal); !ok {
			return PricingBreakdown{}, fmt.Errorf("%w: subtotal overflows", ErrInvalidInput)
		}
	}

	tax, ok := c.tax(subtotal)
	if !ok {
		return PricingBreakdown{}, fmt.Errorf("%w: tax overflows", ErrInvalidInput)
	}

	shipping := c.policy.ShippingFee
	if subtotal > c.policy.FreeShippingThreshold {
		shipping = 0
	}

	gross, ok := addInt64(subtotal, tax)
	if ok {
		gross, ok = addInt64(gross, shipping)
	}
	if !ok {
		return PricingBreakdown{}, fmt.Errorf("%w: total overflows", ErrInvalidInput)
	}

	// The stored discount never exceeds the gross so the breakdown always adds up.
	discount = min(discount, gross)
	return PricingBreakdown{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    gross - discount,
	}, nil
}

// Discount computes the coupon discount for the subtotal. Percentage discounts round half-up and
// respect MaxDiscount; fixed discounts never exceed the subtotal.
func (c *PricingCalculator) Discount(coupon Coupon, subtotal int64) (int64, error) {
	if subtotal < 0 {
		return 0, fmt.Errorf("%w: subtotal must not be negative", ErrInvalidInput)
	}
	if coupon.Value < 0 {
		return 0, fmt.Errorf("%w: coupon value must not be negative", ErrInvalidInput)
	}
	switch coupon.Type {
	case domain.CouponTypePercentage:
		product, ok := mulInt64(subtotal, coupon.Value)
		if !ok || product > math.MaxInt64-50 {
			return 0, fmt.Errorf("%w: discount overflows", ErrInvalidInput)
		}
		discount := (product + 50) / 100
		if coupon.MaxDiscount != nil && *coupon.MaxDiscount >= 0 {
			discount = min(discount, *coupon.MaxDiscount)
		}
		return discount, nil
	case domain.CouponTypeFixed:
		return min(coupon.Value, subtotal), nil
	default:
		return 0, fmt.Errorf("%w: unknown coupon type %q", ErrInvalidInput, coupon.Type)
	}
}

func (c *PricingCalculator) tax(subtotal int64) (int64, bool) {
	product, ok := mulInt64(subtotal, c.policy.TaxRateBasisPoints)
	if !ok || product > math.MaxInt64-5000 {
		return 0, false
	}
	return (product + 5000) / 10000, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	result := a * b
	if result/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return result, true
}

func addInt64(a, b int64) (int64, bool) {
	result := a + b
	if (b > 0 && result < a) || (b < 0 && result > a) {
		return 0, false
	}
	return result, true
}

func priceLines(items []OrderItem) []PriceLine {
	lines := make([]PriceLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, PriceLine{UnitPrice: item.Price, Quantity: item.Quantity})
	}
	return lines
}
