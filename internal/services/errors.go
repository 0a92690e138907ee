package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/vastra-market/api/internal/repositories"
)

// ErrorKind classifies service failures for transport translation.
type ErrorKind string

const (
	KindInternal        ErrorKind = "internal"
	KindNotFound        ErrorKind = "not_found"
	KindValidation      ErrorKind = "validation"
	KindConflict        ErrorKind = "conflict"
	KindPolicyViolation ErrorKind = "policy_violation"
	KindUnavailable     ErrorKind = "unavailable"
)

var (
	// ErrProductNotFound indicates a referenced product does not exist in the catalog.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCouponNotFound covers missing, inactive and out-of-window coupons alike.
	ErrCouponNotFound = errors.New("coupon not found or expired")
	// ErrReviewNotFound indicates the review does not exist or is not owned by the caller.
	ErrReviewNotFound = errors.New("review not found")
	// ErrInvalidInput signals malformed or out-of-range input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateReview indicates the user already reviewed the product for the order.
	ErrDuplicateReview = errors.New("review already exists for this order and product")
	// ErrCouponAlreadyUsed indicates the user already used the coupon on an earlier order.
	ErrCouponAlreadyUsed = errors.New("coupon already used")
	// ErrOrderNotCancellable indicates the order is delivered or already cancelled.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	// ErrConcurrentUpdate indicates a conflicting write won the race.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrCouponMinimumNotMet indicates the subtotal is below the coupon's minimum order amount.
	ErrCouponMinimumNotMet = errors.New("order amount below coupon minimum")
	// ErrCouponExhausted indicates the coupon reached its usage limit.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrCouponNotApplicable indicates no product in the order qualifies for the coupon.
	ErrCouponNotApplicable = errors.New("coupon not applicable to these products")
	// ErrOrderInvalidTransition indicates the requested status change is not allowed.
	ErrOrderInvalidTransition = errors.New("invalid order status transition")
	// ErrOrderNotEligible indicates the order does not qualify the user to review the product.
	ErrOrderNotEligible = errors.New("order not eligible for review")
	// ErrUnavailable indicates a backing service is temporarily unavailable.
	ErrUnavailable = errors.New("service unavailable")
)

type errorClass struct {
	kind ErrorKind
	code string
}

var errorCatalogue = []struct {
	err   error
	class errorClass
}{
	{ErrProductNotFound, errorClass{KindNotFound, "product_not_found"}},
	{ErrOrderNotFound, errorClass{KindNotFound, "order_not_found"}},
	{ErrCouponNotFound, errorClass{KindNotFound, "coupon_not_found"}},
	{ErrReviewNotFound, errorClass{KindNotFound, "review_not_found"}},
	{ErrInvalidInput, errorClass{KindValidation, "invalid_input"}},
	{ErrDuplicateReview, errorClass{KindConflict, "duplicate_review"}},
	{ErrCouponAlreadyUsed, errorClass{KindConflict, "coupon_already_used"}},
	{ErrOrderNotCancellable, errorClass{KindConflict, "order_not_cancellable"}},
	{ErrConcurrentUpdate, errorClass{KindConflict, "conflict"}},
	{ErrCouponMinimumNotMet, errorClass{KindPolicyViolation, "coupon_minimum_not_met"}},
	{ErrCouponExhausted, errorClass{KindPolicyViolation, "coupon_exhausted"}},
	{ErrCouponNotApplicable, errorClass{KindPolicyViolation, "coupon_not_applicable"}},
	{ErrOrderInvalidTransition, errorClass{KindPolicyViolation, "invalid_status_transition"}},
	{ErrOrderNotEligible, errorClass{KindPolicyViolation, "order_not_eligible"}},
	{ErrUnavailable, errorClass{KindUnavailable, "unavailable"}},
}

func classify(err error) (errorClass, bool) {
	if err == nil {
		return errorClass{}, false
	}
	for _, entry := range errorCatalogue {
		if errors.Is(err, entry.err) {
			return entry.class, true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errorClass{KindUnavailable, "unavailable"}, true
	}
	return errorClass{}, false
}

// KindOf returns the catalogue kind of err, KindInternal for unknown errors.
func KindOf(err error) ErrorKind {
	if class, ok := classify(err); ok {
		return class.kind
	}
	return KindInternal
}

// CodeOf returns the stable machine readable code for err.
func CodeOf(err error) string {
	if class, ok := classify(err); ok {
		return class.code
	}
	return "internal_error"
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// mapRepositoryError translates persistence failures into catalogue errors. notFound is the
// sentinel used when the repository reports a missing document.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if _, ok := classify(err); ok {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
