package repositories

import (
	"errors"
	"fmt"
)

// CouponRedemptionErrorCode enumerates the reasons a redemption can be refused by the data layer.
type CouponRedemptionErrorCode string

const (
	// CouponRedemptionExhausted indicates the usage counter already reached the limit.
	CouponRedemptionExhausted CouponRedemptionErrorCode = "coupon_redemption_exhausted"
	// CouponRedemptionDuplicate indicates the user already holds a redemption for the code.
	CouponRedemptionDuplicate CouponRedemptionErrorCode = "coupon_redemption_duplicate"
	// CouponRedemptionInvalid indicates the caller supplied an incomplete redemption.
	CouponRedemptionInvalid CouponRedemptionErrorCode = "coupon_redemption_invalid"
)

// CouponRedemptionError reports a refused redemption with a machine readable code.
type CouponRedemptionError struct {
	Op      string
	Code    CouponRedemptionErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CouponRedemptionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CouponRedemptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCouponRedemptionError constructs a typed redemption error.
func NewCouponRedemptionError(code CouponRedemptionErrorCode, message string, err error) *CouponRedemptionError {
	if message == "" {
		message = string(code)
	}
	return &CouponRedemptionError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CouponRedemptionCode extracts the redemption error code from err, if present.
func CouponRedemptionCode(err error) (CouponRedemptionErrorCode, bool) {
	var redemptionErr *CouponRedemptionError
	if errors.As(err, &redemptionErr) && redemptionErr != nil {
		return redemptionErr.Code, true
	}
	return "", false
}
