package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vastra-market/api/internal/domain"
	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
	"github.com/vastra-market/api/internal/repositories"
)

const (
	couponsCollection        = "coupons"
	redemptionsSubcollection = "redemptions"
)

// CouponRepository stores coupons keyed by their upper-case code together with the per-user
// redemption ledger in coupons/{code}/redemptions/{userId}.
type CouponRepository struct {
	provider *pfirestore.Provider
	coupons  *pfirestore.Collection[couponDocument]
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		provider: provider,
		coupons:  pfirestore.NewCollection[couponDocument](provider, couponsCollection),
	}, nil
}

type couponDocument struct {
	Type                 string    `firestore:"type"`
	Value                int64     `firestore:"value"`
	MinOrderAmount       int64     `firestore:"minOrderAmount"`
	MaxDiscount          *int64    `firestore:"maxDiscount"`
	UsageLimit           int64     `firestore:"usageLimit"`
	UsedCount            int64     `firestore:"usedCount"`
	ValidFrom            time.Time `firestore:"validFrom"`
	ValidUntil           time.Time `firestore:"validUntil"`
	IsActive             bool      `firestore:"isActive"`
	ApplicableCategories []string  `firestore:"applicableCategories,omitempty"`
	ApplicableProducts   []string  `firestore:"applicableProducts,omitempty"`
	CreatedAt            time.Time `firestore:"createdAt"`
	UpdatedAt            time.Time `firestore:"updatedAt"`
}

type redemptionDocument struct {
	UserID     string    `firestore:"userId"`
	OrderID    string    `firestore:"orderId"`
	RedeemedAt time.Time `firestore:"redeemedAt"`
}

func (r *CouponRepository) redemptions(code string) *pfirestore.Collection[redemptionDocument] {
	return pfirestore.Sub[redemptionDocument](r.coupons, code, redemptionsSubcollection)
}

// FindByCode loads a coupon by code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	code = normaliseCode(code)
	if code == "" {
		return domain.Coupon{}, pfirestore.NotFoundError("coupons.get", "coupon code is required")
	}
	doc, err := r.coupons.Get(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	return decodeCoupon(doc.ID, doc.Data), nil
}

// Redeem increments usedCount when it is below usageLimit and records the user's redemption.
// It joins the transaction on ctx when present.
func (r *CouponRepository) Redeem(ctx context.Context, redemption domain.CouponRedemption) (domain.Coupon, error) {
	code := normaliseCode(redemption.Code)
	userID := strings.TrimSpace(redemption.UserID)
	orderID := strings.TrimSpace(redemption.OrderID)
	if code == "" || userID == "" || orderID == "" {
		return domain.Coupon{}, repositories.NewCouponRedemptionError(repositories.CouponRedemptionInvalid, "code, user id and order id are required", nil)
	}
	redeemedAt := redemption.RedeemedAt.UTC()
	if redeemedAt.IsZero() {
		redeemedAt = time.Now().UTC()
	}

	var coupon domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := r.coupons.Get(ctx, code)
		if err != nil {
			return err
		}
		ledger := r.redemptions(code)
		if _, err := ledger.Get(ctx, userID); err == nil {
			return repositories.NewCouponRedemptionError(repositories.CouponRedemptionDuplicate, "coupon already redeemed by user", nil)
		} else if !isNotFound(err) {
			return err
		}
		if doc.Data.UsedCount >= doc.Data.UsageLimit {
			return repositories.NewCouponRedemptionError(repositories.CouponRedemptionExhausted, "coupon usage limit reached", nil)
		}

		if err := r.coupons.Update(ctx, code, []firestore.Update{
			{Path: "usedCount", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: redeemedAt},
		}); err != nil {
			return err
		}
		if err := ledger.Create(ctx, userID, redemptionDocument{
			UserID:     userID,
			OrderID:    orderID,
			RedeemedAt: redeemedAt,
		}); err != nil {
			return err
		}

		coupon = decodeCoupon(doc.ID, doc.Data)
		coupon.UsedCount++
		coupon.UpdatedAt = redeemedAt
		return nil
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	return coupon, nil
}

// FindRedemption loads the user's redemption of the code.
func (r *CouponRepository) FindRedemption(ctx context.Context, code string, userID string) (domain.CouponRedemption, error) {
	code = normaliseCode(code)
	userID = strings.TrimSpace(userID)
	if code == "" || userID == "" {
		return domain.CouponRedemption{}, pfirestore.NotFoundError("coupons.redemptions.get", "code and user id are required")
	}
	doc, err := r.redemptions(code).Get(ctx, userID)
	if err != nil {
		return domain.CouponRedemption{}, err
	}
	return domain.CouponRedemption{
		Code:       code,
		UserID:     doc.ID,
		OrderID:    doc.Data.OrderID,
		RedeemedAt: doc.Data.RedeemedAt.UTC(),
	}, nil
}

// CountRedemptions counts the redemption ledger of the code.
func (r *CouponRepository) CountRedemptions(ctx context.Context, code string) (int64, error) {
	code = normaliseCode(code)
	if code == "" {
		return 0, errors.New("coupon repository: code is required")
	}
	return r.redemptions(code).Count(ctx, nil)
}

// RaiseUsedCount lifts usedCount to value; a higher stored counter is left untouched.
func (r *CouponRepository) RaiseUsedCount(ctx context.Context, code string, value int64, now time.Time) (domain.Coupon, error) {
	code = normaliseCode(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}
	var coupon domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := r.coupons.Get(ctx, code)
		if err != nil {
			return err
		}
		coupon = decodeCoupon(doc.ID, doc.Data)
		if coupon.UsedCount >= value {
			return nil
		}
		if err := r.coupons.Update(ctx, code, []firestore.Update{
			{Path: "usedCount", Value: value},
			{Path: "updatedAt", Value: now.UTC()},
		}); err != nil {
			return err
		}
		coupon.UsedCount = value
		coupon.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	return coupon, nil
}

func decodeCoupon(id string, doc couponDocument) domain.Coupon {
	coupon := domain.Coupon{
		Code:                 normaliseCode(id),
		Type:                 domain.CouponType(strings.ToLower(strings.TrimSpace(doc.Type))),
		Value:                doc.Value,
		MinOrderAmount:       doc.MinOrderAmount,
		UsageLimit:           doc.UsageLimit,
		UsedCount:            doc.UsedCount,
		ValidFrom:            doc.ValidFrom.UTC(),
		ValidUntil:           doc.ValidUntil.UTC(),
		IsActive:             doc.IsActive,
		ApplicableCategories: nonEmpty(doc.ApplicableCategories),
		ApplicableProducts:   nonEmpty(doc.ApplicableProducts),
		CreatedAt:            doc.CreatedAt.UTC(),
		UpdatedAt:            doc.UpdatedAt.UTC(),
	}
	if doc.MaxDiscount != nil {
		limit := *doc.MaxDiscount
		coupon.MaxDiscount = &limit
	}
	return coupon
}

func encodeCoupon(coupon domain.Coupon) couponDocument {
	doc := couponDocument{
		Type:                 string(coupon.Type),
		Value:                coupon.Value,
		MinOrderAmount:       coupon.MinOrderAmount,
		UsageLimit:           coupon.UsageLimit,
		UsedCount:            coupon.UsedCount,
		ValidFrom:            coupon.ValidFrom.UTC(),
		ValidUntil:           coupon.ValidUntil.UTC(),
		IsActive:             coupon.IsActive,
		ApplicableCategories: coupon.ApplicableCategories,
		ApplicableProducts:   coupon.ApplicableProducts,
		CreatedAt:            coupon.CreatedAt.UTC(),
		UpdatedAt:            coupon.UpdatedAt.UTC(),
	}
	if coupon.MaxDiscount != nil {
		limit := *coupon.MaxDiscount
		doc.MaxDiscount = &limit
	}
	return doc
}

func isNotFound(err error) bool {
	var repoErr *pfirestore.Error
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
