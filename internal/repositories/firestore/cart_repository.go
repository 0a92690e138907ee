package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
	"github.com/vastra-market/api/internal/repositories"
)

const cartCollection = "carts"

// cartDocument is opaque to the engine; carts are owned by the storefront.
type cartDocument struct{}

// CartRepository removes a user's cart document once checkout succeeds.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart store.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{carts: pfirestore.NewCollection[cartDocument](provider, cartCollection)}, nil
}

// Clear deletes carts/{userId}. Clearing an absent cart succeeds.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	return r.carts.Delete(ctx, uid)
}
