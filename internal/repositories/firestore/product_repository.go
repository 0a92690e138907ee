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

const productsCollection = "products"

// ProductRepository reads catalog documents and writes back rating aggregates. The catalog itself
// is owned by another service; only rating fields are ever written here.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed catalog reader.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
	}, nil
}

type productDocument struct {
	Name        string    `firestore:"name"`
	Price       int64     `firestore:"price"`
	Images      []string  `firestore:"images"`
	SellerID    string    `firestore:"sellerId"`
	ShopID      string    `firestore:"shopId"`
	CategoryID  string    `firestore:"categoryId"`
	InStock     bool      `firestore:"inStock"`
	Rating      float64   `firestore:"rating"`
	ReviewCount int       `firestore:"reviewCount"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// FindByID loads the product snapshot used for pricing and order items.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, pfirestore.NotFoundError("products.get", "product id is required")
	}
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:          doc.ID,
		Name:        doc.Data.Name,
		Price:       doc.Data.Price,
		Images:      nonEmpty(doc.Data.Images),
		SellerID:    doc.Data.SellerID,
		ShopID:      doc.Data.ShopID,
		CategoryID:  doc.Data.CategoryID,
		InStock:     doc.Data.InStock,
		Rating:      doc.Data.Rating,
		ReviewCount: doc.Data.ReviewCount,
	}, nil
}

// UpdateRating writes the rating aggregate onto the product. Missing products report not found.
func (r *ProductRepository) UpdateRating(ctx context.Context, rating domain.ProductRating) error {
	id := strings.TrimSpace(rating.ProductID)
	if id == "" {
		return pfirestore.NotFoundError("products.update_rating", "product id is required")
	}
	return r.products.Update(ctx, id, []firestore.Update{
		{Path: "rating", Value: rating.Average},
		{Path: "reviewCount", Value: rating.ReviewCount},
		{Path: "updatedAt", Value: rating.UpdatedAt.UTC()},
	})
}
