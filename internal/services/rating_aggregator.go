package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/repositories"
)

const ratingEventProductMissing = "rating.product_missing"

// RatingAggregatorDeps bundles collaborators required to construct the rating aggregator.
type RatingAggregatorDeps struct {
	Reviews  repositories.ReviewRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type ratingAggregator struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ RatingAggregator = (*ratingAggregator)(nil)

// NewRatingAggregator wires the aggregator. Concurrent recomputations are last-write-wins.
func NewRatingAggregator(deps RatingAggregatorDeps) (RatingAggregator, error) {
	if deps.Reviews == nil {
		return nil, errors.New("rating aggregator: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("rating aggregator: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ratingAggregator{
		reviews:  deps.Reviews,
		products: deps.Products,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (a *ratingAggregator) Recompute(ctx context.Context, productID string) (domain.ProductRating, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductRating{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	ratings, err := a.reviews.ApprovedRatings(ctx, productID)
	if err != nil {
		return domain.ProductRating{}, mapRepositoryError(err, nil)
	}

	rating := domain.ProductRating{
		ProductID:   productID,
		Average:     averageRating(ratings),
		ReviewCount: len(ratings),
		UpdatedAt:   a.clock(),
	}
	if err := a.products.UpdateRating(ctx, rating); err != nil {
		if isRepositoryNotFound(err) {
			a.logger(ctx, ratingEventProductMissing, map[string]any{"productId": productID})
			return domain.ProductRating{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return domain.ProductRating{}, mapRepositoryError(err, nil)
	}
	return rating, nil
}

// averageRating rounds the mean to one decimal, half away from zero. No ratings yields zero.
func averageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var sum int
	for _, r := range ratings {
		sum += r
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}
