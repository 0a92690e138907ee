package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vastra-market/api/internal/domain"
	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
	"github.com/vastra-market/api/internal/platform/pagination"
	"github.com/vastra-market/api/internal/repositories"
)

const reviewsCollection = "reviews"

// ReviewRepository persists product reviews.
type ReviewRepository struct {
	provider *pfirestore.Provider
	reviews  *pfirestore.Collection[reviewDocument]
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		provider: provider,
		reviews:  pfirestore.NewCollection[reviewDocument](provider, reviewsCollection),
	}, nil
}

type reviewDocument struct {
	UserID       string    `firestore:"userId"`
	ProductID    string    `firestore:"productId"`
	OrderID      string    `firestore:"orderId"`
	Rating       int       `firestore:"rating"`
	Title        string    `firestore:"title,omitempty"`
	Comment      string    `firestore:"comment,omitempty"`
	Images       []string  `firestore:"images,omitempty"`
	IsVerified   bool      `firestore:"isVerified"`
	HelpfulCount int       `firestore:"helpfulCount"`
	IsReported   bool      `firestore:"isReported"`
	Status       string    `firestore:"status"`
	ModeratedBy  *string   `firestore:"moderatedBy"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// Insert creates the review; an existing id surfaces as a conflict.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	return r.reviews.Create(ctx, id, encodeReview(review))
}

// Update overwrites an existing review.
func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) error {
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	doc := encodeReview(review)
	return r.reviews.Update(ctx, id, []firestore.Update{
		{Path: "rating", Value: doc.Rating},
		{Path: "title", Value: doc.Title},
		{Path: "comment", Value: doc.Comment},
		{Path: "images", Value: doc.Images},
		{Path: "isVerified", Value: doc.IsVerified},
		{Path: "helpfulCount", Value: doc.HelpfulCount},
		{Path: "isReported", Value: doc.IsReported},
		{Path: "status", Value: doc.Status},
		{Path: "moderatedBy", Value: doc.ModeratedBy},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

// Delete removes the review.
func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	return r.reviews.Delete(ctx, id)
}

// FindByID loads a review.
func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, pfirestore.NotFoundError("reviews.get", "review id is required")
	}
	doc, err := r.reviews.Get(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	return decodeReview(doc.ID, doc.Data), nil
}

// FindByKey looks up the review a user left for a product on a given order.
func (r *ReviewRepository) FindByKey(ctx context.Context, userID, productID, orderID string) (domain.Review, error) {
	docs, err := r.reviews.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).
			Where("productId", "==", strings.TrimSpace(productID)).
			Where("orderId", "==", strings.TrimSpace(orderID)).
			Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, pfirestore.NotFoundError("reviews.find_by_key", "review not found")
	}
	return decodeReview(docs[0].ID, docs[0].Data), nil
}

// ListByProduct pages through a product's reviews newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	productID := strings.TrimSpace(filter.ProductID)
	if productID == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: product id is required")
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}
	limit := pagination.Limit(filter.Pagination.PageSize)
	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		statuses = append(statuses, string(s))
	}

	docs, err := r.reviews.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("productId", "==", productID)
		if len(statuses) > 0 {
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor.ID != "" {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	page := domain.CursorPage[domain.Review]{Items: make([]domain.Review, 0, min(len(docs), limit))}
	for i, doc := range docs {
		if i == limit {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, decodeReview(doc.ID, doc.Data))
	}
	return page, nil
}

// ApprovedRatings returns the ratings of every approved review for the product.
func (r *ReviewRepository) ApprovedRatings(ctx context.Context, productID string) ([]int, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("review repository: product id is required")
	}
	docs, err := r.reviews.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).
			Where("status", "==", string(domain.ReviewStatusApproved)).
			Select("rating")
	})
	if err != nil {
		return nil, err
	}
	ratings := make([]int, 0, len(docs))
	for _, doc := range docs {
		ratings = append(ratings, doc.Data.Rating)
	}
	return ratings, nil
}

// AdjustHelpful adds delta to the helpful counter, flooring it at zero.
func (r *ReviewRepository) AdjustHelpful(ctx context.Context, reviewID string, delta int, now time.Time) (domain.Review, error) {
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, pfirestore.NotFoundError("reviews.helpful", "review id is required")
	}
	var review domain.Review
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := r.reviews.Get(ctx, id)
		if err != nil {
			return err
		}
		review = decodeReview(doc.ID, doc.Data)
		review.HelpfulCount = max(review.HelpfulCount+delta, 0)
		review.UpdatedAt = now.UTC()
		return r.reviews.Update(ctx, id, []firestore.Update{
			{Path: "helpfulCount", Value: review.HelpfulCount},
			{Path: "updatedAt", Value: review.UpdatedAt},
		})
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func encodeReview(review domain.Review) reviewDocument {
	return reviewDocument{
		UserID:       strings.TrimSpace(review.UserID),
		ProductID:    strings.TrimSpace(review.ProductID),
		OrderID:      strings.TrimSpace(review.OrderID),
		Rating:       review.Rating,
		Title:        review.Title,
		Comment:      review.Comment,
		Images:       append([]string(nil), review.Images...),
		IsVerified:   review.IsVerified,
		HelpfulCount: review.HelpfulCount,
		IsReported:   review.IsReported,
		Status:       string(review.Status),
		ModeratedBy:  trimmedPtr(review.ModeratedBy),
		CreatedAt:    review.CreatedAt.UTC(),
		UpdatedAt:    review.UpdatedAt.UTC(),
	}
}

func decodeReview(id string, doc reviewDocument) domain.Review {
	status := domain.ReviewStatus(doc.Status)
	if status == "" {
		status = domain.ReviewStatusApproved
	}
	return domain.Review{
		ID:           id,
		UserID:       doc.UserID,
		ProductID:    doc.ProductID,
		OrderID:      doc.OrderID,
		Rating:       doc.Rating,
		Title:        doc.Title,
		Comment:      doc.Comment,
		Images:       append([]string(nil), doc.Images...),
		IsVerified:   doc.IsVerified,
		HelpfulCount: doc.HelpfulCount,
		IsReported:   doc.IsReported,
		Status:       status,
		ModeratedBy:  trimmedPtr(doc.ModeratedBy),
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
}
