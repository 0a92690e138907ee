package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/platform/pagination"
	"github.com/vastra-market/api/internal/platform/storage"
	"github.com/vastra-market/api/internal/platform/textutil"
	"github.com/vastra-market/api/internal/repositories"
)

const (
	reviewEventCreated       = "review.created"
	reviewEventUpdated       = "review.updated"
	reviewEventDeleted       = "review.deleted"
	reviewEventModerated     = "review.moderated"
	reviewEventReported      = "review.reported"
	reviewEventRatingFailed  = "review.rating.failed"
	reviewIDPrefix           = "rev_"
	maxReviewTitleRunes      = 120
	maxReviewCommentRunes    = 2000
	maxReviewImages          = 6
	minReviewRating          = 1
	maxReviewRating          = 5
	reviewKeyDigestHexLength = 24
)

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Reviews    repositories.ReviewRepository
	Orders     repositories.OrderRepository
	OrderItems repositories.OrderItemRepository
	Ratings    RatingAggregator
	Media      MediaVerifier
	Clock      func() time.Time
	Sanitizer  func(string) string
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	orders   repositories.OrderRepository
	items    repositories.OrderItemRepository
	ratings  RatingAggregator
	media    MediaVerifier
	clock    func() time.Time
	sanitize func(string) string
	logger   func(context.Context, string, map[string]any)
}

var _ ReviewService = (*reviewService)(nil)

// NewReviewService constructs a review service. Media verification is skipped when Media is nil.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	switch {
	case deps.Reviews == nil:
		return nil, errors.New("review service: review repository is required")
	case deps.Orders == nil:
		return nil, errors.New("review service: order repository is required")
	case deps.OrderItems == nil:
		return nil, errors.New("review service: order item repository is required")
	case deps.Ratings == nil:
		return nil, errors.New("review service: rating aggregator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = func(value string) string { return textutil.PlainText(value, 0) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reviewService{
		reviews:  deps.Reviews,
		orders:   deps.Orders,
		items:    deps.OrderItems,
		ratings:  deps.Ratings,
		media:    deps.Media,
		clock:    func() time.Time { return clock().UTC() },
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

// ReviewID derives the deterministic review id for a (user, product, order) triple.
func ReviewID(userID, productID, orderID string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{userID, productID, orderID}, "\x00")))
	return reviewIDPrefix + hex.EncodeToString(sum[:])[:reviewKeyDigestHexLength]
}

func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	orderID := strings.TrimSpace(cmd.OrderID)
	switch {
	case userID == "":
		return Review{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case productID == "":
		return Review{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	case orderID == "":
		return Review{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if err := validateRating(cmd.Rating); err != nil {
		return Review{}, err
	}
	title, comment, err := s.cleanText(cmd.Title, cmd.Comment)
	if err != nil {
		return Review{}, err
	}
	images, err := cleanImages(cmd.Images)
	if err != nil {
		return Review{}, err
	}

	if err := s.ensureEligible(ctx, userID, productID, orderID); err != nil {
		return Review{}, err
	}
	if _, err := s.reviews.FindByKey(ctx, userID, productID, orderID); err == nil {
		return Review{}, ErrDuplicateReview
	} else if !isRepositoryNotFound(err) {
		return Review{}, mapRepositoryError(err, nil)
	}
	if err := s.verifyMedia(ctx, images); err != nil {
		return Review{}, err
	}

	now := s.clock()
	review := Review{
		ID:         ReviewID(userID, productID, orderID),
		UserID:     userID,
		ProductID:  productID,
		OrderID:    orderID,
		Rating:     cmd.Rating,
		Title:      title,
		Comment:    comment,
		Images:     images,
		IsVerified: true,
		Status:     domain.ReviewStatusApproved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.reviews.Insert(ctx, review); err != nil {
		if isRepositoryConflict(err) {
			return Review{}, fmt.Errorf("%w: %v", ErrDuplicateReview, err)
		}
		return Review{}, mapRepositoryError(err, nil)
	}

	s.logger(ctx, reviewEventCreated, map[string]any{"reviewId": review.ID, "productId": productID, "rating": review.Rating})
	s.refreshRating(ctx, productID)
	return review, nil
}

func (s *reviewService) Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	if cmd.Rating == nil && cmd.Title == nil && cmd.Comment == nil && cmd.Images == nil {
		return Review{}, fmt.Errorf("%w: at least one field must be provided", ErrInvalidInput)
	}
	review, err := s.ownedReview(ctx, cmd.ReviewID, cmd.UserID)
	if err != nil {
		return Review{}, err
	}

	if cmd.Rating != nil {
		if err := validateRating(*cmd.Rating); err != nil {
			return Review{}, err
		}
		review.Rating = *cmd.Rating
	}
	title, comment := review.Title, review.Comment
	if cmd.Title != nil {
		title = *cmd.Title
	}
	if cmd.Comment != nil {
		comment = *cmd.Comment
	}
	if review.Title, review.Comment, err = s.cleanText(title, comment); err != nil {
		return Review{}, err
	}
	if cmd.Images != nil {
		images, err := cleanImages(*cmd.Images)
		if err != nil {
			return Review{}, err
		}
		if err := s.verifyMedia(ctx, images); err != nil {
			return Review{}, err
		}
		review.Images = images
	}
	review.UpdatedAt = s.clock()

	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, mapRepositoryError(err, ErrReviewNotFound)
	}
	s.logger(ctx, reviewEventUpdated, map[string]any{"reviewId": review.ID, "productId": review.ProductID, "rating": review.Rating})
	s.refreshRating(ctx, review.ProductID)
	return review, nil
}

func (s *reviewService) Delete(ctx context.Context, cmd DeleteReviewCommand) error {
	review, err := s.ownedReview(ctx, cmd.ReviewID, cmd.UserID)
	if err != nil {
		return err
	}
	if err := s.reviews.Delete(ctx, review.ID); err != nil {
		return mapRepositoryError(err, ErrReviewNotFound)
	}
	s.logger(ctx, reviewEventDeleted, map[string]any{"reviewId": review.ID, "productId": review.ProductID})
	s.refreshRating(ctx, review.ProductID)
	return nil
}

// Get returns an approved review; hidden reviews are reported as not found.
func (s *reviewService) Get(ctx context.Context, reviewID string) (Review, error) {
	review, err := s.find(ctx, reviewID)
	if err != nil {
		return Review{}, err
	}
	if review.Status != domain.ReviewStatusApproved {
		return Review{}, fmt.Errorf("%w: %s", ErrReviewNotFound, review.ID)
	}
	return review, nil
}

func (s *reviewService) ListByProduct(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[Review], error) {
	productID := strings.TrimSpace(filter.ProductID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	page, err := s.reviews.ListByProduct(ctx, repositories.ReviewListFilter{
		ProductID: productID,
		Status:    []ReviewStatus{domain.ReviewStatusApproved},
		Pagination: Pagination{
			PageSize:  pagination.Limit(filter.Pagination.PageSize),
			PageToken: filter.Pagination.PageToken,
		},
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Review]{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return domain.CursorPage[Review]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

func (s *reviewService) MarkHelpful(ctx context.Context, cmd MarkHelpfulCommand) (Review, error) {
	if cmd.Delta != 1 && cmd.Delta != -1 {
		return Review{}, fmt.Errorf("%w: delta must be 1 or -1", ErrInvalidInput)
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return Review{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	review, err := s.Get(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	updated, err := s.reviews.AdjustHelpful(ctx, review.ID, cmd.Delta, s.clock())
	if err != nil {
		return Review{}, mapRepositoryError(err, ErrReviewNotFound)
	}
	return updated, nil
}

func (s *reviewService) Report(ctx context.Context, cmd ReportReviewCommand) (Review, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Review{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	review, err := s.Get(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if review.UserID == userID {
		return Review{}, fmt.Errorf("%w: authors cannot report their own review", ErrInvalidInput)
	}
	if review.IsReported {
		return review, nil
	}
	review.IsReported = true
	review.UpdatedAt = s.clock()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, mapRepositoryError(err, ErrReviewNotFound)
	}
	s.logger(ctx, reviewEventReported, map[string]any{"reviewId": review.ID, "reporterId": userID})
	return review, nil
}

func (s *reviewService) Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error) {
	status := ReviewStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	switch status {
	case domain.ReviewStatusApproved, domain.ReviewStatusPending, domain.ReviewStatusRejected:
	default:
		return Review{}, fmt.Errorf("%w: unknown review status %q", ErrInvalidInput, cmd.Status)
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return Review{}, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}
	review, err := s.find(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}

	previous := review.Status
	review.Status = status
	review.ModeratedBy = &actorID
	if status != domain.ReviewStatusPending {
		review.IsReported = false
	}
	review.UpdatedAt = s.clock()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, mapRepositoryError(err, ErrReviewNotFound)
	}
	s.logger(ctx, reviewEventModerated, map[string]any{
		"reviewId":       review.ID,
		"previousStatus": string(previous),
		"status":         string(status),
		"actorId":        actorID,
	})
	if previous != status {
		s.refreshRating(ctx, review.ProductID)
	}
	return review, nil
}

func (s *reviewService) find(ctx context.Context, reviewID string) (Review, error) {
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrInvalidInput)
	}
	review, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return Review{}, mapRepositoryError(err, ErrReviewNotFound)
	}
	return review, nil
}

// ownedReview loads a review and hides it from anyone but its author.
func (s *reviewService) ownedReview(ctx context.Context, reviewID, userID string) (Review, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Review{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	review, err := s.find(ctx, reviewID)
	if err != nil {
		return Review{}, err
	}
	if review.UserID != userID {
		return Review{}, fmt.Errorf("%w: %s", ErrReviewNotFound, review.ID)
	}
	return review, nil
}

// ensureEligible requires a delivered order owned by the user that contains the product.
func (s *reviewService) ensureEligible(ctx context.Context, userID, productID, orderID string) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return fmt.Errorf("%w: order %s not found", ErrOrderNotEligible, orderID)
		}
		return mapRepositoryError(err, nil)
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order %s not found", ErrOrderNotEligible, orderID)
	}
	if order.Status != domain.OrderStatusDelivered {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotEligible, orderID, order.Status)
	}
	items, err := s.items.ListByOrder(ctx, orderID)
	if err != nil {
		return mapRepositoryError(err, nil)
	}
	for _, item := range items {
		if item.ProductID == productID {
			return nil
		}
	}
	return fmt.Errorf("%w: product %s is not part of order %s", ErrOrderNotEligible, productID, orderID)
}

func (s *reviewService) cleanText(title, comment string) (string, string, error) {
	title = s.sanitize(title)
	comment = s.sanitize(comment)
	if utf8.RuneCountInString(title) > maxReviewTitleRunes {
		return "", "", fmt.Errorf("%w: title must be at most %d characters", ErrInvalidInput, maxReviewTitleRunes)
	}
	if utf8.RuneCountInString(comment) > maxReviewCommentRunes {
		return "", "", fmt.Errorf("%w: comment must be at most %d characters", ErrInvalidInput, maxReviewCommentRunes)
	}
	return title, comment, nil
}

func (s *reviewService) verifyMedia(ctx context.Context, images []string) error {
	if s.media == nil || len(images) == 0 {
		return nil
	}
	err := s.media.VerifyImages(ctx, images)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrForeignBucket), errors.Is(err, storage.ErrObjectMissing), errors.Is(err, storage.ErrInvalidReference):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// refreshRating recomputes the product rating after a committed review write. Failures are logged
// and never fail the review operation.
func (s *reviewService) refreshRating(ctx context.Context, productID string) {
	if _, err := s.ratings.Recompute(ctx, productID); err != nil {
		s.logger(ctx, reviewEventRatingFailed, map[string]any{
			"productId": productID,
			"error":     err.Error(),
		})
	}
}

func validateRating(rating int) error {
	if rating < minReviewRating || rating > maxReviewRating {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, minReviewRating, maxReviewRating)
	}
	return nil
}

func cleanImages(images []string) ([]string, error) {
	if len(images) > maxReviewImages {
		return nil, fmt.Errorf("%w: at most %d images are allowed", ErrInvalidInput, maxReviewImages)
	}
	cleaned := make([]string, 0, len(images))
	for i, image := range images {
		image = strings.TrimSpace(image)
		if image == "" {
			return nil, fmt.Errorf("%w: images[%d] is empty", ErrInvalidInput, i)
		}
		cleaned = append(cleaned, image)
	}
	return cleaned, nil
}
