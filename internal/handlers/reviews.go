package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vastra-market/api/internal/platform/auth"
	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/platform/pagination"
	"github.com/vastra-market/api/internal/services"
)

// ReviewHandlers exposes review submission for buyers and the public review listing.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
	cfg     handlerConfig
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService, opts ...HandlerOption) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
		cfg:     newHandlerConfig(opts),
	}
}

// Routes registers the /reviews endpoints. Reading a single review is public.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{reviewID}", h.getReview)
	r.Group(func(authed chi.Router) {
		if h.authn != nil {
			authed.Use(h.authn.RequireFirebaseAuth())
		}
		authed.With(h.cfg.limited()...).Post("/", h.createReview)
		authed.With(h.cfg.mutating()...).Patch("/{reviewID}", h.updateReview)
		authed.With(h.cfg.mutating()...).Delete("/{reviewID}", h.deleteReview)
		authed.Post("/{reviewID}:helpful", h.markHelpful)
		authed.Post("/{reviewID}:report", h.reportReview)
	})
}

// ProductRoutes registers the public /products/{productID}/reviews listing.
func (h *ReviewHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}/reviews", h.listProductReviews)
}

type createReviewRequest struct {
	ProductID string   `json:"productId"`
	OrderID   string   `json:"orderId"`
	Rating    int      `json:"rating"`
	Title     string   `json:"title"`
	Comment   string   `json:"comment"`
	Images    []string `json:"images"`
}

type updateReviewRequest struct {
	Rating  *int      `json:"rating"`
	Title   *string   `json:"title"`
	Comment *string   `json:"comment"`
	Images  *[]string `json:"images"`
}

type helpfulRequest struct {
	Helpful *bool `json:"helpful"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := h.reviews.Create(ctx, services.CreateReviewCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Title:     req.Title,
		Comment:   req.Comment,
		Images:    req.Images,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, reviewResponse{Review: buildReviewPayload(review, false)})
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := h.reviews.Update(ctx, services.UpdateReviewCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		UserID:   identity.UID,
		Rating:   req.Rating,
		Title:    req.Title,
		Comment:  req.Comment,
		Images:   req.Images,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review, false)})
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	err := h.reviews.Delete(ctx, services.DeleteReviewCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		UserID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandlers) getReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	review, err := h.reviews.Get(ctx, chi.URLParam(r, "reviewID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review, false)})
}

func (h *ReviewHandlers) listProductReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	page, err := pagination.Parse(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	result, err := h.reviews.ListByProduct(ctx, services.ReviewListFilter{
		ProductID:  chi.URLParam(r, "productID"),
		Pagination: page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]reviewPayload, 0, len(result.Items))
	for _, review := range result.Items {
		items = append(items, buildReviewPayload(review, false))
	}
	httpx.WriteJSON(w, http.StatusOK, reviewListResponse{Reviews: items, NextPageToken: result.NextPageToken})
}

// markHelpful adds a helpful vote; {"helpful": false} withdraws one.
func (h *ReviewHandlers) markHelpful(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req helpfulRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	delta := 1
	if req.Helpful != nil && !*req.Helpful {
		delta = -1
	}
	review, err := h.reviews.MarkHelpful(ctx, services.MarkHelpfulCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		UserID:   identity.UID,
		Delta:    delta,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review, false)})
}

func (h *ReviewHandlers) reportReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if _, err := h.reviews.Report(ctx, services.ReportReviewCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		UserID:   identity.UID,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

type reviewListResponse struct {
	Reviews       []reviewPayload `json:"reviews"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

type reviewPayload struct {
	ID           string   `json:"id"`
	UserID       string   `json:"userId"`
	ProductID    string   `json:"productId"`
	OrderID      string   `json:"orderId"`
	Rating       int      `json:"rating"`
	Title        string   `json:"title,omitempty"`
	Comment      string   `json:"comment,omitempty"`
	Images       []string `json:"images"`
	IsVerified   bool     `json:"isVerified"`
	HelpfulCount int      `json:"helpfulCount"`
	Status       string   `json:"status"`
	IsReported   *bool    `json:"isReported,omitempty"`
	ModeratedBy  *string  `json:"moderatedBy,omitempty"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// buildReviewPayload renders a review; moderation fields are only included for staff views.
func buildReviewPayload(review services.Review, staff bool) reviewPayload {
	payload := reviewPayload{
		ID:           review.ID,
		UserID:       review.UserID,
		ProductID:    review.ProductID,
		OrderID:      review.OrderID,
		Rating:       review.Rating,
		Title:        review.Title,
		Comment:      review.Comment,
		Images:       review.Images,
		IsVerified:   review.IsVerified,
		HelpfulCount: review.HelpfulCount,
		Status:       string(review.Status),
		CreatedAt:    formatTime(review.CreatedAt),
		UpdatedAt:    formatTime(review.UpdatedAt),
	}
	if payload.Images == nil {
		payload.Images = []string{}
	}
	if staff {
		reported := review.IsReported
		payload.IsReported = &reported
		payload.ModeratedBy = review.ModeratedBy
	}
	return payload
}
