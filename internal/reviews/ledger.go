// Package reviews keeps at most one review per (user, product) and keeps the
// product rating in step with the review set.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
)

const (
	MinRating = 1
	MaxRating = 5

	defaultLimit = 10
	maxLimit     = 100
)

// msgRatingStale tells the client the review was written but the product
// rating could not be refreshed.
const msgRatingStale = "review saved, but the product rating could not be updated and will be recomputed"

// RatingRecomputer rewrites a product's derived rating.
type RatingRecomputer interface {
	RecomputeRating(ctx context.Context, productID string) (float64, error)
}

type Ledger struct {
	Store   domain.Store
	Ratings RatingRecomputer
	Events  domain.Publisher
	Log     *zap.Logger

	// RequirePurchase restricts reviews to users holding a non-pending line
	// for the product.
	RequirePurchase bool
}

type Option func(*Ledger)

func WithPurchaseGate(on bool) Option { return func(l *Ledger) { l.RequirePurchase = on } }

func NewLedger(store domain.Store, ratings RatingRecomputer, events domain.Publisher, log *zap.Logger, opts ...Option) *Ledger {
	if events == nil {
		events = domain.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{Store: store, Ratings: ratings, Events: events, Log: log}
	for _, o := range opts {
		o(l)
	}
	return l
}

type SubmitResult struct {
	Review  *domain.Review `json:"review"`
	Updated bool           `json:"updated"`
	Message string         `json:"message"`
	Rating  float64        `json:"productRating"`
}

func (l *Ledger) SubmitOrUpdate(ctx context.Context, p auth.Principal, productID string, rating int, text string) (res *SubmitResult, err error) {
	defer func() { metrics.RecordOperation("submit_review", err) }()

	if err := auth.Require(p); err != nil {
		return nil, err
	}
	if rating < MinRating || rating > MaxRating {
		return nil, apperr.Newf(apperr.KindInvalidInput, "rating must be between %d and %d", MinRating, MaxRating)
	}
	if strings.TrimSpace(productID) == "" {
		return nil, apperr.InvalidInput("productId is required")
	}
	if _, err := l.Store.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Internal(err)
	}
	if l.RequirePurchase {
		ok, err := l.Store.HasPurchased(ctx, p.ID, productID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if !ok {
			return nil, apperr.Unauthorized("only customers who ordered this product can review it")
		}
	}

	existing, err := l.Store.FindReview(ctx, p.ID, productID)
	switch {
	case err == nil:
		existing.Rating = rating
		existing.Text = text
		if p.Name != "" {
			existing.UserName = p.Name
		}
		if err := l.Store.UpdateReview(ctx, existing); err != nil {
			return nil, apperr.Internal(err)
		}
		res = &SubmitResult{Review: existing, Updated: true, Message: "review updated"}
	case errors.Is(err, domain.ErrNotFound):
		r := &domain.Review{
			ID:        uuid.NewString(),
			Rating:    rating,
			Text:      text,
			UserName:  p.Name,
			UserID:    p.ID,
			ProductID: productID,
		}
		if err := l.Store.InsertReview(ctx, r); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return nil, apperr.Conflict("review already exists for this product")
			}
			return nil, apperr.Internal(err)
		}
		res = &SubmitResult{Review: r, Message: "review added"}
	default:
		return nil, apperr.Internal(err)
	}

	// review sudah tersimpan; rating basi bisa di-replay lewat worker/storectl
	fresh, rerr := l.Ratings.RecomputeRating(ctx, productID)

	// published either way: the worker replays the recompute on this event
	if perr := l.Events.Publish(ctx, domain.EventReviewSubmitted, productID, domain.ReviewSubmittedPayload{
		ReviewID:  res.Review.ID,
		ProductID: productID,
		UserID:    p.ID,
		Rating:    rating,
		Updated:   res.Updated,
	}); perr != nil {
		l.Log.Warn("publish review submitted", zap.Error(perr))
	}

	if rerr != nil {
		l.Log.Error("review saved with stale product rating",
			zap.String("product_id", productID), zap.String("review_id", res.Review.ID), zap.Error(rerr))
		return nil, apperr.Wrap(apperr.KindInternal, msgRatingStale, fmt.Errorf("recompute rating: %w", rerr))
	}
	res.Rating = fresh
	return res, nil
}

// ListByProduct returns one page of a product's reviews, newest first.
func (l *Ledger) ListByProduct(ctx context.Context, productID string, page, pageSize int) ([]domain.Review, error) {
	if page < 1 || pageSize < 1 {
		return nil, apperr.InvalidInput("page and pageSize must be positive")
	}
	if pageSize > maxLimit {
		pageSize = maxLimit
	}
	if page > math.MaxInt/pageSize {
		return nil, apperr.InvalidInput("page is out of range")
	}
	out, err := l.Store.ListProductReviews(ctx, productID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("no reviews found")
	}
	return out, nil
}

// ListAll returns the newest reviews across the catalog. limit 0 means 10.
func (l *Ledger) ListAll(ctx context.Context, limit int) ([]domain.Review, error) {
	switch {
	case limit < 0:
		return nil, apperr.InvalidInput("limit must not be negative")
	case limit == 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	out, err := l.Store.ListReviews(ctx, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("no reviews found")
	}
	return out, nil
}
