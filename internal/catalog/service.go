// Package catalog owns products: reads, stock reservation, derived ratings
// and the delete cascade.
package catalog

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type Service struct {
	Store  domain.Store
	Events domain.Publisher
	Log    *zap.Logger
}

func NewService(store domain.Store, events domain.Publisher, log *zap.Logger) *Service {
	if events == nil {
		events = domain.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: store, Events: events, Log: log}
}

type NewProduct struct {
	Title       string
	Description string
	Image       string
	Price       float64
	Quantity    int
}

func (s *Service) CreateProduct(ctx context.Context, p auth.Principal, in NewProduct) (*domain.Product, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || strings.TrimSpace(in.Description) == "" {
		return nil, apperr.InvalidInput("title and description are required")
	}
	if in.Price < 0 || in.Quantity < 0 {
		return nil, apperr.InvalidInput("price and quantity must not be negative")
	}
	prod := &domain.Product{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Image:       in.Image,
		Price:       in.Price,
		Quantity:    in.Quantity,
	}
	err := s.Store.CreateProduct(ctx, prod)
	metrics.RecordOperation("create_product", err)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return prod, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	prod, err := s.Store.GetProduct(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.NotFound("product not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return prod, nil
}

type Page struct {
	Products []domain.Product `json:"products"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int64            `json:"total"`
}

// ListProducts pages in creation order. page defaults to 1 and pageSize to 10.
func (s *Service) ListProducts(ctx context.Context, page, pageSize int) (*Page, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if page < 1 || pageSize < 1 {
		return nil, apperr.InvalidInput("page and pageSize must be positive")
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page > math.MaxInt/pageSize {
		return nil, apperr.InvalidInput("page is out of range")
	}
	items, total, err := s.Store.ListProducts(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if items == nil {
		items = []domain.Product{}
	}
	return &Page{Products: items, Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *Service) SearchProducts(ctx context.Context, name string) ([]domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput("name is required")
	}
	out, err := s.Store.SearchProducts(ctx, name)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("no products found")
	}
	return out, nil
}

// ReserveStock takes qty units off the product in one conditional update.
// It returns the stock left after the reservation.
func (s *Service) ReserveStock(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.InvalidInput("quantity must be positive")
	}
	left, err := s.Store.DecrementStock(ctx, productID, qty)
	switch {
	case err == nil:
		return left, nil
	case errors.Is(err, domain.ErrNotFound):
		return 0, apperr.NotFound("product not found")
	case errors.Is(err, domain.ErrInsufficientStock):
		metrics.RecordStockRejection()
		return left, apperr.Newf(apperr.KindInsufficientStock, "insufficient stock: %d available", left)
	default:
		return 0, apperr.Internal(err)
	}
}

// MeanRating is the arithmetic mean of ratings, 0 for none.
func MeanRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}

// RecomputeRating rewrites the product rating from its full review set.
func (s *Service) RecomputeRating(ctx context.Context, productID string) (float64, error) {
	ratings, err := s.Store.ProductRatings(ctx, productID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	mean := MeanRating(ratings)
	if err := s.Store.SetRating(ctx, productID, mean); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, apperr.NotFound("product not found")
		}
		return 0, apperr.Internal(err)
	}
	return mean, nil
}

// RecomputeAllRatings replays RecomputeRating over the whole catalog with at
// most workers in flight. Returns the number of products touched.
func (s *Service) RecomputeAllRatings(ctx context.Context, workers int) (int, error) {
	if workers <= 0 {
		workers = 4
	}
	var ids []string
	for offset := 0; ; offset += maxPageSize {
		batch, _, err := s.Store.ListProducts(ctx, offset, maxPageSize)
		if err != nil {
			return 0, apperr.Internal(err)
		}
		for _, p := range batch {
			ids = append(ids, p.ID)
		}
		if len(batch) < maxPageSize {
			break
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.RecomputeRating(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

type DeleteResult struct {
	LinesRemoved   int64 `json:"linesRemoved"`
	ReviewsRemoved int64 `json:"reviewsRemoved"`
}

// DeleteProduct removes the product's lines from every user, then its reviews,
// then the product itself. Steps are not transactional; rerunning finishes a
// partial cascade.
func (s *Service) DeleteProduct(ctx context.Context, p auth.Principal, productID string) (*DeleteResult, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	lines, err := s.Store.RemoveProductLines(ctx, productID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	reviews, err := s.Store.DeleteProductReviews(ctx, productID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	err = s.Store.DeleteProduct(ctx, productID)
	metrics.RecordOperation("delete_product", err)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	res := &DeleteResult{LinesRemoved: lines, ReviewsRemoved: reviews}
	s.Log.Info("product deleted",
		zap.String("product_id", productID),
		zap.Int64("lines_removed", lines),
		zap.Int64("reviews_removed", reviews))
	if err := s.Events.Publish(ctx, domain.EventProductDeleted, productID, domain.ProductDeletedPayload{
		ProductID: productID, LinesRemoved: lines, ReviewsRemoved: reviews,
	}); err != nil {
		s.Log.Warn("publish product deleted", zap.Error(err))
	}
	return res, nil
}
