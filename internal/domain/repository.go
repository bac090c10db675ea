package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate")
)

type ProductStore interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]Product, int64, error)
	SearchProducts(ctx context.Context, title string) ([]Product, error)
	// DecrementStock is a conditional decrement: quantity -= qty only when
	// quantity >= qty. Returns ErrNotFound or ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, id string, qty int) (remaining int, err error)
	IncrementStock(ctx context.Context, id string, qty int) error
	SetRating(ctx context.Context, id string, rating float64) error
	DeleteProduct(ctx context.Context, id string) error
}

type ReviewStore interface {
	FindReview(ctx context.Context, userID, productID string) (*Review, error)
	// InsertReview stores r and links its id into the author's review list.
	// A second review for the same (user, product) returns ErrDuplicate.
	InsertReview(ctx context.Context, r *Review) error
	UpdateReview(ctx context.Context, r *Review) error
	ProductRatings(ctx context.Context, productID string) ([]int, error)
	ListProductReviews(ctx context.Context, productID string, offset, limit int) ([]Review, error)
	ListReviews(ctx context.Context, limit int) ([]Review, error)
	// DeleteProductReviews removes every review of a product and unlinks them
	// from their authors.
	DeleteProductReviews(ctx context.Context, productID string) (int64, error)
}

type UserStore interface {
	EnsureUser(ctx context.Context, u User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

type OrderStore interface {
	AppendLine(ctx context.Context, userID string, line OrderLine) error
	Lines(ctx context.Context, userID string) ([]OrderLine, error)
	RemoveLine(ctx context.Context, userID, lineID string) error
	SetLinesStatus(ctx context.Context, userID string, lineIDs []string, status Status) error
	// SetLineStatus rewrites the status of lineID in whichever user owns it.
	SetLineStatus(ctx context.Context, lineID string, status Status) (matched bool, err error)
	// AllUserOrders scans every user's order collection in creation order.
	AllUserOrders(ctx context.Context) ([]UserOrders, error)
	RemoveProductLines(ctx context.Context, productID string) (int64, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type QueryStore interface {
	// InsertQuery stores q and links its id into the author's query list.
	InsertQuery(ctx context.Context, q *Query) error
	// UserQueries returns one user's queries, newest first.
	UserQueries(ctx context.Context, userID string) ([]Query, error)
	ListQueries(ctx context.Context, limit int) ([]Query, error)
}

type Store interface {
	ProductStore
	ReviewStore
	UserStore
	OrderStore
	QueryStore
	Close(ctx context.Context) error
}

// Publisher emits domain events. Publishing is best-effort: callers log
// failures and never roll back state because of them.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
