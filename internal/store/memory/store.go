// Package memory is an in-process domain.Store. It backs local runs
// (STORE_DRIVER=memory) and every service test.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/domain"
)

type reviewKey struct{ user, product string }

// Store guards all state with one mutex, so each method is atomic. Users and
// reviews are kept in insertion order.
type Store struct {
	mu sync.Mutex

	products     map[string]*domain.Product
	productOrder []string

	users     []*domain.User
	userIndex map[string]*domain.User

	reviews     []*domain.Review
	reviewIndex map[reviewKey]*domain.Review

	queries []*domain.Query

	now func() time.Time
}

func New() *Store {
	return &Store{
		products:    map[string]*domain.Product{},
		userIndex:   map[string]*domain.User{},
		reviewIndex: map[reviewKey]*domain.Review{},
		now:         time.Now,
	}
}

func (s *Store) Close(context.Context) error { return nil }

// ---- products ----

func (s *Store) CreateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return domain.ErrDuplicate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	cp := *p
	s.products[p.ID] = &cp
	s.productOrder = append(s.productOrder, p.ID)
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProducts(_ context.Context, offset, limit int) ([]domain.Product, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := int64(len(s.productOrder))
	var out []domain.Product
	for i := offset; i < len(s.productOrder) && len(out) < limit; i++ {
		out = append(out, *s.products[s.productOrder[i]])
	}
	return out, total, nil
}

func (s *Store) SearchProducts(_ context.Context, title string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(title)
	var out []domain.Product
	for _, id := range s.productOrder {
		p := s.products[id]
		if strings.Contains(strings.ToLower(p.Title), needle) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) DecrementStock(_ context.Context, id string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if p.Quantity < qty {
		return p.Quantity, domain.ErrInsufficientStock
	}
	p.Quantity -= qty
	return p.Quantity, nil
}

func (s *Store) IncrementStock(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Quantity += qty
	return nil
}

func (s *Store) SetRating(_ context.Context, id string, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Rating = rating
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ---- users ----

func (s *Store) EnsureUser(_ context.Context, u domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.userIndex[u.ID]; ok {
		if u.Name != "" {
			existing.Name = u.Name
		}
		if u.Email != "" {
			existing.Email = u.Email
		}
		if u.Role != "" {
			existing.Role = u.Role
		}
		return copyUser(existing), nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	nu := u
	nu.Orders = nil
	nu.ReviewIDs = nil
	nu.QueryIDs = nil
	s.users = append(s.users, &nu)
	s.userIndex[nu.ID] = &nu
	return copyUser(&nu), nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userIndex[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyUser(u), nil
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Orders = append([]domain.OrderLine(nil), u.Orders...)
	cp.ReviewIDs = append([]string(nil), u.ReviewIDs...)
	cp.QueryIDs = append([]string(nil), u.QueryIDs...)
	return &cp
}

// ---- order lines ----

func (s *Store) AppendLine(_ context.Context, userID string, line domain.OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userIndex[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = s.now()
	}
	u.Orders = append(u.Orders, line)
	return nil
}

func (s *Store) Lines(_ context.Context, userID string) ([]domain.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userIndex[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.OrderLine(nil), u.Orders...), nil
}

func (s *Store) RemoveLine(_ context.Context, userID, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userIndex[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range u.Orders {
		if u.Orders[i].ID == lineID {
			u.Orders = append(u.Orders[:i], u.Orders[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) SetLinesStatus(_ context.Context, userID string, lineIDs []string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userIndex[userID]
	if !ok {
		return domain.ErrNotFound
	}
	want := make(map[string]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		want[id] = struct{}{}
	}
	for i := range u.Orders {
		if _, ok := want[u.Orders[i].ID]; ok {
			u.Orders[i].Status = status
		}
	}
	return nil
}

// SetLineStatus walks every user's lines. O(users x lines), fine for the
// in-memory driver.
func (s *Store) SetLineStatus(_ context.Context, lineID string, status domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := false
	for _, u := range s.users {
		for i := range u.Orders {
			if u.Orders[i].ID == lineID {
				u.Orders[i].Status = status
				matched = true
			}
		}
	}
	return matched, nil
}

func (s *Store) AllUserOrders(context.Context) ([]domain.UserOrders, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserOrders, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, domain.UserOrders{
			UserID:    u.ID,
			UserName:  u.Name,
			Email:     u.Email,
			CreatedAt: u.CreatedAt,
			Lines:     append([]domain.OrderLine(nil), u.Orders...),
		})
	}
	return out, nil
}

func (s *Store) RemoveProductLines(_ context.Context, productID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		kept := u.Orders[:0]
		for _, l := range u.Orders {
			if l.ProductID == productID {
				n++
				continue
			}
			kept = append(kept, l)
		}
		u.Orders = kept
	}
	return n, nil
}

func (s *Store) HasPurchased(_ context.Context, userID, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userIndex[userID]
	if !ok {
		return false, nil
	}
	for _, l := range u.Orders {
		if l.ProductID == productID && l.Status != domain.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

// ---- reviews ----

func (s *Store) FindReview(_ context.Context, userID, productID string) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviewIndex[reviewKey{userID, productID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) InsertReview(_ context.Context, r *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reviewKey{r.UserID, r.ProductID}
	if _, ok := s.reviewIndex[k]; ok {
		return domain.ErrDuplicate
	}
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	cp := *r
	s.reviews = append(s.reviews, &cp)
	s.reviewIndex[k] = &cp
	if u, ok := s.userIndex[r.UserID]; ok {
		u.ReviewIDs = append(u.ReviewIDs, r.ID)
	}
	return nil
}

func (s *Store) UpdateReview(_ context.Context, r *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.reviewIndex[reviewKey{r.UserID, r.ProductID}]
	if !ok || existing.ID != r.ID {
		return domain.ErrNotFound
	}
	r.UpdatedAt = s.now()
	existing.Rating = r.Rating
	existing.Text = r.Text
	existing.UserName = r.UserName
	existing.UpdatedAt = r.UpdatedAt
	return nil
}

func (s *Store) ProductRatings(_ context.Context, productID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, r := range s.reviews {
		if r.ProductID == productID {
			out = append(out, r.Rating)
		}
	}
	return out, nil
}

// ListProductReviews returns newest first.
func (s *Store) ListProductReviews(_ context.Context, productID string, offset, limit int) ([]domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Review
	skipped := 0
	for i := len(s.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.reviews[i]
		if r.ProductID != productID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *Store) ListReviews(_ context.Context, limit int) ([]domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Review
	for i := len(s.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.reviews[i])
	}
	return out, nil
}

func (s *Store) DeleteProductReviews(_ context.Context, productID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := map[string]struct{}{}
	kept := s.reviews[:0]
	for _, r := range s.reviews {
		if r.ProductID == productID {
			removed[r.ID] = struct{}{}
			delete(s.reviewIndex, reviewKey{r.UserID, r.ProductID})
			continue
		}
		kept = append(kept, r)
	}
	s.reviews = kept
	if len(removed) == 0 {
		return 0, nil
	}
	for _, u := range s.users {
		ids := u.ReviewIDs[:0]
		for _, id := range u.ReviewIDs {
			if _, gone := removed[id]; !gone {
				ids = append(ids, id)
			}
		}
		u.ReviewIDs = ids
	}
	return int64(len(removed)), nil
}

// ---- queries ----

func (s *Store) InsertQuery(_ context.Context, q *domain.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userIndex[q.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	now := s.now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	cp := *q
	s.queries = append(s.queries, &cp)
	u.QueryIDs = append(u.QueryIDs, q.ID)
	return nil
}

func (s *Store) UserQueries(_ context.Context, userID string) ([]domain.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Query
	for i := len(s.queries) - 1; i >= 0; i-- {
		if s.queries[i].UserID == userID {
			out = append(out, *s.queries[i])
		}
	}
	return out, nil
}

func (s *Store) ListQueries(_ context.Context, limit int) ([]domain.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Query
	for i := len(s.queries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.queries[i])
	}
	return out, nil
}

var _ domain.Store = (*Store)(nil)
