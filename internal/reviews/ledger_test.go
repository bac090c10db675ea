package reviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/store/memory"
)

type mockPublisher struct {
	mu       sync.Mutex
	payloads []domain.ReviewSubmittedPayload
}

func (m *mockPublisher) Publish(_ context.Context, _ string, _ string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := payload.(domain.ReviewSubmittedPayload); ok {
		m.payloads = append(m.payloads, p)
	}
	return nil
}

var ana = auth.Principal{ID: "u1", Name: "Ana", Role: "user"}

func setup(t *testing.T, opts ...Option) (*Ledger, *memory.Store, *mockPublisher) {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.CreateProduct(context.Background(), &domain.Product{ID: "p1", Title: "Mug", Quantity: 3}))
	pub := &mockPublisher{}
	cat := catalog.NewService(st, nil, nil)
	return NewLedger(st, cat, pub, nil, opts...), st, pub
}

func TestRejectsOutOfRangeRating(t *testing.T) {
	l, st, pub := setup(t)
	ctx := context.Background()

	for _, r := range []int{0, 6, -1} {
		_, err := l.SubmitOrUpdate(ctx, ana, "p1", r, "meh")
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err), r)
	}

	ratings, _ := st.ProductRatings(ctx, "p1")
	assert.Empty(t, ratings)
	p, _ := st.GetProduct(ctx, "p1")
	assert.Zero(t, p.Rating)
	assert.Empty(t, pub.payloads)
}

func TestResubmitUpdatesInPlace(t *testing.T) {
	l, st, pub := setup(t)
	ctx := context.Background()
	_, err := st.EnsureUser(ctx, domain.User{ID: ana.ID, Name: ana.Name})
	require.NoError(t, err)

	first, err := l.SubmitOrUpdate(ctx, ana, "p1", 4, "good")
	require.NoError(t, err)
	assert.False(t, first.Updated)
	assert.InDelta(t, 4.0, first.Rating, 1e-9)

	second, err := l.SubmitOrUpdate(ctx, ana, "p1", 2, "worse after a week")
	require.NoError(t, err)
	assert.True(t, second.Updated)
	assert.Equal(t, first.Review.ID, second.Review.ID)

	ratings, _ := st.ProductRatings(ctx, "p1")
	assert.Equal(t, []int{2}, ratings)
	p, _ := st.GetProduct(ctx, "p1")
	assert.InDelta(t, 2.0, p.Rating, 1e-9)

	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{first.Review.ID}, u.ReviewIDs)
	require.Len(t, pub.payloads, 2)
	assert.True(t, pub.payloads[1].Updated)
}

func TestRatingIsMeanOfReviewers(t *testing.T) {
	l, st, _ := setup(t)
	ctx := context.Background()
	for i, r := range []int{5, 4, 3} {
		_, err := l.SubmitOrUpdate(ctx, auth.Principal{ID: fmt.Sprintf("u%d", i)}, "p1", r, "")
		require.NoError(t, err)
	}
	p, _ := st.GetProduct(ctx, "p1")
	assert.InDelta(t, 4.0, p.Rating, 1e-9)
}

func TestSubmitErrors(t *testing.T) {
	l, _, _ := setup(t)
	ctx := context.Background()

	_, err := l.SubmitOrUpdate(ctx, auth.Principal{}, "p1", 3, "")
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	_, err = l.SubmitOrUpdate(ctx, ana, "nope", 3, "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestPurchaseGate(t *testing.T) {
	l, st, _ := setup(t, WithPurchaseGate(true))
	ctx := context.Background()

	_, err := l.SubmitOrUpdate(ctx, ana, "p1", 5, "")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = st.EnsureUser(ctx, domain.User{ID: ana.ID})
	require.NoError(t, err)
	require.NoError(t, st.AppendLine(ctx, ana.ID, domain.OrderLine{ID: "l1", ProductID: "p1", Quantity: 1, Status: domain.StatusPending}))
	_, err = l.SubmitOrUpdate(ctx, ana, "p1", 5, "")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err), "pending lines do not count")

	require.NoError(t, st.SetLinesStatus(ctx, ana.ID, []string{"l1"}, domain.StatusDelivered))
	_, err = l.SubmitOrUpdate(ctx, ana, "p1", 5, "")
	assert.NoError(t, err)
}

// racingStore hides the existing review from FindReview, the way a second
// concurrent submit sees the world before the first one commits.
type racingStore struct{ *memory.Store }

func (racingStore) FindReview(context.Context, string, string) (*domain.Review, error) {
	return nil, domain.ErrNotFound
}

func TestConcurrentDuplicateIsConflict(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.CreateProduct(ctx, &domain.Product{ID: "p1", Title: "Mug"}))
	require.NoError(t, st.InsertReview(ctx, &domain.Review{ID: "r0", UserID: ana.ID, ProductID: "p1", Rating: 3}))

	rs := racingStore{st}
	l := NewLedger(rs, catalog.NewService(rs, nil, nil), nil, nil)
	_, err := l.SubmitOrUpdate(ctx, ana, "p1", 5, "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	ratings, _ := st.ProductRatings(ctx, "p1")
	assert.Equal(t, []int{3}, ratings)
}

func TestListings(t *testing.T) {
	l, _, _ := setup(t)
	ctx := context.Background()

	_, err := l.ListByProduct(ctx, "p1", 1, 10)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = l.ListAll(ctx, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	for i := 0; i < 3; i++ {
		_, err := l.SubmitOrUpdate(ctx, auth.Principal{ID: fmt.Sprintf("u%d", i)}, "p1", 3, fmt.Sprintf("r%d", i))
		require.NoError(t, err)
	}

	page, err := l.ListByProduct(ctx, "p1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "r2", page[0].Text)

	_, err = l.ListByProduct(ctx, "p1", 0, 2)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	_, err = l.ListByProduct(ctx, "p1", 1, 0)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	assert.NotPanics(t, func() { _, err = l.ListByProduct(ctx, "p1", math.MaxInt, 100) })
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	all, err := l.ListAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = l.ListAll(ctx, -1)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

type brokenRatingStore struct{ *memory.Store }

func (brokenRatingStore) SetRating(context.Context, string, float64) error {
	return errors.New("connection reset")
}

func TestStaleRatingIsReported(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.CreateProduct(ctx, &domain.Product{ID: "p1", Title: "Mug"}))

	bs := brokenRatingStore{st}
	pub := &mockPublisher{}
	l := NewLedger(bs, catalog.NewService(bs, nil, nil), pub, nil)

	_, err := l.SubmitOrUpdate(ctx, ana, "p1", 4, "ok")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, msgRatingStale, apperr.Message(err))
	assert.ErrorContains(t, err, "connection reset")

	ratings, _ := st.ProductRatings(ctx, "p1")
	assert.Equal(t, []int{4}, ratings, "review is kept")
	require.Len(t, pub.payloads, 1, "event still published for the rating replay")
	assert.Equal(t, "p1", pub.payloads[0].ProductID)
}
