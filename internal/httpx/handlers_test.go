package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/queries"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/reporting"
	"github.com/ariefcatur/go-storefront-orders/internal/reviews"
	"github.com/ariefcatur/go-storefront-orders/internal/store/memory"
)

const secret = "test-secret"

type memIdem struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memIdem) Begin(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		m.data[key] = nil
		return nil, true, nil
	}
	if v == nil {
		return nil, false, redisx.ErrInFlight
	}
	return v, false, nil
}

func (m *memIdem) Complete(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = body
	return nil
}

func (m *memIdem) Abort(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type testServer struct {
	h     http.Handler
	store *memory.Store
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.CreateProduct(context.Background(), &domain.Product{
		ID: "p1", Title: "Desk Lamp", Description: "warm", Price: 30, Quantity: 5,
	}))
	log := zap.NewNop()
	cat := catalog.NewService(st, nil, log)
	h := &Handler{
		Catalog: cat,
		Reviews: reviews.NewLedger(st, cat, nil, log),
		Orders:  orders.NewEngine(st, cat, nil, log),
		Reports: reporting.NewReporter(st, log),
		Queries: queries.NewDesk(st, nil, "ops@shop.test", log),
		Idem:    &memIdem{data: map[string][]byte{}},
		Log:     log,
	}
	return &testServer{
		h:     NewRouter(RouterDeps{Handler: h, Verifier: auth.NewVerifier(secret), Limiter: limiter, Log: log}),
		store: st,
	}
}

func token(t *testing.T, p auth.Principal) string {
	t.Helper()
	tok, err := auth.Sign(secret, p, time.Hour)
	require.NoError(t, err)
	return tok
}

var (
	user  = auth.Principal{ID: "u1", Name: "Ana", Role: "user"}
	admin = auth.Principal{ID: "a1", Name: "Boss", Role: auth.RoleAdmin}
)

func (s *testServer) do(t *testing.T, method, path string, who *auth.Principal, body any, hdr ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *who))
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	rec, _ := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAddToCartFlow(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := s.do(t, http.MethodPost, "/api/cart", &user, map[string]any{"productId": "p1", "quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["stockLeft"])

	rec, body = s.do(t, http.MethodPost, "/api/cart", &user, map[string]any{"productId": "p1", "quantity": 3})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "InsufficientStock", body["kind"])

	rec, body = s.do(t, http.MethodGet, "/api/cart", &user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["cart"], 1)
}

func TestAuthErrors(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := s.do(t, http.MethodGet, "/api/cart", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated", body["kind"])

	rec, _ = s.do(t, http.MethodGet, "/api/cart", nil, nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/admin/orders", &user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Unauthorized", body["kind"])
}

func TestValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := s.do(t, http.MethodPost, "/api/cart", &user, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "productId is required")

	rec, _ = s.do(t, http.MethodPost, "/api/cart", &user, map[string]any{"productId": "p1", "quantity": 1, "extra": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/api/reviews", &user, map[string]any{"productId": "p1", "rating": 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidInput", body["kind"])
	ratings, _ := s.store.ProductRatings(context.Background(), "p1")
	assert.Empty(t, ratings)

	rec, _ = s.do(t, http.MethodGet, "/api/reviews?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotentAddToCart(t *testing.T) {
	s := newTestServer(t, nil)
	req := map[string]any{"productId": "p1", "quantity": 2}

	rec1, body1 := s.do(t, http.MethodPost, "/api/cart", &user, req, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2, body2 := s.do(t, http.MethodPost, "/api/cart", &user, req, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "true", rec2.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, body1["line"], body2["line"])

	p, _ := s.store.GetProduct(context.Background(), "p1")
	assert.Equal(t, 3, p.Quantity)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	_, body := s.do(t, http.MethodPost, "/api/cart", &user, map[string]any{"productId": "p1", "quantity": 1})
	lineID := body["line"].(map[string]any)["id"].(string)

	rec, body := s.do(t, http.MethodPost, "/api/orders/confirm", &user, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["changedCount"])

	rec, body = s.do(t, http.MethodPost, "/api/orders/confirm", &user, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["changedCount"])
	assert.Equal(t, "no changes", body["message"])

	rec, body = s.do(t, http.MethodPost, "/api/admin/orders/status", &admin, map[string]any{"orderId": "nope", "status": "shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, _ = s.do(t, http.MethodPost, "/api/admin/orders/status", &admin, map[string]any{"orderId": lineID, "status": "shipped"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/admin/orders", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := body["orders"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "Ana", row["userName"])
	assert.EqualValues(t, 30, row["totalPrice"])

	rec, _ = s.do(t, http.MethodDelete, "/api/cart/"+lineID, &user, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewAndCatalogRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := s.do(t, http.MethodPost, "/api/reviews", &user, map[string]any{"productId": "p1", "rating": 4, "text": "nice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["updated"])

	rec, body = s.do(t, http.MethodPost, "/api/reviews", &user, map[string]any{"productId": "p1", "rating": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["updated"])
	assert.EqualValues(t, 2, body["productRating"])

	rec, body = s.do(t, http.MethodGet, "/api/products/p1/reviews?page=1&pageSize=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["reviews"], 1)

	rec, body = s.do(t, http.MethodGet, "/api/products/search?name=lamp", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["products"], 1)

	rec, _ = s.do(t, http.MethodPost, "/api/products", &user, map[string]any{"title": "x", "description": "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/api/products", &admin, map[string]any{"title": "Chair", "description": "oak", "price": 40, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	newID := body["product"].(map[string]any)["id"].(string)

	rec, _ = s.do(t, http.MethodDelete, "/api/products/p1", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/products/p1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := body["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, newID, products[0].(map[string]any)["id"])
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestServer(t, NewRateLimiter(ctx, 0.001, 1, time.Minute))

	rec, _ := s.do(t, http.MethodGet, "/api/products", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/products", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSupportQueries(t *testing.T) {
	s := newTestServer(t, nil)
	q := map[string]any{"name": "Ana", "phone": "081234567890", "email": "ana@shop.test", "message": "Where is my lamp?"}

	rec, _ := s.do(t, http.MethodPost, "/api/queries", nil, q)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/api/queries", &user, map[string]any{"name": "Ana", "phone": "081234567890", "email": "nope", "message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "email")

	rec, body = s.do(t, http.MethodPost, "/api/queries", &user, q)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])

	rec, body = s.do(t, http.MethodGet, "/api/queries/mine", &user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["queries"], 1)

	rec, _ = s.do(t, http.MethodGet, "/api/admin/queries", &user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/admin/queries?limit=5", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["queries"], 1)
}
