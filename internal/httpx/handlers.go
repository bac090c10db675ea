package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/queries"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/reporting"
	"github.com/ariefcatur/go-storefront-orders/internal/reviews"
)

const (
	readTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
)

// IdempotencyStore replays the first response for a repeated key.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (cached []byte, fresh bool, err error)
	Complete(ctx context.Context, key string, body []byte) error
	Abort(ctx context.Context, key string) error
}

type Handler struct {
	Catalog *catalog.Service
	Reviews *reviews.Ledger
	Orders  *orders.Engine
	Reports *reporting.Reporter
	Queries *queries.Desk
	Idem    IdempotencyStore // optional
	Log     *zap.Logger
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/search", h.searchProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/products/{id}/reviews", h.productReviews)
		r.Post("/products", h.createProduct)
		r.Delete("/products/{id}", h.deleteProduct)

		r.Post("/cart", h.addToCart)
		r.Get("/cart", h.cart)
		r.Delete("/cart/{lineId}", h.deleteCartItem)

		r.Post("/orders/confirm", h.confirmOrder)
		r.Get("/orders/active", h.activeOrders)

		r.Post("/reviews", h.submitReview)
		r.Get("/reviews", h.listReviews)

		r.Post("/queries", h.submitQuery)
		r.Get("/queries/mine", h.userQueries)

		r.Get("/admin/orders", h.allOrders)
		r.Post("/admin/orders/status", h.changeStatus)
		r.Get("/admin/queries", h.allQueries)
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) { writeError(w, h.Log, err) }

// queryInt returns def when key is absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Newf(apperr.KindInvalidInput, "%s must be a number", key)
	}
	return n, nil
}

// ---- catalog ----

type createProductReq struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Image       string  `json:"image" validate:"omitempty,url"`
	Price       float64 `json:"price" validate:"gte=0"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	p, err := h.Catalog.CreateProduct(ctx, principal(r), catalog.NewProduct(req))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"product": p})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	p, err := h.Catalog.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"product": p})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.fail(w, err)
		return
	}
	size, err := queryInt(r, "pageSize", 0)
	if err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	res, err := h.Catalog.ListProducts(ctx, page, size)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"products": res.Products,
		"page":     res.Page,
		"pageSize": res.PageSize,
		"total":    res.Total,
	})
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	ps, err := h.Catalog.SearchProducts(ctx, r.URL.Query().Get("name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"products": ps})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Catalog.DeleteProduct(ctx, principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"message":        "product deleted",
		"linesRemoved":   res.LinesRemoved,
		"reviewsRemoved": res.ReviewsRemoved,
	})
}

// ---- cart & orders ----

type addToCartReq struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required"`
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	p := principal(r)
	idemKey := r.Header.Get("Idempotency-Key")
	var key string
	if h.Idem != nil && idemKey != "" && p.ID != "" {
		key = redisx.CartAddKey(p.ID, idemKey)
		cached, fresh, err := h.Idem.Begin(ctx, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			h.fail(w, apperr.Conflict(err.Error()))
			return
		case err != nil:
			// redis down: lanjut tanpa idempotency
			h.Log.Warn("idempotency unavailable", zap.Error(err))
			key = ""
		case !fresh:
			w.Header().Set("Idempotent-Replayed", "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	res, err := h.Orders.AddToCart(ctx, p, req.ProductID, req.Quantity)
	if err != nil {
		if key != "" {
			if aerr := h.Idem.Abort(ctx, key); aerr != nil {
				h.Log.Warn("release idempotency key", zap.Error(aerr))
			}
		}
		h.fail(w, err)
		return
	}

	body := map[string]any{
		"success":   true,
		"message":   res.Message,
		"line":      res.Line,
		"stockLeft": res.StockLeft,
	}
	if key != "" {
		raw, _ := json.Marshal(body)
		if cerr := h.Idem.Complete(ctx, key, raw); cerr != nil {
			h.Log.Warn("store idempotent response", zap.Error(cerr))
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) cart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	lines, err := h.Orders.Cart(ctx, principal(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"cart": lines})
}

func (h *Handler) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	if err := h.Orders.DeleteCartItem(ctx, principal(r), chi.URLParam(r, "lineId")); err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"message": "item removed from cart"})
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Orders.ConfirmOrder(ctx, principal(r), domain.Status(req.Status))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"changedCount": res.Changed,
		"lines":        res.Lines,
		"message":      res.Message,
	})
}

func (h *Handler) activeOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	lines, err := h.Orders.ActiveOrders(ctx, principal(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"orders": lines})
}

type changeStatusReq struct {
	OrderID string `json:"orderId" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Orders.ChangeStatus(ctx, principal(r), req.OrderID, domain.Status(req.Status))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"message": res.Message})
}

func (h *Handler) allOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	rows, err := h.Reports.AllOrders(ctx, principal(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"orders": rows})
}

// ---- reviews ----

type reviewReq struct {
	ProductID string `json:"productId" validate:"required"`
	Rating    int    `json:"rating"`
	Text      string `json:"text" validate:"max=2000"`
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Reviews.SubmitOrUpdate(ctx, principal(r), req.ProductID, req.Rating, req.Text)
	if err != nil {
		h.fail(w, err)
		return
	}
	code := http.StatusCreated
	if res.Updated {
		code = http.StatusOK
	}
	writeOK(w, code, map[string]any{
		"message":       res.Message,
		"review":        res.Review,
		"updated":       res.Updated,
		"productRating": res.Rating,
	})
}

func (h *Handler) productReviews(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.fail(w, err)
		return
	}
	size, err := queryInt(r, "pageSize", 10)
	if err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	rs, err := h.Reviews.ListByProduct(ctx, chi.URLParam(r, "id"), page, size)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"reviews": rs, "page": page})
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	rs, err := h.Reviews.ListAll(ctx, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"reviews": rs})
}

// ---- support queries ----

type queryReq struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (h *Handler) submitQuery(w http.ResponseWriter, r *http.Request) {
	var req queryReq
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Queries.SubmitQuery(ctx, principal(r), queries.NewQuery{
		Name: req.Name, Phone: req.Phone, Email: req.Email, Message: req.Message,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"message": res.Message, "query": res.Query})
}

func (h *Handler) userQueries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	qs, err := h.Queries.ListUserQueries(ctx, principal(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"queries": qs})
}

func (h *Handler) allQueries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	qs, err := h.Queries.ListAllQueries(ctx, principal(r), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"queries": qs})
}
