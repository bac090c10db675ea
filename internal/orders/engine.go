// Package orders is the cart and order-status engine. Each user owns an
// ordered collection of lines; a line starts pending and moves forward
// through processing, shipped and delivered.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
)

// StockReserver takes stock off a product atomically.
type StockReserver interface {
	ReserveStock(ctx context.Context, productID string, qty int) (left int, err error)
}

type Engine struct {
	Store  domain.Store
	Stock  StockReserver
	Events domain.Publisher
	Log    *zap.Logger
}

func NewEngine(store domain.Store, stock StockReserver, events domain.Publisher, log *zap.Logger) *Engine {
	if events == nil {
		events = domain.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Store: store, Stock: stock, Events: events, Log: log}
}

type AddResult struct {
	Line      domain.OrderLine `json:"line"`
	StockLeft int              `json:"stockLeft"`
	Message   string           `json:"message"`
}

// AddToCart reserves qty units and appends a pending line carrying the
// product's current name and price. A failed append gives the stock back.
func (e *Engine) AddToCart(ctx context.Context, p auth.Principal, productID string, qty int) (res *AddResult, err error) {
	defer func() { metrics.RecordOperation("add_to_cart", err) }()

	if err := auth.Require(p); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, apperr.InvalidInput("quantity must be positive")
	}
	prod, err := e.Store.GetProduct(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.NotFound("product not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if _, err := e.Store.EnsureUser(ctx, domain.User{ID: p.ID, Name: p.Name, Email: p.Email, Role: p.Role}); err != nil {
		return nil, apperr.Internal(err)
	}

	left, err := e.Stock.ReserveStock(ctx, productID, qty)
	if err != nil {
		return nil, err
	}

	line := domain.OrderLine{
		ID:           uuid.NewString(),
		ProductID:    prod.ID,
		Quantity:     qty,
		Status:       domain.StatusPending,
		ProductName:  prod.Title,
		ProductPrice: prod.Price,
	}
	if err := e.Store.AppendLine(ctx, p.ID, line); err != nil {
		return nil, e.compensate(ctx, productID, qty, err)
	}

	e.publish(ctx, domain.EventCartItemAdded, p.ID, domain.CartItemAddedPayload{
		UserID:    p.ID,
		LineID:    line.ID,
		ProductID: prod.ID,
		Quantity:  qty,
		Price:     prod.Price,
		StockLeft: left,
	})
	return &AddResult{Line: line, StockLeft: left, Message: "product added to cart"}, nil
}

func (e *Engine) compensate(ctx context.Context, productID string, qty int, cause error) error {
	if rerr := e.Store.IncrementStock(ctx, productID, qty); rerr != nil {
		e.Log.Error("stock not restored after failed add to cart",
			zap.String("product_id", productID), zap.Int("qty", qty),
			zap.Error(cause), zap.NamedError("restore_error", rerr))
		return apperr.Wrap(apperr.KindInternal,
			"could not add item to cart; reserved stock was not restored",
			fmt.Errorf("append line: %w; restore stock: %v", cause, rerr))
	}
	e.Log.Warn("add to cart rolled back", zap.String("product_id", productID), zap.Error(cause))
	return apperr.Internal(fmt.Errorf("append line: %w", cause))
}

// DeleteCartItem removes a pending line from the caller's own cart. The
// reserved stock is not returned to the product.
func (e *Engine) DeleteCartItem(ctx context.Context, p auth.Principal, lineID string) (err error) {
	defer func() { metrics.RecordOperation("delete_cart_item", err) }()

	if err := auth.Require(p); err != nil {
		return err
	}
	lines, err := e.lines(ctx, p.ID)
	if err != nil {
		return err
	}
	var found *domain.OrderLine
	for i := range lines {
		if lines[i].ID == lineID {
			found = &lines[i]
			break
		}
	}
	if found == nil {
		return apperr.NotFound("cart item not found")
	}
	if found.Status != domain.StatusPending {
		return apperr.InvalidInput("only pending items can be removed from the cart")
	}
	if err := e.Store.RemoveLine(ctx, p.ID, lineID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperr.NotFound("cart item not found")
		}
		return apperr.Internal(err)
	}
	return nil
}

type ConfirmResult struct {
	Changed int                `json:"changedCount"`
	Lines   []domain.OrderLine `json:"lines"`
	Message string             `json:"message"`
}

// ConfirmOrder moves every line that is not already processing to status.
// Shipped and delivered lines are rewritten too; only processing is skipped.
func (e *Engine) ConfirmOrder(ctx context.Context, p auth.Principal, status domain.Status) (res *ConfirmResult, err error) {
	defer func() { metrics.RecordOperation("confirm_order", err) }()

	if err := auth.Require(p); err != nil {
		return nil, err
	}
	if err := checkTarget(status); err != nil {
		return nil, err
	}
	lines, err := e.lines(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	var ids []string
	var changed []domain.OrderLine
	for _, l := range lines {
		if l.Status == domain.StatusProcessing {
			continue
		}
		ids = append(ids, l.ID)
		l.Status = status
		changed = append(changed, l)
	}
	if len(ids) == 0 {
		return &ConfirmResult{Lines: []domain.OrderLine{}, Message: "no changes"}, nil
	}
	if err := e.Store.SetLinesStatus(ctx, p.ID, ids, status); err != nil {
		return nil, apperr.Internal(err)
	}

	e.publish(ctx, domain.EventOrderConfirmed, p.ID, domain.OrderConfirmedPayload{
		UserID:    p.ID,
		UserEmail: p.Email,
		UserName:  p.Name,
		Status:    status,
		LineIDs:   ids,
	})
	return &ConfirmResult{
		Changed: len(ids),
		Lines:   changed,
		Message: fmt.Sprintf("%d order line(s) updated to %s", len(ids), status),
	}, nil
}

type ChangeResult struct {
	Matched bool   `json:"-"`
	Message string `json:"message"`
}

// ChangeStatus overwrites the status of line orderID in whichever user owns
// it. It reports success whether or not a line matched; Matched carries the
// real outcome for logs and events.
func (e *Engine) ChangeStatus(ctx context.Context, admin auth.Principal, orderID string, status domain.Status) (res *ChangeResult, err error) {
	defer func() { metrics.RecordOperation("change_status", err) }()

	if err := auth.RequireAdmin(admin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.InvalidInput("orderId is required")
	}
	if err := checkTarget(status); err != nil {
		return nil, err
	}
	matched, err := e.Store.SetLineStatus(ctx, orderID, status)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !matched {
		e.Log.Warn("change status matched no order line",
			zap.String("order_id", orderID), zap.String("admin_id", admin.ID))
	}
	e.publish(ctx, domain.EventOrderStatusChanged, orderID, domain.OrderStatusChangedPayload{
		LineID:  orderID,
		Status:  status,
		Matched: matched,
		AdminID: admin.ID,
	})
	return &ChangeResult{Matched: matched, Message: "order status updated"}, nil
}

// Cart returns the caller's pending lines.
func (e *Engine) Cart(ctx context.Context, p auth.Principal) ([]domain.OrderLine, error) {
	return e.filter(ctx, p, func(s domain.Status) bool { return s == domain.StatusPending })
}

// ActiveOrders returns the caller's lines that have left the cart.
func (e *Engine) ActiveOrders(ctx context.Context, p auth.Principal) ([]domain.OrderLine, error) {
	return e.filter(ctx, p, func(s domain.Status) bool { return s != domain.StatusPending })
}

func (e *Engine) filter(ctx context.Context, p auth.Principal, keep func(domain.Status) bool) ([]domain.OrderLine, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	lines, err := e.lines(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		if keep(l.Status) {
			out = append(out, l)
		}
	}
	return out, nil
}

// lines treats an unknown user as an empty collection.
func (e *Engine) lines(ctx context.Context, userID string) ([]domain.OrderLine, error) {
	lines, err := e.Store.Lines(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return lines, nil
}

func checkTarget(status domain.Status) error {
	if status == "" {
		return apperr.InvalidInput("status is required")
	}
	if !domain.CanMoveTo(status) {
		return apperr.Newf(apperr.KindInvalidInput, "order lines cannot move back to %s", status)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, eventType, key string, payload any) {
	if err := e.Events.Publish(ctx, eventType, key, payload); err != nil {
		e.Log.Warn("publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}
