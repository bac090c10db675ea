package reporting

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
)

type UserOrders struct {
	UserID     string             `json:"userId"`
	UserName   string             `json:"userName"`
	Email      string             `json:"email,omitempty"`
	Lines      []domain.OrderLine `json:"lines"`
	TotalPrice float64            `json:"totalPrice"`
}

type Reporter struct {
	Store domain.OrderStore
	Log   *zap.Logger
}

func NewReporter(store domain.OrderStore, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{Store: store, Log: log}
}

// AllOrders lists, per user in creation order, the lines that left the cart.
// TotalPrice sums each line's snapshot price once, regardless of quantity.
func (r *Reporter) AllOrders(ctx context.Context, admin auth.Principal) (out []UserOrders, err error) {
	defer func() { metrics.RecordOperation("all_orders", err) }()

	if err := auth.RequireAdmin(admin); err != nil {
		return nil, err
	}
	users, err := r.Store.AllUserOrders(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })

	for _, u := range users {
		row := UserOrders{UserID: u.UserID, UserName: u.UserName, Email: u.Email}
		for _, l := range u.Lines {
			if !l.Status.IsFulfilled() {
				continue
			}
			row.Lines = append(row.Lines, l)
			row.TotalPrice += l.ProductPrice
		}
		if len(row.Lines) > 0 {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("no orders")
	}
	r.Log.Debug("all orders report", zap.Int("users", len(out)))
	return out, nil
}
