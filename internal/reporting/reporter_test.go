package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/store/memory"
)

var admin = auth.Principal{ID: "a1", Role: auth.RoleAdmin}

func line(id string, status domain.Status, price float64, qty int) domain.OrderLine {
	return domain.OrderLine{ID: id, ProductID: "p", Quantity: qty, Status: status, ProductPrice: price}
}

func TestAllOrders(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	users := []struct {
		id    string
		lines []domain.OrderLine
	}{
		{"first", []domain.OrderLine{line("a", domain.StatusShipped, 10, 3), line("b", domain.StatusPending, 99, 1)}},
		{"cart-only", []domain.OrderLine{line("c", domain.StatusPending, 5, 1)}},
		{"third", []domain.OrderLine{line("d", domain.StatusProcessing, 2.5, 1), line("e", domain.StatusDelivered, 4, 2)}},
	}
	for i, u := range users {
		_, err := st.EnsureUser(ctx, domain.User{ID: u.id, Name: "name-" + u.id, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
		for _, l := range u.lines {
			require.NoError(t, st.AppendLine(ctx, u.id, l))
		}
	}

	out, err := NewReporter(st, nil).AllOrders(ctx, admin)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "name-first", out[0].UserName)
	require.Len(t, out[0].Lines, 1)
	assert.Equal(t, 10.0, out[0].TotalPrice, "price is summed once per line, not times quantity")

	assert.Equal(t, "name-third", out[1].UserName)
	assert.Len(t, out[1].Lines, 2)
	assert.InDelta(t, 6.5, out[1].TotalPrice, 1e-9)
}

func TestAllOrdersEmptyAndAuth(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	r := NewReporter(st, nil)

	_, err := r.AllOrders(ctx, auth.Principal{ID: "u1"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = r.AllOrders(ctx, admin)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, _ = st.EnsureUser(ctx, domain.User{ID: "u1"})
	require.NoError(t, st.AppendLine(ctx, "u1", line("x", domain.StatusPending, 1, 1)))
	_, err = r.AllOrders(ctx, admin)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, "no orders", apperr.Message(err))
}
