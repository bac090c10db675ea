package queries

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/store/memory"
)

type sent struct {
	to, subject, template string
	data                  map[string]any
}

type mockSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (m *mockSender) Send(_ context.Context, to, subject, template string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, sent{to, subject, template, data})
	return nil
}

var (
	ana   = auth.Principal{ID: "u1", Name: "Ana", Email: "ana@shop.test", Role: "user"}
	admin = auth.Principal{ID: "a1", Role: auth.RoleAdmin}
)

func validQuery() NewQuery {
	return NewQuery{Name: "Ana", Phone: "081234567890", Email: "ana.form@shop.test", Message: "Where is my lamp?"}
}

func TestSubmitQuery(t *testing.T) {
	st := memory.New()
	sender := &mockSender{}
	d := NewDesk(st, sender, "ops@shop.test", nil)
	ctx := context.Background()

	res, err := d.SubmitQuery(ctx, ana, validQuery())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Query.ID)
	assert.Equal(t, ana.ID, res.Query.UserID)
	assert.False(t, res.Query.CreatedAt.IsZero())

	u, err := st.GetUser(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{res.Query.ID}, u.QueryIDs)

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "ops@shop.test", msg.to)
	assert.Equal(t, notify.TemplateNewQuery, msg.template)
	assert.Equal(t, "ana@shop.test", msg.data["Email"], "account email wins over the form")
	assert.Equal(t, "Where is my lamp?", msg.data["Message"])
}

func TestSubmitQueryValidation(t *testing.T) {
	d := NewDesk(memory.New(), &mockSender{}, "ops@shop.test", nil)
	ctx := context.Background()

	_, err := d.SubmitQuery(ctx, auth.Principal{}, validQuery())
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	cases := map[string]func(q *NewQuery){
		"name is required":    func(q *NewQuery) { q.Name = "  " },
		"message is required": func(q *NewQuery) { q.Message = "" },
		"phone must be":       func(q *NewQuery) { q.Phone = "123" },
		"valid email":         func(q *NewQuery) { q.Email = "not-an-email" },
	}
	for want, mutate := range cases {
		q := validQuery()
		mutate(&q)
		_, err := d.SubmitQuery(ctx, ana, q)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err), want)
		assert.Contains(t, apperr.Message(err), want)
	}
}

func TestSubmitQueryNotifyFailure(t *testing.T) {
	st := memory.New()
	d := NewDesk(st, &mockSender{err: errors.New("smtp down")}, "ops@shop.test", nil)
	ctx := context.Background()

	_, err := d.SubmitQuery(ctx, ana, validQuery())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, msgNotifyFailed, apperr.Message(err))

	mine, err := d.ListUserQueries(ctx, ana)
	require.NoError(t, err)
	assert.Len(t, mine, 1, "query is kept")
}

func TestListQueries(t *testing.T) {
	d := NewDesk(memory.New(), &mockSender{}, "ops@shop.test", nil)
	ctx := context.Background()
	bob := auth.Principal{ID: "u2", Name: "Bob"}

	mine, err := d.ListUserQueries(ctx, ana)
	require.NoError(t, err)
	assert.Empty(t, mine)
	_, err = d.ListAllQueries(ctx, admin, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	for _, p := range []auth.Principal{ana, bob, ana} {
		_, err := d.SubmitQuery(ctx, p, validQuery())
		require.NoError(t, err)
	}

	mine, err = d.ListUserQueries(ctx, ana)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = d.ListAllQueries(ctx, ana, 0)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = d.ListAllQueries(ctx, admin, -1)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	all, err := d.ListAllQueries(ctx, admin, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ana.ID, all[0].UserID, "newest first")
	assert.Equal(t, bob.ID, all[1].UserID)
}
