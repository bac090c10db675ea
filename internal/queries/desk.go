// Package queries is the customer support desk: users send questions, the ops
// mailbox is told about each one, admins read them back.
package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	msgNotifyFailed = "query saved, but the support team could not be notified"
)

type Store interface {
	domain.UserStore
	domain.QueryStore
}

type Desk struct {
	Store    Store
	Sender   notify.Sender
	OpsEmail string
	Log      *zap.Logger

	validate *validator.Validate
}

func NewDesk(store Store, sender notify.Sender, opsEmail string, log *zap.Logger) *Desk {
	if log == nil {
		log = zap.NewNop()
	}
	if sender == nil {
		sender = notify.LogSender{Log: log}
	}
	return &Desk{Store: store, Sender: sender, OpsEmail: opsEmail, Log: log, validate: validator.New()}
}

type NewQuery struct {
	Name    string
	Phone   string
	Email   string
	Message string
}

type SubmitResult struct {
	Query   *domain.Query `json:"query"`
	Message string        `json:"message"`
}

func (d *Desk) check(in *NewQuery) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)

	for _, f := range []struct{ name, v string }{
		{"name", in.Name}, {"phone", in.Phone}, {"email", in.Email}, {"message", in.Message},
	} {
		if f.v == "" {
			return apperr.Newf(apperr.KindInvalidInput, "%s is required", f.name)
		}
	}
	if d.validate.Var(in.Phone, "min=10,max=14") != nil {
		return apperr.InvalidInput("phone must be 10 to 14 characters")
	}
	if d.validate.Var(in.Email, "email") != nil {
		return apperr.InvalidInput("please enter a valid email")
	}
	return nil
}

// SubmitQuery stores the query under the caller and mails the ops inbox
// before returning.
func (d *Desk) SubmitQuery(ctx context.Context, p auth.Principal, in NewQuery) (res *SubmitResult, err error) {
	defer func() { metrics.RecordOperation("submit_query", err) }()

	if err := auth.Require(p); err != nil {
		return nil, err
	}
	if err := d.check(&in); err != nil {
		return nil, err
	}
	user, err := d.Store.EnsureUser(ctx, domain.User{ID: p.ID, Name: p.Name, Email: p.Email, Role: p.Role})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	q := &domain.Query{
		ID:      uuid.NewString(),
		Name:    in.Name,
		Phone:   in.Phone,
		Email:   in.Email,
		Message: in.Message,
		UserID:  user.ID,
	}
	if err := d.Store.InsertQuery(ctx, q); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(err)
	}

	if d.OpsEmail == "" {
		d.Log.Warn("no ops mailbox configured, query not forwarded", zap.String("query_id", q.ID))
		return &SubmitResult{Query: q, Message: "query received"}, nil
	}

	// akun lebih dipercaya daripada isian form
	name, email := user.Name, user.Email
	if name == "" {
		name = q.Name
	}
	if email == "" {
		email = q.Email
	}
	if err := d.Sender.Send(ctx, d.OpsEmail, "New Query", notify.TemplateNewQuery, map[string]any{
		"Name":    name,
		"Phone":   q.Phone,
		"Email":   email,
		"Message": q.Message,
	}); err != nil {
		d.Log.Error("query saved without ops notification",
			zap.String("query_id", q.ID), zap.String("to", d.OpsEmail), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindInternal, msgNotifyFailed, fmt.Errorf("notify ops: %w", err))
	}
	return &SubmitResult{Query: q, Message: "query received, the support team will reply by email"}, nil
}

// ListUserQueries returns the caller's own queries, newest first. An empty
// list is not an error.
func (d *Desk) ListUserQueries(ctx context.Context, p auth.Principal) ([]domain.Query, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	out, err := d.Store.UserQueries(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if out == nil {
		out = []domain.Query{}
	}
	return out, nil
}

// ListAllQueries is the admin inbox. limit 0 means 20.
func (d *Desk) ListAllQueries(ctx context.Context, p auth.Principal, limit int) ([]domain.Query, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	switch {
	case limit < 0:
		return nil, apperr.InvalidInput("limit must not be negative")
	case limit == 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	out, err := d.Store.ListQueries(ctx, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("no queries found")
	}
	return out, nil
}
