package auth

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
)

const RoleAdmin = "admin"

// Principal is the resolved caller of a request.
type Principal struct {
	ID    string
	Role  string
	Name  string
	Email string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.ID != ""
}

// Require fails with Unauthenticated when p carries no identity.
func Require(p Principal) error {
	if p.ID == "" {
		return apperr.Unauthenticated("please login to access this resource")
	}
	return nil
}

// RequireAdmin additionally fails with Unauthorized for non-admin roles.
func RequireAdmin(p Principal) error {
	if err := Require(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return apperr.Unauthorized("you are not authorized to perform this action")
	}
	return nil
}
