package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Principal is the authenticated identity with its role resolved once at
// login. ProfileID is the id of the patient, medical professional or
// administrator row matching Role.
type Principal struct {
	IdentityID uuid.UUID
	Username   string
	Role       Role
	ProfileID  uuid.UUID
}

func (p *Principal) Is(r Role) bool {
	return p != nil && p.Role == r
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// FromEcho returns the principal of the request, or nil when anonymous.
func FromEcho(c echo.Context) *Principal {
	return PrincipalFromContext(c.Request().Context())
}

// LandingPath is where a denied request is sent back to.
func LandingPath(p *Principal) string {
	if p == nil {
		return "/login/"
	}
	return "/dashboard/"
}
