package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/medcore/hospital/internal/platform/web"
)

// Require returns middleware that lets the request through only when the
// principal's role may perform act on kind. Otherwise the principal is sent
// back to its landing page with msg.
func (g *Gate) Require(kind Kind, act Action, msg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !g.Can(FromEcho(c), act, kind) {
				return Deny(c, msg)
			}
			return next(c)
		}
	}
}

// RequireRole admits only principals holding role. Portal sections are
// per role even where the policy would let an administrator through.
func RequireRole(role Role, msg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !FromEcho(c).Is(role) {
				return Deny(c, msg)
			}
			return next(c)
		}
	}
}

// Deny answers an authorization failure with a flash message and a redirect.
func Deny(c echo.Context, msg string) error {
	return DenyTo(c, LandingPath(FromEcho(c)), msg)
}

// DenyTo is Deny with an explicit redirect target.
func DenyTo(c echo.Context, path, msg string) error {
	return web.RedirectWithFlash(c, path, web.LevelError, msg)
}
