package auth

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const claimsKey = "auth.session_claims"

// Session resolves the session cookie into a Principal. Requests without a
// valid, unrevoked session continue anonymously and a bad cookie is cleared.
func Session(sm *SessionManager, store RevocationStore, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			claims, err := sm.Parse(cookie.Value)
			if err != nil {
				sm.ClearCookie(c)
				return next(c)
			}

			ctx := c.Request().Context()
			revoked, err := store.IsRevoked(ctx, claims.ID)
			if err != nil {
				logger.Error().Err(err).Str("jti", claims.ID).Msg("session revocation lookup failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
			}
			if revoked {
				sm.ClearCookie(c)
				return next(c)
			}

			p, err := claims.Principal()
			if err != nil {
				sm.ClearCookie(c)
				return next(c)
			}

			c.Set(claimsKey, claims)
			c.Set("identity_id", p.IdentityID.String())
			c.Set("role", string(p.Role))
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

// ClaimsFromEcho returns the verified session claims of the request.
func ClaimsFromEcho(c echo.Context) *SessionClaims {
	claims, _ := c.Get(claimsKey).(*SessionClaims)
	return claims
}

// RequireLogin sends anonymous requests to the login page, remembering
// where they were going.
func RequireLogin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if FromEcho(c) == nil {
				target := "/login/?next=" + url.QueryEscape(c.Request().URL.RequestURI())
				return c.Redirect(http.StatusSeeOther, target)
			}
			return next(c)
		}
	}
}
