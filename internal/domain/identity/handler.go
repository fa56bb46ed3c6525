package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/web"
)

const msgInvalidLogin = "Invalid username or password."

// LoginRecorder counts login attempts per login page and outcome.
type LoginRecorder interface {
	LoginAttempt(page, outcome string)
}

type Handler struct {
	svc         *Service
	sessions    *auth.SessionManager
	revocations auth.RevocationStore
	metrics     LoginRecorder
	logger      zerolog.Logger
}

func NewHandler(svc *Service, sessions *auth.SessionManager, revocations auth.RevocationStore, metrics LoginRecorder, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, sessions: sessions, revocations: revocations, metrics: metrics, logger: logger}
}

// RegisterRoutes mounts the account pages. limit guards the credential
// posts.
func (h *Handler) RegisterRoutes(g *echo.Group, limit echo.MiddlewareFunc) {
	g.GET("/login/", h.LoginPage)
	g.GET("/login/:role/", h.LoginPage)
	g.GET("/signup/:role/", h.SignupPage)
	g.POST("/logout/", h.Logout)
	g.GET("/logout/", h.Logout)

	g.POST("/login/", h.Login, limit)
	g.POST("/login/:role/", h.Login, limit)
	g.POST("/signup/:role/", h.Signup, limit)
}

func loginView(role auth.Role) string {
	if role == auth.RoleNone {
		return "login"
	}
	return string(role) + "_login"
}

// pageRole reads the :role path parameter. An absent parameter is the
// generic login page.
func pageRole(c echo.Context) (auth.Role, error) {
	raw := c.Param("role")
	if raw == "" {
		return auth.RoleNone, nil
	}
	role, err := auth.ParseRole(raw)
	if err != nil || string(role) != raw {
		return auth.RoleNone, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return role, nil
}

func (h *Handler) LoginPage(c echo.Context) error {
	role, err := pageRole(c)
	if err != nil {
		return err
	}
	if p := auth.FromEcho(c); p != nil {
		return web.Redirect(c, "/dashboard/")
	}
	return web.Render(c, http.StatusOK, loginView(role), map[string]interface{}{
		"next": safeNext(c.QueryParam("next")),
	})
}

func (h *Handler) Login(c echo.Context) error {
	role, err := pageRole(c)
	if err != nil {
		return err
	}
	view := loginView(role)
	ctx := c.Request().Context()

	principal, err := h.svc.Authenticate(ctx, c.FormValue("username"), c.FormValue("password"), role)
	switch {
	case errors.Is(err, ErrWrongRole):
		h.metrics.LoginAttempt(view, "wrong_role")
		return web.RedirectWithFlash(c, role.LoginPath(), web.LevelError,
			fmt.Sprintf("This login is for %s only.", role.Audience()))
	case errors.Is(err, ErrInvalidCredentials):
		h.metrics.LoginAttempt(view, "invalid")
		web.AddFlash(c, web.LevelError, msgInvalidLogin)
		return web.Render(c, http.StatusUnauthorized, view, map[string]interface{}{
			"next": safeNext(c.FormValue("next")),
		})
	case err != nil:
		h.metrics.LoginAttempt(view, "error")
		return fmt.Errorf("authenticate: %w", err)
	}

	token, claims, err := h.sessions.Issue(principal)
	if err != nil {
		return err
	}
	h.sessions.SetCookie(c, token, claims.ExpiresAt.Time)
	h.metrics.LoginAttempt(view, "success")
	h.logger.Info().
		Str("identity_id", principal.IdentityID.String()).
		Str("role", string(principal.Role)).
		Msg("login")

	if next := safeNext(c.FormValue("next")); next != "" {
		return web.Redirect(c, next)
	}
	if role == auth.RoleNone {
		return web.Redirect(c, "/dashboard/")
	}
	return web.Redirect(c, role.DashboardPath())
}

// safeNext keeps only same-site absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return ""
	}
	return next
}

func (h *Handler) Logout(c echo.Context) error {
	if claims := auth.ClaimsFromEcho(c); claims != nil && claims.ExpiresAt != nil {
		if err := h.revocations.Revoke(c.Request().Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
	}
	h.sessions.ClearCookie(c)
	return web.Redirect(c, "/")
}

func signupView(role auth.Role) string {
	return string(role) + "_signup"
}

// Title is the role name used in account messages.
func Title(role auth.Role) string {
	switch role {
	case auth.RolePatient:
		return "Patient"
	case auth.RoleMedical:
		return "Medical Professional"
	case auth.RoleAdmin:
		return "Administrator"
	}
	return "User"
}

func (h *Handler) SignupPage(c echo.Context) error {
	role, err := pageRole(c)
	if err != nil || role == auth.RoleNone {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return web.Render(c, http.StatusOK, signupView(role), nil)
}

func (h *Handler) Signup(c echo.Context) error {
	role, err := pageRole(c)
	if err != nil || role == auth.RoleNone {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	var form SignupForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ident, _, err := h.svc.Signup(c.Request().Context(), role, form)
	if err != nil {
		return web.RenderFormError(c, signupView(role), nil, err)
	}

	h.logger.Info().Str("identity_id", ident.ID.String()).Str("role", string(role)).Msg("account created")
	return web.RedirectWithFlash(c, role.LoginPath(), web.LevelSuccess,
		Title(role)+" account created successfully! You can now log in.")
}
