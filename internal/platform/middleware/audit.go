package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcore/hospital/internal/platform/auth"
)

// AuditEntry records who touched which clinical page.
type AuditEntry struct {
	IdentityID string
	Role       string
	Action     string
	Route      string
	Path       string
	Method     string
	RemoteIP   string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every authenticated request under the dashboard and facility
// administration trees.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			p := auth.FromEcho(c)
			if p == nil {
				return err
			}

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			rid, _ := c.Get("request_id").(string)
			entry := AuditEntry{
				IdentityID: p.IdentityID.String(),
				Role:       string(p.Role),
				Action:     methodAction(req.Method),
				Route:      c.Path(),
				Path:       req.URL.Path,
				Method:     req.Method,
				RemoteIP:   c.RealIP(),
				RequestID:  rid,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", rid).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "record_access").
				Str("request_id", entry.RequestID).
				Str("identity_id", entry.IdentityID).
				Str("role", entry.Role).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/dashboard/") || strings.HasPrefix(path, "/facility-admin/") || strings.HasPrefix(path, "/admin/")
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "write"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}
