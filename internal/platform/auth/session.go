package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const SessionCookie = "hospital_session"

// SessionClaims are carried in the signed session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	ProfileID string `json:"profile_id,omitempty"`
}

// Principal rebuilds the request principal from the claims.
func (c *SessionClaims) Principal() (*Principal, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	p := &Principal{IdentityID: id, Username: c.Username, Role: c.Role}
	if c.Role != RoleNone {
		if !c.Role.Valid() {
			return nil, ErrInvalidRole
		}
		pid, err := uuid.Parse(c.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("invalid profile id: %w", err)
		}
		p.ProfileID = pid
	}
	return p, nil
}

// SessionManager issues and verifies HS256 session tokens.
type SessionManager struct {
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionManager(key []byte, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{key: key, ttl: ttl, secure: secure, now: time.Now}
}

// Issue signs a new session for p.
func (m *SessionManager) Issue(p *Principal) (string, *SessionClaims, error) {
	now := m.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.IdentityID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Username: p.Username,
		Role:     p.Role,
	}
	if p.Role != RoleNone {
		claims.ProfileID = p.ProfileID.String()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return token, claims, nil
}

// Parse verifies the signature and expiry of a session token.
func (m *SessionManager) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, fmt.Errorf("invalid session")
	}
	return claims, nil
}

func (m *SessionManager) SetCookie(c echo.Context, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) ClearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
