package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/models"
)

const adminContextKey = "admin_key"

var (
	ErrNoToken      = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid or expired session")
)

// Claims carries the session id as the JWT ID.
type Claims struct {
	KeyName string `json:"key_name"`
	jwt.RegisteredClaims
}

// KeyHash returns a deterministic HMAC hash of an admin key value.
func KeyHash(value string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(strings.TrimSpace(value)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sessions looks up the admin key behind a session.
type Sessions interface {
	// SessionKey returns the session and its key. sql.ErrNoRows when missing.
	SessionKey(ctx context.Context, sessionID uuid.UUID) (*models.AdminSession, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

// BunSessions implements Sessions on the admin_sessions table.
type BunSessions struct {
	DB bun.IDB
}

func (s BunSessions) SessionKey(ctx context.Context, sessionID uuid.UUID) (*models.AdminSession, error) {
	sess := new(models.AdminSession)
	err := s.DB.NewSelect().Model(sess).
		Relation("AdminKey").
		Where("s.id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s BunSessions) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.DB.NewDelete().Model((*models.AdminSession)(nil)).
		Where("id = ?", sessionID).
		Exec(ctx)
	return err
}

// Authenticator issues and verifies session tokens.
type Authenticator struct {
	sessions Sessions
	secret   []byte
	now      func() time.Time
}

func NewAuthenticator(sessions Sessions, secret []byte) *Authenticator {
	return &Authenticator{sessions: sessions, secret: secret, now: time.Now}
}

// Issue signs a token for sess.
func (a *Authenticator) Issue(sess *models.AdminSession, keyName string) (string, error) {
	claims := &Claims{
		KeyName: keyName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID.String(),
			IssuedAt:  jwt.NewNumericDate(a.now()),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies the signature and expiry of raw and returns its claims.
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve returns the admin key behind raw. Expired sessions are deleted.
func (a *Authenticator) Resolve(ctx context.Context, raw string) (*models.AdminKey, *Claims, error) {
	claims, err := a.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	sess, err := a.sessions.SessionKey(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("loading session: %w", err)
	}

	now := a.now()
	if !sess.ExpiresAt.After(now) {
		if err := a.sessions.DeleteSession(ctx, sessionID); err != nil {
			zap.L().Warn("deleting expired session", zap.Error(err))
		}
		return nil, nil, ErrInvalidToken
	}
	if !sess.AdminKey.Usable(now) {
		return nil, nil, ErrInvalidToken
	}
	return sess.AdminKey, claims, nil
}

// BearerToken extracts the token from the Authorization header.
// A bare token without the "Bearer " prefix is accepted too.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

func (a *Authenticator) authenticate(c echo.Context) (*models.AdminKey, error) {
	raw := BearerToken(c.Request())
	if raw == "" {
		return nil, ErrNoToken
	}
	key, claims, err := a.Resolve(c.Request().Context(), raw)
	if err != nil {
		return nil, err
	}
	SetAdmin(c, key)
	c.Set("session_id", claims.ID)
	return key, nil
}

// RequireAdmin rejects requests without a valid session.
func RequireAdmin(a *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := a.authenticate(c); err != nil {
				if errors.Is(err, ErrNoToken) || errors.Is(err, ErrInvalidToken) {
					return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
				}
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			return next(c)
		}
	}
}

// OptionalAdmin attaches the admin key when a valid session is presented and
// otherwise lets the request through anonymously.
func OptionalAdmin(a *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := a.authenticate(c); err != nil && !errors.Is(err, ErrNoToken) && !errors.Is(err, ErrInvalidToken) {
				zap.L().Warn("optional auth", zap.Error(err))
			}
			return next(c)
		}
	}
}

// SetAdmin attaches an authenticated admin key to the request context.
func SetAdmin(c echo.Context, k *models.AdminKey) {
	c.Set(adminContextKey, k)
}

// Admin returns the authenticated admin key, or nil.
func Admin(c echo.Context) *models.AdminKey {
	k, _ := c.Get(adminContextKey).(*models.AdminKey)
	return k
}

// SessionID returns the id of the current session, or uuid.Nil.
func SessionID(c echo.Context) uuid.UUID {
	s, _ := c.Get("session_id").(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
