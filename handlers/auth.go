package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	mw "github.com/padraicbc/huntapi/middleware"
	"github.com/padraicbc/huntapi/models"
)

type loginRequest struct {
	AdminKey string `json:"adminKey"`
}

type adminCheck struct {
	IsAdmin          bool        `json:"isAdmin"`
	AdminDisplayName string      `json:"adminDisplayName,omitempty"`
	KeyName          string      `json:"keyName,omitempty"`
	KickUsername     *string     `json:"kickUsername,omitempty"`
	Role             models.Role `json:"role,omitempty"`
}

// Login exchanges an admin key value for a session token.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}
	if strings.TrimSpace(req.AdminKey) == "" {
		return badRequest("adminKey is required")
	}

	ctx := c.Request().Context()
	key := new(models.AdminKey)
	err := h.db.NewSelect().Model(key).
		Where("key_hash = ?", mw.KeyHash(req.AdminKey, h.cfg.SecretKey())).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return httpError(err)
	}

	now := time.Now()
	if err != nil || !key.Usable(now) {
		zap.L().Warn("admin login rejected", zap.String("ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
	}

	sess := &models.AdminSession{
		ID:         uuid.New(),
		AdminKeyID: key.ID,
		ExpiresAt:  now.Add(h.cfg.SessionTTL),
	}
	if _, err := h.db.NewInsert().Model(sess).Exec(ctx); err != nil {
		return httpError(err)
	}

	token, err := h.auth.Issue(sess, key.KeyName)
	if err != nil {
		return httpError(err)
	}

	zap.L().Info("admin login", zap.String("key_name", key.KeyName))
	return c.JSON(http.StatusOK, map[string]any{
		"sessionToken": token,
		"expiresAt":    sess.ExpiresAt,
		"message":      "Login successful",
	})
}

// CheckAdmin reports on the session presented, if any.
func (h *Handler) CheckAdmin(c echo.Context) error {
	k := mw.Admin(c)
	if k == nil {
		return c.JSON(http.StatusUnauthorized, adminCheck{})
	}
	return c.JSON(http.StatusOK, adminCheck{
		IsAdmin:          true,
		AdminDisplayName: k.DisplayName,
		KeyName:          k.KeyName,
		KickUsername:     k.KickUsername,
		Role:             k.Role,
	})
}

// Logout revokes the current session.
func (h *Handler) Logout(c echo.Context) error {
	id := mw.SessionID(c)
	if id == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, mw.ErrNoToken.Error())
	}
	if err := (mw.BunSessions{DB: h.db}).DeleteSession(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
