package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/bracket"
	"github.com/padraicbc/huntapi/cache"
	"github.com/padraicbc/huntapi/config"
	"github.com/padraicbc/huntapi/db"
	mw "github.com/padraicbc/huntapi/middleware"
	"github.com/padraicbc/huntapi/models"
)

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	db      *bun.DB
	cfg     *config.Config
	auth    *mw.Authenticator
	overlay *cache.Overlay
}

// New creates a Handler. overlay may be nil when Redis is not configured.
func New(db *bun.DB, cfg *config.Config, auth *mw.Authenticator, overlay *cache.Overlay) *Handler {
	return &Handler{db: db, cfg: cfg, auth: auth, overlay: overlay}
}

// inTx runs fn in a transaction that is rolled back unless fn succeeds.
func (h *Handler) inTx(ctx context.Context, fn func(tx bun.Tx) error) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// httpError maps store and domain errors to HTTP errors.
func httpError(err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, sql.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case db.IsUniqueViolation(err):
		return echo.NewHTTPError(http.StatusConflict, "already exists")
	case db.IsCheckViolation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, bracket.ErrDecided):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, bracket.ErrSize), errors.Is(err, bracket.ErrNoMatch),
		errors.Is(err, bracket.ErrSlot), errors.Is(err, bracket.ErrIncomplete):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func paramID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, badRequest("invalid " + name)
	}
	return id, nil
}

// admin returns the authenticated key. Routes using it sit behind RequireAdmin.
func admin(c echo.Context) (*models.AdminKey, error) {
	k := mw.Admin(c)
	if k == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, mw.ErrNoToken.Error())
	}
	return k, nil
}

// viewerID is the id of the authenticated key, or uuid.Nil for anonymous requests.
func viewerID(c echo.Context) uuid.UUID {
	if k := mw.Admin(c); k != nil {
		return k.ID
	}
	return uuid.Nil
}

// invalidateOverlays drops cached overlay payloads that may show data of key.
func (h *Handler) invalidateOverlays(ctx context.Context, key *models.AdminKey) {
	err := h.overlay.Invalidate(ctx,
		cache.AdminScope(key.KeyName),
		cache.LatestScope(key.ID.String()),
		cache.LatestScope(""),
	)
	if err != nil {
		zap.L().Warn("overlay cache invalidation", zap.String("key_name", key.KeyName), zap.Error(err))
	}
}

// Healthz pings the database.
func (h *Handler) Healthz(c echo.Context) error {
	if err := h.db.PingContext(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
