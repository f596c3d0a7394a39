package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/cache"
	"github.com/padraicbc/huntapi/models"
	"github.com/padraicbc/huntapi/money"
	"github.com/padraicbc/huntapi/stats"
)

// overlayDisplay holds amounts already formatted in the hunt currency.
type overlayDisplay struct {
	StartBalance    string `json:"startBalance"`
	TotalWin        string `json:"totalWin"`
	TotalBet        string `json:"totalBet"`
	Profit          string `json:"profit"`
	BestWin         string `json:"bestWin"`
	RemainingBetSum string `json:"remainingBetSum"`
	NextBet         string `json:"nextBet,omitempty"`
}

type overlayPayload struct {
	Hunt     *models.Hunt    `json:"hunt"`
	Bonuses  []models.Bonus  `json:"bonuses"`
	Stats    *stats.Summary  `json:"stats,omitempty"`
	Display  *overlayDisplay `json:"display,omitempty"`
	AdminKey string          `json:"adminKey,omitempty"`
}

func buildOverlay(hunt *models.Hunt, bonuses []models.Bonus) overlayPayload {
	if hunt == nil {
		return overlayPayload{Bonuses: []models.Bonus{}}
	}

	s := stats.Compute(hunt, bonuses)
	cur := hunt.Currency
	d := &overlayDisplay{
		StartBalance:    money.Format(hunt.StartBalance.InexactFloat64(), cur),
		TotalWin:        money.Format(s.TotalWin, cur),
		TotalBet:        money.Format(s.TotalBet, cur),
		Profit:          money.Format(s.Profit, cur),
		BestWin:         money.Format(s.BestWinAmount, cur),
		RemainingBetSum: money.Format(s.RemainingBetSum, cur),
	}
	if s.NextBonus != nil {
		d.NextBet = money.Format(s.NextBonus.BetAmount.InexactFloat64(), cur)
	}
	return overlayPayload{Hunt: hunt, Bonuses: stats.Sorted(bonuses), Stats: &s, Display: d}
}

// latestActiveHunt returns the most recently updated unfinished hunt of owner,
// or of anyone when owner is uuid.Nil. It returns nil when there is none.
func (h *Handler) latestActiveHunt(ctx context.Context, owner uuid.UUID) (*models.Hunt, error) {
	hunt := new(models.Hunt)
	q := h.db.NewSelect().Model(hunt).
		Where("h.status <> ?", models.StatusFinished).
		OrderExpr("h.updated_at DESC").
		Limit(1)
	if owner != uuid.Nil {
		q = q.Where("h.admin_key_id = ?", owner)
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return hunt, nil
}

// overlayFor serves a cached payload for scope, building it with load on a miss.
func (h *Handler) overlayFor(ctx context.Context, scope string, load func() (overlayPayload, error)) (overlayPayload, error) {
	var p overlayPayload
	hit, err := h.overlay.Get(ctx, scope, &p)
	if err != nil {
		zap.L().Warn("overlay cache read", zap.String("scope", scope), zap.Error(err))
	}
	if hit && err == nil {
		return p, nil
	}

	p, err = load()
	if err != nil {
		return p, err
	}
	if err := h.overlay.Set(ctx, scope, p); err != nil {
		zap.L().Warn("overlay cache write", zap.String("scope", scope), zap.Error(err))
	}
	return p, nil
}

func (h *Handler) loadOverlay(ctx context.Context, owner uuid.UUID) (overlayPayload, error) {
	hunt, err := h.latestActiveHunt(ctx, owner)
	if err != nil || hunt == nil {
		return buildOverlay(nil, nil), err
	}
	bonuses, err := h.bonusesOf(ctx, h.db, hunt.ID)
	if err != nil {
		return overlayPayload{}, err
	}
	return buildOverlay(hunt, bonuses), nil
}

// LatestOverlay serves the latest active hunt of the caller, or of anyone
// for anonymous requests.
func (h *Handler) LatestOverlay(c echo.Context) error {
	owner := viewerID(c)
	scope := cache.LatestScope("")
	if owner != uuid.Nil {
		scope = cache.LatestScope(owner.String())
	}

	ctx := c.Request().Context()
	p, err := h.overlayFor(ctx, scope, func() (overlayPayload, error) {
		return h.loadOverlay(ctx, owner)
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// AdminOverlay serves the latest active hunt of the key named in the path.
// It is public so it can be used as an OBS browser source.
func (h *Handler) AdminOverlay(c echo.Context) error {
	keyName := c.Param("keyName")
	if keyName == "" {
		return badRequest("keyName param not set")
	}

	ctx := c.Request().Context()
	p, err := h.overlayFor(ctx, cache.AdminScope(keyName), func() (overlayPayload, error) {
		k := new(models.AdminKey)
		err := h.db.NewSelect().Model(k).
			Column("id").
			Where("ak.key_name = ?", keyName).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return buildOverlay(nil, nil), nil
		}
		if err != nil {
			return overlayPayload{}, err
		}
		return h.loadOverlay(ctx, k.ID)
	})
	if err != nil {
		return httpError(err)
	}
	p.AdminKey = keyName
	return c.JSON(http.StatusOK, p)
}
