package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/models"
	"github.com/padraicbc/huntapi/money"
	"github.com/padraicbc/huntapi/stats"
	"github.com/padraicbc/huntapi/status"
)

type huntRequest struct {
	Title            *string          `json:"title"`
	Casino           *string          `json:"casino"`
	Currency         *string          `json:"currency"`
	StartBalance     *decimal.Decimal `json:"startBalance"`
	EndBalance       *decimal.Decimal `json:"endBalance"`
	Status           *string          `json:"status"`
	Notes            *string          `json:"notes"`
	IsPublic         *bool            `json:"isPublic"`
	IsPlaying        *bool            `json:"isPlaying"`
	CurrentSlotIndex *int             `json:"currentSlotIndex"`
}

// apply validates r and copies the fields it carries onto hunt.
// On create, title, casino and startBalance are required.
func (r huntRequest) apply(hunt *models.Hunt, create bool) error {
	if create {
		if r.Title == nil || r.Casino == nil || r.StartBalance == nil {
			return badRequest("title, casino and startBalance are required")
		}
		hunt.Currency = "USD"
		hunt.Status = models.StatusCollecting
	}

	if r.Title != nil {
		if strings.TrimSpace(*r.Title) == "" {
			return badRequest("title cannot be empty")
		}
		hunt.Title = strings.TrimSpace(*r.Title)
	}
	if r.Casino != nil {
		if strings.TrimSpace(*r.Casino) == "" {
			return badRequest("casino cannot be empty")
		}
		hunt.Casino = strings.TrimSpace(*r.Casino)
	}
	if r.Currency != nil {
		code := strings.ToUpper(strings.TrimSpace(*r.Currency))
		if len(code) != 3 || !money.ValidCode(code) {
			return badRequest("currency must be a 3-letter ISO code")
		}
		hunt.Currency = code
	}
	if r.StartBalance != nil {
		if r.StartBalance.IsNegative() {
			return badRequest("startBalance must not be negative")
		}
		hunt.StartBalance = *r.StartBalance
	}
	if r.EndBalance != nil {
		if hunt.EndBalance.Valid && !hunt.EndBalance.Decimal.Equal(*r.EndBalance) {
			return echo.NewHTTPError(http.StatusConflict, "endBalance is already recorded")
		}
		hunt.EndBalance = decimal.NewNullDecimal(*r.EndBalance)
	}
	if r.Status != nil {
		st, err := models.ParseHuntStatus(*r.Status)
		if err != nil {
			return badRequest(err.Error())
		}
		hunt.Status = st
	}
	if r.Notes != nil {
		if n := strings.TrimSpace(*r.Notes); n != "" {
			hunt.Notes = &n
		} else {
			hunt.Notes = nil
		}
	}
	if r.IsPublic != nil {
		hunt.IsPublic = *r.IsPublic
	}
	if r.IsPlaying != nil {
		hunt.IsPlaying = *r.IsPlaying
	}
	if r.CurrentSlotIndex != nil {
		if *r.CurrentSlotIndex < 0 {
			return badRequest("currentSlotIndex must not be negative")
		}
		hunt.CurrentSlotIndex = *r.CurrentSlotIndex
	}
	return nil
}

// huntView is a hunt with its bonuses in order and the derived figures.
type huntView struct {
	Hunt    *models.Hunt   `json:"hunt"`
	Bonuses []models.Bonus `json:"bonuses"`
	Stats   stats.Summary  `json:"stats"`
}

func (h *Handler) bonusesOf(ctx context.Context, db bun.IDB, huntID uuid.UUID) ([]models.Bonus, error) {
	bonuses := []models.Bonus{}
	err := db.NewSelect().Model(&bonuses).
		Where("b.hunt_id = ?", huntID).
		OrderExpr("b.sort_order ASC").
		Scan(ctx)
	return bonuses, err
}

// visibleHunt loads a hunt the viewer owns, or any public hunt.
func (h *Handler) visibleHunt(ctx context.Context, id, viewer uuid.UUID) (*models.Hunt, error) {
	hunt := new(models.Hunt)
	err := h.db.NewSelect().Model(hunt).
		Where("h.id = ?", id).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("h.is_public").WhereOr("h.admin_key_id = ?", viewer)
		}).
		Scan(ctx)
	return hunt, err
}

// playedWinnings sums the wins of the played bonuses of a hunt.
func playedWinnings(ctx context.Context, db bun.IDB, huntID uuid.UUID) (decimal.Decimal, error) {
	var won decimal.Decimal
	err := db.NewSelect().
		TableExpr("bonuses").
		ColumnExpr("coalesce(sum(win_amount) FILTER (WHERE is_played), 0)").
		Where("hunt_id = ?", huntID).
		Scan(ctx, &won)
	return won, err
}

// ownedHunt loads a hunt of owner, locking it when db is a transaction.
func ownedHunt(ctx context.Context, db bun.IDB, id, owner uuid.UUID, lock bool) (*models.Hunt, error) {
	hunt := new(models.Hunt)
	q := db.NewSelect().Model(hunt).
		Where("h.id = ?", id).
		Where("h.admin_key_id = ?", owner)
	if lock {
		q = q.For("UPDATE")
	}
	return hunt, q.Scan(ctx)
}

// Hunts lists the caller's hunts, or public hunts for anonymous callers.
func (h *Handler) Hunts(c echo.Context) error {
	hunts := []models.Hunt{}
	q := h.db.NewSelect().Model(&hunts).OrderExpr("h.created_at DESC")
	if viewer := viewerID(c); viewer != uuid.Nil {
		q = q.Where("h.admin_key_id = ?", viewer)
	} else {
		q = q.Where("h.is_public")
	}
	if err := q.Scan(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hunts)
}

// MyHunts lists the caller's hunts.
func (h *Handler) MyHunts(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	hunts := []models.Hunt{}
	err = h.db.NewSelect().Model(&hunts).
		Where("h.admin_key_id = ?", k.ID).
		OrderExpr("h.created_at DESC").
		Scan(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hunts)
}

// LiveHunts lists public hunts with the display name of their owner.
func (h *Handler) LiveHunts(c echo.Context) error {
	hunts := []models.HuntWithAdmin{}
	err := h.db.NewSelect().Model(&hunts).
		ColumnExpr("h.*").
		ColumnExpr("ak.display_name AS admin_display_name").
		Join("JOIN admin_keys AS ak ON ak.id = h.admin_key_id").
		Where("h.is_public").
		OrderExpr("h.updated_at DESC").
		Scan(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hunts)
}

// GetHunt returns one hunt the caller may see.
func (h *Handler) GetHunt(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	hunt, err := h.visibleHunt(c.Request().Context(), id, viewerID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hunt)
}

// HuntStats returns the statistics summary of a hunt.
func (h *Handler) HuntStats(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	hunt, err := h.visibleHunt(ctx, id, viewerID(c))
	if err != nil {
		return httpError(err)
	}
	bonuses, err := h.bonusesOf(ctx, h.db, hunt.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats.Compute(hunt, bonuses))
}

// PublicHunt returns a hunt addressed by its share token, with bonuses and stats.
func (h *Handler) PublicHunt(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		return badRequest("token param not set")
	}

	ctx := c.Request().Context()
	hunt := new(models.Hunt)
	if err := h.db.NewSelect().Model(hunt).Where("h.public_token = ?", token).Scan(ctx); err != nil {
		return httpError(err)
	}
	bonuses, err := h.bonusesOf(ctx, h.db, hunt.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, huntView{Hunt: hunt, Bonuses: bonuses, Stats: stats.Compute(hunt, bonuses)})
}

// CreateHunt creates a hunt owned by the caller.
func (h *Handler) CreateHunt(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	var req huntRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}

	hunt := &models.Hunt{
		ID:          uuid.New(),
		AdminKeyID:  k.ID,
		PublicToken: uuid.NewString(),
	}
	if err := req.apply(hunt, true); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if _, err := h.db.NewInsert().Model(hunt).Returning("*").Exec(ctx); err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusCreated, hunt)
}

// UpdateHunt changes the fields present in the request. A recorded end
// balance cannot be replaced.
func (h *Handler) UpdateHunt(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req huntRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}

	ctx := c.Request().Context()
	var hunt *models.Hunt
	err = h.inTx(ctx, func(tx bun.Tx) error {
		hunt, err = ownedHunt(ctx, tx, id, k.ID, true)
		if err != nil {
			return err
		}
		prev := hunt.Status
		if err := req.apply(hunt, false); err != nil {
			return err
		}
		now := time.Now()
		hunt.UpdatedAt = now
		if hunt.Status == models.StatusFinished && (prev != models.StatusFinished || hunt.IsPlaying) {
			won, err := playedWinnings(ctx, tx, hunt.ID)
			if err != nil {
				return err
			}
			status.Apply(hunt, models.StatusFinished, won, now)
		}
		_, err = tx.NewUpdate().Model(hunt).
			ExcludeColumn("id", "admin_key_id", "public_token", "created_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, hunt)
}

// DeleteHunt removes a hunt and its bonuses.
func (h *Handler) DeleteHunt(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	err = h.inTx(ctx, func(tx bun.Tx) error {
		hunt, err := ownedHunt(ctx, tx, id, k.ID, true)
		if err != nil {
			return err
		}
		_, err = tx.NewDelete().Model(hunt).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, map[string]string{"message": "Hunt deleted successfully"})
}

// StartPlaying puts a hunt into the opening phase at the first bonus.
// It is the only way to re-open a finished hunt.
func (h *Handler) StartPlaying(c echo.Context) error {
	return h.setPlaying(c, true)
}

// StopPlaying finishes a hunt and records its winnings as end balance
// when none was recorded yet.
func (h *Handler) StopPlaying(c echo.Context) error {
	return h.setPlaying(c, false)
}

func (h *Handler) setPlaying(c echo.Context, playing bool) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var hunt *models.Hunt
	err = h.inTx(ctx, func(tx bun.Tx) error {
		hunt, err = ownedHunt(ctx, tx, id, k.ID, true)
		if err != nil {
			return err
		}

		now := time.Now()
		if playing {
			hunt.IsPlaying = true
			hunt.CurrentSlotIndex = 0
			hunt.Status = models.StatusOpening
			hunt.UpdatedAt = now
		} else {
			won, err := playedWinnings(ctx, tx, hunt.ID)
			if err != nil {
				return err
			}
			status.Apply(hunt, models.StatusFinished, won, now)
		}

		_, err = tx.NewUpdate().Model(hunt).
			Column("is_playing", "current_slot_index", "status", "end_balance", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	zap.L().Info("hunt play toggled",
		zap.String("hunt_id", hunt.ID.String()),
		zap.Bool("playing", playing),
		zap.String("status", string(hunt.Status)),
	)
	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, hunt)
}
