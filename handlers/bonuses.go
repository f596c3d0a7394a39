package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/metrics"
	"github.com/padraicbc/huntapi/models"
	"github.com/padraicbc/huntapi/status"
)

type bonusRequest struct {
	SlotName  *string          `json:"slotName"`
	Provider  *string          `json:"provider"`
	ImageURL  *string          `json:"imageUrl"`
	BetAmount *decimal.Decimal `json:"betAmount"`
	Order     *int             `json:"order"`
	WinAmount *decimal.Decimal `json:"winAmount"`
	IsPlayed  *bool            `json:"isPlayed"`
}

type payoutRequest struct {
	WinAmount *decimal.Decimal `json:"winAmount"`
}

type reorderRequest struct {
	BonusIDs []uuid.UUID `json:"bonusIds"`
}

// bonusResult is returned by bonus mutations so clients can follow status changes.
type bonusResult struct {
	Bonus      *models.Bonus     `json:"bonus"`
	HuntStatus models.HuntStatus `json:"huntStatus,omitempty"`
}

// decodeBonuses accepts a single bonus object or an array of them.
func decodeBonuses(body []byte) ([]bonusRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, badRequest("empty body")
	}
	var reqs []bonusRequest
	if body[0] == '[' {
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, badRequest(err.Error())
		}
	} else {
		var r bonusRequest
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, badRequest(err.Error())
		}
		reqs = append(reqs, r)
	}
	if len(reqs) == 0 {
		return nil, badRequest("no bonuses given")
	}
	return reqs, nil
}

// apply validates r and copies it onto b. On create slotName and a positive
// betAmount are required.
func (r bonusRequest) apply(b *models.Bonus, create bool) error {
	if create && (r.SlotName == nil || r.BetAmount == nil) {
		return badRequest("slotName and betAmount are required")
	}
	if r.SlotName != nil {
		if strings.TrimSpace(*r.SlotName) == "" {
			return badRequest("slotName cannot be empty")
		}
		b.SlotName = strings.TrimSpace(*r.SlotName)
	}
	if r.Provider != nil {
		b.Provider = strings.TrimSpace(*r.Provider)
	}
	if r.ImageURL != nil {
		if u := strings.TrimSpace(*r.ImageURL); u != "" {
			b.ImageURL = &u
		} else {
			b.ImageURL = nil
		}
	}
	if r.BetAmount != nil {
		if !r.BetAmount.IsPositive() {
			return badRequest("betAmount must be greater than 0")
		}
		b.BetAmount = *r.BetAmount
	}
	if r.Order != nil {
		if *r.Order < 1 {
			return badRequest("order must be at least 1")
		}
		b.Order = *r.Order
	}

	switch {
	case r.IsPlayed != nil && !*r.IsPlayed:
		b.ClearPayout()
	case r.IsPlayed != nil && r.WinAmount == nil && !b.IsPlayed:
		return badRequest("winAmount is required to mark a bonus played")
	case r.WinAmount != nil:
		if r.WinAmount.IsNegative() {
			return badRequest("winAmount must not be negative")
		}
		b.RecordPayout(*r.WinAmount)
	case b.IsPlayed && r.BetAmount != nil && b.WinAmount.Valid:
		// keep the multiplier in step with a corrected bet
		b.RecordPayout(b.WinAmount.Decimal)
	}
	return nil
}

// assignOrders gives bonuses without an order consecutive positions after highest.
func assignOrders(bonuses []*models.Bonus, highest int) {
	for _, b := range bonuses {
		if b.Order > highest {
			highest = b.Order
		}
	}
	for _, b := range bonuses {
		if b.Order == 0 {
			highest++
			b.Order = highest
		}
	}
}

// checkReorder reports whether want lists every id of have exactly once.
func checkReorder(have, want []uuid.UUID) error {
	if len(want) != len(have) {
		return badRequest(fmt.Sprintf("bonusIds must list all %d bonuses of the hunt", len(have)))
	}
	known := make(map[uuid.UUID]bool, len(have))
	for _, id := range have {
		known[id] = true
	}
	seen := make(map[uuid.UUID]bool, len(want))
	for _, id := range want {
		if !known[id] {
			return badRequest("bonus " + id.String() + " is not part of the hunt")
		}
		if seen[id] {
			return badRequest("bonus " + id.String() + " is listed twice")
		}
		seen[id] = true
	}
	return nil
}

// ownedBonus loads a bonus whose hunt belongs to owner and locks the hunt,
// then the bonus. Hunt deletes and status refreshes take the same order.
func ownedBonus(ctx context.Context, db bun.IDB, id, owner uuid.UUID) (*models.Bonus, error) {
	b := new(models.Bonus)
	err := db.NewSelect().Model(b).
		Join("JOIN hunts AS h ON h.id = b.hunt_id").
		Where("b.id = ?", id).
		Where("h.admin_key_id = ?", owner).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := ownedHunt(ctx, db, b.HuntID, owner, true); err != nil {
		return nil, err
	}
	err = db.NewSelect().Model(b).
		WherePK().
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// HuntBonuses lists the bonuses of a visible hunt in order.
func (h *Handler) HuntBonuses(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.visibleHunt(ctx, id, viewerID(c)); err != nil {
		return httpError(err)
	}
	bonuses, err := h.bonusesOf(ctx, h.db, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, bonuses)
}

// LiveBonuses lists the bonuses of all public hunts.
func (h *Handler) LiveBonuses(c echo.Context) error {
	bonuses := []models.LiveBonus{}
	err := h.db.NewSelect().Model(&bonuses).
		ColumnExpr("b.*").
		ColumnExpr("h.title AS hunt_title").
		ColumnExpr("ak.display_name AS admin_display_name").
		Join("JOIN hunts AS h ON h.id = b.hunt_id").
		Join("JOIN admin_keys AS ak ON ak.id = h.admin_key_id").
		Where("h.is_public").
		OrderExpr("h.updated_at DESC, b.sort_order ASC").
		Scan(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, bonuses)
}

// CreateBonuses adds one bonus, or several when the body is an array.
// Missing orders are assigned after the current highest order of the hunt.
func (h *Handler) CreateBonuses(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	huntID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer c.Request().Body.Close()

	reqs, err := decodeBonuses(body)
	if err != nil {
		return err
	}

	bonuses := make([]*models.Bonus, len(reqs))
	for i, r := range reqs {
		b := &models.Bonus{ID: uuid.New(), HuntID: huntID, Status: models.BonusWaiting}
		if err := r.apply(b, true); err != nil {
			return err
		}
		bonuses[i] = b
	}

	ctx := c.Request().Context()
	var st models.HuntStatus
	err = h.inTx(ctx, func(tx bun.Tx) error {
		if _, err := ownedHunt(ctx, tx, huntID, k.ID, true); err != nil {
			return err
		}

		var highest int
		err := tx.NewSelect().
			TableExpr("bonuses").
			ColumnExpr("coalesce(max(sort_order), 0)").
			Where("hunt_id = ?", huntID).
			Scan(ctx, &highest)
		if err != nil {
			return err
		}
		assignOrders(bonuses, highest)

		if _, err := tx.NewInsert().Model(&bonuses).Returning("*").Exec(ctx); err != nil {
			return err
		}
		st, err = status.Refresh(ctx, tx, huntID)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, k)
	if len(bonuses) == 1 {
		return c.JSON(http.StatusCreated, bonusResult{Bonus: bonuses[0], HuntStatus: st})
	}
	return c.JSON(http.StatusCreated, map[string]any{"bonuses": bonuses, "huntStatus": st})
}

// UpdateBonus changes the fields present in the request.
func (h *Handler) UpdateBonus(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req bonusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}

	ctx := c.Request().Context()
	var (
		b  *models.Bonus
		st models.HuntStatus
	)
	err = h.inTx(ctx, func(tx bun.Tx) error {
		b, err = ownedBonus(ctx, tx, id, k.ID)
		if err != nil {
			return err
		}
		if err := req.apply(b, false); err != nil {
			return err
		}
		_, err = tx.NewUpdate().Model(b).
			ExcludeColumn("id", "hunt_id", "created_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		st, err = status.Refresh(ctx, tx, b.HuntID)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, bonusResult{Bonus: b, HuntStatus: st})
}

// DeleteBonus removes a bonus and re-derives the hunt status.
func (h *Handler) DeleteBonus(c echo.Context) error {
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
		b, err := ownedBonus(ctx, tx, id, k.ID)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model(b).WherePK().Exec(ctx); err != nil {
			return err
		}
		_, err = status.Refresh(ctx, tx, b.HuntID)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, map[string]string{"message": "Bonus deleted successfully"})
}

// RecordPayout stores the win of a bonus, derives its multiplier and
// re-derives the hunt status in one transaction.
func (h *Handler) RecordPayout(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req payoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}
	if req.WinAmount == nil || req.WinAmount.IsNegative() {
		return badRequest("winAmount must be a number >= 0")
	}

	ctx := c.Request().Context()
	var (
		b  *models.Bonus
		st models.HuntStatus
	)
	err = h.inTx(ctx, func(tx bun.Tx) error {
		b, err = ownedBonus(ctx, tx, id, k.ID)
		if err != nil {
			return err
		}
		if !b.BetAmount.IsPositive() {
			return badRequest("bonus has no bet amount")
		}
		b.RecordPayout(*req.WinAmount)
		_, err = tx.NewUpdate().Model(b).
			Column("win_amount", "multiplier", "is_played", "status").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		st, err = status.Refresh(ctx, tx, b.HuntID)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	metrics.PayoutsRecorded.Inc()
	zap.L().Info("payout recorded",
		zap.String("bonus_id", b.ID.String()),
		zap.String("win", b.WinAmount.Decimal.String()),
		zap.String("multiplier", b.Multiplier.Decimal.String()),
	)
	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, bonusResult{Bonus: b, HuntStatus: st})
}

// ReorderBonuses moves the bonuses of a hunt to the positions of their ids in
// the request. The unique order constraint is checked at commit so orders can
// be swapped.
func (h *Handler) ReorderBonuses(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	huntID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}
	if len(req.BonusIDs) == 0 {
		return badRequest("bonusIds is required")
	}

	ctx := c.Request().Context()
	var bonuses []models.Bonus
	err = h.inTx(ctx, func(tx bun.Tx) error {
		if _, err := ownedHunt(ctx, tx, huntID, k.ID, true); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "SET CONSTRAINTS bonuses_order_unique DEFERRED"); err != nil {
			return err
		}

		var ids []uuid.UUID
		err := tx.NewSelect().Model((*models.Bonus)(nil)).
			Column("id").
			Where("hunt_id = ?", huntID).
			For("UPDATE").
			Scan(ctx, &ids)
		if err != nil {
			return err
		}
		if err := checkReorder(ids, req.BonusIDs); err != nil {
			return err
		}

		for i, id := range req.BonusIDs {
			_, err := tx.NewUpdate().Model((*models.Bonus)(nil)).
				Set("sort_order = ?", i+1).
				Where("id = ?", id).
				Where("hunt_id = ?", huntID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		bonuses, err = h.bonusesOf(ctx, tx, huntID)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, bonuses)
}
