package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/padraicbc/huntapi/bracket"
	"github.com/padraicbc/huntapi/models"
)

const defaultBracketSize = 8

type playerUpdate struct {
	Round      int      `json:"round"`
	Match      int      `json:"match"`
	Slot       int      `json:"slot"`
	Name       string   `json:"name"`
	Multiplier *float64 `json:"multiplier"`
}

type bracketUpdate struct {
	Players []playerUpdate `json:"players"`
}

type matchRef struct {
	Round int `json:"round"`
	Match int `json:"match"`
}

// loadTournament returns the bracket of owner, creating an empty one on first use.
func loadTournament(ctx context.Context, db bun.IDB, owner uuid.UUID, lock bool) (*models.Tournament, error) {
	t := new(models.Tournament)
	q := db.NewSelect().Model(t).Where("t.admin_key_id = ?", owner)
	if lock {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	b, err := bracket.New(defaultBracketSize)
	if err != nil {
		return nil, err
	}
	return &models.Tournament{AdminKeyID: owner, Bracket: b}, nil
}

func saveTournament(ctx context.Context, db bun.IDB, t *models.Tournament) error {
	t.UpdatedAt = time.Now()
	_, err := db.NewInsert().Model(t).
		On("CONFLICT (admin_key_id) DO UPDATE").
		Set("bracket = EXCLUDED.bracket").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// mutateTournament loads, changes and stores the caller's bracket in one transaction.
func (h *Handler) mutateTournament(c echo.Context, fn func(b *bracket.Bracket) error) error {
	k, err := admin(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var t *models.Tournament
	err = h.inTx(ctx, func(tx bun.Tx) error {
		t, err = loadTournament(ctx, tx, k.ID, true)
		if err != nil {
			return err
		}
		if err := fn(t.Bracket); err != nil {
			return err
		}
		return saveTournament(ctx, tx, t)
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t.Bracket)
}

// Tournament returns the caller's bracket.
func (h *Handler) Tournament(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	t, err := loadTournament(c.Request().Context(), h.db, k.ID, false)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t.Bracket)
}

// UpdateTournament sets player names and multipliers.
func (h *Handler) UpdateTournament(c echo.Context) error {
	var req bracketUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}
	if len(req.Players) == 0 {
		return badRequest("players is required")
	}
	return h.mutateTournament(c, func(b *bracket.Bracket) error {
		for _, p := range req.Players {
			if err := b.SetPlayer(p.Round, p.Match, p.Slot, p.Name, p.Multiplier); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetTournament replaces the bracket with an empty one of the given size.
func (h *Handler) ResetTournament(c echo.Context) error {
	var req struct {
		Size int `json:"size"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}
	if req.Size == 0 {
		req.Size = defaultBracketSize
	}
	fresh, err := bracket.New(req.Size)
	if err != nil {
		return badRequest(err.Error())
	}
	return h.mutateTournament(c, func(b *bracket.Bracket) error {
		*b = *fresh
		return nil
	})
}

// DecideMatch settles a match and advances its winner.
func (h *Handler) DecideMatch(c echo.Context) error {
	var req matchRef
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}
	return h.mutateTournament(c, func(b *bracket.Bracket) error {
		_, err := b.Decide(req.Round, req.Match)
		return err
	})
}
