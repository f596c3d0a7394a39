package handlers

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/models"
)

type raffleRequest struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Keyword          *string `json:"keyword"`
	KickUsername     *string `json:"kickUsername"`
	WinnerCount      *int    `json:"winnerCount"`
	SubscribersOnly  *bool   `json:"subscribers"`
	FollowersOnly    *bool   `json:"followers"`
	MinWatchTime     *int    `json:"minWatchTime"`
	DuplicateEntries *bool   `json:"duplicateEntries"`
}

type entryRequest struct {
	Username     string  `json:"username"`
	DisplayName  *string `json:"displayName"`
	Message      *string `json:"message"`
	IsSubscriber bool    `json:"isSubscriber"`
	IsFollower   bool    `json:"isFollower"`
}

// apply validates r and copies it onto raffle. On create title and keyword
// are required.
func (r raffleRequest) apply(raffle *models.Raffle, create bool) error {
	if create && (r.Title == nil || r.Keyword == nil) {
		return badRequest("title and keyword are required")
	}
	if r.Title != nil {
		if strings.TrimSpace(*r.Title) == "" {
			return badRequest("title cannot be empty")
		}
		raffle.Title = strings.TrimSpace(*r.Title)
	}
	if r.Description != nil {
		if d := strings.TrimSpace(*r.Description); d != "" {
			raffle.Description = &d
		} else {
			raffle.Description = nil
		}
	}
	if r.Keyword != nil {
		if strings.TrimSpace(*r.Keyword) == "" {
			return badRequest("keyword cannot be empty")
		}
		raffle.Keyword = strings.TrimSpace(*r.Keyword)
	}
	if r.KickUsername != nil {
		raffle.KickUsername = strings.TrimSpace(*r.KickUsername)
	}
	if r.WinnerCount != nil {
		if *r.WinnerCount < 1 {
			return badRequest("winnerCount must be at least 1")
		}
		raffle.WinnerCount = *r.WinnerCount
	}
	if r.SubscribersOnly != nil {
		raffle.SubscribersOnly = *r.SubscribersOnly
	}
	if r.FollowersOnly != nil {
		raffle.FollowersOnly = *r.FollowersOnly
	}
	if r.MinWatchTime != nil {
		if *r.MinWatchTime < 0 {
			return badRequest("minWatchTime must not be negative")
		}
		raffle.MinWatchTime = *r.MinWatchTime
	}
	if r.DuplicateEntries != nil {
		raffle.DuplicateEntries = *r.DuplicateEntries
	}
	return nil
}

// pickWinners draws up to n distinct entries uniformly at random using a
// partial Fisher-Yates shuffle. entries is not modified.
func pickWinners(entries []models.RaffleEntry, n int, intN func(int) int) []models.RaffleEntry {
	pool := make([]models.RaffleEntry, len(entries))
	copy(pool, entries)
	n = min(n, len(pool))
	for i := 0; i < n; i++ {
		j := i + intN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

func ownedRaffle(ctx context.Context, db bun.IDB, id, owner uuid.UUID, lock bool) (*models.Raffle, error) {
	raffle := new(models.Raffle)
	q := db.NewSelect().Model(raffle).
		Where("r.id = ?", id).
		Where("r.admin_key_id = ?", owner)
	if lock {
		q = q.For("UPDATE")
	}
	return raffle, q.Scan(ctx)
}

// Raffles lists the caller's raffles with entry and winner counts.
func (h *Handler) Raffles(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	raffles := []models.RaffleWithStats{}
	err = h.db.NewSelect().Model(&raffles).
		ColumnExpr("r.*").
		ColumnExpr("(SELECT count(*) FROM raffle_entries AS re WHERE re.raffle_id = r.id) AS entry_count").
		ColumnExpr("(SELECT count(*) FROM raffle_winners AS rw WHERE rw.raffle_id = r.id) AS actual_winner_count").
		ColumnExpr("ak.display_name AS admin_display_name").
		Join("JOIN admin_keys AS ak ON ak.id = r.admin_key_id").
		Where("r.admin_key_id = ?", k.ID).
		OrderExpr("r.created_at DESC").
		Scan(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, raffles)
}

// GetRaffle returns one raffle of the caller.
func (h *Handler) GetRaffle(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	raffle, err := ownedRaffle(c.Request().Context(), h.db, id, k.ID, false)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, raffle)
}

// CreateRaffle creates an active raffle owned by the caller.
func (h *Handler) CreateRaffle(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	var req raffleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}

	now := time.Now()
	raffle := &models.Raffle{
		ID:          uuid.New(),
		AdminKeyID:  k.ID,
		WinnerCount: 1,
		Status:      models.RaffleActive,
		IsActive:    true,
		StartedAt:   &now,
	}
	if k.KickUsername != nil {
		raffle.KickUsername = *k.KickUsername
	}
	if err := req.apply(raffle, true); err != nil {
		return err
	}

	if _, err := h.db.NewInsert().Model(raffle).Returning("*").Exec(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, raffle)
}

// UpdateRaffle changes the settings present in the request.
func (h *Handler) UpdateRaffle(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req raffleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}

	ctx := c.Request().Context()
	var raffle *models.Raffle
	err = h.inTx(ctx, func(tx bun.Tx) error {
		raffle, err = ownedRaffle(ctx, tx, id, k.ID, true)
		if err != nil {
			return err
		}
		if err := req.apply(raffle, false); err != nil {
			return err
		}
		raffle.UpdatedAt = time.Now()
		_, err = tx.NewUpdate().Model(raffle).
			ExcludeColumn("id", "admin_key_id", "created_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, raffle)
}

// DeleteRaffle removes a raffle with its entries and winners.
func (h *Handler) DeleteRaffle(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.db.NewDelete().Model((*models.Raffle)(nil)).
		Where("id = ?", id).
		Where("admin_key_id = ?", k.ID).
		Exec(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "raffle not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Raffle deleted successfully"})
}

// StartRaffle (re)opens a raffle for entries.
func (h *Handler) StartRaffle(c echo.Context) error { return h.setRaffleStatus(c, models.RaffleActive) }

func (h *Handler) PauseRaffle(c echo.Context) error { return h.setRaffleStatus(c, models.RafflePaused) }

func (h *Handler) EndRaffle(c echo.Context) error { return h.setRaffleStatus(c, models.RaffleEnded) }

func (h *Handler) setRaffleStatus(c echo.Context, st models.RaffleStatus) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var raffle *models.Raffle
	err = h.inTx(ctx, func(tx bun.Tx) error {
		raffle, err = ownedRaffle(ctx, tx, id, k.ID, true)
		if err != nil {
			return err
		}

		now := time.Now()
		raffle.Status = st
		raffle.UpdatedAt = now
		switch st {
		case models.RaffleActive:
			raffle.IsActive = true
			raffle.StartedAt = &now
			raffle.EndedAt = nil
		case models.RafflePaused:
			raffle.IsActive = false
		case models.RaffleEnded:
			raffle.IsActive = false
			raffle.EndedAt = &now
		}

		_, err = tx.NewUpdate().Model(raffle).
			Column("status", "is_active", "started_at", "ended_at", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, raffle)
}

// RaffleEntries lists the entries of a raffle in entry order.
func (h *Handler) RaffleEntries(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := ownedRaffle(ctx, h.db, id, k.ID, false); err != nil {
		return httpError(err)
	}

	entries := []models.RaffleEntry{}
	err = h.db.NewSelect().Model(&entries).
		Where("re.raffle_id = ?", id).
		OrderExpr("re.entry_number ASC").
		Scan(ctx)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

// AddRaffleEntry enters a user into an active raffle. A second entry of the
// same user is rejected unless the raffle allows duplicates.
func (h *Handler) AddRaffleEntry(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req entryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return badRequest("username is required")
	}

	ctx := c.Request().Context()
	entry := &models.RaffleEntry{
		ID:           uuid.New(),
		RaffleID:     id,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Message:      req.Message,
		IsSubscriber: req.IsSubscriber,
		IsFollower:   req.IsFollower,
	}
	err = h.inTx(ctx, func(tx bun.Tx) error {
		raffle, err := ownedRaffle(ctx, tx, id, k.ID, true)
		if err != nil {
			return err
		}
		if raffle.Status != models.RaffleActive {
			return echo.NewHTTPError(http.StatusConflict, "raffle is not accepting entries")
		}

		if !raffle.DuplicateEntries {
			exists, err := tx.NewSelect().Model((*models.RaffleEntry)(nil)).
				Where("re.raffle_id = ?", id).
				Where("lower(re.username) = lower(?)", req.Username).
				Exists(ctx)
			if err != nil {
				return err
			}
			if exists {
				return echo.NewHTTPError(http.StatusConflict, "user already entered")
			}
		}

		err = tx.NewSelect().
			TableExpr("raffle_entries").
			ColumnExpr("coalesce(max(entry_number), 0) + 1").
			Where("raffle_id = ?", id).
			Scan(ctx, &entry.EntryNumber)
		if err != nil {
			return err
		}
		_, err = tx.NewInsert().Model(entry).Returning("*").Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// ClearRaffleEntries removes all entries and winners of a raffle.
func (h *Handler) ClearRaffleEntries(c echo.Context) error {
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
		if _, err := ownedRaffle(ctx, tx, id, k.ID, true); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*models.RaffleEntry)(nil)).
			Where("raffle_id = ?", id).
			Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "All raffle entries cleared successfully"})
}

// RaffleWinners lists the recorded winners by position.
func (h *Handler) RaffleWinners(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := ownedRaffle(ctx, h.db, id, k.ID, false); err != nil {
		return httpError(err)
	}

	winners := []models.RaffleWinner{}
	err = h.db.NewSelect().Model(&winners).
		Where("rw.raffle_id = ?", id).
		OrderExpr("rw.position ASC").
		Scan(ctx)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, winners)
}

// DrawWinners picks winnerCount entries at random, records them as winners
// and ends the raffle.
func (h *Handler) DrawWinners(c echo.Context) error {
	k, err := admin(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var winners []models.RaffleWinner
	err = h.inTx(ctx, func(tx bun.Tx) error {
		raffle, err := ownedRaffle(ctx, tx, id, k.ID, true)
		if err != nil {
			return err
		}

		var entries []models.RaffleEntry
		err = tx.NewSelect().Model(&entries).
			Where("re.raffle_id = ?", id).
			Where("NOT re.is_winner").
			OrderExpr("re.entry_number ASC").
			Scan(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return badRequest("no entries found for this raffle")
		}

		var offset int
		err = tx.NewSelect().
			TableExpr("raffle_winners").
			ColumnExpr("count(*)").
			Where("raffle_id = ?", id).
			Scan(ctx, &offset)
		if err != nil {
			return err
		}

		picked := pickWinners(entries, raffle.WinnerCount, rand.IntN)
		ids := make([]uuid.UUID, len(picked))
		winners = make([]models.RaffleWinner, len(picked))
		for i, e := range picked {
			ids[i] = e.ID
			winners[i] = models.RaffleWinner{
				ID:          uuid.New(),
				RaffleID:    id,
				EntryID:     e.ID,
				Username:    e.Username,
				DisplayName: e.DisplayName,
				Position:    offset + i + 1,
			}
		}

		_, err = tx.NewUpdate().Model((*models.RaffleEntry)(nil)).
			Set("is_winner = TRUE").
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&winners).Returning("*").Exec(ctx); err != nil {
			return err
		}

		now := time.Now()
		_, err = tx.NewUpdate().Model((*models.Raffle)(nil)).
			Set("status = ?", models.RaffleEnded).
			Set("is_active = FALSE").
			Set("ended_at = ?", now).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Exec(ctx)
		return err
	})
	if err != nil {
		return httpError(err)
	}

	zap.L().Info("raffle winners drawn", zap.String("raffle_id", id.String()), zap.Int("winners", len(winners)))
	return c.JSON(http.StatusOK, map[string]any{"winners": winners})
}
