// Package status derives and persists the lifecycle status of a hunt.
package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/metrics"
	"github.com/padraicbc/huntapi/models"
)

// Derive returns the status a hunt should have given its bonus completion.
//
// A finished hunt stays finished; it is re-opened only by an explicit
// start-playing action. A hunt without bonuses keeps its current status.
func Derive(current models.HuntStatus, played, total int) models.HuntStatus {
	switch {
	case total == 0:
		return current
	case current == models.StatusFinished:
		return current
	case played >= total:
		return models.StatusFinished
	case played > 0 && current == models.StatusCollecting:
		return models.StatusOpening
	}
	return current
}

type completion struct {
	Total  int             `bun:"total"`
	Played int             `bun:"played"`
	Won    decimal.Decimal `bun:"won"`
}

// Refresh re-derives the status of huntID and writes it back when it changed.
// It is meant to run in the same transaction as the bonus write that triggered it.
// A missing hunt is logged and reported as an empty status with no error.
func Refresh(ctx context.Context, db bun.IDB, huntID uuid.UUID) (models.HuntStatus, error) {
	hunt := new(models.Hunt)
	err := db.NewSelect().Model(hunt).
		Where("h.id = ?", huntID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			zap.L().Warn("status refresh: hunt not found", zap.String("hunt_id", huntID.String()))
			return "", nil
		}
		return "", fmt.Errorf("loading hunt %s: %w", huntID, err)
	}

	var c completion
	err = db.NewSelect().
		TableExpr("bonuses").
		ColumnExpr("count(*) AS total").
		ColumnExpr("count(*) FILTER (WHERE is_played) AS played").
		ColumnExpr("coalesce(sum(win_amount) FILTER (WHERE is_played), 0) AS won").
		Where("hunt_id = ?", huntID).
		Scan(ctx, &c)
	if err != nil {
		return "", fmt.Errorf("counting bonuses of hunt %s: %w", huntID, err)
	}

	next := Derive(hunt.Status, c.Played, c.Total)
	if next == hunt.Status {
		return next, nil
	}

	Apply(hunt, next, c.Won, time.Now())
	_, err = db.NewUpdate().Model(hunt).
		Column("status", "is_playing", "end_balance", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("updating status of hunt %s: %w", huntID, err)
	}

	metrics.StatusTransitions.WithLabelValues(string(next)).Inc()
	zap.L().Info("hunt status changed",
		zap.String("hunt_id", huntID.String()),
		zap.String("to", string(next)),
		zap.Int("played", c.Played),
		zap.Int("total", c.Total),
	)
	return next, nil
}

// Apply sets next on hunt. Finishing stops play and records the winnings as
// end balance unless one was already recorded.
func Apply(hunt *models.Hunt, next models.HuntStatus, won decimal.Decimal, now time.Time) {
	hunt.Status = next
	hunt.UpdatedAt = now
	if next != models.StatusFinished {
		return
	}
	hunt.IsPlaying = false
	if !hunt.EndBalance.Valid {
		hunt.EndBalance = decimal.NewNullDecimal(won)
	}
}
