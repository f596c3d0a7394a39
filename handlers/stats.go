package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/padraicbc/huntapi/models"
)

type aggregateStats struct {
	TotalHunts  int     `json:"totalHunts"`
	ActiveHunts int     `json:"activeHunts"`
	TotalSpent  float64 `json:"totalSpent"`
	TotalWon    float64 `json:"totalWon"`
}

// Stats returns hunt and money totals, for the caller's hunts when authenticated.
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	viewer := viewerID(c)

	var counts struct {
		Total  int `bun:"total"`
		Active int `bun:"active"`
	}
	q := h.db.NewSelect().
		TableExpr("hunts AS h").
		ColumnExpr("count(*) AS total").
		ColumnExpr("count(*) FILTER (WHERE h.status <> ?) AS active", models.StatusFinished)
	if viewer != uuid.Nil {
		q = q.Where("h.admin_key_id = ?", viewer)
	}
	if err := q.Scan(ctx, &counts); err != nil {
		return httpError(err)
	}

	var sums struct {
		Spent decimal.Decimal `bun:"spent"`
		Won   decimal.Decimal `bun:"won"`
	}
	q = h.db.NewSelect().
		TableExpr("bonuses AS b").
		ColumnExpr("coalesce(sum(b.bet_amount), 0) AS spent").
		ColumnExpr("coalesce(sum(b.win_amount), 0) AS won")
	if viewer != uuid.Nil {
		q = q.Join("JOIN hunts AS h ON h.id = b.hunt_id").Where("h.admin_key_id = ?", viewer)
	}
	if err := q.Scan(ctx, &sums); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, aggregateStats{
		TotalHunts:  counts.Total,
		ActiveHunts: counts.Active,
		TotalSpent:  sums.Spent.InexactFloat64(),
		TotalWon:    sums.Won.InexactFloat64(),
	})
}

// LatestHunt returns the most recently created hunt, the caller's own when authenticated.
func (h *Handler) LatestHunt(c echo.Context) error {
	hunt := new(models.Hunt)
	q := h.db.NewSelect().Model(hunt).OrderExpr("h.created_at DESC").Limit(1)
	if viewer := viewerID(c); viewer != uuid.Nil {
		q = q.Where("h.admin_key_id = ?", viewer)
	}
	if err := q.Scan(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hunt)
}
