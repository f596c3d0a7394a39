package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/models"
	"github.com/padraicbc/huntapi/slots"
)

const slotSearchLimit = 50

// Slots lists the catalogue, filtered by name when search is set.
func (h *Handler) Slots(c echo.Context) error {
	if q := strings.TrimSpace(c.QueryParam("search")); q != "" {
		return h.searchSlots(c, q)
	}
	list := []models.Slot{}
	err := h.db.NewSelect().Model(&list).
		OrderExpr("sl.name ASC").
		Scan(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// SearchSlots returns up to 50 slots whose name contains q.
func (h *Handler) SearchSlots(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return c.JSON(http.StatusOK, []models.Slot{})
	}
	return h.searchSlots(c, q)
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (h *Handler) searchSlots(c echo.Context, q string) error {
	list := []models.Slot{}
	err := h.db.NewSelect().Model(&list).
		Where("sl.name ILIKE ?", "%"+likeEscaper.Replace(q)+"%").
		OrderExpr("sl.name ASC").
		Limit(slotSearchLimit).
		Scan(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// SlotByName returns the slot with the exact name in the path.
func (h *Handler) SlotByName(c echo.Context) error {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil || strings.TrimSpace(name) == "" {
		return badRequest("invalid slot name")
	}
	slot := new(models.Slot)
	if err := h.db.NewSelect().Model(slot).Where("sl.name = ?", name).Limit(1).Scan(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

// SlotProviders lists the distinct providers in the catalogue.
func (h *Handler) SlotProviders(c echo.Context) error {
	providers := []string{}
	err := h.db.NewSelect().
		TableExpr("slot_database").
		ColumnExpr("DISTINCT provider").
		Where("provider <> ''").
		OrderExpr("provider ASC").
		Scan(c.Request().Context(), &providers)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, providers)
}

// RandomSlot picks one slot uniformly, limited to the comma separated
// providers when given.
func (h *Handler) RandomSlot(c echo.Context) error {
	slot := new(models.Slot)
	q := h.db.NewSelect().Model(slot).OrderExpr("random()").Limit(1)
	if providers := splitList(c.QueryParam("providers")); len(providers) > 0 {
		q = q.Where("sl.provider IN (?)", bun.In(providers))
	}
	if err := q.Scan(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

// ImportSlots replaces the catalogue from an uploaded CSV file, or from the
// configured CSV path when no file is sent.
func (h *Handler) ImportSlots(c echo.Context) error {
	var (
		list   []models.Slot
		source string
		err    error
	)
	if fh, ferr := c.FormFile("file"); ferr == nil {
		source = fh.Filename
		f, err := fh.Open()
		if err != nil {
			return badRequest(err.Error())
		}
		defer f.Close()
		list, err = slots.ParseCSV(f)
		if err != nil {
			return badRequest(err.Error())
		}
	} else {
		source = h.cfg.SlotsCSV
		list, err = slots.ParseFile(source)
		if errors.Is(err, os.ErrNotExist) {
			return echo.NewHTTPError(http.StatusNotFound, "slots CSV file not found")
		}
		if err != nil {
			return badRequest(err.Error())
		}
	}

	n, err := slots.Replace(c.Request().Context(), h.db, list)
	if err != nil {
		return httpError(err)
	}

	zap.L().Info("slots imported", zap.String("source", source), zap.Int("count", n))
	return c.JSON(http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Successfully imported %d slots", n),
		"count":   n,
	})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
