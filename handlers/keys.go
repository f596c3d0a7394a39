package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/adminkeys"
	mw "github.com/padraicbc/huntapi/middleware"
	"github.com/padraicbc/huntapi/models"
)

type keyUpdate struct {
	DisplayName  *string      `json:"displayName"`
	KeyName      *string      `json:"keyName"`
	KickUsername *string      `json:"kickUsername"`
	Role         *models.Role `json:"role"`
	IsActive     *bool        `json:"isActive"`
	ExpiresAt    *time.Time   `json:"expiresAt"`
}

// ListKeys returns all admin keys ordered by display name.
func (h *Handler) ListKeys(c echo.Context) error {
	keys := []models.AdminKey{}
	err := h.db.NewSelect().Model(&keys).
		OrderExpr("ak.display_name ASC").
		Scan(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, keys)
}

// CreateKey adds an admin key. The key value is returned nowhere after this call.
func (h *Handler) CreateKey(c echo.Context) error {
	var e adminkeys.Entry
	if err := c.Bind(&e); err != nil {
		return badRequest(err.Error())
	}
	if err := e.Normalize(); err != nil {
		return badRequest(err.Error())
	}

	k := e.Model(h.cfg.SecretKey())
	if _, err := h.db.NewInsert().Model(k).Exec(c.Request().Context()); err != nil {
		return httpError(err)
	}

	zap.L().Info("admin key created", zap.String("key_name", k.KeyName), zap.String("role", string(k.Role)))
	return c.JSON(http.StatusCreated, k)
}

// UpdateKey changes the mutable fields of an admin key.
func (h *Handler) UpdateKey(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req keyUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest(err.Error())
	}

	ctx := c.Request().Context()
	k := new(models.AdminKey)
	if err := h.db.NewSelect().Model(k).Where("ak.id = ?", id).Scan(ctx); err != nil {
		return httpError(err)
	}
	oldName := k.KeyName

	if req.DisplayName != nil {
		if strings.TrimSpace(*req.DisplayName) == "" {
			return badRequest("displayName cannot be empty")
		}
		k.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.KeyName != nil {
		name := slug.Make(*req.KeyName)
		if name == "" {
			return badRequest("keyName cannot be empty")
		}
		k.KeyName = name
	}
	if req.KickUsername != nil {
		if u := strings.TrimSpace(*req.KickUsername); u != "" {
			k.KickUsername = &u
		} else {
			k.KickUsername = nil
		}
	}
	if req.Role != nil {
		if *req.Role != models.RoleSuperuser && *req.Role != models.RoleStreamer {
			return badRequest("unknown role")
		}
		k.Role = *req.Role
	}
	if req.IsActive != nil {
		k.IsActive = *req.IsActive
	}
	// A missing or null expiresAt removes the expiry.
	k.ExpiresAt = req.ExpiresAt
	k.UpdatedAt = time.Now()

	_, err = h.db.NewUpdate().Model(k).
		Column("display_name", "key_name", "kick_username", "role", "is_active", "expires_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return httpError(err)
	}

	h.invalidateOverlays(ctx, &models.AdminKey{ID: k.ID, KeyName: oldName})
	return c.JSON(http.StatusOK, k)
}

// DeleteKey removes an admin key with its sessions, hunts and raffles.
func (h *Handler) DeleteKey(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if me := mw.Admin(c); me != nil && me.ID == id {
		return badRequest("cannot delete the key of the current session")
	}

	ctx := c.Request().Context()
	k := new(models.AdminKey)
	if err := h.db.NewSelect().Model(k).Where("ak.id = ?", id).Scan(ctx); err != nil {
		return httpError(err)
	}
	if _, err := h.db.NewDelete().Model(k).WherePK().Exec(ctx); err != nil {
		return httpError(err)
	}

	zap.L().Info("admin key deleted", zap.String("key_name", k.KeyName))
	h.invalidateOverlays(ctx, k)
	return c.JSON(http.StatusOK, map[string]string{"message": "Admin key deleted successfully"})
}
