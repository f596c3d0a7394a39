package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/huntapi/models"
)

// Capability is an action that not every admin key may perform.
type Capability int

const (
	// CapManageOwn covers hunts, bonuses, raffles and tournaments owned by the key.
	CapManageOwn Capability = iota
	CapManageKeys
	CapImportSlots
)

// Can is the single authorization decision for admin keys.
func Can(k *models.AdminKey, c Capability) bool {
	if !k.Usable(time.Now()) {
		return false
	}
	switch c {
	case CapManageOwn:
		return true
	case CapManageKeys, CapImportSlots:
		return k.Role == models.RoleSuperuser
	}
	return false
}

// RequireCapability must run after RequireAdmin.
func RequireCapability(c Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !Can(Admin(ctx), c) {
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			}
			return next(ctx)
		}
	}
}
