package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role decides what an admin key may do beyond managing its own data.
type Role string

const (
	RoleSuperuser Role = "superuser"
	RoleStreamer  Role = "streamer"
)

// AdminKey identifies a streamer account. Only the HMAC of the key value is stored.
type AdminKey struct {
	bun.BaseModel `bun:"table:admin_keys,alias:ak"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	KeyName      string     `bun:"key_name,notnull,unique" json:"keyName"`
	KeyHash      string     `bun:"key_hash,notnull,unique" json:"-"`
	DisplayName  string     `bun:"display_name,notnull" json:"displayName"`
	KickUsername *string    `bun:"kick_username" json:"kickUsername,omitempty"`
	Role         Role       `bun:"role,notnull,default:'streamer'" json:"role"`
	IsActive     bool       `bun:"is_active,notnull" json:"isActive"`
	ExpiresAt    *time.Time `bun:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Usable reports whether the key is active and not expired at now.
func (k *AdminKey) Usable(now time.Time) bool {
	if k == nil || !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// AdminSession backs a signed session token; deleting the row revokes the token.
type AdminSession struct {
	bun.BaseModel `bun:"table:admin_sessions,alias:s"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AdminKeyID uuid.UUID `bun:"admin_key_id,type:uuid,notnull" json:"adminKeyId"`
	ExpiresAt  time.Time `bun:"expires_at,notnull" json:"expiresAt"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`

	AdminKey *AdminKey `bun:"rel:belongs-to,join:admin_key_id=id" json:"-"`
}
