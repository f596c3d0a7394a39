package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// HuntStatus is the lifecycle state of a hunt.
type HuntStatus string

const (
	StatusCollecting HuntStatus = "collecting"
	StatusOpening    HuntStatus = "opening"
	StatusFinished   HuntStatus = "finished"
)

// ParseHuntStatus normalises client input. "playing" is accepted as an alias of opening.
func ParseHuntStatus(s string) (HuntStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StatusCollecting):
		return StatusCollecting, nil
	case string(StatusOpening), "playing":
		return StatusOpening, nil
	case string(StatusFinished):
		return StatusFinished, nil
	}
	return "", fmt.Errorf("unknown hunt status %q", s)
}

// Hunt is a tracked session of opening slot bonuses against a starting balance.
type Hunt struct {
	bun.BaseModel `bun:"table:hunts,alias:h"`

	ID               uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	AdminKeyID       uuid.UUID           `bun:"admin_key_id,type:uuid,notnull" json:"adminKeyId"`
	Title            string              `bun:"title,notnull" json:"title"`
	Casino           string              `bun:"casino,notnull" json:"casino"`
	Currency         string              `bun:"currency,notnull,default:'USD'" json:"currency"`
	StartBalance     decimal.Decimal     `bun:"start_balance,type:numeric(10,2),notnull" json:"startBalance"`
	EndBalance       decimal.NullDecimal `bun:"end_balance,type:numeric(10,2)" json:"endBalance"`
	Status           HuntStatus          `bun:"status,notnull,default:'collecting'" json:"status"`
	Notes            *string             `bun:"notes" json:"notes,omitempty"`
	IsPublic         bool                `bun:"is_public,notnull" json:"isPublic"`
	PublicToken      string              `bun:"public_token,notnull,unique" json:"publicToken"`
	IsPlaying        bool                `bun:"is_playing,notnull" json:"isPlaying"`
	CurrentSlotIndex int                 `bun:"current_slot_index,notnull,default:0" json:"currentSlotIndex"`
	CreatedAt        time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`

	AdminKey *AdminKey `bun:"rel:belongs-to,join:admin_key_id=id" json:"-"`
}

// HuntWithAdmin is a hunt joined with the display name of its owner.
type HuntWithAdmin struct {
	Hunt `bun:",extend"`

	AdminDisplayName string `bun:"admin_display_name" json:"adminDisplayName"`
}
