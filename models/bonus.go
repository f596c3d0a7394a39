package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BonusStatus string

const (
	BonusWaiting BonusStatus = "waiting"
	BonusOpened  BonusStatus = "opened"
)

// Bonus is a single slot bonus round within a hunt.
type Bonus struct {
	bun.BaseModel `bun:"table:bonuses,alias:b"`

	ID         uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	HuntID     uuid.UUID           `bun:"hunt_id,type:uuid,notnull" json:"huntId"`
	SlotName   string              `bun:"slot_name,notnull" json:"slotName"`
	Provider   string              `bun:"provider,notnull" json:"provider"`
	ImageURL   *string             `bun:"image_url" json:"imageUrl,omitempty"`
	BetAmount  decimal.Decimal     `bun:"bet_amount,type:numeric(10,2),notnull" json:"betAmount"`
	Multiplier decimal.NullDecimal `bun:"multiplier,type:numeric(10,2)" json:"multiplier"`
	WinAmount  decimal.NullDecimal `bun:"win_amount,type:numeric(10,2)" json:"winAmount"`
	Order      int                 `bun:"sort_order,notnull" json:"order"`
	Status     BonusStatus         `bun:"status,notnull,default:'waiting'" json:"status"`
	IsPlayed   bool                `bun:"is_played,notnull" json:"isPlayed"`
	CreatedAt  time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// RecordPayout marks the bonus as played with the given win. The multiplier is
// rounded to the two places the column keeps so stored and computed values agree.
func (b *Bonus) RecordPayout(win decimal.Decimal) {
	b.WinAmount = decimal.NewNullDecimal(win)
	if b.BetAmount.IsPositive() {
		b.Multiplier = decimal.NewNullDecimal(win.DivRound(b.BetAmount, 2))
	} else {
		b.Multiplier = decimal.NewNullDecimal(decimal.Zero)
	}
	b.IsPlayed = true
	b.Status = BonusOpened
}

// ClearPayout reverts the bonus to unplayed.
func (b *Bonus) ClearPayout() {
	b.WinAmount = decimal.NullDecimal{}
	b.Multiplier = decimal.NullDecimal{}
	b.IsPlayed = false
	b.Status = BonusWaiting
}

// LiveBonus is a bonus of a public hunt, joined with hunt and owner names.
type LiveBonus struct {
	Bonus `bun:",extend"`

	HuntTitle        string `bun:"hunt_title" json:"huntTitle"`
	AdminDisplayName string `bun:"admin_display_name" json:"adminDisplayName"`
}
