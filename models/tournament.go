package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/padraicbc/huntapi/bracket"
)

// Tournament stores the single bracket each admin key works on.
type Tournament struct {
	bun.BaseModel `bun:"table:tournaments,alias:t"`

	AdminKeyID uuid.UUID        `bun:"admin_key_id,pk,type:uuid" json:"adminKeyId"`
	Bracket    *bracket.Bracket `bun:"bracket,type:jsonb,notnull" json:"bracket"`
	UpdatedAt  time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}
