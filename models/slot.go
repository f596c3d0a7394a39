package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Slot is an entry of the slot game catalogue.
type Slot struct {
	bun.BaseModel `bun:"table:slot_database,alias:sl"`

	ID       uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name     string    `bun:"name,notnull" json:"name"`
	Provider string    `bun:"provider,notnull" json:"provider"`
	ImageURL *string   `bun:"image_url" json:"imageUrl,omitempty"`
	Category *string   `bun:"category" json:"category,omitempty"`
}
