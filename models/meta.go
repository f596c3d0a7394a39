package models

import "github.com/uptrace/bun"

// Meta is a key/value row for one-off application state.
type Meta struct {
	bun.BaseModel `bun:"table:meta,alias:m"`

	Key   string  `bun:"key,pk" json:"key"`
	Value *string `bun:"value" json:"value,omitempty"`
}
