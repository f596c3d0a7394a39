package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RaffleStatus string

const (
	RaffleActive RaffleStatus = "active"
	RafflePaused RaffleStatus = "paused"
	RaffleEnded  RaffleStatus = "ended"
)

// Raffle is a chat giveaway owned by an admin key.
type Raffle struct {
	bun.BaseModel `bun:"table:raffles,alias:r"`

	ID               uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	AdminKeyID       uuid.UUID    `bun:"admin_key_id,type:uuid,notnull" json:"adminKeyId"`
	Title            string       `bun:"title,notnull" json:"title"`
	Description      *string      `bun:"description" json:"description,omitempty"`
	Keyword          string       `bun:"keyword,notnull" json:"keyword"`
	KickUsername     string       `bun:"kick_username,notnull" json:"kickUsername"`
	WinnerCount      int          `bun:"winner_count,notnull,default:1" json:"winnerCount"`
	Status           RaffleStatus `bun:"status,notnull,default:'active'" json:"status"`
	IsActive         bool         `bun:"is_active,notnull" json:"isActive"`
	ChatConnected    bool         `bun:"chat_connected,notnull" json:"chatConnected"`
	SubscribersOnly  bool         `bun:"subscribers_only,notnull" json:"subscribers"`
	FollowersOnly    bool         `bun:"followers_only,notnull" json:"followers"`
	MinWatchTime     int          `bun:"min_watch_time,notnull,default:0" json:"minWatchTime"`
	DuplicateEntries bool         `bun:"duplicate_entries,notnull" json:"duplicateEntries"`
	CreatedAt        time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time    `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
	StartedAt        *time.Time   `bun:"started_at" json:"startedAt,omitempty"`
	EndedAt          *time.Time   `bun:"ended_at" json:"endedAt,omitempty"`
}

// RaffleWithStats adds entry and winner counts for list views.
type RaffleWithStats struct {
	Raffle `bun:",extend"`

	EntryCount        int    `bun:"entry_count" json:"entryCount"`
	ActualWinnerCount int    `bun:"actual_winner_count" json:"actualWinnerCount"`
	AdminDisplayName  string `bun:"admin_display_name" json:"adminDisplayName"`
}

type RaffleEntry struct {
	bun.BaseModel `bun:"table:raffle_entries,alias:re"`

	ID           uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	RaffleID     uuid.UUID `bun:"raffle_id,type:uuid,notnull" json:"raffleId"`
	Username     string    `bun:"username,notnull" json:"username"`
	DisplayName  *string   `bun:"display_name" json:"displayName,omitempty"`
	Message      *string   `bun:"message" json:"message,omitempty"`
	IsSubscriber bool      `bun:"is_subscriber,notnull" json:"isSubscriber"`
	IsFollower   bool      `bun:"is_follower,notnull" json:"isFollower"`
	IsWinner     bool      `bun:"is_winner,notnull" json:"isWinner"`
	EntryNumber  int       `bun:"entry_number,notnull" json:"entryNumber"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

type RaffleWinner struct {
	bun.BaseModel `bun:"table:raffle_winners,alias:rw"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	RaffleID    uuid.UUID `bun:"raffle_id,type:uuid,notnull" json:"raffleId"`
	EntryID     uuid.UUID `bun:"entry_id,type:uuid,notnull" json:"entryId"`
	Username    string    `bun:"username,notnull" json:"username"`
	DisplayName *string   `bun:"display_name" json:"displayName,omitempty"`
	Position    int       `bun:"position,notnull" json:"position"`
	PrizeInfo   *string   `bun:"prize_info" json:"prizeInfo,omitempty"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}
