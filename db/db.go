package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"

	"github.com/padraicbc/huntapi/config"
	"github.com/padraicbc/huntapi/models"
)

// Setup opens a PostgreSQL connection using the provided config.
func Setup(cfg *config.Config) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(context.Background()); err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	return db
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.AdminKey)(nil),
		(*models.AdminSession)(nil),
		(*models.Hunt)(nil),
		(*models.Bonus)(nil),
		(*models.Slot)(nil),
		(*models.Meta)(nil),
		(*models.Raffle)(nil),
		(*models.RaffleEntry)(nil),
		(*models.RaffleWinner)(nil),
		(*models.Tournament)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	constraints := []string{
		constraint("admin_sessions_key_fk", "admin_sessions", "FOREIGN KEY (admin_key_id) REFERENCES admin_keys (id) ON DELETE CASCADE"),
		constraint("hunts_key_fk", "hunts", "FOREIGN KEY (admin_key_id) REFERENCES admin_keys (id) ON DELETE CASCADE"),
		constraint("bonuses_hunt_fk", "bonuses", "FOREIGN KEY (hunt_id) REFERENCES hunts (id) ON DELETE CASCADE"),
		constraint("bonuses_order_unique", "bonuses", "UNIQUE (hunt_id, sort_order) DEFERRABLE INITIALLY IMMEDIATE"),
		constraint("bonuses_bet_positive", "bonuses", "CHECK (bet_amount > 0)"),
		constraint("hunts_start_nonnegative", "hunts", "CHECK (start_balance >= 0)"),
		constraint("raffles_key_fk", "raffles", "FOREIGN KEY (admin_key_id) REFERENCES admin_keys (id) ON DELETE CASCADE"),
		constraint("raffle_entries_raffle_fk", "raffle_entries", "FOREIGN KEY (raffle_id) REFERENCES raffles (id) ON DELETE CASCADE"),
		constraint("raffle_entries_number_unique", "raffle_entries", "UNIQUE (raffle_id, entry_number)"),
		constraint("raffle_winners_raffle_fk", "raffle_winners", "FOREIGN KEY (raffle_id) REFERENCES raffles (id) ON DELETE CASCADE"),
		constraint("raffle_winners_entry_fk", "raffle_winners", "FOREIGN KEY (entry_id) REFERENCES raffle_entries (id) ON DELETE CASCADE"),
		constraint("tournaments_key_fk", "tournaments", "FOREIGN KEY (admin_key_id) REFERENCES admin_keys (id) ON DELETE CASCADE"),
	}
	for _, stmt := range constraints {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			zap.L().Warn("constraint", zap.Error(err))
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS bonuses_hunt_idx ON bonuses (hunt_id, sort_order)`,
		`CREATE INDEX IF NOT EXISTS hunts_key_updated_idx ON hunts (admin_key_id, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS slot_database_name_idx ON slot_database (name)`,
		`CREATE INDEX IF NOT EXISTS admin_sessions_expires_idx ON admin_sessions (expires_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}

func constraint(name, table, def string) string {
	return fmt.Sprintf(
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN ALTER TABLE %s ADD CONSTRAINT %s %s; END IF; END $$`,
		name, table, name, def,
	)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

// IsCheckViolation reports whether err is a PostgreSQL check_violation.
func IsCheckViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23514"
}
