// Package adminkeys loads admin key definitions and seeds them into the database.
package adminkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	mw "github.com/padraicbc/huntapi/middleware"
	"github.com/padraicbc/huntapi/models"
)

// SeededMetaKey marks that initial admin keys have been created.
const SeededMetaKey = "admin_keys_seeded"

// Entry is one admin key as written in the seed file or sent by a superuser.
type Entry struct {
	DisplayName  string      `yaml:"displayName" json:"displayName"`
	KeyValue     string      `yaml:"keyValue" json:"keyValue"`
	KeyName      string      `yaml:"keyName" json:"keyName"`
	KickUsername string      `yaml:"kickUsername" json:"kickUsername"`
	Role         models.Role `yaml:"role" json:"role"`
	ExpiresAt    *time.Time  `yaml:"expiresAt" json:"expiresAt"`
}

type file struct {
	Keys []Entry `yaml:"keys"`
}

// Load reads the seed file at path. A missing file yields no entries.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a seed file:
//
//	keys:
//	  - displayName: Main Admin
//	    keyValue: s3cret
//	    role: superuser
func Parse(data []byte) ([]Entry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing admin keys: %w", err)
	}
	for i := range f.Keys {
		if err := f.Keys[i].Normalize(); err != nil {
			return nil, fmt.Errorf("admin key %d: %w", i+1, err)
		}
	}
	return f.Keys, nil
}

// KeyName derives a url-safe key name from a display name.
func KeyName(displayName string) string {
	return slug.Make(displayName)
}

// Normalize trims fields, fills defaults and validates e.
func (e *Entry) Normalize() error {
	e.DisplayName = strings.TrimSpace(e.DisplayName)
	e.KeyValue = strings.TrimSpace(e.KeyValue)
	e.KickUsername = strings.TrimSpace(e.KickUsername)

	if e.DisplayName == "" {
		return errors.New("displayName is required")
	}
	if e.KeyValue == "" {
		return errors.New("keyValue is required")
	}
	if e.KeyName == "" {
		e.KeyName = KeyName(e.DisplayName)
	} else {
		e.KeyName = slug.Make(e.KeyName)
	}
	if e.KeyName == "" {
		return errors.New("keyName cannot be derived from displayName")
	}

	switch e.Role {
	case "":
		e.Role = models.RoleStreamer
	case models.RoleStreamer, models.RoleSuperuser:
	default:
		return fmt.Errorf("unknown role %q", e.Role)
	}
	return nil
}

// Model builds the stored form of e. Only the HMAC of the key value is kept.
func (e Entry) Model(secret []byte) *models.AdminKey {
	k := &models.AdminKey{
		ID:          uuid.New(),
		KeyName:     e.KeyName,
		KeyHash:     mw.KeyHash(e.KeyValue, secret),
		DisplayName: e.DisplayName,
		Role:        e.Role,
		IsActive:    true,
		ExpiresAt:   e.ExpiresAt,
	}
	if e.KickUsername != "" {
		k.KickUsername = &e.KickUsername
	}
	return k
}

// Bootstrap is the superuser entry created from a configured key value.
func Bootstrap(value string) Entry {
	return Entry{
		DisplayName: "Main Admin",
		KeyValue:    strings.TrimSpace(value),
		KeyName:     "admin",
		Role:        models.RoleSuperuser,
	}
}

// Seed creates the bootstrap key and entries once. Later calls are no-ops,
// so keys deleted by a superuser are not recreated on restart. Seeding is not
// marked done while it has created nothing and no superuser exists.
func Seed(ctx context.Context, db bun.IDB, secret []byte, bootstrap string, entries []Entry) (int, error) {
	if bootstrap != "" {
		entries = append([]Entry{Bootstrap(bootstrap)}, entries...)
	}

	created := 0
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		meta := new(models.Meta)
		err := tx.NewSelect().Model(meta).
			Where("key = ?", SeededMetaKey).
			For("UPDATE").
			Scan(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		for _, e := range entries {
			res, err := tx.NewInsert().Model(e.Model(secret)).
				On("CONFLICT DO NOTHING").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("seeding %s: %w", e.KeyName, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				created++
				zap.L().Info("admin key seeded", zap.String("key_name", e.KeyName), zap.String("role", string(e.Role)))
			}
		}

		if created == 0 {
			exists, err := tx.NewSelect().Model((*models.AdminKey)(nil)).
				Where("role = ?", models.RoleSuperuser).
				Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				zap.L().Warn("no superuser key yet, admin key seeding will run again on next start")
				return nil
			}
		}

		now := time.Now().UTC().Format(time.RFC3339)
		_, err = tx.NewInsert().Model(&models.Meta{Key: SeededMetaKey, Value: &now}).
			On("CONFLICT (key) DO NOTHING").
			Exec(ctx)
		return err
	})
	return created, err
}
