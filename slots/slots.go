// Package slots loads the slot catalogue from CSV into the slot_database table.
package slots

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/padraicbc/huntapi/models"
)

// BatchSize is the number of rows written per insert statement.
const BatchSize = 500

// ErrNoNameColumn is returned for a CSV without a name header.
var ErrNoNameColumn = errors.New("slots csv: missing name column")

var headerAliases = map[string]string{
	"name":     "name",
	"provider": "provider",
	"imageurl": "image",
	"image":    "image",
	"category": "category",
}

// ParseCSV reads slots from r. The first row is a header; headers are matched
// case-insensitively and imageUrl may be written as image. Rows without a
// name are skipped.
func ParseCSV(r io.Reader) ([]models.Slot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoNameColumn
		}
		return nil, fmt.Errorf("slots csv header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := headerAliases[key]; ok {
			if _, seen := cols[field]; !seen {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, ErrNoNameColumn
	}

	get := func(rec []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	optional := func(rec []string, field string) *string {
		if v := get(rec, field); v != "" {
			return &v
		}
		return nil
	}

	var out []models.Slot
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("slots csv line %d: %w", line, err)
		}
		name := get(rec, "name")
		if name == "" {
			continue
		}
		out = append(out, models.Slot{
			ID:       uuid.New(),
			Name:     name,
			Provider: get(rec, "provider"),
			ImageURL: optional(rec, "image"),
			Category: optional(rec, "category"),
		})
	}
	return out, nil
}

// ParseFile opens path and parses it with ParseCSV.
func ParseFile(path string) ([]models.Slot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f)
}

// Replace swaps the whole catalogue for slots in one transaction.
func Replace(ctx context.Context, db bun.IDB, slots []models.Slot) (int, error) {
	total := 0
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.Slot)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return fmt.Errorf("clearing slots: %w", err)
		}
		for start := 0; start < len(slots); start += BatchSize {
			end := min(start+BatchSize, len(slots))
			batch := slots[start:end]
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return fmt.Errorf("inserting slots %d-%d: %w", start, end, err)
			}
			total += len(batch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
