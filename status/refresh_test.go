package status

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/padraicbc/huntapi/models"
)

const (
	huntSelect  = `SELECT .* FROM "hunts" AS "h" WHERE \(h.id = '.*'\) FOR UPDATE`
	countSelect = `SELECT count\(\*\) AS total, .* FROM bonuses WHERE \(hunt_id = '.*'\)`
	huntUpdate  = `UPDATE "hunts" AS "h" SET `
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func huntRow(id uuid.UUID, st models.HuntStatus, playing bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "status", "is_playing", "start_balance", "end_balance"}).
		AddRow(id.String(), string(st), playing, "100.00", nil)
}

func countRow(total, played int, won string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"total", "played", "won"}).AddRow(total, played, won)
}

func TestRefreshMissingHunt(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(huntSelect).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	st, err := Refresh(context.Background(), db, uuid.New())
	if err != nil || st != "" {
		t.Errorf("expected empty status and no error, got %q, %v", st, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRefreshUnchangedDoesNotWrite(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	mock.ExpectQuery(huntSelect).WillReturnRows(huntRow(id, models.StatusOpening, true))
	mock.ExpectQuery(countSelect).WillReturnRows(countRow(3, 1, "20.00"))

	st, err := Refresh(context.Background(), db, id)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st != models.StatusOpening {
		t.Errorf("expected opening, got %q", st)
	}
	// an UPDATE would be an unexpected call and fail here
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRefreshWritesTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current models.HuntStatus
		total   int
		played  int
		want    models.HuntStatus
		update  string
	}{
		{"first payout opens", models.StatusCollecting, 3, 1, models.StatusOpening, huntUpdate + `.*"status" = 'opening'`},
		{"last payout finishes", models.StatusOpening, 3, 3, models.StatusFinished,
			huntUpdate + `.*"status" = 'finished'.*"is_playing" = FALSE.*"end_balance" = '150'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			id := uuid.New()
			mock.ExpectQuery(huntSelect).WillReturnRows(huntRow(id, tt.current, true))
			mock.ExpectQuery(countSelect).WillReturnRows(countRow(tt.total, tt.played, "150.00"))
			mock.ExpectExec(tt.update).WillReturnResult(sqlmock.NewResult(0, 1))

			st, err := Refresh(context.Background(), db, id)
			if err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			if st != tt.want {
				t.Errorf("expected %q, got %q", tt.want, st)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestRefreshPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	db, mock := newMockDB(t)
	id := uuid.New()
	mock.ExpectQuery(huntSelect).WillReturnRows(huntRow(id, models.StatusOpening, true))
	mock.ExpectQuery(countSelect).WillReturnError(boom)

	st, err := Refresh(context.Background(), db, id)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if st != "" {
		t.Errorf("expected empty status on error, got %q", st)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
