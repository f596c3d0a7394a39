package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	mw "github.com/padraicbc/huntapi/middleware"
	"github.com/padraicbc/huntapi/models"
)

const (
	lockHunt   = `SELECT .* FROM "hunts" AS "h" WHERE \(h.id = '.*'\) AND \(h.admin_key_id = '.*'\) FOR UPDATE`
	findBonus  = `SELECT .* FROM "bonuses" AS "b" JOIN hunts AS h ON h.id = b.hunt_id WHERE \(b.id = '.*'\)`
	lockBonus  = `SELECT .* FROM "bonuses" AS "b" WHERE .*"b"."id" = '.*FOR UPDATE`
	refreshSel = `SELECT .* FROM "hunts" AS "h" WHERE \(h.id = '.*'\) FOR UPDATE`
	countSel   = `SELECT count\(\*\) AS total, .* FROM bonuses`
)

func newMockHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil, nil, nil), mock
}

// adminContext builds a request context for key with the :id path param set.
func adminContext(key *models.AdminKey, method, body string, id uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	mw.SetAdmin(c, key)
	return c, rec
}

func testKey() *models.AdminKey {
	return &models.AdminKey{ID: uuid.New(), KeyName: "streamer", Role: models.RoleStreamer, IsActive: true}
}

func huntRows(id, owner uuid.UUID, st models.HuntStatus, playing bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "admin_key_id", "title", "casino", "currency", "status", "is_playing", "start_balance", "end_balance"}).
		AddRow(id.String(), owner.String(), "Friday hunt", "Stake", "USD", string(st), playing, "100.00", nil)
}

func TestUpdateHuntToFinishedStopsPlay(t *testing.T) {
	h, mock := newMockHandler(t)
	key := testKey()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockHunt).WillReturnRows(huntRows(id, key.ID, models.StatusOpening, true))
	mock.ExpectQuery(`SELECT coalesce\(sum\(win_amount\) FILTER \(WHERE is_played\), 0\) FROM bonuses`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("150.00"))
	mock.ExpectExec(`UPDATE "hunts" AS "h" SET .*"end_balance" = '150'.*"status" = 'finished'.*"is_playing" = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, rec := adminContext(key, http.MethodPut, `{"status":"finished"}`, id)
	if err := h.UpdateHunt(c); err != nil {
		t.Fatalf("UpdateHunt: %v", err)
	}

	var got models.Hunt
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusFinished || got.IsPlaying {
		t.Errorf("expected finished and not playing, got %s playing=%v", got.Status, got.IsPlaying)
	}
	if !got.EndBalance.Valid || got.EndBalance.Decimal.String() != "150" {
		t.Errorf("expected end balance 150, got %+v", got.EndBalance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteHuntLocksHuntFirst(t *testing.T) {
	h, mock := newMockHandler(t)
	key := testKey()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockHunt).WillReturnRows(huntRows(id, key.ID, models.StatusCollecting, false))
	mock.ExpectExec(`DELETE FROM "hunts" AS "h" WHERE .*"h"."id" = '`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, rec := adminContext(key, http.MethodDelete, "", id)
	if err := h.DeleteHunt(c); err != nil {
		t.Fatalf("DeleteHunt: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteHuntNotOwned(t *testing.T) {
	h, mock := newMockHandler(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockHunt).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	c, _ := adminContext(testKey(), http.MethodDelete, "", uuid.New())
	if statusOf(t, h.DeleteHunt(c)) != http.StatusNotFound {
		t.Error("expected 404")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteBonusLocksHuntBeforeBonus(t *testing.T) {
	h, mock := newMockHandler(t)
	key := testKey()
	huntID, bonusID := uuid.New(), uuid.New()
	bonusRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "hunt_id", "slot_name", "bet_amount", "sort_order"}).
			AddRow(bonusID.String(), huntID.String(), "Gates", "2.00", 1)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(findBonus).WillReturnRows(bonusRow())
	mock.ExpectQuery(lockHunt).WillReturnRows(huntRows(huntID, key.ID, models.StatusCollecting, false))
	mock.ExpectQuery(lockBonus).WillReturnRows(bonusRow())
	mock.ExpectExec(`DELETE FROM "bonuses"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(refreshSel).WillReturnRows(huntRows(huntID, key.ID, models.StatusCollecting, false))
	mock.ExpectQuery(countSel).WillReturnRows(sqlmock.NewRows([]string{"total", "played", "won"}).AddRow(0, 0, "0"))
	mock.ExpectCommit()

	c, _ := adminContext(key, http.MethodDelete, "", bonusID)
	if err := h.DeleteBonus(c); err != nil {
		t.Fatalf("DeleteBonus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCheckReorder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	have := []uuid.UUID{a, b, c}
	tests := []struct {
		name string
		want []uuid.UUID
		ok   bool
	}{
		{"swap", []uuid.UUID{b, a, c}, true},
		{"missing", []uuid.UUID{a, b}, false},
		{"duplicate", []uuid.UUID{a, a, b}, false},
		{"foreign", []uuid.UUID{a, b, uuid.New()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkReorder(have, tt.want)
			if tt.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !tt.ok && statusOf(t, err) != http.StatusBadRequest {
				t.Error("expected 400")
			}
		})
	}
}

func TestReorderBonusesDefersOrderConstraint(t *testing.T) {
	h, mock := newMockHandler(t)
	key := testKey()
	huntID, first, second := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockHunt).WillReturnRows(huntRows(huntID, key.ID, models.StatusCollecting, false))
	mock.ExpectExec(`SET CONSTRAINTS bonuses_order_unique DEFERRED`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "b"."id" FROM "bonuses" AS "b" WHERE \(hunt_id = '.*'\) FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.String()).AddRow(second.String()))
	mock.ExpectExec(`UPDATE "bonuses" AS "b" SET sort_order = 1 WHERE \(id = '` + second.String() + `'\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "bonuses" AS "b" SET sort_order = 2 WHERE \(id = '` + first.String() + `'\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM "bonuses" AS "b" WHERE \(b.hunt_id = '.*'\) ORDER BY b.sort_order ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "hunt_id", "sort_order"}).
			AddRow(second.String(), huntID.String(), 1).
			AddRow(first.String(), huntID.String(), 2))
	mock.ExpectCommit()

	body := `{"bonusIds":["` + second.String() + `","` + first.String() + `"]}`
	c, rec := adminContext(key, http.MethodPut, body, huntID)
	if err := h.ReorderBonuses(c); err != nil {
		t.Fatalf("ReorderBonuses: %v", err)
	}

	var got []models.Bonus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != second || got[0].Order != 1 {
		t.Errorf("unexpected order %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLikeEscaper(t *testing.T) {
	tests := map[string]string{
		"book":       "book",
		"100%":       `100\%`,
		"big_bass":   `big\_bass`,
		`back\slash`: `back\\slash`,
		"%_\\ mixed": `\%\_\\ mixed`,
	}
	for in, want := range tests {
		if got := likeEscaper.Replace(in); got != want {
			t.Errorf("escape(%q) = %q, want %q", in, got, want)
		}
	}
}
