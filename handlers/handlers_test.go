package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/padraicbc/huntapi/bracket"
	"github.com/padraicbc/huntapi/models"
)

func ptr[T any](v T) *T { return &v }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T %v", err, err)
	}
	return he.Code
}

func TestHuntRequestCreate(t *testing.T) {
	hunt := &models.Hunt{}
	req := huntRequest{
		Title:        ptr("  Friday hunt "),
		Casino:       ptr("Stake"),
		StartBalance: dec("1000"),
		Status:       ptr("playing"),
	}
	if err := req.apply(hunt, true); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if hunt.Title != "Friday hunt" || hunt.Currency != "USD" || hunt.Status != models.StatusOpening {
		t.Errorf("unexpected hunt %+v", hunt)
	}
}

func TestHuntRequestValidation(t *testing.T) {
	base := func() huntRequest {
		return huntRequest{Title: ptr("t"), Casino: ptr("c"), StartBalance: dec("10")}
	}
	tests := []struct {
		name   string
		mutate func(r *huntRequest)
		want   int
	}{
		{"missing title", func(r *huntRequest) { r.Title = nil }, http.StatusBadRequest},
		{"blank casino", func(r *huntRequest) { r.Casino = ptr("  ") }, http.StatusBadRequest},
		{"negative start", func(r *huntRequest) { r.StartBalance = dec("-1") }, http.StatusBadRequest},
		{"bad currency", func(r *huntRequest) { r.Currency = ptr("DOLLARS") }, http.StatusBadRequest},
		{"unknown currency", func(r *huntRequest) { r.Currency = ptr("ZZZ") }, http.StatusBadRequest},
		{"bad status", func(r *huntRequest) { r.Status = ptr("paused") }, http.StatusBadRequest},
		{"negative slot index", func(r *huntRequest) { r.CurrentSlotIndex = ptr(-1) }, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			if got := statusOf(t, r.apply(&models.Hunt{}, true)); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHuntRequestCurrencyNormalised(t *testing.T) {
	hunt := &models.Hunt{Currency: "USD"}
	if err := (huntRequest{Currency: ptr(" eur ")}).apply(hunt, false); err != nil {
		t.Fatal(err)
	}
	if hunt.Currency != "EUR" {
		t.Errorf("currency = %q", hunt.Currency)
	}
}

func TestHuntEndBalanceImmutable(t *testing.T) {
	hunt := &models.Hunt{EndBalance: decimal.NewNullDecimal(decimal.RequireFromString("250.50"))}

	if err := (huntRequest{EndBalance: dec("250.5")}).apply(hunt, false); err != nil {
		t.Errorf("same end balance should be accepted, got %v", err)
	}
	if got := statusOf(t, (huntRequest{EndBalance: dec("300")}).apply(hunt, false)); got != http.StatusConflict {
		t.Errorf("status = %d, want 409", got)
	}
	if !hunt.EndBalance.Decimal.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("end balance changed to %s", hunt.EndBalance.Decimal)
	}

	open := &models.Hunt{}
	if err := (huntRequest{EndBalance: dec("12")}).apply(open, false); err != nil || !open.EndBalance.Valid {
		t.Errorf("first end balance not recorded: %v", err)
	}
}

func TestDecodeBonuses(t *testing.T) {
	single, err := decodeBonuses([]byte(` {"slotName":"Gates","betAmount":"2.50"}`))
	if err != nil || len(single) != 1 || *single[0].SlotName != "Gates" {
		t.Fatalf("single: %v %+v", err, single)
	}
	if !single[0].BetAmount.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("bet amount from string = %s", single[0].BetAmount)
	}

	bulk, err := decodeBonuses([]byte(`[{"slotName":"A","betAmount":1},{"slotName":"B","betAmount":2,"order":7}]`))
	if err != nil || len(bulk) != 2 || *bulk[1].Order != 7 {
		t.Fatalf("bulk: %v %+v", err, bulk)
	}

	for _, body := range []string{"", "[]", "{", "[1,2]"} {
		if _, err := decodeBonuses([]byte(body)); err == nil {
			t.Errorf("decodeBonuses(%q) should fail", body)
		}
	}
}

func TestBonusRequestApply(t *testing.T) {
	t.Run("requires slot and bet", func(t *testing.T) {
		err := (bonusRequest{SlotName: ptr("x")}).apply(&models.Bonus{}, true)
		if statusOf(t, err) != http.StatusBadRequest {
			t.Error("expected 400")
		}
	})

	t.Run("bet must be positive", func(t *testing.T) {
		err := (bonusRequest{SlotName: ptr("x"), BetAmount: dec("0")}).apply(&models.Bonus{}, true)
		if statusOf(t, err) != http.StatusBadRequest {
			t.Error("expected 400")
		}
	})

	t.Run("win amount records payout", func(t *testing.T) {
		b := &models.Bonus{BetAmount: decimal.NewFromInt(4)}
		if err := (bonusRequest{WinAmount: dec("10")}).apply(b, false); err != nil {
			t.Fatal(err)
		}
		if !b.IsPlayed || b.Status != models.BonusOpened || b.Multiplier.Decimal.String() != "2.5" {
			t.Errorf("unexpected bonus %+v", b)
		}
	})

	t.Run("bet change rescales multiplier", func(t *testing.T) {
		b := &models.Bonus{BetAmount: decimal.NewFromInt(4)}
		b.RecordPayout(decimal.NewFromInt(10))
		if err := (bonusRequest{BetAmount: dec("5")}).apply(b, false); err != nil {
			t.Fatal(err)
		}
		if b.Multiplier.Decimal.String() != "2" {
			t.Errorf("multiplier = %s, want 2", b.Multiplier.Decimal)
		}
	})

	t.Run("marking played needs a win amount", func(t *testing.T) {
		b := &models.Bonus{BetAmount: decimal.NewFromInt(4)}
		err := (bonusRequest{IsPlayed: ptr(true)}).apply(b, false)
		if statusOf(t, err) != http.StatusBadRequest {
			t.Error("expected 400")
		}
		if b.IsPlayed {
			t.Error("bonus must stay unplayed")
		}
	})

	t.Run("played flag with win amount", func(t *testing.T) {
		b := &models.Bonus{BetAmount: decimal.NewFromInt(4)}
		if err := (bonusRequest{IsPlayed: ptr(true), WinAmount: dec("8")}).apply(b, false); err != nil {
			t.Fatal(err)
		}
		if !b.IsPlayed || b.Multiplier.Decimal.String() != "2" {
			t.Errorf("unexpected bonus %+v", b)
		}
	})

	t.Run("unplaying clears payout", func(t *testing.T) {
		b := &models.Bonus{BetAmount: decimal.NewFromInt(4)}
		b.RecordPayout(decimal.NewFromInt(10))
		if err := (bonusRequest{IsPlayed: ptr(false), WinAmount: dec("3")}).apply(b, false); err != nil {
			t.Fatal(err)
		}
		if b.IsPlayed || b.WinAmount.Valid || b.Multiplier.Valid || b.Status != models.BonusWaiting {
			t.Errorf("payout not cleared: %+v", b)
		}
	})
}

func TestAssignOrders(t *testing.T) {
	bonuses := []*models.Bonus{{}, {Order: 9}, {}, {}}
	assignOrders(bonuses, 3)

	want := []int{10, 9, 11, 12}
	for i, b := range bonuses {
		if b.Order != want[i] {
			t.Errorf("bonus %d order = %d, want %d", i, b.Order, want[i])
		}
	}

	fresh := []*models.Bonus{{}, {}}
	assignOrders(fresh, 0)
	if fresh[0].Order != 1 || fresh[1].Order != 2 {
		t.Errorf("orders in empty hunt = %d, %d", fresh[0].Order, fresh[1].Order)
	}
}

func entries(n int) []models.RaffleEntry {
	out := make([]models.RaffleEntry, n)
	for i := range out {
		out[i] = models.RaffleEntry{ID: uuid.New(), Username: fmt.Sprintf("user%d", i), EntryNumber: i + 1}
	}
	return out
}

func TestPickWinners(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	in := entries(10)

	t.Run("distinct and bounded", func(t *testing.T) {
		got := pickWinners(in, 3, rng.IntN)
		if len(got) != 3 {
			t.Fatalf("expected 3 winners, got %d", len(got))
		}
		seen := map[uuid.UUID]bool{}
		for _, w := range got {
			if seen[w.ID] {
				t.Errorf("duplicate winner %s", w.Username)
			}
			seen[w.ID] = true
		}
	})

	t.Run("more winners than entries", func(t *testing.T) {
		if got := pickWinners(in[:2], 5, rng.IntN); len(got) != 2 {
			t.Errorf("expected 2 winners, got %d", len(got))
		}
	})

	t.Run("input untouched", func(t *testing.T) {
		before := make([]models.RaffleEntry, len(in))
		copy(before, in)
		pickWinners(in, 10, rng.IntN)
		for i := range in {
			if in[i].ID != before[i].ID {
				t.Fatal("pickWinners reordered its input")
			}
		}
	})

	t.Run("every entry can win", func(t *testing.T) {
		wins := map[string]int{}
		for i := 0; i < 2000; i++ {
			wins[pickWinners(in, 1, rng.IntN)[0].Username]++
		}
		for _, e := range in {
			if wins[e.Username] == 0 {
				t.Errorf("%s never won", e.Username)
			}
		}
	})
}

func TestRaffleRequestApply(t *testing.T) {
	r := &models.Raffle{WinnerCount: 1}
	if err := (raffleRequest{Title: ptr("Giveaway"), Keyword: ptr("!join"), WinnerCount: ptr(3)}).apply(r, true); err != nil {
		t.Fatal(err)
	}
	if r.Title != "Giveaway" || r.Keyword != "!join" || r.WinnerCount != 3 {
		t.Errorf("unexpected raffle %+v", r)
	}

	for name, req := range map[string]raffleRequest{
		"missing keyword": {Title: ptr("x")},
		"zero winners":    {Title: ptr("x"), Keyword: ptr("k"), WinnerCount: ptr(0)},
		"negative watch":  {Title: ptr("x"), Keyword: ptr("k"), MinWatchTime: ptr(-5)},
	} {
		t.Run(name, func(t *testing.T) {
			if statusOf(t, req.apply(&models.Raffle{}, true)) != http.StatusBadRequest {
				t.Error("expected 400")
			}
		})
	}
}

func TestBuildOverlay(t *testing.T) {
	t.Run("no hunt", func(t *testing.T) {
		b, err := json.Marshal(buildOverlay(nil, nil))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != `{"hunt":null,"bonuses":[]}` {
			t.Errorf("unexpected payload %s", b)
		}
	})

	t.Run("active hunt", func(t *testing.T) {
		hunt := &models.Hunt{Currency: "USD", StartBalance: decimal.NewFromInt(1000), IsPlaying: true}
		played := models.Bonus{Order: 1, BetAmount: decimal.NewFromInt(10)}
		played.RecordPayout(decimal.NewFromInt(250))
		next := models.Bonus{Order: 2, BetAmount: decimal.RequireFromString("12.5")}

		p := buildOverlay(hunt, []models.Bonus{next, played})
		if p.Stats == nil || p.Display == nil {
			t.Fatal("stats and display expected")
		}
		if p.Bonuses[0].Order != 1 {
			t.Error("bonuses not sorted by order")
		}
		if !strings.Contains(p.Display.TotalWin, "250.00") || !strings.Contains(p.Display.NextBet, "12.50") {
			t.Errorf("unexpected display %+v", p.Display)
		}
		if !strings.HasPrefix(p.Display.Profit, "-") {
			t.Errorf("profit should be negative, got %q", p.Display.Profit)
		}
	})
}

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{sql.ErrNoRows, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", sql.ErrNoRows), http.StatusNotFound},
		{bracket.ErrDecided, http.StatusConflict},
		{bracket.ErrIncomplete, http.StatusBadRequest},
		{bracket.ErrNoMatch, http.StatusBadRequest},
		{echo.NewHTTPError(http.StatusTeapot, "x"), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(t, httpError(tt.err)); got != tt.want {
			t.Errorf("httpError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestLoginRequiresKey(t *testing.T) {
	h := New(nil, nil, nil, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"adminKey":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.Login(e.NewContext(req, httptest.NewRecorder()))
	if statusOf(t, err) != http.StatusBadRequest {
		t.Error("expected 400")
	}
}

func TestCheckAdminAnonymous(t *testing.T) {
	h := New(nil, nil, nil, nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/admin/check", nil), rec)

	if err := h.CheckAdmin(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"isAdmin":false`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	h := New(nil, nil, nil, nil)
	e := echo.New()
	for name, fn := range map[string]echo.HandlerFunc{
		"create hunt":   h.CreateHunt,
		"payout":        h.RecordPayout,
		"raffles":       h.Raffles,
		"tournament":    h.Tournament,
		"create bonus":  h.CreateBonuses,
		"delete hunt":   h.DeleteHunt,
		"start playing": h.StartPlaying,
	} {
		t.Run(name, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")), httptest.NewRecorder())
			if statusOf(t, fn(c)) != http.StatusUnauthorized {
				t.Error("expected 401")
			}
		})
	}
}
