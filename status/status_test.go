package status

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/huntapi/models"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name    string
		current models.HuntStatus
		played  int
		total   int
		want    models.HuntStatus
	}{
		{"no bonuses keeps collecting", models.StatusCollecting, 0, 0, models.StatusCollecting},
		{"no bonuses keeps opening", models.StatusOpening, 0, 0, models.StatusOpening},
		{"nothing played", models.StatusCollecting, 0, 3, models.StatusCollecting},
		{"first payout opens", models.StatusCollecting, 1, 3, models.StatusOpening},
		{"explicit start stays opening", models.StatusOpening, 0, 3, models.StatusOpening},
		{"partial stays opening", models.StatusOpening, 2, 3, models.StatusOpening},
		{"all played finishes", models.StatusOpening, 3, 3, models.StatusFinished},
		{"all played from collecting", models.StatusCollecting, 2, 2, models.StatusFinished},
		{"finished is terminal", models.StatusFinished, 1, 3, models.StatusFinished},
		{"finished with new bonus", models.StatusFinished, 0, 1, models.StatusFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.current, tt.played, tt.total); got != tt.want {
				t.Errorf("Derive(%s, %d, %d) = %s, want %s", tt.current, tt.played, tt.total, got, tt.want)
			}
		})
	}
}

func TestApplyFinished(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	h := &models.Hunt{Status: models.StatusOpening, IsPlaying: true}

	Apply(h, models.StatusFinished, decimal.NewFromInt(420), now)

	if h.Status != models.StatusFinished || h.IsPlaying {
		t.Fatalf("hunt not finished: %+v", h)
	}
	if !h.EndBalance.Valid || !h.EndBalance.Decimal.Equal(decimal.NewFromInt(420)) {
		t.Errorf("expected end balance 420, got %+v", h.EndBalance)
	}
	if !h.UpdatedAt.Equal(now) {
		t.Errorf("expected updated_at %v, got %v", now, h.UpdatedAt)
	}
}

func TestApplyKeepsRecordedEndBalance(t *testing.T) {
	h := &models.Hunt{EndBalance: decimal.NewNullDecimal(decimal.NewFromInt(10))}
	Apply(h, models.StatusFinished, decimal.NewFromInt(99), time.Now())

	if !h.EndBalance.Decimal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("end balance overwritten: %s", h.EndBalance.Decimal)
	}
}

func TestApplyOpening(t *testing.T) {
	h := &models.Hunt{Status: models.StatusCollecting}
	Apply(h, models.StatusOpening, decimal.NewFromInt(5), time.Now())

	if h.Status != models.StatusOpening || h.EndBalance.Valid {
		t.Errorf("opening must not record an end balance: %+v", h)
	}
}
