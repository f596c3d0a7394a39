// Package stats derives the display figures of a hunt from its bonus list.
//
// Compute is pure: it never mutates its inputs and returns the same summary
// for the same hunt and bonuses. Bonuses are ordered by Order inside Compute,
// so callers do not need to pre-sort.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/padraicbc/huntapi/models"
)

// Summary holds the figures shown on hunt pages and overlays.
type Summary struct {
	OpenedBonuses   []models.Bonus `json:"openedBonuses"`
	UnplayedBonuses []models.Bonus `json:"unplayedBonuses"`
	TotalBonuses    int            `json:"totalBonuses"`
	NextBonus       *models.Bonus  `json:"nextBonus"`

	TotalWin            float64       `json:"totalWin"`
	TotalBet            float64       `json:"totalBet"`
	Profit              float64       `json:"profit"`
	BestWin             *models.Bonus `json:"bestWin"`
	BestWinAmount       float64       `json:"bestWinAmount"`
	BestMultiplier      *models.Bonus `json:"bestMultiplier"`
	BestMultiplierValue float64       `json:"bestMultiplierValue"`

	RunAvg             float64 `json:"runAvg"`
	RemainingBetSum    float64 `json:"remainingBetSum"`
	ReqAvg             float64 `json:"reqAvg"`
	ProgressPercentage float64 `json:"progressPercentage"`
	Remaining          int     `json:"remaining"`
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// Sorted returns a copy of bonuses in ascending Order. Equal orders keep input order.
func Sorted(bonuses []models.Bonus) []models.Bonus {
	out := make([]models.Bonus, len(bonuses))
	copy(out, bonuses)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Compute builds the summary for hunt. A nil hunt is treated as a zero
// starting balance that is not being played.
func Compute(hunt *models.Hunt, bonuses []models.Bonus) Summary {
	var (
		startBalance = decimal.Zero
		isPlaying    bool
	)
	if hunt != nil {
		startBalance = hunt.StartBalance
		isPlaying = hunt.IsPlaying
	}

	sorted := Sorted(bonuses)
	s := Summary{
		OpenedBonuses:   []models.Bonus{},
		UnplayedBonuses: []models.Bonus{},
		TotalBonuses:    len(sorted),
	}

	var (
		totalWin      = decimal.Zero
		totalBet      = decimal.Zero
		remainingBet  = decimal.Zero
		multSum       = decimal.Zero
		multCount     int64
		bestWin       = -1
		bestWinAmount = decimal.Zero
		bestMult      = -1
		bestMultValue = decimal.Zero
	)

	for i := range sorted {
		b := sorted[i]
		totalBet = totalBet.Add(b.BetAmount)

		if !b.IsPlayed {
			s.UnplayedBonuses = append(s.UnplayedBonuses, b)
			remainingBet = remainingBet.Add(b.BetAmount)
			if isPlaying && s.NextBonus == nil {
				next := b
				s.NextBonus = &next
			}
			continue
		}

		s.OpenedBonuses = append(s.OpenedBonuses, b)
		opened := len(s.OpenedBonuses) - 1

		win := orZero(b.WinAmount)
		totalWin = totalWin.Add(win)
		if bestWin < 0 || win.GreaterThan(bestWinAmount) {
			bestWin, bestWinAmount = opened, win
		}

		mult := orZero(b.Multiplier)
		if bestMult < 0 || mult.GreaterThan(bestMultValue) {
			bestMult, bestMultValue = opened, mult
		}
		if mult.IsPositive() {
			multSum = multSum.Add(mult)
			multCount++
		}
	}

	if bestWin >= 0 {
		s.BestWin = &s.OpenedBonuses[bestWin]
	}
	if bestMult >= 0 {
		s.BestMultiplier = &s.OpenedBonuses[bestMult]
	}

	s.TotalWin = totalWin.InexactFloat64()
	s.TotalBet = totalBet.InexactFloat64()
	s.Profit = totalWin.Sub(startBalance).InexactFloat64()
	s.BestWinAmount = bestWinAmount.InexactFloat64()
	s.BestMultiplierValue = bestMultValue.InexactFloat64()
	s.RemainingBetSum = remainingBet.InexactFloat64()

	if multCount > 0 {
		s.RunAvg = multSum.Div(decimal.NewFromInt(multCount)).InexactFloat64()
	}

	if remainingBet.IsPositive() {
		req := startBalance.Sub(totalWin).Div(remainingBet)
		if req.IsNegative() {
			req = decimal.Zero
		}
		s.ReqAvg = req.InexactFloat64()
	}

	if s.TotalBonuses > 0 {
		s.ProgressPercentage = 100 * float64(len(s.OpenedBonuses)) / float64(s.TotalBonuses)
	}
	s.Remaining = s.TotalBonuses - len(s.OpenedBonuses)

	return s
}
