// Package bracket implements a single-elimination multiplier tournament.
// Two players per match each play a bonus; the higher multiplier advances.
package bracket

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSize       = errors.New("bracket size must be 4, 8, 16 or 32")
	ErrNoMatch    = errors.New("no such match")
	ErrSlot       = errors.New("player slot must be 1 or 2")
	ErrIncomplete = errors.New("both player names and multipliers are required")
	ErrDecided    = errors.New("match already decided")
)

type Player struct {
	Name       string   `json:"name"`
	Multiplier *float64 `json:"multiplier"`
}

func (p Player) ready() bool {
	return strings.TrimSpace(p.Name) != "" && p.Multiplier != nil
}

type Match struct {
	ID        string `json:"id"`
	Player1   Player `json:"player1"`
	Player2   Player `json:"player2"`
	Winner    string `json:"winner,omitempty"`
	Completed bool   `json:"completed"`
}

// Ready reports whether the match can be decided.
func (m Match) Ready() bool {
	return !m.Completed && m.Player1.ready() && m.Player2.ready()
}

type Round struct {
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

type Bracket struct {
	Size     int     `json:"size"`
	Rounds   []Round `json:"rounds"`
	Champion string  `json:"champion,omitempty"`
}

// New builds an empty bracket. The last round is named "Final".
func New(size int) (*Bracket, error) {
	switch size {
	case 4, 8, 16, 32:
	default:
		return nil, ErrSize
	}

	b := &Bracket{Size: size}
	n := 1
	for matches := size / 2; matches >= 1; matches /= 2 {
		r := Round{Name: fmt.Sprintf("Round %d", n), Matches: make([]Match, matches)}
		if matches == 1 {
			r.Name = "Final"
		}
		for i := range r.Matches {
			r.Matches[i].ID = fmt.Sprintf("R%d-%d", n, i)
		}
		b.Rounds = append(b.Rounds, r)
		n++
	}
	return b, nil
}

func (b *Bracket) match(round, idx int) (*Match, error) {
	if round < 0 || round >= len(b.Rounds) {
		return nil, ErrNoMatch
	}
	if idx < 0 || idx >= len(b.Rounds[round].Matches) {
		return nil, ErrNoMatch
	}
	return &b.Rounds[round].Matches[idx], nil
}

// SetPlayer fills one side of a match. A nil multiplier clears it.
func (b *Bracket) SetPlayer(round, idx, slot int, name string, multiplier *float64) error {
	m, err := b.match(round, idx)
	if err != nil {
		return err
	}
	if m.Completed {
		return ErrDecided
	}

	p := Player{Name: strings.TrimSpace(name), Multiplier: multiplier}
	switch slot {
	case 1:
		m.Player1 = p
	case 2:
		m.Player2 = p
	default:
		return ErrSlot
	}
	return nil
}

// Decide settles a match and advances the winner. Ties go to player 1.
func (b *Bracket) Decide(round, idx int) (string, error) {
	m, err := b.match(round, idx)
	if err != nil {
		return "", err
	}
	if m.Completed {
		return "", ErrDecided
	}
	if !m.Player1.ready() || !m.Player2.ready() {
		return "", ErrIncomplete
	}

	winner := m.Player2.Name
	if *m.Player1.Multiplier >= *m.Player2.Multiplier {
		winner = m.Player1.Name
	}
	m.Winner = winner
	m.Completed = true

	if round == len(b.Rounds)-1 {
		b.Champion = winner
		return winner, nil
	}

	next := &b.Rounds[round+1].Matches[idx/2]
	if idx%2 == 0 {
		next.Player1 = Player{Name: winner}
	} else {
		next.Player2 = Player{Name: winner}
	}
	return winner, nil
}
