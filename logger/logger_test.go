package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	for _, debug := range []bool{true, false} {
		l, err := New(debug)
		if err != nil {
			t.Fatalf("New(%v): %v", debug, err)
		}
		if got := l.Core().Enabled(zap.DebugLevel); got != debug {
			t.Errorf("New(%v): debug enabled = %v", debug, got)
		}
		_ = l.Sync()
	}
}
