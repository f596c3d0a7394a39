package cache

import (
	"context"
	"testing"
	"time"
)

func TestDisabledOverlay(t *testing.T) {
	ctx := context.Background()
	for name, o := range map[string]*Overlay{
		"nil":       nil,
		"no client": NewOverlay(nil, time.Second),
	} {
		t.Run(name, func(t *testing.T) {
			if o.Enabled() {
				t.Fatal("expected cache to be disabled")
			}
			var dst map[string]any
			hit, err := o.Get(ctx, AdminScope("x"), &dst)
			if hit || err != nil {
				t.Errorf("expected miss without error, got hit=%v err=%v", hit, err)
			}
			if err := o.Set(ctx, AdminScope("x"), map[string]int{"a": 1}); err != nil {
				t.Errorf("Set: %v", err)
			}
			if err := o.Invalidate(ctx, AdminScope("x"), LatestScope("")); err != nil {
				t.Errorf("Invalidate: %v", err)
			}
		})
	}
}

func TestScopes(t *testing.T) {
	if got := LatestScope(""); got != "latest:all" {
		t.Errorf("unexpected global scope %q", got)
	}
	if got := LatestScope("abc"); got != "latest:abc" {
		t.Errorf("unexpected admin scope %q", got)
	}
	if got := key(AdminScope("streamer")); got != "overlay:admin:streamer" {
		t.Errorf("unexpected key %q", got)
	}
}
