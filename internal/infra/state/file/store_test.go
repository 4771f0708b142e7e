package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotatarr/rotatarr/internal/core/domain"
)

func TestLoad_MissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope", "state.json"))

	states, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected empty state, got %d entries", len(states))
	}
}

func TestLoad_CorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	states, err := NewStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("corrupt state must not fail: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected empty state, got %d entries", len(states))
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.json")
	store := NewStore(path)

	cooldown := time.Now().Add(time.Hour).Truncate(time.Second)
	in := map[string]domain.RepairState{
		"12": {
			ConsecutiveFailures: 2,
			CooldownUntil:       &cooldown,
			LastKnownGood:       &domain.GoodConfig{BaseURL: "https://b.example", TagApplied: true},
		},
		"7": {ConsecutiveFailures: 1},
	}

	if err := store.Save(context.Background(), in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := out["12"]
	if got.ConsecutiveFailures != 2 {
		t.Errorf("consecutive_failures = %d, want 2", got.ConsecutiveFailures)
	}
	if got.CooldownUntil == nil || !got.CooldownUntil.Equal(cooldown) {
		t.Errorf("cooldown_until = %v, want %v", got.CooldownUntil, cooldown)
	}
	if got.LastKnownGood == nil || got.LastKnownGood.BaseURL != "https://b.example" || !got.LastKnownGood.TagApplied {
		t.Errorf("last_known_good = %+v", got.LastKnownGood)
	}
}

func TestSave_AtomicNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "state.json"))

	for i := 0; i < 3; i++ {
		if err := store.Save(context.Background(), map[string]domain.RepairState{"1": {}}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected only state.json in dir, got %d entries", len(entries))
	}
}
