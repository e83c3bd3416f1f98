package bindings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/neon-arcade/internal/api"
	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/round"
)

type recordedEvents struct {
	mu    sync.Mutex
	names []string
}

func (r *recordedEvents) emit(_ context.Context, name string, _ ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recordedEvents) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

func startDesktop(t *testing.T) (*App, *recordedEvents) {
	t.Helper()
	dir := t.TempDir()
	cfg := "pacing:\n  enabled: false\nsweeper:\n  cron: \"\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	events := &recordedEvents{}
	a := New()
	a.emit = events.emit
	if err := a.start(context.Background(), dir); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	if _, err := os.Stat(filepath.Join(dir, "arcade.db")); err != nil {
		t.Errorf("expected the database in the data dir: %v", err)
	}
	return a, events
}

func TestDesktopPlaceBet(t *testing.T) {
	a, events := startDesktop(t)

	specs, err := a.GetGames()
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 10 {
		t.Errorf("expected 10 games, got %d", len(specs))
	}

	snap, err := a.PlaceBet("dice", "10", map[string]any{"target": 50})
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if snap.Status != round.StatusSettled || snap.Resolution == nil {
		t.Fatalf("expected a settled dice round, got %+v", snap)
	}
	bal, _ := a.GetBalance()
	if want := snap.Balance.String(); bal != want {
		t.Errorf("expected balance %s, got %s", want, bal)
	}
	if events.count(EventRound) == 0 {
		t.Errorf("expected a round event")
	}

	deadline := time.Now().Add(2 * time.Second)
	for events.count(EventBalance) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if events.count(EventBalance) == 0 {
		t.Errorf("expected a balance event")
	}

	got, err := a.GetRound(snap.ID)
	if err != nil || got.Round == nil {
		t.Errorf("expected the finished round, got %+v, %v", got, err)
	}
	list, err := a.ListRounds("dice", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if list.TotalCount != 1 {
		t.Errorf("expected 1 history row, got %d", list.TotalCount)
	}

	journal, err := a.ListLedger(snap.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := 1
	if snap.Resolution.Payout.IsPositive() {
		want = 2
	}
	if journal.TotalCount != want {
		t.Errorf("expected %d journal entries for the round, got %d", want, journal.TotalCount)
	}
}

func TestDesktopErrors(t *testing.T) {
	a, _ := startDesktop(t)

	_, err := a.PlaceBet("dice", "ten", nil)
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if got := api.FromError(err).Type; got != api.ErrTypeInvalidAmount {
		t.Errorf("expected %s, got %s", api.ErrTypeInvalidAmount, got)
	}

	_, err = a.Abandon("missing")
	if got := api.FromError(err).Type; got != api.ErrTypeRoundNotFound {
		t.Errorf("expected %s, got %s", api.ErrTypeRoundNotFound, got)
	}

	snap, err := a.PlaceBet("mines", "5", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Step(snap.ID, games.Action{Type: "cashout"})
	if !errors.Is(err, games.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDesktopPreferencesAndReset(t *testing.T) {
	a, _ := startDesktop(t)

	prefs, err := a.GetPreferences()
	if err != nil {
		t.Fatal(err)
	}
	if !prefs.SoundEnabled || !prefs.DarkMode {
		t.Errorf("expected default preferences, got %+v", prefs)
	}
	prefs.DarkMode = false
	if err := a.SavePreferences(prefs); err != nil {
		t.Fatal(err)
	}
	if got, _ := a.GetPreferences(); got.DarkMode {
		t.Errorf("expected dark mode off after save")
	}

	if _, err := a.PlaceBet("dice", "25", map[string]any{"target": 50}); err != nil {
		t.Fatal(err)
	}
	bal, err := a.ResetBalance()
	if err != nil {
		t.Fatal(err)
	}
	if bal != "1000" {
		t.Errorf("expected 1000 after reset, got %s", bal)
	}
}

func TestDesktopAfterShutdown(t *testing.T) {
	a, _ := startDesktop(t)
	a.Shutdown(context.Background())

	if _, err := a.GetBalance(); !errors.Is(err, errNotStarted) {
		t.Errorf("expected errNotStarted, got %v", err)
	}
	if _, err := a.GetAutoplayState(); !errors.Is(err, errNotStarted) {
		t.Errorf("expected errNotStarted, got %v", err)
	}
}
