package profile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zalando/go-keyring"

	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/store"
)

func sqliteStore(t *testing.T) *store.SQLiteDB {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "profile.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func TestBalanceSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db := sqliteStore(t)
	p := New(db, nil)

	start, err := p.LoadBalance(ctx)
	if err != nil || start != nil {
		t.Fatalf("expected no persisted balance, got %v (%v)", start, err)
	}
	l := ledger.New(start, ledger.WithPersister(p))
	if _, err := l.Debit(ctx, decimal.NewFromInt(250), "bet:1"); err != nil {
		t.Fatal(err)
	}

	start, err = p.LoadBalance(ctx)
	if err != nil || start == nil {
		t.Fatalf("expected a persisted balance, got %v (%v)", start, err)
	}
	if restarted := ledger.New(start); !restarted.Balance().Equal(decimal.NewFromInt(750)) {
		t.Errorf("expected 750 after restart, got %s", restarted.Balance())
	}

	l.Reset(ctx)
	if start, _ := p.LoadBalance(ctx); start != nil {
		t.Errorf("expected reset to clear the snapshot, got %s", start)
	}
}

func TestLoadBalanceIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	db := sqliteStore(t)
	for _, raw := range []string{"lots", "-5"} {
		_ = db.Set(ctx, KeyBalance, raw)
		if start, err := New(db, nil).LoadBalance(ctx); err != nil || start != nil {
			t.Errorf("%q: expected nil balance, got %v (%v)", raw, start, err)
		}
	}
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	db := sqliteStore(t)
	p := New(db, nil)

	prefs, err := p.Preferences(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if prefs != DefaultPreferences {
		t.Errorf("expected defaults, got %+v", prefs)
	}

	if err := p.SavePreferences(ctx, Preferences{SoundEnabled: false, DarkMode: true}); err != nil {
		t.Fatal(err)
	}
	if raw, _, _ := db.Get(ctx, KeySound); raw != "false" {
		t.Errorf("expected stored %q, got %q", "false", raw)
	}
	prefs, _ = p.Preferences(ctx)
	if prefs.SoundEnabled || !prefs.DarkMode {
		t.Errorf("unexpected preferences %+v", prefs)
	}

	_ = db.Set(ctx, KeyDarkMode, "maybe")
	if prefs, _ = p.Preferences(ctx); !prefs.DarkMode {
		t.Error("expected an unreadable flag to fall back to its default")
	}
}

func TestKeyringStoreSetGetDelete(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	k := NewKeyringStore("neon-arcade-test", "p1", filepath.Join(t.TempDir(), "fallback.json"))

	if _, ok, err := k.Get(ctx, KeyBalance); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := k.Set(ctx, KeyBalance, "42.5"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := k.Get(ctx, KeyBalance)
	if err != nil || !ok || val != "42.5" {
		t.Fatalf("unexpected value %q ok=%v err=%v", val, ok, err)
	}

	other := NewKeyringStore("neon-arcade-test", "p2", "")
	if _, ok, _ := other.Get(ctx, KeyBalance); ok {
		t.Error("expected profiles to be isolated")
	}

	if err := k.Delete(ctx, KeyBalance); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := k.Get(ctx, KeyBalance); ok {
		t.Error("expected key to be deleted")
	}
}

func TestKeyringStoreFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("keyring backend not available"))
	defer keyring.MockInit()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fallback.json")

	k := NewKeyringStore("", "", path)
	p := New(k, nil)
	if err := p.SaveBalance(ctx, decimal.RequireFromString("12.34")); err != nil {
		t.Fatalf("SaveBalance: %v", err)
	}

	// a second store on the same file sees the value
	start, err := New(NewKeyringStore("", "", path), nil).LoadBalance(ctx)
	if err != nil || start == nil || !start.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("expected 12.34 from the fallback file, got %v (%v)", start, err)
	}

	if err := p.ClearBalance(ctx); err != nil {
		t.Fatalf("ClearBalance: %v", err)
	}
	if start, _ := p.LoadBalance(ctx); start != nil {
		t.Errorf("expected cleared balance, got %s", start)
	}

	noFallback := NewKeyringStore("", "", "")
	if err := noFallback.Set(ctx, KeySound, "true"); err == nil {
		t.Error("expected an error without keyring or fallback")
	}
}
