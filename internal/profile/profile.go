// Package profile persists the single local player profile: the balance
// snapshot and UI preferences, behind an opaque key-value Store.
package profile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/ledger"
)

const (
	KeyBalance  = "casinoBalance"
	KeySound    = "gameSoundEnabled"
	KeyDarkMode = "gameDarkMode"
)

// Store is an opaque per-profile key-value store. Get reports false for a
// missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type Preferences struct {
	SoundEnabled bool `json:"gameSoundEnabled"`
	DarkMode     bool `json:"gameDarkMode"`
}

// DefaultPreferences has sound and dark mode on.
var DefaultPreferences = Preferences{SoundEnabled: true, DarkMode: true}

type Profile struct {
	store Store
	log   *zap.Logger
}

var _ ledger.Persister = (*Profile)(nil)

func New(store Store, log *zap.Logger) *Profile {
	if log == nil {
		log = zap.NewNop()
	}
	return &Profile{store: store, log: log}
}

// LoadBalance returns the persisted balance, or nil when there is none. A
// corrupt value is logged and treated as missing.
func (p *Profile) LoadBalance(ctx context.Context) (*decimal.Decimal, error) {
	raw, ok, err := p.store.Get(ctx, KeyBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	if !ok {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		p.log.Warn("ignoring unreadable balance", zap.String("value", raw))
		return nil, nil
	}
	return &d, nil
}

func (p *Profile) SaveBalance(ctx context.Context, balance decimal.Decimal) error {
	return p.store.Set(ctx, KeyBalance, balance.String())
}

func (p *Profile) ClearBalance(ctx context.Context) error {
	return p.store.Delete(ctx, KeyBalance)
}

// Preferences loads the UI flags, falling back to the defaults per flag.
func (p *Profile) Preferences(ctx context.Context) (Preferences, error) {
	prefs := DefaultPreferences
	for key, dst := range map[string]*bool{KeySound: &prefs.SoundEnabled, KeyDarkMode: &prefs.DarkMode} {
		raw, ok, err := p.store.Get(ctx, key)
		if err != nil {
			return DefaultPreferences, fmt.Errorf("failed to load %s: %w", key, err)
		}
		if !ok {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			p.log.Warn("ignoring unreadable preference", zap.String("key", key), zap.String("value", raw))
			continue
		}
		*dst = v
	}
	return prefs, nil
}

func (p *Profile) SavePreferences(ctx context.Context, prefs Preferences) error {
	if err := p.store.Set(ctx, KeySound, strconv.FormatBool(prefs.SoundEnabled)); err != nil {
		return fmt.Errorf("failed to save %s: %w", KeySound, err)
	}
	if err := p.store.Set(ctx, KeyDarkMode, strconv.FormatBool(prefs.DarkMode)); err != nil {
		return fmt.Errorf("failed to save %s: %w", KeyDarkMode, err)
	}
	return nil
}
