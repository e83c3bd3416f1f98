package bindings

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/api"
	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/profile"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/scripting"
	"github.com/MJE43/neon-arcade/internal/store"
)

// Amounts cross the bridge as decimal strings; JS numbers would lose
// precision on fractional stakes.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ledger.ErrInvalidAmount, s)
	}
	return d, nil
}

func (a *App) GetGames() ([]games.GameSpec, error) {
	core, err := a.engine()
	if err != nil {
		return nil, err
	}
	return core.Rounds.Games(), nil
}

func (a *App) GetBalance() (string, error) {
	core, err := a.engine()
	if err != nil {
		return "", err
	}
	return core.Ledger.Balance().String(), nil
}

// ResetBalance restores the starting balance.
func (a *App) ResetBalance() (string, error) {
	core, err := a.engine()
	if err != nil {
		return "", err
	}
	return core.Ledger.Reset(a.ctx).String(), nil
}

func (a *App) PlaceBet(game string, amount string, params map[string]any) (round.Snapshot, error) {
	core, err := a.engine()
	if err != nil {
		return round.Snapshot{}, err
	}
	amt, err := parseAmount(amount)
	if err != nil {
		return round.Snapshot{}, err
	}
	return core.Rounds.PlaceBet(a.ctx, game, params, amt)
}

// Step applies a player action to an open round.
func (a *App) Step(roundID string, action games.Action) (round.Snapshot, error) {
	core, err := a.engine()
	if err != nil {
		return round.Snapshot{}, err
	}
	return core.Rounds.Step(a.ctx, roundID, action)
}

func (a *App) Advance(roundID string) (round.Snapshot, error) {
	core, err := a.engine()
	if err != nil {
		return round.Snapshot{}, err
	}
	return core.Rounds.Advance(a.ctx, roundID)
}

func (a *App) Abandon(roundID string) (round.Snapshot, error) {
	core, err := a.engine()
	if err != nil {
		return round.Snapshot{}, err
	}
	return core.Rounds.Abandon(a.ctx, roundID)
}

func (a *App) ActiveRounds() ([]round.Snapshot, error) {
	core, err := a.engine()
	if err != nil {
		return nil, err
	}
	return core.Rounds.Active(), nil
}

// GetRound returns a live or recently finished round, falling back to
// history.
func (a *App) GetRound(roundID string) (api.RoundResponse, error) {
	core, err := a.engine()
	if err != nil {
		return api.RoundResponse{}, err
	}
	if snap, err := core.Rounds.Round(roundID); err == nil {
		return api.RoundResponse{Round: &snap}, nil
	}
	rec, err := core.DB.GetRound(a.ctx, roundID)
	if err != nil {
		return api.RoundResponse{}, err
	}
	return api.RoundResponse{Record: rec}, nil
}

func (a *App) ListRounds(game string, page, perPage int) (*store.RoundsList, error) {
	core, err := a.engine()
	if err != nil {
		return nil, err
	}
	return core.DB.ListRounds(a.ctx, store.RoundsQuery{Game: game, Page: page, PerPage: perPage})
}

// ListLedger pages the balance journal; ref narrows it to one round.
func (a *App) ListLedger(ref string, page, perPage int) (*store.EntriesPage, error) {
	core, err := a.engine()
	if err != nil {
		return nil, err
	}
	return core.DB.ListEntries(a.ctx, store.EntriesQuery{Ref: ref, Page: page, PerPage: perPage})
}

func (a *App) GetPreferences() (profile.Preferences, error) {
	core, err := a.engine()
	if err != nil {
		return profile.DefaultPreferences, err
	}
	return core.Profile.Preferences(a.ctx)
}

func (a *App) SavePreferences(prefs profile.Preferences) error {
	core, err := a.engine()
	if err != nil {
		return err
	}
	return core.Profile.SavePreferences(a.ctx, prefs)
}

// StartAutoplay runs a betting script against the instant games.
func (a *App) StartAutoplay(script string) error {
	core, err := a.engine()
	if err != nil {
		return err
	}
	return core.Autoplay.Start(script)
}

func (a *App) StopAutoplay() error {
	core, err := a.engine()
	if err != nil {
		return err
	}
	return core.Autoplay.Stop()
}

func (a *App) GetAutoplayState() (scripting.EngineSnapshot, error) {
	core, err := a.engine()
	if err != nil {
		return scripting.EngineSnapshot{}, err
	}
	return core.Autoplay.GetState(), nil
}

func (a *App) GetAutoplayLogs() ([]scripting.LogEntry, error) {
	core, err := a.engine()
	if err != nil {
		return nil, err
	}
	return core.Autoplay.GetLogs(), nil
}
