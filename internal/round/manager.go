// Package round drives betting rounds from bet placement to settlement. It
// owns the only path by which game outcomes move money: a bet is debited
// when the round starts and its payout credited exactly once when it ends.
package round

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/engine"
	"github.com/MJE43/neon-arcade/internal/games"
)

const (
	// maxFinished bounds how many finished rounds stay queryable in memory.
	maxFinished = 128
	// maxSyncSteps bounds unpaced transition chains in a single call.
	maxSyncSteps = 1000
)

type Option func(*Manager)

func WithRecorder(r Recorder) Option  { return func(m *Manager) { m.recorder = r } }
func WithEmitter(e Emitter) Option    { return func(m *Manager) { m.emitter = e } }
func WithObserver(o Observer) Option  { return func(m *Manager) { m.observer = o } }
func WithLogger(z *zap.Logger) Option { return func(m *Manager) { m.log = z } }
func WithSource(s engine.Source) Option {
	return func(m *Manager) { m.src = s }
}

// WithPacing turns the presentation delays on or off. Without pacing,
// dealer draws, cascades and arming run inside the call that triggered
// them. Deadlines always run on the clock.
func WithPacing(on bool) Option { return func(m *Manager) { m.pacing = on } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// Manager runs at most one unsettled round per game. All methods are safe
// for concurrent use; pacing timers call back into the same lock.
type Manager struct {
	mu       sync.Mutex
	registry *games.Registry
	wallet   Wallet
	src      engine.Source
	pacing   bool
	now      func() time.Time

	log      *zap.Logger
	recorder Recorder
	emitter  Emitter
	observer Observer

	rounds   map[string]*round
	active   map[string]string // game ID -> round ID
	finished []string
	streaks  map[string]int
}

func New(reg *games.Registry, wallet Wallet, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		wallet:   wallet,
		pacing:   true,
		now:      time.Now,
		log:      zap.NewNop(),
		rounds:   make(map[string]*round),
		active:   make(map[string]string),
		streaks:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.src == nil {
		m.src = engine.NewSource()
	}
	return m
}

// Games lists the playable games.
func (m *Manager) Games() []games.GameSpec { return m.registry.Specs() }

func (m *Manager) Balance() decimal.Decimal { return m.wallet.Balance() }

// Streak returns the carried streak of a streaky game.
func (m *Manager) Streak(gameID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaks[gameID]
}

// PlaceBet validates params, debits the bet and starts a round. Instant
// games come back settled; stepwise games come back active.
func (m *Manager) PlaceBet(ctx context.Context, gameID string, params map[string]any, amount decimal.Decimal) (Snapshot, error) {
	m.mu.Lock()
	snap, err := m.placeBet(ctx, gameID, params, amount)
	m.mu.Unlock()
	if snap.ID != "" {
		m.publish(ctx, snap)
	}
	return snap, err
}

func (m *Manager) placeBet(ctx context.Context, gameID string, params map[string]any, amount decimal.Decimal) (Snapshot, error) {
	game, ok := m.registry.Get(gameID)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: unknown game %q", games.ErrInvalidParams, gameID)
	}
	if id, ok := m.active[gameID]; ok {
		if r := m.rounds[id]; r != nil && r.status == StatusActive {
			return Snapshot{}, fmt.Errorf("%s: %w", gameID, ErrRoundInProgress)
		}
	}

	p := make(map[string]any, len(params)+1)
	maps.Copy(p, params)
	if _, ok := game.(games.Streaky); ok {
		p["streak"] = m.streaks[gameID]
	}
	if err := game.Validate(p); err != nil {
		return Snapshot{}, err
	}

	now := m.now()
	r := &round{
		id:   uuid.NewString(),
		game: game,
		bet: games.Bet{
			ID:       uuid.NewString(),
			GameID:   gameID,
			Amount:   amount,
			PlacedAt: now,
		},
		params:  p,
		status:  StatusActive,
		updated: now,
	}
	if _, err := m.wallet.Debit(ctx, amount, "bet:"+r.id); err != nil {
		return Snapshot{}, err
	}
	m.rounds[r.id] = r
	if m.observer != nil {
		m.observer.BetPlaced(gameID, amount)
	}
	m.log.Debug("bet placed",
		zap.String("round", r.id),
		zap.String("game", gameID),
		zap.String("amount", amount.String()))

	switch g := game.(type) {
	case games.Instant:
		out, err := g.Generate(p, m.src)
		if err != nil {
			return m.abort(ctx, r, err)
		}
		r.outcome = out
		res, err := g.Resolve(out, amount)
		if err != nil {
			return m.abort(ctx, r, err)
		}
		return m.finish(ctx, r, StatusSettled, res), nil

	case games.Stepwise:
		play, err := g.Start(p, m.src)
		if err != nil {
			return m.abort(ctx, r, err)
		}
		r.play = play
		m.active[gameID] = r.id
		m.reportActive()
		return m.afterChange(ctx, r, false)
	}
	return m.abort(ctx, r, fmt.Errorf("game %q has no round driver", gameID))
}

// Step applies a player action. Timed transition names are rejected; use
// Advance for those.
func (m *Manager) Step(ctx context.Context, roundID string, a games.Action) (Snapshot, error) {
	m.mu.Lock()
	snap, err := m.step(ctx, roundID, a)
	m.mu.Unlock()
	if snap.ID != "" && (err == nil || snap.Finished()) {
		m.publish(ctx, snap)
	}
	return snap, err
}

func (m *Manager) step(ctx context.Context, roundID string, a games.Action) (Snapshot, error) {
	r, err := m.activeRound(roundID)
	if err != nil {
		return Snapshot{}, err
	}
	if games.IsTimed(a.Type) {
		return m.snapshot(r), fmt.Errorf("%w: %s is not a player action", games.ErrInvalidTransition, a.Type)
	}
	if err := r.play.Apply(a, m.src); err != nil {
		if errors.Is(err, games.ErrRetryBoundExceeded) {
			return m.abort(ctx, r, err)
		}
		return m.snapshot(r), err
	}
	r.updated = m.now()
	return m.afterChange(ctx, r, false)
}

// Advance fires the pending timed transition now.
func (m *Manager) Advance(ctx context.Context, roundID string) (Snapshot, error) {
	m.mu.Lock()
	snap, err := m.advance(ctx, roundID, "")
	m.mu.Unlock()
	if snap.ID != "" && (err == nil || snap.Finished()) {
		m.publish(ctx, snap)
	}
	return snap, err
}

// advance applies the pending transition. A non-empty name must match it.
func (m *Manager) advance(ctx context.Context, roundID, name string) (Snapshot, error) {
	r, err := m.activeRound(roundID)
	if err != nil {
		return Snapshot{}, err
	}
	tr, ok := r.play.Pending()
	if !ok || (name != "" && tr.Name != name) {
		return m.snapshot(r), fmt.Errorf("%w: no pending transition", games.ErrInvalidTransition)
	}
	r.stopTimer()
	if err := m.applyTransition(r, tr); err != nil {
		if errors.Is(err, games.ErrRetryBoundExceeded) {
			return m.abort(ctx, r, err)
		}
		return m.snapshot(r), err
	}
	return m.afterChange(ctx, r, true)
}

// Abandon force-settles an active round on its current state.
func (m *Manager) Abandon(ctx context.Context, roundID string) (Snapshot, error) {
	m.mu.Lock()
	snap, err := m.abandon(ctx, roundID)
	m.mu.Unlock()
	if snap.ID != "" {
		m.publish(ctx, snap)
	}
	return snap, err
}

func (m *Manager) abandon(ctx context.Context, roundID string) (Snapshot, error) {
	r, err := m.activeRound(roundID)
	if err != nil {
		return Snapshot{}, err
	}
	r.stopTimer()
	if err := r.play.Forfeit(m.src); err != nil {
		return m.abort(ctx, r, err)
	}
	res, err := r.play.Resolve(r.bet.Amount)
	if err != nil {
		return m.abort(ctx, r, err)
	}
	if !res.Settled {
		return m.abort(ctx, r, fmt.Errorf("forfeit left %s unsettled", r.bet.GameID))
	}
	m.log.Info("round abandoned",
		zap.String("round", r.id),
		zap.String("game", r.bet.GameID),
		zap.Float64("multiplier", res.Multiplier))
	return m.finish(ctx, r, StatusAbandoned, res), nil
}

// AbandonAll force-settles every active round. Used at shutdown.
func (m *Manager) AbandonAll(ctx context.Context) int {
	return m.abandonWhere(ctx, func(*round) bool { return true })
}

// AbandonIdle force-settles rounds untouched for longer than ttl.
func (m *Manager) AbandonIdle(ctx context.Context, ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)
	return m.abandonWhere(ctx, func(r *round) bool { return r.updated.Before(cutoff) })
}

func (m *Manager) abandonWhere(ctx context.Context, match func(*round) bool) int {
	m.mu.Lock()
	var snaps []Snapshot
	for _, id := range m.active {
		r := m.rounds[id]
		if r == nil || r.status != StatusActive || !match(r) {
			continue
		}
		snap, _ := m.abandon(ctx, id)
		snaps = append(snaps, snap)
	}
	m.mu.Unlock()
	for _, s := range snaps {
		m.publish(ctx, s)
	}
	return len(snaps)
}

// Round returns an active or recently finished round.
func (m *Manager) Round(roundID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[roundID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%s: %w", roundID, ErrRoundNotFound)
	}
	return m.snapshot(r), nil
}

// Active lists unsettled rounds.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.active))
	for _, id := range m.active {
		if r := m.rounds[id]; r != nil {
			out = append(out, m.snapshot(r))
		}
	}
	return out
}

func (m *Manager) activeRound(roundID string) (*round, error) {
	r, ok := m.rounds[roundID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", roundID, ErrRoundNotFound)
	}
	if r.status != StatusActive || r.play == nil {
		return nil, fmt.Errorf("%w: round is %s", games.ErrInvalidTransition, r.status)
	}
	return r, nil
}

func (m *Manager) applyTransition(r *round, tr games.Transition) error {
	if err := r.play.Apply(games.Action{Type: tr.Name}, m.src); err != nil {
		return err
	}
	r.updated = m.now()
	if m.observer != nil {
		m.observer.TransitionApplied(r.bet.GameID, tr.Name)
	}
	return nil
}

// afterChange settles a finished play or schedules its pending transition.
// The running timer is kept when a player action leaves the same transition
// pending, so a deadline counts from when it was first armed.
func (m *Manager) afterChange(ctx context.Context, r *round, fromTimer bool) (Snapshot, error) {
	for i := 0; ; i++ {
		if r.play.Phase() == games.PhaseSettled {
			r.stopTimer()
			res, err := r.play.Resolve(r.bet.Amount)
			if err != nil {
				return m.abort(ctx, r, err)
			}
			return m.finish(ctx, r, StatusSettled, res), nil
		}

		tr, ok := r.play.Pending()
		if !ok {
			r.stopTimer()
			return m.snapshot(r), nil
		}

		if m.pacing || tr.Deadline {
			if r.timer != nil && r.timerName == tr.Name && !fromTimer {
				return m.snapshot(r), nil
			}
			m.arm(r, tr)
			return m.snapshot(r), nil
		}

		if i == maxSyncSteps {
			return m.abort(ctx, r, fmt.Errorf("%s transitions did not settle: %w", r.bet.GameID, games.ErrRetryBoundExceeded))
		}
		if err := m.applyTransition(r, tr); err != nil {
			return m.abort(ctx, r, err)
		}
	}
}

func (m *Manager) arm(r *round, tr games.Transition) {
	r.stopTimer()
	seq := r.timerSeq
	id := r.id
	r.timerName = tr.Name
	r.timer = time.AfterFunc(tr.Delay, func() { m.fire(id, tr.Name, seq) })
}

func (m *Manager) fire(roundID, name string, seq uint64) {
	ctx := context.Background()
	m.mu.Lock()
	r, ok := m.rounds[roundID]
	if !ok || r.status != StatusActive || r.timerSeq != seq || r.timerName != name {
		m.mu.Unlock()
		return
	}
	r.timer = nil
	snap, err := m.advance(ctx, roundID, name)
	m.mu.Unlock()
	if err != nil && !snap.Finished() {
		m.log.Warn("timed transition failed",
			zap.String("round", roundID),
			zap.String("transition", name),
			zap.Error(err))
		return
	}
	m.publish(ctx, snap)
}

// finish credits the payout and closes the round.
func (m *Manager) finish(ctx context.Context, r *round, status Status, res games.Resolution) Snapshot {
	if res.Payout.IsPositive() {
		if _, err := m.wallet.Credit(ctx, res.Payout, "payout:"+r.id); err != nil {
			m.log.Error("payout credit failed",
				zap.String("round", r.id),
				zap.String("payout", res.Payout.String()),
				zap.Error(err))
		}
	}
	if s, ok := r.game.(games.Streaky); ok && status == StatusSettled {
		m.streaks[r.bet.GameID] = s.NextStreak(m.streaks[r.bet.GameID], res)
	}
	m.close(r, status, &res)
	m.log.Info("round settled",
		zap.String("round", r.id),
		zap.String("game", r.bet.GameID),
		zap.String("status", string(status)),
		zap.String("bet", r.bet.Amount.String()),
		zap.String("payout", res.Payout.String()),
		zap.Float64("multiplier", res.Multiplier))
	return m.snapshot(r)
}

// abort refunds the bet after a generator or state machine failure.
func (m *Manager) abort(ctx context.Context, r *round, cause error) (Snapshot, error) {
	m.log.Error("round aborted",
		zap.String("round", r.id),
		zap.String("game", r.bet.GameID),
		zap.Error(cause))
	r.stopTimer()
	if _, err := m.wallet.Credit(ctx, r.bet.Amount, "refund:"+r.id); err != nil {
		m.log.Error("refund failed", zap.String("round", r.id), zap.Error(err))
	}
	res := games.Resolution{Payout: r.bet.Amount, Multiplier: 1, Result: games.ResultPush, Settled: true}
	m.close(r, StatusAborted, &res)
	return m.snapshot(r), fmt.Errorf("round %s aborted: %w", r.id, cause)
}

func (m *Manager) close(r *round, status Status, res *games.Resolution) {
	r.status = status
	r.res = res
	r.updated = m.now()
	if m.active[r.bet.GameID] == r.id {
		delete(m.active, r.bet.GameID)
	}
	m.finished = append(m.finished, r.id)
	if len(m.finished) > maxFinished {
		delete(m.rounds, m.finished[0])
		m.finished = m.finished[1:]
	}
	if m.observer != nil {
		m.observer.RoundFinished(r.bet.GameID, status, r.bet.Amount, res.Payout, r.updated.Sub(r.bet.PlacedAt))
	}
	m.reportActive()
}

func (m *Manager) reportActive() {
	if m.observer != nil {
		m.observer.ActiveRounds(len(m.active))
	}
}

func (m *Manager) snapshot(r *round) Snapshot {
	s := Snapshot{
		ID:         r.id,
		GameID:     r.bet.GameID,
		Amount:     r.bet.Amount,
		Params:     r.params,
		Phase:      r.phase(),
		Status:     r.status,
		Resolution: r.res,
		Balance:    m.wallet.Balance(),
		PlacedAt:   r.bet.PlacedAt,
		UpdatedAt:  r.updated,
	}
	switch {
	case r.play != nil:
		s.View = r.play.View()
		s.Multiplier = r.play.Multiplier()
		if tr, ok := r.play.Pending(); ok && r.status == StatusActive {
			s.Pending = &tr
		}
	case r.outcome != nil:
		s.View = r.outcome
	}
	if r.res != nil {
		s.Multiplier = r.res.Multiplier
	}
	return s
}

// publish runs outside the lock: it emits the change and records finished
// rounds.
func (m *Manager) publish(ctx context.Context, s Snapshot) {
	if m.emitter != nil {
		m.emitter.EmitRound(s)
	}
	if s.Finished() && m.recorder != nil {
		if err := m.recorder.RecordRound(ctx, s); err != nil {
			m.log.Warn("failed to record round", zap.String("round", s.ID), zap.Error(err))
		}
	}
}
