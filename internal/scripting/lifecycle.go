package scripting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/ledger"
)

// State represents the scripting engine's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// StopReason says why a session ended without an error.
type StopReason string

const (
	StopScript            StopReason = "script"
	StopCancelled         StopReason = "cancelled"
	StopInsufficientFunds StopReason = "insufficient_funds"
	StopMaxBets           StopReason = "max_bets"
	StopOnWin             StopReason = "stop_on_win"
)

// BetPlacer settles one instant-game bet per call.
type BetPlacer interface {
	PlaceBet(ctx context.Context, game string, params map[string]any, amount decimal.Decimal) (BetResult, error)
	Balance() decimal.Decimal
	GameIDs() []string
}

// EventEmitter pushes state updates to the presentation layer.
type EventEmitter interface {
	EmitScriptState(state EngineSnapshot)
	EmitScriptLog(entries []LogEntry)
}

// EngineSnapshot is a serializable snapshot of the engine state.
type EngineSnapshot struct {
	State         State        `json:"state"`
	Reason        StopReason   `json:"reason,omitempty"`
	Error         string       `json:"error,omitempty"`
	Stats         *Statistics  `json:"stats"`
	Chart         []ChartPoint `json:"chart"`
	CurrentGame   string       `json:"currentGame"`
	MaxBets       int          `json:"maxBets,omitempty"`
	BetsPerSecond float64      `json:"betsPerSecond"`
}

type Option func(*Engine)

// WithMaxBets stops a session after n bets. Zero means unlimited.
func WithMaxBets(n int) Option { return func(e *Engine) { e.maxBets = n } }

func WithLogger(z *zap.Logger) Option { return func(e *Engine) { e.log = z } }

// Engine runs one autoplay session at a time: the script's dobet() picks the
// next stake and params, the placer settles the bet, repeat.
type Engine struct {
	mu     sync.RWMutex
	state  State
	reason StopReason
	err    error
	cancel context.CancelFunc
	done   chan struct{}

	vm    *VM
	vars  *Variables
	stats *Statistics
	chart *ChartBuffer

	placer  BetPlacer
	emitter EventEmitter
	maxBets int
	log     *zap.Logger

	startTime time.Time
	lastEmit  time.Time
	logsSent  int
}

func NewEngine(placer BetPlacer, emitter EventEmitter, opts ...Option) *Engine {
	e := &Engine{
		state:   StateIdle,
		placer:  placer,
		emitter: emitter,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start runs the script body once to define dobet(), then starts the bet
// loop in the background.
func (e *Engine) Start(script string) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}

	e.stats = NewStatistics(e.placer.Balance().InexactFloat64())
	e.chart = NewChartBuffer(500)
	e.vars = NewVariables(e.stats)
	e.vm = NewVM(e.placer.GameIDs())
	e.state = StateRunning
	e.reason = ""
	e.err = nil
	e.startTime = time.Now()
	e.logsSent = 0
	e.done = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.vm.SetVariables(e.vars)
	err := e.vm.Execute(script)
	if err == nil && !e.vm.HasFunc("dobet") {
		err = fmt.Errorf("script must define a dobet() function")
	}
	if err != nil {
		cancel()
		e.fail(err)
		close(e.done)
		return err
	}

	e.mu.Lock()
	e.vm.SyncVariables(e.vars)
	e.vars.Running = true
	e.vm.SetVariables(e.vars)
	e.mu.Unlock()

	e.log.Info("autoplay started", zap.String("game", e.vars.Game), zap.Int("max_bets", e.maxBets))
	e.emitState()

	go e.betLoop(ctx)
	return nil
}

// Stop cancels the session and waits for the loop to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine is not running")
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Done is closed when the current session ends.
func (e *Engine) Done() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return e.done
}

func (e *Engine) GetState() EngineSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

func (e *Engine) GetLogs() []LogEntry {
	e.mu.RLock()
	vm := e.vm
	e.mu.RUnlock()
	if vm == nil {
		return nil
	}
	return vm.Logs()
}

func (e *Engine) betLoop(ctx context.Context) {
	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("script panic: %v", r))
		}
	}()

	for {
		if ctx.Err() != nil {
			e.halt(StopCancelled)
			return
		}

		e.mu.RLock()
		bets := e.stats.Bets
		nextBet, game, params := e.vars.NextBet, e.vars.Game, e.vars.Params
		e.mu.RUnlock()

		if e.maxBets > 0 && bets >= e.maxBets {
			e.halt(StopMaxBets)
			return
		}
		if nextBet <= 0 {
			e.fail(fmt.Errorf("nextbet must be > 0, got %v", nextBet))
			return
		}

		result, err := e.placer.PlaceBet(ctx, game, params, decimal.NewFromFloat(nextBet))
		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrInsufficientFunds):
			e.halt(StopInsufficientFunds)
			return
		case ctx.Err() != nil:
			e.halt(StopCancelled)
			return
		default:
			e.fail(fmt.Errorf("bet placement failed: %w", err))
			return
		}

		e.mu.Lock()
		e.stats.RecordBet(result)
		e.vars.Win = result.Win
		e.vars.PreviousBet = result.Amount
		e.vars.Balance = result.Balance
		e.vars.LastBet = map[string]any{
			"id":         result.RoundID,
			"game":       result.Game,
			"amount":     result.Amount,
			"payout":     result.Payout,
			"multiplier": result.Multiplier,
			"result":     result.Result,
			"win":        result.Win,
			"outcome":    result.Outcome,
		}
		e.chart.Push(ChartPoint{BetNumber: e.stats.Bets, Profit: e.stats.Profit, Win: result.Win})
		e.vm.SetVariables(e.vars)
		e.mu.Unlock()

		if err := e.vm.Call("dobet"); err != nil {
			e.fail(err)
			return
		}

		e.mu.Lock()
		e.vm.SyncVariables(e.vars)
		if e.vm.TakeResetStats() {
			e.stats.Reset()
			e.chart.Reset()
			e.vm.SetVariables(e.vars)
		}
		stopOnWin := e.vars.StopOnWin
		e.mu.Unlock()

		if stop, why := e.vm.StopRequested(); stop {
			if why != "" {
				e.log.Info("script stopped autoplay", zap.String("reason", why))
			}
			e.halt(StopScript)
			return
		}
		if stopOnWin && result.Win {
			e.halt(StopOnWin)
			return
		}

		e.throttledEmitState()

		if d := e.vm.TakeSleep(); d > 0 {
			select {
			case <-ctx.Done():
				e.halt(StopCancelled)
				return
			case <-time.After(d):
			}
		}
	}
}

func (e *Engine) halt(reason StopReason) {
	e.mu.Lock()
	e.state = StateStopped
	e.reason = reason
	if e.vars != nil {
		e.vars.Running = false
	}
	bets := 0
	if e.stats != nil {
		bets = e.stats.Bets
	}
	e.mu.Unlock()
	e.log.Info("autoplay stopped", zap.String("reason", string(reason)), zap.Int("bets", bets))
	e.emitState()
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	e.state = StateError
	e.err = err
	if e.vars != nil {
		e.vars.Running = false
	}
	e.mu.Unlock()
	e.log.Warn("autoplay failed", zap.Error(err))
	e.emitState()
}

func (e *Engine) snapshot() EngineSnapshot {
	snap := EngineSnapshot{
		State:   e.state,
		Reason:  e.reason,
		MaxBets: e.maxBets,
	}
	if e.err != nil {
		snap.Error = e.err.Error()
	}
	if e.stats != nil {
		statsCopy := *e.stats
		snap.Stats = &statsCopy
	}
	if e.chart != nil {
		snap.Chart = e.chart.Snapshot()
	}
	if e.vars != nil {
		snap.CurrentGame = e.vars.Game
	}
	if e.state == StateRunning && e.stats != nil && e.stats.Bets > 0 {
		if elapsed := time.Since(e.startTime).Seconds(); elapsed > 0 {
			snap.BetsPerSecond = float64(e.stats.Bets) / elapsed
		}
	}
	return snap
}

func (e *Engine) emitState() {
	if e.emitter == nil {
		return
	}
	e.mu.Lock()
	snap := e.snapshot()
	var fresh []LogEntry
	if e.vm != nil {
		if logs := e.vm.Logs(); len(logs) > e.logsSent {
			fresh = logs[e.logsSent:]
			e.logsSent = len(logs)
		}
	}
	e.lastEmit = time.Now()
	e.mu.Unlock()

	e.emitter.EmitScriptState(snap)
	if len(fresh) > 0 {
		e.emitter.EmitScriptLog(fresh)
	}
}

// throttledEmitState emits at most every 100ms.
func (e *Engine) throttledEmitState() {
	e.mu.RLock()
	last := e.lastEmit
	e.mu.RUnlock()
	if time.Since(last) < 100*time.Millisecond {
		return
	}
	e.emitState()
}
