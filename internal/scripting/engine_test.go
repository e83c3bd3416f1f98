package scripting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/round"
)

// testBetPlacer wins every third bet at 2x and tracks a balance.
type testBetPlacer struct {
	mu        sync.Mutex
	callCount int
	balance   float64
	games     []string
	params    []map[string]any
}

func newTestPlacer(balance float64) *testBetPlacer {
	return &testBetPlacer{balance: balance}
}

func (p *testBetPlacer) PlaceBet(_ context.Context, game string, params map[string]any, amount decimal.Decimal) (BetResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bet := amount.InexactFloat64()
	if bet > p.balance {
		return BetResult{}, ledger.ErrInsufficientFunds
	}
	p.callCount++
	p.games = append(p.games, game)
	p.params = append(p.params, params)

	win := p.callCount%3 == 0
	res := BetResult{Game: game, Amount: bet, Result: "lose"}
	if win {
		res.Multiplier = 2
		res.Payout = bet * 2
		res.Result = "win"
		res.Win = true
	}
	p.balance += res.Payout - bet
	res.Balance = p.balance
	return res, nil
}

func (p *testBetPlacer) Balance() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return decimal.NewFromFloat(p.balance)
}

func (p *testBetPlacer) GameIDs() []string { return []string{"dice", "plinko"} }

type recordingEmitter struct {
	mu     sync.Mutex
	states []EngineSnapshot
	logs   []LogEntry
}

func (e *recordingEmitter) EmitScriptState(s EngineSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, s)
}

func (e *recordingEmitter) EmitScriptLog(entries []LogEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logs = append(e.logs, entries...)
}

func (e *recordingEmitter) last() EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[len(e.states)-1]
}

func waitDone(t *testing.T, eng *Engine) EngineSnapshot {
	t.Helper()
	select {
	case <-eng.Done():
	case <-time.After(5 * time.Second):
		_ = eng.Stop()
		t.Fatal("engine did not stop within timeout")
	}
	return eng.GetState()
}

func TestEngineStartStop(t *testing.T) {
	eng := NewEngine(newTestPlacer(1000), &recordingEmitter{})

	script := `
		basebet = 0.01
		nextbet = basebet

		dobet = function() {
			if (win) {
				nextbet = basebet
			} else {
				nextbet = previousbet * 2
			}
			sleep(5)
		}
	`

	if err := eng.Start(script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if snap := eng.GetState(); snap.State != StateRunning {
		t.Errorf("expected running, got %s", snap.State)
	}
	if err := eng.Start(script); err == nil {
		t.Error("expected a second Start to fail while running")
	}

	time.Sleep(100 * time.Millisecond)

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	snap := eng.GetState()
	if snap.State != StateStopped || snap.Reason != StopCancelled {
		t.Errorf("expected stopped/cancelled, got %s/%s", snap.State, snap.Reason)
	}
	if snap.Stats == nil || snap.Stats.Bets == 0 {
		t.Fatal("expected some bets to have been placed")
	}
	if err := eng.Stop(); err == nil {
		t.Error("expected Stop on a stopped engine to fail")
	}
}

func TestEngineMartingale100Bets(t *testing.T) {
	placer := newTestPlacer(1000)
	eng := NewEngine(placer, &recordingEmitter{})

	script := `
		basebet = 0.001
		nextbet = basebet

		dobet = function() {
			if (bets >= 100) {
				stop("done")
				return
			}
			nextbet = win ? basebet : previousbet * 2
		}
	`
	if err := eng.Start(script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := waitDone(t, eng)
	if snap.State != StateStopped || snap.Reason != StopScript {
		t.Errorf("expected stopped by script, got %s/%s (%s)", snap.State, snap.Reason, snap.Error)
	}
	if snap.Stats.Bets != 100 {
		t.Errorf("expected 100 bets, got %d", snap.Stats.Bets)
	}
	if snap.Stats.Wins != 33 || snap.Stats.Losses != 67 {
		t.Errorf("expected 33 wins and 67 losses, got %d/%d", snap.Stats.Wins, snap.Stats.Losses)
	}
	if got, want := snap.Stats.Balance, placer.Balance().InexactFloat64(); got != want {
		t.Errorf("expected stats balance %v, got %v", want, got)
	}
}

func TestEngineSelectsGameAndParams(t *testing.T) {
	placer := newTestPlacer(1000)
	eng := NewEngine(placer, nil)

	script := `
		game = "plinko"
		params = { rows: 12, risk: RISK_HIGH, balls: 1 }
		nextbet = 1

		dobet = function() {
			if (bets >= 2) stop()
			params.rows = 16
		}
	`
	if err := eng.Start(script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, eng)

	placer.mu.Lock()
	defer placer.mu.Unlock()
	if len(placer.games) != 2 || placer.games[0] != "plinko" {
		t.Fatalf("expected two plinko bets, got %v", placer.games)
	}
	if placer.params[0]["risk"] != "high" {
		t.Errorf("expected risk high, got %v", placer.params[0]["risk"])
	}
	if rows := placer.params[1]["rows"]; rows != int64(16) {
		t.Errorf("expected rows 16 on the second bet, got %v (%T)", rows, rows)
	}
}

func TestEngineStopConditions(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		maxBets int
		script  string
		reason  StopReason
		bets    int
	}{
		{
			name:    "max bets",
			balance: 1000,
			maxBets: 7,
			script:  `nextbet = 1; dobet = function() {}`,
			reason:  StopMaxBets,
			bets:    7,
		},
		{
			name:    "insufficient funds",
			balance: 10,
			script:  `nextbet = 4; dobet = function() {}`,
			reason:  StopInsufficientFunds,
			bets:    2,
		},
		{
			name:    "stop on win",
			balance: 1000,
			script:  `nextbet = 1; stoponwin = true; dobet = function() {}`,
			reason:  StopOnWin,
			bets:    3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewEngine(newTestPlacer(tt.balance), nil, WithMaxBets(tt.maxBets))
			if err := eng.Start(tt.script); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			snap := waitDone(t, eng)
			if snap.State != StateStopped || snap.Reason != tt.reason {
				t.Errorf("expected stopped/%s, got %s/%s", tt.reason, snap.State, snap.Reason)
			}
			if snap.Stats.Bets != tt.bets {
				t.Errorf("expected %d bets, got %d", tt.bets, snap.Stats.Bets)
			}
		})
	}
}

func TestEngineErrors(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		startErr  bool
		errSubstr string
	}{
		{"missing dobet", "var x = 1;", true, "dobet"},
		{"syntax", "dobet = function( {", true, "script execution error"},
		{"zero bet", "nextbet = 0; dobet = function() {}", false, "nextbet must be > 0"},
		{"throwing dobet", "nextbet = 1; dobet = function() { throw new Error('boom') }", false, "boom"},
		{"runaway dobet", "nextbet = 1; dobet = function() { for (;;) {} }", false, ErrScriptTimeout.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewEngine(newTestPlacer(1000), nil)
			err := eng.Start(tt.script)
			if tt.startErr != (err != nil) {
				t.Fatalf("expected start error %v, got %v", tt.startErr, err)
			}
			snap := waitDone(t, eng)
			if snap.State != StateError {
				t.Fatalf("expected error state, got %s", snap.State)
			}
			if !strings.Contains(snap.Error, tt.errSubstr) {
				t.Errorf("expected error containing %q, got %q", tt.errSubstr, snap.Error)
			}
		})
	}
}

func TestEngineResetStats(t *testing.T) {
	eng := NewEngine(newTestPlacer(1000), nil)
	script := `
		nextbet = 1
		var resets = 0
		dobet = function() {
			if (bets == 5 && resets == 0) {
				resets++
				resetstats()
				return
			}
			if (resets == 1 && bets == 2) stop()
		}
	`
	if err := eng.Start(script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	snap := waitDone(t, eng)
	if snap.Reason != StopScript {
		t.Fatalf("expected the script to stop itself after a reset, got %s/%s (%s)", snap.State, snap.Reason, snap.Error)
	}
	if snap.Stats.Bets != 2 {
		t.Errorf("expected 2 bets since reset, got %d", snap.Stats.Bets)
	}
}

func TestEngineChartBuffer(t *testing.T) {
	cb := NewChartBuffer(10)
	for i := 0; i < 25; i++ {
		cb.Push(ChartPoint{BetNumber: i, Profit: float64(i), Win: i%2 == 0})
	}

	if len(cb.Points) > 10 {
		t.Errorf("expected at most 10 samples, got %d", len(cb.Points))
	}
	pts := cb.Snapshot()
	if pts[0].BetNumber != 0 {
		t.Errorf("expected the first point kept, got %d", pts[0].BetNumber)
	}
	if last := pts[len(pts)-1].BetNumber; last != 24 {
		t.Errorf("expected the newest point last, got %d", last)
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].BetNumber <= pts[i-1].BetNumber {
			t.Fatalf("expected increasing bet numbers, got %v", pts)
		}
	}

	cb.Push(ChartPoint{BetNumber: 25})
	if got := cb.Snapshot(); got[len(got)-1].BetNumber != 25 {
		t.Errorf("expected a skipped point in the snapshot, got %v", got)
	}
	cb.Reset()
	if len(cb.Snapshot()) != 0 {
		t.Errorf("expected an empty chart after reset")
	}
}

func TestStatisticsPushKeepsStreak(t *testing.T) {
	s := NewStatistics(100)
	s.RecordBet(BetResult{Amount: 1, Payout: 0, Result: "lose", Balance: 99})
	s.RecordBet(BetResult{Amount: 1, Payout: 1, Result: "push", Balance: 99})

	if s.Pushes != 1 || s.Losses != 1 {
		t.Errorf("expected 1 push and 1 loss, got %d/%d", s.Pushes, s.Losses)
	}
	if s.CurrentStreak != -1 {
		t.Errorf("expected streak -1, got %d", s.CurrentStreak)
	}
	if s.Profit != -1 || s.Wagered != 2 {
		t.Errorf("expected profit -1 wagered 2, got %v/%v", s.Profit, s.Wagered)
	}
}

func TestEngineGetLogs(t *testing.T) {
	em := &recordingEmitter{}
	eng := NewEngine(newTestPlacer(1000), em)

	script := `
		nextbet = 0.001
		log("hello from script")

		dobet = function() {
			console.log("bet", bets)
			stop()
		}
	`
	if err := eng.Start(script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, eng)

	var msgs []string
	for _, l := range eng.GetLogs() {
		msgs = append(msgs, l.Message)
	}
	if got := strings.Join(msgs, "|"); got != "hello from script|bet 1" {
		t.Errorf("unexpected logs %q", got)
	}

	em.mu.Lock()
	emitted := len(em.logs)
	em.mu.Unlock()
	if emitted != 2 {
		t.Errorf("expected 2 emitted log lines, got %d", emitted)
	}
	if last := em.last(); last.State != StateStopped {
		t.Errorf("expected the final emitted state to be stopped, got %s", last.State)
	}
}

func TestManagerPlacer(t *testing.T) {
	l := ledger.New(nil)
	m := round.New(games.DefaultRegistry(), l,
		round.WithSource(engine.NewSliceSource(0.1, 0.2, 0.9)),
		round.WithPacing(false),
	)
	placer := NewManagerPlacer(m)

	ids := strings.Join(placer.GameIDs(), ",")
	if ids != "dice,diceduel,plinko,slots,wheel" {
		t.Errorf("unexpected autoplay games %q", ids)
	}

	if _, err := placer.PlaceBet(context.Background(), "mines", map[string]any{"mines": 3}, decimal.NewFromInt(1)); !errors.Is(err, games.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams for a stepwise game, got %v", err)
	}

	eng := NewEngine(placer, nil)
	script := `
		game = "dice"
		params = { target: 50 }
		nextbet = 10
		dobet = function() {
			if (bets >= 3) stop()
		}
	`
	if err := eng.Start(script); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	snap := waitDone(t, eng)
	if snap.Reason != StopScript {
		t.Fatalf("expected stop by script, got %s/%s (%s)", snap.State, snap.Reason, snap.Error)
	}
	if snap.Stats.Wins != 2 || snap.Stats.Losses != 1 {
		t.Errorf("expected 2 wins and 1 loss, got %d/%d", snap.Stats.Wins, snap.Stats.Losses)
	}
	// two wins at 1.96x, one loss
	if want := decimal.RequireFromString("1009.2"); !l.Balance().Equal(want) {
		t.Errorf("expected balance %s, got %s", want, l.Balance())
	}
}
