package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/engine"
	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/metrics"
	"github.com/MJE43/neon-arcade/internal/profile"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/scripting"
	"github.com/MJE43/neon-arcade/internal/store"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	ledger  *ledger.Ledger
	rounds  *round.Manager
	hub     *Hub
}

func newTestEnv(t *testing.T, draws ...float64) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "arcade.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	prof := profile.New(db, nil)
	l := ledger.New(nil, ledger.WithPersister(prof), ledger.WithJournal(db))
	hub := NewHub(nil, nil)
	m := metrics.New()
	rounds := round.New(games.DefaultRegistry(), l,
		round.WithSource(engine.NewSliceSource(draws...)),
		round.WithPacing(false),
		round.WithRecorder(db),
		round.WithEmitter(hub),
		round.WithObserver(m),
	)
	auto := scripting.NewEngine(scripting.NewManagerPlacer(rounds), hub)

	watchCtx, cancel := context.WithCancel(ctx)
	updates, unsubscribe := l.Subscribe()
	go hub.WatchBalance(watchCtx, updates)
	t.Cleanup(func() {
		cancel()
		unsubscribe()
		hub.Close()
	})

	srv := NewServer(Deps{
		Rounds:      rounds,
		Wallet:      l,
		History:     db,
		Preferences: prof,
		Autoplay:    auto,
		Metrics:     m,
		Hub:         hub,
	}, nil)
	return &testEnv{server: srv, handler: srv.Routes(), ledger: l, rounds: rounds, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s (%+v)", resp.Status, resp.Checks)
	}
	if resp.EngineVersion != EngineVersion {
		t.Errorf("Expected engine version %s, got %s", EngineVersion, resp.EngineVersion)
	}
	if w.Header().Get("X-Engine-Version") == "" {
		t.Error("Expected X-Engine-Version header")
	}
}

func TestGamesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/games", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[GamesResponse](t, w)
	if len(resp.Games) != 10 {
		t.Errorf("Expected 10 games, got %d", len(resp.Games))
	}
}

func TestPlaceDiceRound(t *testing.T) {
	env := newTestEnv(t, 0.495)

	w := env.do(t, "POST", "/api/v1/games/dice/rounds", `{"amount":"10","params":{"target":50}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[RoundResponse](t, w)
	if resp.Round == nil || resp.Round.Status != round.StatusSettled {
		t.Fatalf("Expected a settled round, got %+v", resp.Round)
	}
	if !resp.Round.Resolution.Payout.Equal(decimal.RequireFromString("19.6")) {
		t.Errorf("Expected payout 19.6, got %s", resp.Round.Resolution.Payout)
	}

	bal := decodeBody[BalanceResponse](t, env.do(t, "GET", "/api/v1/balance", ""))
	if !bal.Balance.Equal(decimal.RequireFromString("1009.6")) {
		t.Errorf("Expected balance 1009.6, got %s", bal.Balance)
	}

	got := decodeBody[RoundResponse](t, env.do(t, "GET", "/api/v1/rounds/"+resp.Round.ID, ""))
	if got.Round == nil || got.Round.ID != resp.Round.ID {
		t.Errorf("Expected the live round back, got %+v", got)
	}

	list := decodeBody[RoundsResponse](t, env.do(t, "GET", "/api/v1/rounds?game=dice", ""))
	if list.History == nil || list.History.TotalCount != 1 || len(list.Active) != 0 {
		t.Errorf("Expected one settled dice round in history, got %+v", list)
	}
}

func TestAbandonStepwiseRound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/games/mines/rounds", `{"amount":25,"params":{"mines":3}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	placed := decodeBody[RoundResponse](t, w)
	if placed.Round.Status != round.StatusActive {
		t.Fatalf("Expected an active round, got %s", placed.Round.Status)
	}

	list := decodeBody[RoundsResponse](t, env.do(t, "GET", "/api/v1/rounds", ""))
	if len(list.Active) != 1 {
		t.Errorf("Expected one active round, got %d", len(list.Active))
	}

	w = env.do(t, "POST", "/api/v1/rounds/"+placed.Round.ID+"/abandon", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	abandoned := decodeBody[RoundResponse](t, w)
	if abandoned.Round.Status != round.StatusAbandoned || abandoned.Round.Resolution.Result != games.ResultPush {
		t.Errorf("Expected an abandoned push, got %s/%+v", abandoned.Round.Status, abandoned.Round.Resolution)
	}
	if !env.ledger.Balance().Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected the bet refunded, balance %s", env.ledger.Balance())
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, env *testEnv)
		method  string
		path    string
		body    string
		status  int
		errType string
	}{
		{
			name:   "unknown game",
			method: "POST", path: "/api/v1/games/roulette/rounds", body: `{"amount":1}`,
			status: http.StatusNotFound, errType: ErrTypeGameNotFound,
		},
		{
			name:   "malformed body",
			method: "POST", path: "/api/v1/games/dice/rounds", body: `{"amount":`,
			status: http.StatusBadRequest, errType: ErrTypeValidation,
		},
		{
			name:   "insufficient funds",
			method: "POST", path: "/api/v1/games/dice/rounds", body: `{"amount":"5000","params":{"target":50}}`,
			status: http.StatusConflict, errType: ErrTypeInsufficientFunds,
		},
		{
			name:   "bad params",
			method: "POST", path: "/api/v1/games/dice/rounds", body: `{"amount":"1","params":{"target":0}}`,
			status: http.StatusBadRequest, errType: ErrTypeInvalidParams,
		},
		{
			name:   "missing round",
			method: "POST", path: "/api/v1/rounds/nope/abandon",
			status: http.StatusNotFound, errType: ErrTypeRoundNotFound,
		},
		{
			name:   "missing history record",
			method: "GET", path: "/api/v1/rounds/nope",
			status: http.StatusNotFound, errType: ErrTypeRoundNotFound,
		},
		{
			name: "round in progress",
			setup: func(t *testing.T, env *testEnv) {
				env.do(t, "POST", "/api/v1/games/mines/rounds", `{"amount":1}`)
			},
			method: "POST", path: "/api/v1/games/mines/rounds", body: `{"amount":1}`,
			status: http.StatusConflict, errType: ErrTypeRoundInProgress,
		},
		{
			name:   "empty action",
			method: "POST", path: "/api/v1/rounds/x/actions", body: `{}`,
			status: http.StatusBadRequest, errType: ErrTypeValidation,
		},
		{
			name:   "stop idle autoplay",
			method: "DELETE", path: "/api/v1/autoplay",
			status: http.StatusBadRequest, errType: ErrTypeAutoplay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(t, env)
			}
			w := env.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			resp := decodeBody[EngineError](t, w)
			if resp.Type != tt.errType {
				t.Errorf("Expected error type %s, got %s", tt.errType, resp.Type)
			}
			if resp.RequestID == "" && tt.errType != ErrTypeAutoplay {
				t.Error("Expected a request id on the error")
			}
		})
	}
}

func TestCashoutWithoutRevealIsInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	placed := decodeBody[RoundResponse](t, env.do(t, "POST", "/api/v1/games/mines/rounds", `{"amount":1}`))

	w := env.do(t, "POST", "/api/v1/rounds/"+placed.Round.ID+"/actions", `{"type":"cashout"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeBody[EngineError](t, w); resp.Type != ErrTypeInvalidTransition {
		t.Errorf("Expected %s, got %s", ErrTypeInvalidTransition, resp.Type)
	}
}

func TestBalanceReset(t *testing.T) {
	env := newTestEnv(t, 0.9)
	env.do(t, "POST", "/api/v1/games/dice/rounds", `{"amount":"100","params":{"target":50}}`)

	resp := decodeBody[BalanceResponse](t, env.do(t, "POST", "/api/v1/balance/reset", ""))
	if !resp.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected reset balance 1000, got %s", resp.Balance)
	}
	if resp.Starting == nil || !resp.Starting.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected starting balance 1000, got %v", resp.Starting)
	}
}

func TestLedgerJournalEndpoint(t *testing.T) {
	env := newTestEnv(t, 0.495, 0.9)
	won := decodeBody[RoundResponse](t, env.do(t, "POST", "/api/v1/games/dice/rounds", `{"amount":"10","params":{"target":50}}`))
	env.do(t, "POST", "/api/v1/games/dice/rounds", `{"amount":"10","params":{"target":50}}`)

	all := decodeBody[store.EntriesPage](t, env.do(t, "GET", "/api/v1/ledger", ""))
	if all.TotalCount != 3 {
		t.Errorf("Expected 3 journal entries, got %d", all.TotalCount)
	}

	w := env.do(t, "GET", "/api/v1/ledger?ref="+won.Round.ID+"&perPage=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	page := decodeBody[store.EntriesPage](t, w)
	if page.TotalCount != 2 || len(page.Entries) != 1 || page.TotalPages != 2 {
		t.Fatalf("Expected bet and payout over 2 pages, got %+v", page)
	}
	if e := page.Entries[0]; e.Kind != ledger.KindCredit || e.Ref != "payout:"+won.Round.ID {
		t.Errorf("Expected the payout first, got %+v", e)
	}

	if w := env.do(t, "GET", "/api/v1/ledger?page=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHealthReportsStreamCursor(t *testing.T) {
	src := engine.Seeds{Server: "server", Client: "client"}.Stream(0, 0)
	l := ledger.New(nil)
	rounds := round.New(games.DefaultRegistry(), l, round.WithSource(src), round.WithPacing(false))
	srv := NewServer(Deps{Rounds: rounds, Wallet: l, Source: src}, nil)

	if _, err := rounds.PlaceBet(context.Background(), "dice", map[string]any{"target": 50}, decimal.NewFromInt(1)); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	resp := decodeBody[HealthCheckResponse](t, w)
	if got := resp.Checks["rng"].Message; got != "Seeded stream at byte 4" {
		t.Errorf("Expected the stream cursor after one dice draw, got %q", got)
	}
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)

	prefs := decodeBody[profile.Preferences](t, env.do(t, "GET", "/api/v1/preferences", ""))
	if prefs != profile.DefaultPreferences {
		t.Errorf("Expected default preferences, got %+v", prefs)
	}

	w := env.do(t, "PUT", "/api/v1/preferences", `{"gameSoundEnabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	prefs = decodeBody[profile.Preferences](t, env.do(t, "GET", "/api/v1/preferences", ""))
	if prefs.SoundEnabled || !prefs.DarkMode {
		t.Errorf("Expected sound off and dark mode on, got %+v", prefs)
	}
}

func TestAutoplayEndpoints(t *testing.T) {
	env := newTestEnv(t, 0.1, 0.9, 0.2)

	script := `game = "dice"; params = { target: 50 }; nextbet = 5; dobet = function() { if (bets >= 3) stop() }`
	body, _ := json.Marshal(AutoplayRequest{Script: script})
	w := env.do(t, "POST", "/api/v1/autoplay", string(body))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	var state scripting.EngineSnapshot
	for time.Now().Before(deadline) {
		state = decodeBody[AutoplayResponse](t, env.do(t, "GET", "/api/v1/autoplay", "")).State
		if state.State != scripting.StateRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if state.State != scripting.StateStopped || state.Stats.Bets != 3 {
		t.Fatalf("Expected a stopped session with 3 bets, got %s/%+v", state.State, state.Stats)
	}

	list := decodeBody[RoundsResponse](t, env.do(t, "GET", "/api/v1/rounds?game=dice&perPage=2", ""))
	if list.History.TotalCount != 3 || list.History.TotalPages != 2 {
		t.Errorf("Expected 3 recorded rounds over 2 pages, got %+v", list.History)
	}
}

func TestAutoplayUnavailable(t *testing.T) {
	l := ledger.New(nil)
	rounds := round.New(games.DefaultRegistry(), l, round.WithPacing(false))
	srv := NewServer(Deps{Rounds: rounds, Wallet: l}, nil)

	for _, path := range []string{"/api/v1/autoplay", "/api/v1/ledger"} {
		w := httptest.NewRecorder()
		srv.Routes().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: Expected status 503, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	resp := decodeBody[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded health without storage, got %s", resp.Status)
	}
}

func TestRecoveryHandler(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())
	h := eh.RecoveryHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if resp := decodeBody[EngineError](t, w); resp.Type != ErrTypeInternal {
		t.Errorf("Expected %s, got %s", ErrTypeInternal, resp.Type)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 0.1)
	env.do(t, "POST", "/api/v1/games/dice/rounds", `{"amount":"1","params":{"target":50}}`)

	w := env.do(t, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `arcade_bets_placed_total{game="dice"} 1`) {
		t.Error("Expected the dice bet counted in metrics")
	}
}

func TestWebsocketEvents(t *testing.T) {
	env := newTestEnv(t, 0.1)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	for i := 0; env.hub.Clients() == 0; i++ {
		if i > 100 {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/api/v1/games/dice/rounds", "application/json",
		strings.NewReader(`{"amount":"10","params":{"target":50}}`))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()

	seen := map[string]bool{}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !seen[EventRound] || !seen[EventBalance] {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read failed after %v: %v", seen, err)
		}
		seen[ev.Type] = true
		if ev.Type == EventBalance {
			var bal BalanceResponse
			if err := json.Unmarshal(ev.Data, &bal); err != nil {
				t.Fatal(err)
			}
			if !bal.Balance.Equal(decimal.RequireFromString("990")) && !bal.Balance.Equal(decimal.RequireFromString("1009.6")) {
				t.Errorf("unexpected balance event %s", bal.Balance)
			}
		}
	}

	if err := conn.WriteJSON(clientMsg{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("expected a pong, got %v", err)
		}
		if ev.Type == "pong" {
			break
		}
	}
}
