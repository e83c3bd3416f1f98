package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/round"
)

func TestObserver(t *testing.T) {
	m := New()
	m.BetPlaced("dice", decimal.NewFromInt(10))
	m.BetPlaced("dice", decimal.NewFromInt(5))
	m.RoundFinished("dice", round.StatusSettled, decimal.NewFromInt(10), decimal.RequireFromString("19.6"), 2*time.Millisecond)
	m.RoundFinished("dice", round.StatusSettled, decimal.NewFromInt(5), decimal.Zero, time.Millisecond)
	m.TransitionApplied("blackjack", "dealer_draw")
	m.ActiveRounds(3)
	m.SetBalance(decimal.RequireFromString("1004.6"))

	if got := testutil.ToFloat64(m.BetsPlaced.WithLabelValues("dice")); got != 2 {
		t.Errorf("expected 2 bets, got %v", got)
	}
	if got := testutil.ToFloat64(m.Wagered.WithLabelValues("dice")); got != 15 {
		t.Errorf("expected 15 wagered, got %v", got)
	}
	if got := testutil.ToFloat64(m.Paid.WithLabelValues("dice")); got != 19.6 {
		t.Errorf("expected 19.6 paid, got %v", got)
	}
	if got := testutil.ToFloat64(m.RoundsFinished.WithLabelValues("dice", "settled")); got != 2 {
		t.Errorf("expected 2 settled rounds, got %v", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("blackjack", "dealer_draw")); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.Active); got != 3 {
		t.Errorf("expected 3 active, got %v", got)
	}
	if got := testutil.ToFloat64(m.Balance); got != 1004.6 {
		t.Errorf("expected balance 1004.6, got %v", got)
	}
}

func TestHandlerAndMiddleware(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	for _, path := range []string{"/", "/", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("expected 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "404")); got != 1 {
		t.Errorf("expected 1 not found, got %v", got)
	}

	m.BetPlaced("mines", decimal.NewFromInt(1))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `arcade_bets_placed_total{game="mines"} 1`) {
		t.Errorf("expected bets counter in exposition, got:\n%s", body)
	}
}
