package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/round"
)

// Metrics owns a private registry so several engines (and tests) can coexist
// in one process.
type Metrics struct {
	reg *prometheus.Registry

	BetsPlaced     *prometheus.CounterVec
	Wagered        *prometheus.CounterVec
	Paid           *prometheus.CounterVec
	RoundsFinished *prometheus.CounterVec
	RoundDuration  *prometheus.HistogramVec
	Transitions    *prometheus.CounterVec
	Active         prometheus.Gauge
	Balance        prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
}

var _ round.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		BetsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcade",
			Name:      "bets_placed_total",
			Help:      "Bets accepted by the round manager.",
		}, []string{"game"}),
		Wagered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcade",
			Name:      "wagered_total",
			Help:      "Credits staked.",
		}, []string{"game"}),
		Paid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcade",
			Name:      "paid_total",
			Help:      "Credits paid back, refunds included.",
		}, []string{"game"}),
		RoundsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcade",
			Name:      "rounds_finished_total",
			Help:      "Rounds that left the active state.",
		}, []string{"game", "status"}),
		RoundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arcade",
			Name:      "round_duration_seconds",
			Help:      "Time from bet to settlement.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 15, 30, 60, 300},
		}, []string{"game"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcade",
			Name:      "transitions_total",
			Help:      "Timed transitions applied.",
		}, []string{"game", "transition"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcade",
			Name:      "active_rounds",
			Help:      "Rounds currently in progress.",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcade",
			Name:      "balance",
			Help:      "Current player balance.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "status"}),
	}
	m.reg.MustRegister(
		m.BetsPlaced, m.Wagered, m.Paid, m.RoundsFinished, m.RoundDuration,
		m.Transitions, m.Active, m.Balance, m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) BetPlaced(game string, amount decimal.Decimal) {
	m.BetsPlaced.WithLabelValues(game).Inc()
	m.Wagered.WithLabelValues(game).Add(amount.InexactFloat64())
}

func (m *Metrics) RoundFinished(game string, status round.Status, _, payout decimal.Decimal, d time.Duration) {
	m.RoundsFinished.WithLabelValues(game, string(status)).Inc()
	if payout.IsPositive() {
		m.Paid.WithLabelValues(game).Add(payout.InexactFloat64())
	}
	m.RoundDuration.WithLabelValues(game).Observe(d.Seconds())
}

func (m *Metrics) TransitionApplied(game, name string) {
	m.Transitions.WithLabelValues(game, name).Inc()
}

func (m *Metrics) ActiveRounds(n int) { m.Active.Set(float64(n)) }

func (m *Metrics) SetBalance(b decimal.Decimal) { m.Balance.Set(b.InexactFloat64()) }

// Middleware counts requests by method and status code.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
	})
}
