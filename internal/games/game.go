package games

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// Kind separates games settled by a single draw from games played in steps.
type Kind string

const (
	KindInstant  Kind = "instant"
	KindStepwise Kind = "stepwise"
)

// GameSpec describes a game to the presentation layer.
type GameSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MetricLabel string `json:"metric_label"`
	Kind        Kind   `json:"kind"`
	// HouseEdge is the expected return factor for fixed-odds games (0.98
	// means 98% of stake returned on average). Zero when the return depends
	// on how the round is played.
	HouseEdge float64  `json:"house_edge,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// Outcome is the game-specific result of a draw or step.
type Outcome interface {
	Game() string
}

type Result string

const (
	ResultWin  Result = "win"
	ResultLose Result = "lose"
	ResultPush Result = "push"
)

// Resolution is what a round pays. Payout is the full amount credited back,
// stake included.
type Resolution struct {
	Payout     decimal.Decimal `json:"payout"`
	Multiplier float64         `json:"multiplier"`
	Result     Result          `json:"result"`
	Settled    bool            `json:"settled"`
}

// Bet is immutable once placed.
type Bet struct {
	ID       string          `json:"id"`
	GameID   string          `json:"game_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

type Game interface {
	Spec() GameSpec
	// Validate rejects bad params before any money moves.
	Validate(params map[string]any) error
}

// Instant games draw FloatCount(params) values and settle at once.
type Instant interface {
	Game
	FloatCount(params map[string]any) int
	Generate(params map[string]any, src engine.Source) (Outcome, error)
	Resolve(o Outcome, bet decimal.Decimal) (Resolution, error)
}

// Stepwise games hand back a Play that the round manager drives.
type Stepwise interface {
	Game
	Start(params map[string]any, src engine.Source) (Play, error)
}

// Streaky games carry a counter from one round into the next.
type Streaky interface {
	NextStreak(streak int, res Resolution) int
}

// Auditor reports the analytic expected multiplier of a fixed-odds game.
type Auditor interface {
	ExpectedMultiplier(params map[string]any) (float64, error)
	// ParamGrid lists every parameter combination a player can choose.
	ParamGrid() []map[string]any
}

// Registry holds the playable games by ID.
type Registry struct {
	games map[string]Game
}

func NewRegistry(gs ...Game) *Registry {
	r := &Registry{games: make(map[string]Game, len(gs))}
	for _, g := range gs {
		r.games[g.Spec().ID] = g
	}
	return r
}

// DefaultRegistry returns all betting games.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&DiceGame{},
		&BlackjackGame{},
		&MinesGame{},
		&PlinkoGame{},
		&SlotsGame{},
		&WheelGame{},
		&DiceDuelGame{},
		&LaserRunGame{},
		&GemBreakerGame{},
		&LightCatchGame{},
	)
}

func (r *Registry) Get(id string) (Game, bool) {
	g, ok := r.games[id]
	return g, ok
}

func (r *Registry) Instant(id string) (Instant, error) {
	g, ok := r.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown game %q", ErrInvalidParams, id)
	}
	ig, ok := g.(Instant)
	if !ok {
		return nil, fmt.Errorf("%w: game %q is not instant", ErrInvalidParams, id)
	}
	return ig, nil
}

// Specs returns game metadata sorted by ID.
func (r *Registry) Specs() []GameSpec {
	specs := make([]GameSpec, 0, len(r.games))
	for _, g := range r.games {
		specs = append(specs, g.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.games))
	for id := range r.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
