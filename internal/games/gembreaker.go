package games

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// GemBreakerGame is a match-three board. A swap that lines up three or more
// gems scores them, then cleared gems fall and refill until the board is
// quiet. The round ends after a fixed number of scoring swaps and pays
// bet × score × multiplier / 100.
type GemBreakerGame struct{}

const (
	gemGridSize       = 8
	gemMinMatch       = 3
	gemMoves          = 10
	gemBigMatch       = 5
	gemBigMatchBonus  = 0.5
	gemCascadeBonus   = 0.2
	gemCascadePoints  = 1.5
	gemMaxMultiplier  = 5
	gemMaxCascades    = 100
	gemMaxInitRerolls = 100
)

type gemType struct {
	Name  string
	Value float64
}

var gemTypes = []gemType{
	{"diamond", 1},
	{"ruby", 1.5},
	{"emerald", 2},
	{"sapphire", 2.5},
	{"amethyst", 3},
	{"topaz", 4},
}

// ErrNoMatch rejects a swap that lines nothing up; the board is unchanged.
var ErrNoMatch = fmt.Errorf("%w: swap makes no match", ErrInvalidTransition)

type gemGrid [gemGridSize][gemGridSize]int

func (g *GemBreakerGame) Spec() GameSpec {
	return GameSpec{
		ID:          "gembreaker",
		Name:        "Gem Breaker",
		MetricLabel: "score",
		Kind:        KindStepwise,
		Actions:     []string{"swap"},
	}
}

func (g *GemBreakerGame) Validate(map[string]any) error { return nil }

// Start fills the board (one draw per cell) and re-rolls cells that sit in
// a run until none remain.
func (g *GemBreakerGame) Start(_ map[string]any, src engine.Source) (Play, error) {
	p := &gemPlay{moves: gemMoves, mult: 1, phase: PhaseActive}
	for r := range p.grid {
		for c := range p.grid[r] {
			p.grid[r][c] = engine.Intn(src, len(gemTypes))
		}
	}

	for pass := 0; ; pass++ {
		if pass == gemMaxInitRerolls {
			return nil, fmt.Errorf("gem breaker initial board: %w", ErrRetryBoundExceeded)
		}
		clean := true
		for r := range p.grid {
			for c := range p.grid[r] {
				if len(findGemMatches(&p.grid, r, c)) >= gemMinMatch {
					clean = false
					p.grid[r][c] = engine.Intn(src, len(gemTypes))
				}
			}
		}
		if clean {
			break
		}
	}
	return p, nil
}

// findGemMatches returns the longest run through (r, c), preferring the
// horizontal one on ties, or nil when neither reaches gemMinMatch.
func findGemMatches(grid *gemGrid, r, c int) []Point {
	t := grid[r][c]

	horizontal := []Point{{r, c}}
	for cc := c - 1; cc >= 0 && grid[r][cc] == t; cc-- {
		horizontal = append(horizontal, Point{r, cc})
	}
	for cc := c + 1; cc < gemGridSize && grid[r][cc] == t; cc++ {
		horizontal = append(horizontal, Point{r, cc})
	}

	vertical := []Point{{r, c}}
	for rr := r - 1; rr >= 0 && grid[rr][c] == t; rr-- {
		vertical = append(vertical, Point{rr, c})
	}
	for rr := r + 1; rr < gemGridSize && grid[rr][c] == t; rr++ {
		vertical = append(vertical, Point{rr, c})
	}

	if len(horizontal) >= gemMinMatch && len(horizontal) >= len(vertical) {
		return horizontal
	}
	if len(vertical) >= gemMinMatch {
		return vertical
	}
	return nil
}

type GemBreakerView struct {
	Phase      Phase      `json:"phase"`
	Grid       [][]string `json:"grid"`
	Matched    []Point    `json:"matched,omitempty"`
	Moves      int        `json:"moves"`
	Score      float64    `json:"score"`
	Multiplier float64    `json:"multiplier"`
	Cascades   int        `json:"cascades"`
}

func (GemBreakerView) Game() string { return "gembreaker" }

type gemPlay struct {
	grid     gemGrid
	matched  [gemGridSize][gemGridSize]bool
	moves    int
	score    float64
	mult     float64
	phase    Phase
	first    bool
	cascades int
}

func (p *gemPlay) Phase() Phase { return p.phase }

func (p *gemPlay) Apply(a Action, src engine.Source) error {
	switch a.Type {
	case "swap":
		if p.phase != PhaseActive {
			return invalidTransition(p.phase, a.Type)
		}
		return p.swap(a.Args)
	case TransitionCascade.Name:
		if p.phase != PhaseCascading {
			return invalidTransition(p.phase, a.Type)
		}
		return p.cascade(src)
	}
	return invalidTransition(p.phase, a.Type)
}

func (p *gemPlay) swap(args map[string]any) error {
	var coords [4]int
	for i, key := range []string{"r1", "c1", "r2", "c2"} {
		v, err := intParam(args, key, -1)
		if err != nil || v < 0 || v >= gemGridSize {
			return invalidTransition(p.phase, "swap")
		}
		coords[i] = v
	}
	r1, c1, r2, c2 := coords[0], coords[1], coords[2], coords[3]
	dr, dc := r1-r2, c1-c2
	if dr*dr+dc*dc != 1 {
		return invalidTransition(p.phase, "swap")
	}

	p.grid[r1][c1], p.grid[r2][c2] = p.grid[r2][c2], p.grid[r1][c1]
	m1 := findGemMatches(&p.grid, r1, c1)
	m2 := findGemMatches(&p.grid, r2, c2)
	if len(m1) < gemMinMatch && len(m2) < gemMinMatch {
		p.grid[r1][c1], p.grid[r2][c2] = p.grid[r2][c2], p.grid[r1][c1]
		return ErrNoMatch
	}

	for _, pt := range append(m1, m2...) {
		p.matched[pt.Row][pt.Col] = true
	}
	p.first = true
	p.cascades = 0
	p.phase = PhaseCascading
	return nil
}

// cascade scores the marked gems, drops and refills the columns, then marks
// any new runs. The swap's own match scores at face value; later passes
// score 1.5x and add to the multiplier.
func (p *gemPlay) cascade(src engine.Source) error {
	points := 0.0
	count := 0
	for r := range p.matched {
		for c := range p.matched[r] {
			if p.matched[r][c] {
				points += gemTypes[p.grid[r][c]].Value
				count++
			}
		}
	}

	if p.first {
		p.score += points
		if count >= gemBigMatch {
			p.mult = math.Min(p.mult+gemBigMatchBonus, gemMaxMultiplier)
		}
	} else {
		p.score += points * gemCascadePoints
		p.mult = math.Min(p.mult+gemCascadeBonus, gemMaxMultiplier)
	}
	p.first = false

	p.refill(src)

	found := false
	for r := range p.grid {
		for c := range p.grid[r] {
			for _, pt := range findGemMatches(&p.grid, r, c) {
				p.matched[pt.Row][pt.Col] = true
				found = true
			}
		}
	}
	if found {
		p.cascades++
		if p.cascades > gemMaxCascades {
			return fmt.Errorf("gem breaker cascade: %w", ErrRetryBoundExceeded)
		}
		return nil
	}

	p.moves--
	if p.moves <= 0 {
		p.phase = PhaseSettled
	} else {
		p.phase = PhaseActive
	}
	return nil
}

// refill compacts each column downward and draws new gems for the gaps at
// the top, bottom row first.
func (p *gemPlay) refill(src engine.Source) {
	for c := 0; c < gemGridSize; c++ {
		write := gemGridSize - 1
		for r := gemGridSize - 1; r >= 0; r-- {
			if !p.matched[r][c] {
				p.grid[write][c] = p.grid[r][c]
				write--
			}
		}
		for r := write; r >= 0; r-- {
			p.grid[r][c] = engine.Intn(src, len(gemTypes))
		}
		for r := 0; r < gemGridSize; r++ {
			p.matched[r][c] = false
		}
	}
}

func (p *gemPlay) Pending() (Transition, bool) {
	if p.phase == PhaseCascading {
		return TransitionCascade, true
	}
	return Transition{}, false
}

// Multiplier is the effective payout multiplier, score × mult / 100.
func (p *gemPlay) Multiplier() float64 {
	return p.score * p.mult / 100
}

// Forfeit finishes any running cascade and settles on the score so far.
func (p *gemPlay) Forfeit(src engine.Source) error {
	for p.phase == PhaseCascading {
		if err := p.cascade(src); err != nil {
			return err
		}
	}
	p.phase = PhaseSettled
	return nil
}

func (p *gemPlay) Resolve(bet decimal.Decimal) (Resolution, error) {
	eff := p.Multiplier()
	if p.phase != PhaseSettled {
		return Resolution{Multiplier: eff}, nil
	}
	payout := decimal.Zero
	if p.score > 0 {
		payout = bet.Mul(decimal.NewFromFloat(p.score)).Mul(decimal.NewFromFloat(p.mult)).Div(decimal.NewFromInt(100))
	}
	return Resolution{Payout: payout, Multiplier: eff, Result: resultFor(eff), Settled: true}, nil
}

func (p *gemPlay) View() any {
	v := GemBreakerView{
		Phase:      p.phase,
		Grid:       make([][]string, gemGridSize),
		Moves:      p.moves,
		Score:      p.score,
		Multiplier: p.mult,
		Cascades:   p.cascades,
	}
	for r := range p.grid {
		v.Grid[r] = make([]string, gemGridSize)
		for c, t := range p.grid[r] {
			v.Grid[r][c] = gemTypes[t].Name
			if p.matched[r][c] {
				v.Matched = append(v.Matched, Point{r, c})
			}
		}
	}
	return v
}
