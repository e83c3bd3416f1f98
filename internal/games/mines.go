package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// MinesGame hides mines on a square grid. Each safe reveal raises the
// multiplier; a mine ends the round with nothing.
type MinesGame struct{}

const (
	minesDefaultGrid  = 5
	minesMinGrid      = 3
	minesMaxGrid      = 6
	minesDefaultCount = 5
	minesEdge         = 0.98
)

// Spec returns metadata about the Mines game.
func (g *MinesGame) Spec() GameSpec {
	return GameSpec{
		ID:          "mines",
		Name:        "Mines",
		MetricLabel: "multiplier",
		Kind:        KindStepwise,
		Actions:     []string{"reveal", "cashout"},
	}
}

func (g *MinesGame) Validate(params map[string]any) error {
	_, _, err := minesParams(params)
	return err
}

// FloatCount is one draw per mine placed.
func (g *MinesGame) FloatCount(params map[string]any) int {
	_, mines, err := minesParams(params)
	if err != nil {
		return minesDefaultCount
	}
	return mines
}

func (g *MinesGame) Start(params map[string]any, src engine.Source) (Play, error) {
	size, mineCount, err := minesParams(params)
	if err != nil {
		return nil, err
	}
	cells := size * size

	// Partial Fisher-Yates: the first mineCount picks from the pool are mines.
	pool := make([]int, cells)
	for i := range pool {
		pool[i] = i
	}
	mines := make([]bool, cells)
	for i := 0; i < mineCount; i++ {
		j := i + engine.Intn(src, cells-i)
		pool[i], pool[j] = pool[j], pool[i]
		mines[pool[i]] = true
	}

	return &minesPlay{
		size:     size,
		mines:    mines,
		count:    mineCount,
		revealed: make([]bool, cells),
		phase:    PhaseActive,
	}, nil
}

// MinesMultiplier is round2(0.98 × safe / (safe − revealed)) for
// 0 < revealed < safe, and 1 before the first reveal. Clearing the board
// pays round2(0.98 × C(cells, mines)), the edged odds of a full clear,
// which is always above the safe−1 value of 0.98 × safe.
func MinesMultiplier(cells, mines, revealed int) float64 {
	safe := cells - mines
	if revealed <= 0 {
		return 1
	}
	if revealed >= safe {
		return round2(binomial(cells, mines) * minesEdge)
	}
	return round2((1 / float64(safe-revealed)) * float64(safe) * minesEdge)
}

func binomial(n, k int) float64 {
	k = min(k, n-k)
	c := 1.0
	for i := 1; i <= k; i++ {
		c = c * float64(n-k+i) / float64(i)
	}
	return c
}

type MinesView struct {
	Phase      Phase   `json:"phase"`
	Size       int     `json:"size"`
	Mines      int     `json:"mines"`
	Revealed   []int   `json:"revealed"`
	MineCells  []int   `json:"mine_cells,omitempty"`
	HitCell    *int    `json:"hit_cell,omitempty"`
	Multiplier float64 `json:"multiplier"`
	Next       float64 `json:"next_multiplier"`
}

func (MinesView) Game() string { return "mines" }

type minesPlay struct {
	size      int
	mines     []bool
	count     int
	revealed  []bool
	nRevealed int
	phase     Phase
	hit       *int
	mult      float64
}

func (p *minesPlay) cells() int { return p.size * p.size }
func (p *minesPlay) safe() int  { return p.cells() - p.count }

func (p *minesPlay) Phase() Phase { return p.phase }

func (p *minesPlay) Apply(a Action, _ engine.Source) error {
	if p.phase != PhaseActive {
		return invalidTransition(p.phase, a.Type)
	}
	switch a.Type {
	case "reveal":
		cell, err := intParam(a.Args, "cell", -1)
		if err != nil {
			return invalidTransition(p.phase, a.Type)
		}
		if cell < 0 || cell >= p.cells() || p.revealed[cell] {
			return invalidTransition(p.phase, a.Type)
		}
		p.revealed[cell] = true
		if p.mines[cell] {
			p.hit = &cell
			p.settle(0)
			return nil
		}
		p.nRevealed++
		if p.nRevealed == p.safe() {
			p.settle(MinesMultiplier(p.cells(), p.count, p.nRevealed))
		}
		return nil

	case "cashout":
		if p.nRevealed == 0 {
			return invalidTransition(p.phase, a.Type)
		}
		p.settle(p.Multiplier())
		return nil
	}
	return invalidTransition(p.phase, a.Type)
}

func (p *minesPlay) settle(mult float64) {
	p.mult = mult
	p.phase = PhaseSettled
}

func (p *minesPlay) Pending() (Transition, bool) { return Transition{}, false }

func (p *minesPlay) Multiplier() float64 {
	if p.phase == PhaseSettled {
		return p.mult
	}
	return MinesMultiplier(p.cells(), p.count, p.nRevealed)
}

// Forfeit cashes out at the current multiplier; with no reveals that is a
// refund.
func (p *minesPlay) Forfeit(engine.Source) error {
	if p.phase == PhaseActive {
		p.settle(p.Multiplier())
	}
	return nil
}

func (p *minesPlay) Resolve(bet decimal.Decimal) (Resolution, error) {
	if p.phase != PhaseSettled {
		return Resolution{Multiplier: p.Multiplier()}, nil
	}
	return settledAt(bet, p.mult), nil
}

func (p *minesPlay) View() any {
	v := MinesView{
		Phase:      p.phase,
		Size:       p.size,
		Mines:      p.count,
		Revealed:   []int{},
		HitCell:    p.hit,
		Multiplier: p.Multiplier(),
		Next:       MinesMultiplier(p.cells(), p.count, p.nRevealed+1),
	}
	for i, r := range p.revealed {
		if r {
			v.Revealed = append(v.Revealed, i)
		}
	}
	if p.phase == PhaseSettled {
		for i, m := range p.mines {
			if m {
				v.MineCells = append(v.MineCells, i)
			}
		}
	}
	return v
}

func minesParams(params map[string]any) (size, mines int, err error) {
	size, err = intParamIn(params, "grid", minesDefaultGrid, minesMinGrid, minesMaxGrid)
	if err != nil {
		return 0, 0, err
	}
	cells := size * size
	mines, err = intParam(params, "mines", minesDefaultCount)
	if err != nil {
		return 0, 0, err
	}
	if mines < 1 || mines >= cells {
		return 0, 0, invalidParams("mines must be between 1 and %d for a %dx%d grid, got %d", cells-1, size, size, mines)
	}
	return size, mines, nil
}
