package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// LaserRunGame walks a runner from the top-left corner to the bottom-right
// corner of a grid. Each safe step adds to the multiplier and may light up
// another laser.
type LaserRunGame struct{}

const (
	laserGridSize      = 8
	laserInitial       = 3
	laserStep          = 0.2
	laserSpawnChance   = 0.3
	laserMaxDensity    = 0.4
	laserPlaceAttempts = 64
)

type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

var laserDirections = map[string]Point{
	"up":    {-1, 0},
	"down":  {1, 0},
	"left":  {0, -1},
	"right": {0, 1},
}

func (g *LaserRunGame) Spec() GameSpec {
	return GameSpec{
		ID:          "laserrun",
		Name:        "Laser Run",
		MetricLabel: "multiplier",
		Kind:        KindStepwise,
		Actions:     []string{"move", "cashout"},
	}
}

func (g *LaserRunGame) Validate(map[string]any) error { return nil }

func (g *LaserRunGame) Start(_ map[string]any, src engine.Source) (Play, error) {
	p := &laserPlay{
		lasers: make(map[Point]bool),
		phase:  PhaseArming,
	}
	for i := 0; i < laserInitial; i++ {
		if err := p.placeLaser(src); err != nil {
			return nil, err
		}
	}
	return p, nil
}

type LaserRunView struct {
	Phase      Phase   `json:"phase"`
	GridSize   int     `json:"grid_size"`
	Position   Point   `json:"position"`
	Goal       Point   `json:"goal"`
	Lasers     []Point `json:"lasers"`
	Moves      int     `json:"moves"`
	Multiplier float64 `json:"multiplier"`
	Outcome    string  `json:"outcome,omitempty"`
}

func (LaserRunView) Game() string { return "laserrun" }

type laserPlay struct {
	pos     Point
	lasers  map[Point]bool
	order   []Point
	moves   int
	phase   Phase
	outcome string
	mult    float64
}

var (
	laserStart = Point{0, 0}
	laserGoal  = Point{laserGridSize - 1, laserGridSize - 1}
)

// placeLaser picks a free cell with a bounded number of attempts, two draws
// per attempt.
func (p *laserPlay) placeLaser(src engine.Source) error {
	for attempt := 0; attempt < laserPlaceAttempts; attempt++ {
		c := Point{engine.Intn(src, laserGridSize), engine.Intn(src, laserGridSize)}
		if c == laserStart || c == laserGoal || c == p.pos || p.lasers[c] {
			continue
		}
		p.lasers[c] = true
		p.order = append(p.order, c)
		return nil
	}
	return ErrRetryBoundExceeded
}

func (p *laserPlay) Phase() Phase { return p.phase }

func (p *laserPlay) Apply(a Action, src engine.Source) error {
	switch a.Type {
	case TransitionArm.Name:
		if p.phase != PhaseArming {
			return invalidTransition(p.phase, a.Type)
		}
		p.phase = PhaseActive
		return nil

	case "move":
		if p.phase != PhaseActive {
			return invalidTransition(p.phase, a.Type)
		}
		dirName, _ := a.Args["dir"].(string)
		d, ok := laserDirections[dirName]
		if !ok {
			return invalidTransition(p.phase, a.Type)
		}
		next := Point{p.pos.Row + d.Row, p.pos.Col + d.Col}
		if next.Row < 0 || next.Row >= laserGridSize || next.Col < 0 || next.Col >= laserGridSize {
			return invalidTransition(p.phase, a.Type)
		}
		p.pos = next
		if p.lasers[next] {
			p.settle("laser", 0)
			return nil
		}
		if next == laserGoal {
			p.settle("goal", p.Multiplier())
			return nil
		}
		p.moves++
		if src.Float64() < laserSpawnChance && float64(len(p.lasers)) < laserGridSize*laserGridSize*laserMaxDensity {
			return p.placeLaser(src)
		}
		return nil

	case "cashout":
		if p.phase != PhaseActive {
			return invalidTransition(p.phase, a.Type)
		}
		p.settle("cashout", p.Multiplier())
		return nil
	}
	return invalidTransition(p.phase, a.Type)
}

func (p *laserPlay) settle(outcome string, mult float64) {
	p.outcome = outcome
	p.mult = mult
	p.phase = PhaseSettled
}

func (p *laserPlay) Pending() (Transition, bool) {
	if p.phase == PhaseArming {
		return TransitionArm, true
	}
	return Transition{}, false
}

// Multiplier is 1 + 0.2 per safe move.
func (p *laserPlay) Multiplier() float64 {
	if p.phase == PhaseSettled {
		return p.mult
	}
	return LaserMultiplier(p.moves)
}

func LaserMultiplier(moves int) float64 {
	return round2(1 + laserStep*float64(moves))
}

// Forfeit cashes out at the current multiplier.
func (p *laserPlay) Forfeit(engine.Source) error {
	if p.phase != PhaseSettled {
		p.settle("abandoned", p.Multiplier())
	}
	return nil
}

func (p *laserPlay) Resolve(bet decimal.Decimal) (Resolution, error) {
	if p.phase != PhaseSettled {
		return Resolution{Multiplier: p.Multiplier()}, nil
	}
	return settledAt(bet, p.mult), nil
}

func (p *laserPlay) View() any {
	return LaserRunView{
		Phase:      p.phase,
		GridSize:   laserGridSize,
		Position:   p.pos,
		Goal:       laserGoal,
		Lasers:     append([]Point(nil), p.order...),
		Moves:      p.moves,
		Multiplier: p.Multiplier(),
		Outcome:    p.outcome,
	}
}
