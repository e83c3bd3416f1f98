package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// LightCatchGame is a timed session of catching orbs. Each catch scores the
// orb's value times the combo multiplier; a miss drops the combo. When the
// clock runs out the round pays bet × score / 100.
type LightCatchGame struct{}

const (
	orbMinSize = 20
	orbSizeVar = 15
	orbEdges   = 4
	maxOrbs    = 12
)

var orbValues = []int{1, 2, 3, 4, 5}

var orbColors = []string{"blue", "purple", "red", "green", "amber"}

// comboSteps are the combo counts at which the multiplier steps up by one.
var comboSteps = []int{5, 10, 15, 20}

func (g *LightCatchGame) Spec() GameSpec {
	return GameSpec{
		ID:          "lightcatch",
		Name:        "Light Catch",
		MetricLabel: "score",
		Kind:        KindStepwise,
		Actions:     []string{"spawn", "catch", "miss"},
	}
}

func (g *LightCatchGame) Validate(map[string]any) error { return nil }

func (g *LightCatchGame) Start(map[string]any, engine.Source) (Play, error) {
	return &lightPlay{
		orbs:  make(map[int]Orb),
		phase: PhaseActive,
	}, nil
}

// ComboMultiplier is 1 below five straight catches and rises by one at each
// step, up to 5.
func ComboMultiplier(combo int) float64 {
	m := 1
	for _, s := range comboSteps {
		if combo >= s {
			m++
		}
	}
	return float64(m)
}

type Orb struct {
	ID    int     `json:"id"`
	Value int     `json:"value"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
	Speed float64 `json:"speed"`
	Edge  int     `json:"edge"` // 0 top, 1 right, 2 bottom, 3 left
}

type LightCatchView struct {
	Phase      Phase   `json:"phase"`
	Orbs       []Orb   `json:"orbs"`
	Score      float64 `json:"score"`
	Combo      int     `json:"combo"`
	Multiplier float64 `json:"multiplier"`
	Caught     int     `json:"caught"`
	Missed     int     `json:"missed"`
}

func (LightCatchView) Game() string { return "lightcatch" }

type lightPlay struct {
	orbs   map[int]Orb
	nextID int
	score  float64
	combo  int
	caught int
	missed int
	phase  Phase
}

func (p *lightPlay) Phase() Phase { return p.phase }

func (p *lightPlay) Apply(a Action, src engine.Source) error {
	if p.phase != PhaseActive {
		return invalidTransition(p.phase, a.Type)
	}
	switch a.Type {
	case "spawn":
		p.spawn(src)
		return nil

	case "catch", "miss":
		id, err := intParam(a.Args, "orb", -1)
		if err != nil {
			return invalidTransition(p.phase, a.Type)
		}
		orb, ok := p.orbs[id]
		if !ok {
			return invalidTransition(p.phase, a.Type)
		}
		if a.Type == "miss" {
			p.miss(id)
			return nil
		}
		delete(p.orbs, id)
		p.score += float64(orb.Value) * ComboMultiplier(p.combo)
		p.combo++
		p.caught++
		return nil

	case TransitionExpire.Name:
		p.phase = PhaseSettled
		return nil
	}
	return invalidTransition(p.phase, a.Type)
}

func (p *lightPlay) miss(id int) {
	delete(p.orbs, id)
	p.combo = 0
	p.missed++
}

// spawn takes three draws: size, edge, type. At most maxOrbs are on screen;
// a new orb past that pushes the oldest one off as a miss.
func (p *lightPlay) spawn(src engine.Source) Orb {
	if len(p.orbs) >= maxOrbs {
		oldest := p.nextID
		for id := range p.orbs {
			oldest = min(oldest, id)
		}
		p.miss(oldest)
	}
	size := src.Float64()*orbSizeVar + orbMinSize
	edge := engine.Intn(src, orbEdges)
	kind := engine.Intn(src, len(orbValues))
	speed := 5 - size/10
	if speed < 2 {
		speed = 2
	}
	p.nextID++
	orb := Orb{
		ID:    p.nextID,
		Value: orbValues[kind],
		Color: orbColors[kind],
		Size:  size,
		Speed: speed,
		Edge:  edge,
	}
	p.orbs[orb.ID] = orb
	return orb
}

func (p *lightPlay) Pending() (Transition, bool) {
	if p.phase == PhaseActive {
		return TransitionExpire, true
	}
	return Transition{}, false
}

// Multiplier is the effective payout multiplier, score / 100.
func (p *lightPlay) Multiplier() float64 { return p.score / 100 }

func (p *lightPlay) Forfeit(engine.Source) error {
	p.phase = PhaseSettled
	return nil
}

func (p *lightPlay) Resolve(bet decimal.Decimal) (Resolution, error) {
	eff := p.Multiplier()
	if p.phase != PhaseSettled {
		return Resolution{Multiplier: eff}, nil
	}
	payout := decimal.Zero
	if p.score > 0 {
		payout = bet.Mul(decimal.NewFromFloat(p.score)).Div(decimal.NewFromInt(100))
	}
	return Resolution{Payout: payout, Multiplier: eff, Result: resultFor(eff), Settled: true}, nil
}

func (p *lightPlay) View() any {
	v := LightCatchView{
		Phase:      p.phase,
		Orbs:       make([]Orb, 0, len(p.orbs)),
		Score:      p.score,
		Combo:      p.combo,
		Multiplier: ComboMultiplier(p.combo),
		Caught:     p.caught,
		Missed:     p.missed,
	}
	for id := 1; id <= p.nextID; id++ {
		if o, ok := p.orbs[id]; ok {
			v.Orbs = append(v.Orbs, o)
		}
	}
	return v
}
