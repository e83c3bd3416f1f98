package games

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// quietGemBoard has no runs: neighbours differ by 2 across a row and by 1
// down a column.
func quietGemBoard() *gemPlay {
	p := &gemPlay{moves: gemMoves, mult: 1, phase: PhaseActive}
	for r := range p.grid {
		for c := range p.grid[r] {
			p.grid[r][c] = (r + 2*c) % len(gemTypes)
		}
	}
	return p
}

func swap(r1, c1, r2, c2 int) Action {
	return Action{Type: "swap", Args: map[string]any{"r1": r1, "c1": c1, "r2": r2, "c2": c2}}
}

// gemDraw is the draw that makes Intn pick gem type k.
func gemDraw(k int) float64 {
	return (float64(k) + 0.5) / float64(len(gemTypes))
}

func assertQuiet(t interface{ Fatalf(string, ...any) }, grid *gemGrid) {
	for r := range grid {
		for c := range grid[r] {
			if m := findGemMatches(grid, r, c); m != nil {
				t.Fatalf("unexpected run through (%d,%d): %v", r, c, m)
			}
		}
	}
}

func TestGemBreakerInitialBoardIsQuiet(t *testing.T) {
	game := &GemBreakerGame{}
	rapid.Check(t, func(rt *rapid.T) {
		src := engine.NewSeededSource(rapid.Uint64().Draw(rt, "s1"), rapid.Uint64().Draw(rt, "s2"))
		play, err := game.Start(nil, src)
		if err != nil {
			rt.Fatal(err)
		}
		p := play.(*gemPlay)
		assertQuiet(rt, &p.grid)
		if p.moves != gemMoves || p.phase != PhaseActive {
			rt.Fatalf("unexpected start state: moves %d phase %s", p.moves, p.phase)
		}
	})
}

// A swap that lines nothing up is reverted in full.
func TestGemBreakerRejectedSwapRestoresGrid(t *testing.T) {
	game := &GemBreakerGame{}
	rapid.Check(t, func(rt *rapid.T) {
		play, _ := game.Start(nil, engine.NewSeededSource(rapid.Uint64().Draw(rt, "seed"), 1))
		p := play.(*gemPlay)
		r := rapid.IntRange(0, gemGridSize-1).Draw(rt, "r")
		c := rapid.IntRange(0, gemGridSize-2).Draw(rt, "c")
		r1, c1, r2, c2 := r, c, r, c+1
		if rapid.Bool().Draw(rt, "vertical") {
			r1, c1, r2, c2 = c, r, c+1, r
		}

		before := p.grid
		err := p.Apply(swap(r1, c1, r2, c2), nil)
		if errors.Is(err, ErrNoMatch) {
			if p.grid != before {
				rt.Fatal("rejected swap changed the grid")
			}
			if p.phase != PhaseActive || p.moves != gemMoves {
				rt.Fatal("rejected swap changed the round")
			}
			return
		}
		if err != nil {
			rt.Fatal(err)
		}
		if p.phase != PhaseCascading {
			rt.Fatalf("expected cascading after a match, got %s", p.phase)
		}
	})
}

func TestGemBreakerSwapValidation(t *testing.T) {
	p := quietGemBoard()
	before := p.grid
	for _, a := range []Action{
		swap(0, 0, 0, 2),
		swap(0, 0, 1, 1),
		swap(0, 7, 0, 8),
		swap(3, 3, 3, 4),
		{Type: "swap"},
		{Type: TransitionCascade.Name},
	} {
		if err := p.Apply(a, nil); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s %v: expected ErrInvalidTransition, got %v", a.Type, a.Args, err)
		}
	}
	if p.grid != before {
		t.Error("rejected actions changed the grid")
	}
}

func TestGemBreakerMatchAndCascade(t *testing.T) {
	p := quietGemBoard()
	p.grid[0][0], p.grid[0][1] = 5, 5
	assertQuiet(t, &p.grid)

	if err := p.Apply(swap(0, 2, 1, 2), nil); err != nil {
		t.Fatal(err)
	}
	if tr, ok := p.Pending(); !ok || tr != TransitionCascade {
		t.Fatalf("expected pending cascade, got %+v %v", tr, ok)
	}
	if err := p.Apply(Action{Type: "swap"}, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("swap while cascading: expected ErrInvalidTransition, got %v", err)
	}

	// the three topaz score 4 each; the refilled top row stays quiet
	src := engine.NewSliceSource(gemDraw(3), gemDraw(1), gemDraw(3))
	if err := p.Apply(Action{Type: TransitionCascade.Name}, src); err != nil {
		t.Fatal(err)
	}
	if src.Used() != 3 {
		t.Errorf("expected 3 refill draws, got %d", src.Used())
	}
	if p.score != 12 || p.mult != 1 {
		t.Errorf("expected score 12 at 1x, got %v at %v", p.score, p.mult)
	}
	if p.phase != PhaseActive || p.moves != gemMoves-1 {
		t.Errorf("expected active with %d moves, got %s with %d", gemMoves-1, p.phase, p.moves)
	}
	assertQuiet(t, &p.grid)
}

func TestGemBreakerScoring(t *testing.T) {
	t.Run("big first match", func(t *testing.T) {
		p := quietGemBoard()
		for c := 0; c < 5; c++ {
			p.matched[7][c] = true
		}
		p.first = true
		p.phase = PhaseCascading
		want := 0.0
		for c := 0; c < 5; c++ {
			want += gemTypes[p.grid[7][c]].Value
		}
		_ = p.cascade(engine.NewSeededSource(1, 1))
		if p.score != want || p.mult != 1+gemBigMatchBonus {
			t.Errorf("expected %v at %v, got %v at %v", want, 1+gemBigMatchBonus, p.score, p.mult)
		}
	})

	t.Run("chained pass", func(t *testing.T) {
		p := quietGemBoard()
		for c := 0; c < 3; c++ {
			p.matched[7][c] = true
		}
		p.phase = PhaseCascading
		want := 0.0
		for c := 0; c < 3; c++ {
			want += gemTypes[p.grid[7][c]].Value
		}
		_ = p.cascade(engine.NewSeededSource(1, 1))
		if p.score != want*gemCascadePoints || p.mult != 1+gemCascadeBonus {
			t.Errorf("expected %v at %v, got %v at %v", want*gemCascadePoints, 1+gemCascadeBonus, p.score, p.mult)
		}
	})

	t.Run("multiplier cap", func(t *testing.T) {
		p := quietGemBoard()
		p.mult = gemMaxMultiplier
		p.matched[7][0] = true
		p.phase = PhaseCascading
		_ = p.cascade(engine.NewSeededSource(1, 1))
		if p.mult != gemMaxMultiplier {
			t.Errorf("expected multiplier capped at %v, got %v", float64(gemMaxMultiplier), p.mult)
		}
	})
}

func TestGemBreakerLastMoveSettles(t *testing.T) {
	p := quietGemBoard()
	p.grid[0][0], p.grid[0][1] = 5, 5
	p.moves = 1
	_ = p.Apply(swap(0, 2, 1, 2), nil)
	_ = p.Apply(Action{Type: TransitionCascade.Name}, engine.NewSliceSource(gemDraw(3), gemDraw(1), gemDraw(3)))
	if p.Phase() != PhaseSettled {
		t.Fatalf("expected settled after the last move, got %s", p.Phase())
	}
	res, _ := p.Resolve(decimal.NewFromInt(100))
	if !res.Payout.Equal(decimal.NewFromInt(12)) {
		t.Errorf("expected payout 12, got %s", res.Payout)
	}
	if err := p.Apply(swap(3, 3, 3, 4), nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("swap after settlement: expected ErrInvalidTransition, got %v", err)
	}
}

func TestGemBreakerForfeitFinishesCascade(t *testing.T) {
	p := quietGemBoard()
	p.grid[0][0], p.grid[0][1] = 5, 5
	_ = p.Apply(swap(0, 2, 1, 2), nil)
	if err := p.Forfeit(engine.NewSliceSource(gemDraw(3), gemDraw(1), gemDraw(3))); err != nil {
		t.Fatal(err)
	}
	if p.Phase() != PhaseSettled || p.score != 12 {
		t.Errorf("expected settled with score 12, got %s with %v", p.Phase(), p.score)
	}
}

func TestGemBreakerNoScorePaysNothing(t *testing.T) {
	p := quietGemBoard()
	_ = p.Forfeit(nil)
	res, _ := p.Resolve(decimal.NewFromInt(10))
	if !res.Payout.IsZero() || res.Result != ResultLose {
		t.Errorf("expected zero payout, got %+v", res)
	}
}
