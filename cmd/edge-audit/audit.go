package main

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
	"github.com/MJE43/neon-arcade/internal/games"
)

// row is one game and parameter combination.
type row struct {
	Game      string
	Params    string
	Expected  float64
	Empirical float64 // NaN when not sampled
	Samples   int
}

// Drift is how far the sampled return sits from the analytic one.
func (r row) Drift() float64 {
	if r.Samples == 0 {
		return 0
	}
	return math.Abs(r.Empirical - r.Expected)
}

// audit walks every fixed-odds game's parameter grid. With samples > 0 each
// combination is also played that many times from src.
func audit(reg *games.Registry, only string, samples int, src engine.Source) ([]row, error) {
	var rows []row
	for _, id := range reg.IDs() {
		if only != "" && id != only {
			continue
		}
		g, _ := reg.Get(id)
		a, ok := g.(games.Auditor)
		if !ok {
			continue
		}
		for _, params := range a.ParamGrid() {
			exp, err := a.ExpectedMultiplier(params)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", id, formatParams(params), err)
			}
			r := row{Game: id, Params: formatParams(params), Expected: exp, Empirical: math.NaN()}
			if samples > 0 {
				ig, err := reg.Instant(id)
				if err != nil {
					return nil, err
				}
				emp, err := sample(ig, params, samples, src)
				if err != nil {
					return nil, fmt.Errorf("%s %s: %w", id, r.Params, err)
				}
				r.Empirical, r.Samples = emp, samples
			}
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func sample(g games.Instant, params map[string]any, n int, src engine.Source) (float64, error) {
	stake := decimal.NewFromInt(1)
	total := decimal.Zero
	for i := 0; i < n; i++ {
		o, err := g.Generate(params, src)
		if err != nil {
			return 0, err
		}
		res, err := g.Resolve(o, stake)
		if err != nil {
			return 0, err
		}
		total = total.Add(res.Payout)
	}
	return total.InexactFloat64() / float64(n), nil
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
