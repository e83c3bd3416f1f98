package games

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// intParam decodes an integer param. JSON numbers arrive as float64.
func intParam(params map[string]any, key string, def int) (int, error) {
	if params == nil {
		return def, nil
	}
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Mod(v, 1) != 0 {
			return 0, invalidParams("%s must be an integer, got %v", key, v)
		}
		return int(v), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, invalidParams("invalid %s value %q", key, v)
		}
		return parsed, nil
	default:
		return 0, invalidParams("unsupported type for %s: %T", key, raw)
	}
}

func intParamIn(params map[string]any, key string, def, lo, hi int) (int, error) {
	n, err := intParam(params, key, def)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, invalidParams("%s must be between %d and %d, got %d", key, lo, hi, n)
	}
	return n, nil
}

// choiceParam decodes a lower-cased string that must be one of allowed.
func choiceParam(params map[string]any, key, def string, allowed ...string) (string, error) {
	if params == nil {
		return def, nil
	}
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidParams("unsupported type for %s: %T", key, raw)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", invalidParams("invalid %s: %s", key, s)
}

var riskLevels = []string{"low", "medium", "high"}

// payoutFor converts a multiplier into a credited amount.
func payoutFor(bet decimal.Decimal, multiplier float64) decimal.Decimal {
	if multiplier <= 0 {
		return decimal.Zero
	}
	return bet.Mul(decimal.NewFromFloat(multiplier))
}

func resultFor(multiplier float64) Result {
	switch {
	case multiplier > 1:
		return ResultWin
	case multiplier == 1:
		return ResultPush
	default:
		return ResultLose
	}
}

func settledAt(bet decimal.Decimal, multiplier float64) Resolution {
	return Resolution{
		Payout:     payoutFor(bet, multiplier),
		Multiplier: multiplier,
		Result:     resultFor(multiplier),
		Settled:    true,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
