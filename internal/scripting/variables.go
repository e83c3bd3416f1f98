package scripting

import (
	"github.com/dop251/goja"
)

// Variables is the script-visible state. Scripts may write nextbet, basebet,
// game, params, stoponwin and sleeptime; everything else is overwritten
// before each dobet() call.
type Variables struct {
	Balance     float64 `json:"balance"`
	NextBet     float64 `json:"nextbet"`
	BaseBet     float64 `json:"basebet"`
	PreviousBet float64 `json:"previousbet"`
	Win         bool    `json:"win"`
	Running     bool    `json:"running"`

	// shared with the engine
	Stats *Statistics `json:"-"`

	Game   string         `json:"game"`
	Params map[string]any `json:"params"`

	LastBet map[string]any `json:"lastBet"`

	StopOnWin bool `json:"stoponwin"`
	SleepTime int  `json:"sleeptime"`
}

// NewVariables starts every session on dice at 1 credit.
func NewVariables(stats *Statistics) *Variables {
	return &Variables{
		Stats:   stats,
		Balance: stats.Balance,
		NextBet: 1,
		BaseBet: 1,
		Game:    "dice",
		Params:  map[string]any{"target": 50},
		LastBet: map[string]any{
			"id":         "",
			"game":       "",
			"amount":     0.0,
			"payout":     0.0,
			"multiplier": 0.0,
			"result":     "",
			"win":        false,
			"outcome":    nil,
		},
	}
}

// injectConstants sets the game IDs a script can bet on.
func injectConstants(vm *goja.Runtime, gameIDs []string) {
	ids := make([]any, len(gameIDs))
	for i, id := range gameIDs {
		ids[i] = id
	}
	vm.Set("GAMES", ids)
	vm.Set("RISK_LOW", "low")
	vm.Set("RISK_MEDIUM", "medium")
	vm.Set("RISK_HIGH", "high")
}

func injectVariables(vm *goja.Runtime, vars *Variables) {
	vm.Set("balance", vars.Balance)
	vm.Set("nextbet", vars.NextBet)
	vm.Set("basebet", vars.BaseBet)
	vm.Set("previousbet", vars.PreviousBet)
	vm.Set("win", vars.Win)
	vm.Set("running", vars.Running)

	vm.Set("bets", vars.Stats.Bets)
	vm.Set("wins", vars.Stats.Wins)
	vm.Set("losses", vars.Stats.Losses)
	vm.Set("winstreak", vars.Stats.WinStreak)
	vm.Set("losestreak", vars.Stats.LoseStreak)
	vm.Set("currentstreak", vars.Stats.CurrentStreak)
	vm.Set("profit", vars.Stats.Profit)
	vm.Set("currentprofit", vars.Stats.CurrentProfit)
	vm.Set("wagered", vars.Stats.Wagered)
	vm.Set("started_bal", vars.Stats.StartBal)

	vm.Set("game", vars.Game)
	params := vm.NewObject()
	for k, v := range vars.Params {
		_ = params.Set(k, v)
	}
	vm.Set("params", params)

	vm.Set("lastBet", vars.LastBet)

	vm.Set("stoponwin", vars.StopOnWin)
	vm.Set("sleeptime", vars.SleepTime)
}

func syncFromVM(vm *goja.Runtime, vars *Variables) {
	vars.NextBet = toFloat64(vm.Get("nextbet"))
	vars.BaseBet = toFloat64(vm.Get("basebet"))
	vars.Game = toString(vm.Get("game"))
	vars.Params = toMap(vm.Get("params"))
	vars.StopOnWin = toBool(vm.Get("stoponwin"))
	vars.SleepTime = toInt(vm.Get("sleeptime"))
}

func isUnset(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func toFloat64(v goja.Value) float64 {
	if isUnset(v) {
		return 0
	}
	return v.ToFloat()
}

func toInt(v goja.Value) int {
	if isUnset(v) {
		return 0
	}
	return int(v.ToInteger())
}

func toBool(v goja.Value) bool {
	if isUnset(v) {
		return false
	}
	return v.ToBoolean()
}

func toString(v goja.Value) string {
	if isUnset(v) {
		return ""
	}
	return v.String()
}

// toMap exports a plain JS object. Anything else yields an empty map.
func toMap(v goja.Value) map[string]any {
	out := map[string]any{}
	if isUnset(v) {
		return out
	}
	if m, ok := v.Export().(map[string]any); ok {
		for k, val := range m {
			out[k] = val
		}
	}
	return out
}
