package scripting

// Statistics tracks one autoplay session. Money fields are float64 because
// they are handed to the script VM as JS numbers.
type Statistics struct {
	Bets     int     `json:"bets"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Pushes   int     `json:"pushes"`
	Wagered  float64 `json:"wagered"`
	Profit   float64 `json:"profit"`
	Balance  float64 `json:"balance"`
	StartBal float64 `json:"startBal"`

	// CurrentStreak counts wins up and losses down; WinStreak and
	// LoseStreak are its two halves.
	CurrentStreak int `json:"currentStreak"`
	WinStreak     int `json:"winStreak"`
	LoseStreak    int `json:"loseStreak"`
	HighestStreak int `json:"highestStreak"`
	LowestStreak  int `json:"lowestStreak"`

	HighestBet    float64 `json:"highestBet"`
	HighestProfit float64 `json:"highestProfit"`
	LowestProfit  float64 `json:"lowestProfit"`
	CurrentProfit float64 `json:"currentProfit"`
}

func NewStatistics(startBalance float64) *Statistics {
	return &Statistics{Balance: startBalance, StartBal: startBalance}
}

// Reset starts a new session from the current balance.
func (s *Statistics) Reset() { *s = *NewStatistics(s.Balance) }

// BetResult is one settled autoplay bet.
type BetResult struct {
	RoundID    string  `json:"roundId"`
	Game       string  `json:"game"`
	Amount     float64 `json:"amount"`
	Payout     float64 `json:"payout"`
	Multiplier float64 `json:"multiplier"`
	Result     string  `json:"result"`
	Win        bool    `json:"win"`
	// Balance after settlement, as reported by the wallet.
	Balance float64 `json:"balance"`
	Outcome any     `json:"outcome,omitempty"`
}

// RecordBet folds a settled bet into the session. A push leaves the
// streak where it was.
func (s *Statistics) RecordBet(r BetResult) {
	s.Bets++
	s.Wagered += r.Amount
	s.Balance = r.Balance
	s.CurrentProfit = r.Payout - r.Amount
	s.Profit += s.CurrentProfit

	switch {
	case r.Win:
		s.Wins++
		s.CurrentStreak = max(s.CurrentStreak, 0) + 1
	case r.Result == "push":
		s.Pushes++
	default:
		s.Losses++
		s.CurrentStreak = min(s.CurrentStreak, 0) - 1
	}
	s.WinStreak = max(s.CurrentStreak, 0)
	s.LoseStreak = max(-s.CurrentStreak, 0)

	s.HighestStreak = max(s.HighestStreak, s.CurrentStreak)
	s.LowestStreak = min(s.LowestStreak, s.CurrentStreak)
	s.HighestBet = max(s.HighestBet, r.Amount)
	s.HighestProfit = max(s.HighestProfit, s.Profit)
	s.LowestProfit = min(s.LowestProfit, s.Profit)
}

// ChartPoint is one sample of the profit curve.
type ChartPoint struct {
	BetNumber int     `json:"x"`
	Profit    float64 `json:"y"`
	Win       bool    `json:"win"`
}

// ChartBuffer samples the profit curve into at most Max points. When it
// fills up it keeps every other point and doubles its stride, so the
// samples always span the whole session.
type ChartBuffer struct {
	Points []ChartPoint
	Max    int

	stride int
	seen   int
	latest *ChartPoint
}

func NewChartBuffer(max int) *ChartBuffer {
	if max < 2 {
		max = 50
	}
	return &ChartBuffer{Points: make([]ChartPoint, 0, max+1), Max: max, stride: 1}
}

func (cb *ChartBuffer) Push(p ChartPoint) {
	cb.latest = &p
	cb.seen++
	if (cb.seen-1)%cb.stride != 0 {
		return
	}
	cb.Points = append(cb.Points, p)
	if len(cb.Points) <= cb.Max {
		return
	}
	kept := cb.Points[:0]
	for i := 0; i < len(cb.Points); i += 2 {
		kept = append(kept, cb.Points[i])
	}
	cb.Points = kept
	cb.stride *= 2
}

// Snapshot copies the samples and appends the newest point if the stride
// skipped it.
func (cb *ChartBuffer) Snapshot() []ChartPoint {
	out := make([]ChartPoint, len(cb.Points), len(cb.Points)+1)
	copy(out, cb.Points)
	if cb.latest != nil && (len(out) == 0 || out[len(out)-1].BetNumber != cb.latest.BetNumber) {
		out = append(out, *cb.latest)
	}
	return out
}

func (cb *ChartBuffer) Reset() {
	cb.Points = cb.Points[:0]
	cb.stride, cb.seen, cb.latest = 1, 0, nil
}
