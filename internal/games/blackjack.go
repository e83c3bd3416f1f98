package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/engine"
)

// BlackjackGame deals from a single shuffled 52-card deck. The dealer draws
// on the timed dealer_draw transition while below 17.
type BlackjackGame struct{}

const (
	blackjackDealerStand   = 17
	blackjackShuffleDraws  = 51
	blackjackNaturalPayout = 2.5
	blackjackWinPayout     = 2.0
)

// Spec returns metadata about the Blackjack game.
func (g *BlackjackGame) Spec() GameSpec {
	return GameSpec{
		ID:          "blackjack",
		Name:        "Blackjack",
		MetricLabel: "hand",
		Kind:        KindStepwise,
		Actions:     []string{"hit", "stand"},
	}
}

func (g *BlackjackGame) Validate(map[string]any) error { return nil }

// FloatCount is the shuffle; every later card comes off the same deck.
func (g *BlackjackGame) FloatCount(map[string]any) int { return blackjackShuffleDraws }

func (g *BlackjackGame) Start(_ map[string]any, src engine.Source) (Play, error) {
	p := &blackjackPlay{deck: newDeck(), phase: PhasePlayerTurn}
	shuffleDeck(p.deck, src)
	for i := 0; i < 2; i++ {
		p.player = append(p.player, p.pop())
	}
	for i := 0; i < 2; i++ {
		p.dealer = append(p.dealer, p.pop())
	}
	return p, nil
}

// BlackjackOutcome is the table as the player sees it. The dealer's second
// card stays hidden until the player stands.
type BlackjackOutcome struct {
	Phase       Phase   `json:"phase"`
	Player      []Card  `json:"player"`
	Dealer      []Card  `json:"dealer"`
	PlayerScore int     `json:"player_score"`
	DealerScore int     `json:"dealer_score"`
	HoleHidden  bool    `json:"hole_hidden"`
	Outcome     string  `json:"outcome,omitempty"`
	Multiplier  float64 `json:"multiplier"`
}

func (BlackjackOutcome) Game() string { return "blackjack" }

type blackjackPlay struct {
	deck    []Card
	player  []Card
	dealer  []Card
	phase   Phase
	outcome string
	mult    float64
}

func (p *blackjackPlay) pop() Card {
	c := p.deck[len(p.deck)-1]
	p.deck = p.deck[:len(p.deck)-1]
	return c
}

func (p *blackjackPlay) Phase() Phase { return p.phase }

func (p *blackjackPlay) Apply(a Action, _ engine.Source) error {
	switch a.Type {
	case "hit":
		if p.phase != PhasePlayerTurn {
			return invalidTransition(p.phase, a.Type)
		}
		if len(p.deck) == 0 {
			return fmt.Errorf("blackjack deck exhausted")
		}
		p.player = append(p.player, p.pop())
		if blackjackHandValue(p.player) > 21 {
			p.settle("player_bust", 0)
		}
		return nil

	case "stand":
		if p.phase != PhasePlayerTurn {
			return invalidTransition(p.phase, a.Type)
		}
		p.phase = PhaseDealerTurn
		return nil

	case TransitionDealerDraw.Name:
		if p.phase != PhaseDealerTurn {
			return invalidTransition(p.phase, a.Type)
		}
		return p.dealerStep()
	}
	return invalidTransition(p.phase, a.Type)
}

// dealerStep either draws one card (score < 17) or settles the hand.
func (p *blackjackPlay) dealerStep() error {
	dealer := blackjackHandValue(p.dealer)
	if dealer < blackjackDealerStand {
		if len(p.deck) == 0 {
			return fmt.Errorf("blackjack deck exhausted")
		}
		p.dealer = append(p.dealer, p.pop())
		return nil
	}

	player := blackjackHandValue(p.player)
	win := blackjackWinPayout
	if len(p.player) == 2 && player == 21 {
		win = blackjackNaturalPayout
	}
	switch {
	case dealer > 21:
		p.settle("dealer_bust", win)
	case dealer > player:
		p.settle("dealer", 0)
	case dealer < player:
		p.settle("player", win)
	default:
		p.settle("push", 1)
	}
	return nil
}

func (p *blackjackPlay) settle(outcome string, mult float64) {
	p.outcome = outcome
	p.mult = mult
	p.phase = PhaseSettled
}

func (p *blackjackPlay) Pending() (Transition, bool) {
	if p.phase == PhaseDealerTurn {
		return TransitionDealerDraw, true
	}
	return Transition{}, false
}

func (p *blackjackPlay) Multiplier() float64 { return p.mult }

// Forfeit stands and lets the dealer finish the hand.
func (p *blackjackPlay) Forfeit(src engine.Source) error {
	if p.phase == PhasePlayerTurn {
		p.phase = PhaseDealerTurn
	}
	for p.phase == PhaseDealerTurn {
		if err := p.dealerStep(); err != nil {
			return err
		}
	}
	return nil
}

func (p *blackjackPlay) Resolve(bet decimal.Decimal) (Resolution, error) {
	if p.phase != PhaseSettled {
		return Resolution{Multiplier: p.mult}, nil
	}
	res := settledAt(bet, p.mult)
	if p.outcome == "push" {
		res.Result = ResultPush
	}
	return res, nil
}

func (p *blackjackPlay) View() any {
	v := BlackjackOutcome{
		Phase:       p.phase,
		Player:      append([]Card(nil), p.player...),
		PlayerScore: blackjackHandValue(p.player),
		Outcome:     p.outcome,
		Multiplier:  p.mult,
	}
	if p.phase == PhasePlayerTurn {
		v.Dealer = []Card{p.dealer[0]}
		v.DealerScore = blackjackHandValue(v.Dealer)
		v.HoleHidden = true
	} else {
		v.Dealer = append([]Card(nil), p.dealer...)
		v.DealerScore = blackjackHandValue(p.dealer)
	}
	return v
}
