package games

import (
	"strings"

	"github.com/MJE43/neon-arcade/internal/engine"
)

type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

func (c Card) String() string { return c.Suit + c.Rank }

const (
	suits = "♦♥♠♣"
	ranks = "2 3 4 5 6 7 8 9 10 J Q K A"
)

// newDeck returns a fresh 52-card deck, rank by rank.
func newDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, rank := range strings.Fields(ranks) {
		for _, suit := range suits {
			deck = append(deck, Card{Rank: rank, Suit: string(suit)})
		}
	}
	return deck
}

// shuffleDeck is Fisher-Yates and takes len(deck)-1 draws.
func shuffleDeck(deck []Card, src engine.Source) {
	for i := len(deck) - 1; i > 0; i-- {
		j := engine.Intn(src, i+1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}

// blackjackCardValue counts an ace as 11; blackjackHandValue softens it.
func blackjackCardValue(rank string) int {
	switch {
	case rank == "A":
		return 11
	case len(rank) == 2 || strings.ContainsAny(rank, "JQK"):
		return 10
	case len(rank) == 1 && rank[0] >= '2' && rank[0] <= '9':
		return int(rank[0] - '0')
	}
	return 0
}

func blackjackHandValue(cards []Card) int {
	total, soft := 0, 0
	for _, c := range cards {
		v := blackjackCardValue(c.Rank)
		total += v
		if v == 11 {
			soft++
		}
	}
	for ; total > 21 && soft > 0; soft-- {
		total -= 10
	}
	return total
}
