package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/round"
)

var ErrNotFound = errors.New("not found")

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "default"

// DB represents the database interface
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	Append(ctx context.Context, e ledger.Entry) error
	ListEntries(ctx context.Context, query EntriesQuery) (*EntriesPage, error)

	RecordRound(ctx context.Context, s round.Snapshot) error
	GetRound(ctx context.Context, id string) (*RoundRecord, error)
	ListRounds(ctx context.Context, query RoundsQuery) (*RoundsList, error)
}

// RoundsQuery represents query parameters for listing rounds
type RoundsQuery struct {
	Game    string `json:"game,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// RoundsList represents paginated rounds response
type RoundsList struct {
	Rounds     []RoundRecord `json:"rounds"`
	TotalCount int           `json:"totalCount"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
	TotalPages int           `json:"totalPages"`
}

// EntriesQuery pages the ledger journal, newest first. Ref matches a whole
// reference or the part after its last colon, so a round ID selects its bet,
// payout and refund.
type EntriesQuery struct {
	Ref     string `json:"ref,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

type EntriesPage struct {
	Entries    []ledger.Entry `json:"entries"`
	TotalCount int            `json:"totalCount"`
	Page       int            `json:"page"`
	PerPage    int            `json:"perPage"`
	TotalPages int            `json:"totalPages"`
}

// RoundRecord is a finished round as stored in history.
type RoundRecord struct {
	ID         string          `json:"id"`
	Game       string          `json:"game"`
	Amount     decimal.Decimal `json:"amount"`
	Payout     decimal.Decimal `json:"payout"`
	Multiplier float64         `json:"multiplier"`
	Result     string          `json:"result"`
	Status     string          `json:"status"`
	Params     json.RawMessage `json:"params"`
	Outcome    json.RawMessage `json:"outcome"`
	PlacedAt   time.Time       `json:"placed_at"`
	SettledAt  time.Time       `json:"settled_at"`
}

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

func normalizePage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}

func totalPages(count, perPage int) int {
	return (count + perPage - 1) / perPage
}
