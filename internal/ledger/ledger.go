// Package ledger owns the player's balance. Debit and credit are the only
// mutations; each one is persisted and journaled before it returns.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// DefaultBalance is the starting balance of a fresh profile.
var DefaultBalance = decimal.NewFromInt(1000)

type EntryKind string

const (
	KindDebit  EntryKind = "debit"
	KindCredit EntryKind = "credit"
	KindReset  EntryKind = "reset"
)

// Entry is one journaled mutation.
type Entry struct {
	ID      uuid.UUID       `json:"id"`
	Kind    EntryKind       `json:"kind"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
	Ref     string          `json:"ref,omitempty"`
	At      time.Time       `json:"at"`
}

// Persister stores the balance snapshot for the profile.
type Persister interface {
	SaveBalance(ctx context.Context, balance decimal.Decimal) error
	ClearBalance(ctx context.Context) error
}

// Journal receives every mutation in order.
type Journal interface {
	Append(ctx context.Context, e Entry) error
}

type Option func(*Ledger)

func WithPersister(p Persister) Option { return func(l *Ledger) { l.persister = p } }
func WithJournal(j Journal) Option     { return func(l *Ledger) { l.journal = j } }
func WithLogger(z *zap.Logger) Option  { return func(l *Ledger) { l.log = z } }

// WithDefault overrides the reset/starting balance.
func WithDefault(d decimal.Decimal) Option { return func(l *Ledger) { l.def = d } }

type Ledger struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	def       decimal.Decimal
	persister Persister
	journal   Journal
	log       *zap.Logger
	now       func() time.Time

	subMu   sync.Mutex
	subs    map[int]chan decimal.Decimal
	nextSub int
}

// New creates a ledger. A nil start means "no persisted snapshot" and the
// default balance is used.
func New(start *decimal.Decimal, opts ...Option) *Ledger {
	l := &Ledger{
		def:  DefaultBalance,
		log:  zap.NewNop(),
		now:  time.Now,
		subs: make(map[int]chan decimal.Decimal),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.balance = l.def
	if start != nil && !start.IsNegative() {
		l.balance = *start
	}
	return l
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) Default() decimal.Decimal { return l.def }

// Debit subtracts amount. Non-positive amounts and amounts above the balance
// are rejected with ErrInsufficientFunds and leave the balance untouched.
func (l *Ledger) Debit(ctx context.Context, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !amount.IsPositive() || amount.GreaterThan(l.balance) {
		return l.balance, fmt.Errorf("debit %s against %s: %w", amount, l.balance, ErrInsufficientFunds)
	}
	l.balance = l.balance.Sub(amount)
	l.commit(ctx, KindDebit, amount, ref)
	return l.balance, nil
}

// Credit adds amount. Non-positive amounts are rejected with ErrInvalidAmount.
func (l *Ledger) Credit(ctx context.Context, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !amount.IsPositive() {
		return l.balance, fmt.Errorf("credit %s: %w", amount, ErrInvalidAmount)
	}
	l.balance = l.balance.Add(amount)
	l.commit(ctx, KindCredit, amount, ref)
	return l.balance, nil
}

// Reset restores the default balance and clears the persisted snapshot.
func (l *Ledger) Reset(ctx context.Context) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = l.def
	if l.persister != nil {
		if err := l.persister.ClearBalance(ctx); err != nil {
			l.log.Error("clear balance snapshot", zap.Error(err))
		}
	}
	l.appendJournal(ctx, KindReset, l.def, "")
	l.publish(l.balance)
	return l.balance
}

// commit runs with l.mu held. Storage failures are logged; the in-memory
// balance stays authoritative and the next mutation rewrites the snapshot.
func (l *Ledger) commit(ctx context.Context, kind EntryKind, amount decimal.Decimal, ref string) {
	if l.persister != nil {
		if err := l.persister.SaveBalance(ctx, l.balance); err != nil {
			l.log.Error("persist balance", zap.String("balance", l.balance.String()), zap.Error(err))
		}
	}
	l.appendJournal(ctx, kind, amount, ref)
	l.publish(l.balance)
}

func (l *Ledger) appendJournal(ctx context.Context, kind EntryKind, amount decimal.Decimal, ref string) {
	if l.journal == nil {
		return
	}
	e := Entry{
		ID:      uuid.New(),
		Kind:    kind,
		Amount:  amount,
		Balance: l.balance,
		Ref:     ref,
		At:      l.now().UTC(),
	}
	if err := l.journal.Append(ctx, e); err != nil {
		l.log.Error("journal ledger entry", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Subscribe returns a channel that receives the balance after every
// mutation. Slow readers only ever see the latest value.
func (l *Ledger) Subscribe() (<-chan decimal.Decimal, func()) {
	ch := make(chan decimal.Decimal, 1)
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.subMu.Unlock()

	cancel := func() {
		l.subMu.Lock()
		if c, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(c)
		}
		l.subMu.Unlock()
	}
	return ch, cancel
}

func (l *Ledger) publish(bal decimal.Decimal) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- bal:
		default:
		}
	}
}
