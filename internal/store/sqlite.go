package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/round"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	tableProfileKV = "profile_kv"
	tableEntries   = "ledger_entries"
	tableRounds    = "rounds"

	colProfile   = "profile"
	colKey       = "key"
	colValue     = "value"
	colUpdatedAt = "updated_at"
	colID        = "id"
	colKind      = "kind"
	colAmount    = "amount"
	colBalance   = "balance"
	colRef       = "ref"
	colAt        = "at"
	colGame      = "game"
	colPayout    = "payout"
	colMult      = "multiplier"
	colResult    = "result"
	colStatus    = "status"
	colParams    = "params"
	colOutcome   = "outcome"
	colPlacedAt  = "placed_at"
	colSettledAt = "settled_at"
)

var (
	_ DB             = (*SQLiteDB)(nil)
	_ ledger.Journal = (*SQLiteDB)(nil)
	_ round.Recorder = (*SQLiteDB)(nil)
)

var roundColumns = []string{
	colID, colGame, colAmount, colPayout, colMult, colResult,
	colStatus, colParams, colOutcome, colPlacedAt, colSettledAt,
}

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db      *sql.DB
	profile string
	log     *zap.Logger
	qb      sq.StatementBuilderType
	backoff func() retry.Backoff
}

type Option func(*SQLiteDB)

// WithProfile scopes every key, journal entry and round to the named profile.
func WithProfile(name string) Option { return func(s *SQLiteDB) { s.profile = name } }

func WithLogger(z *zap.Logger) Option { return func(s *SQLiteDB) { s.log = z } }

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(path string, opts ...Option) (*SQLiteDB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteDB{
		db:      db,
		profile: DefaultProfile,
		log:     zap.NewNop(),
		qb:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.WithJitterPercent(20, retry.NewExponential(10*time.Millisecond)))
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded migrations.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	for _, r := range results {
		s.log.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// exec runs a write, retrying while another connection holds the lock.
func (s *SQLiteDB) exec(ctx context.Context, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	attempt := 0
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		_, err := s.db.ExecContext(ctx, query, args...)
		if isBusyError(err) {
			s.log.Debug("database busy, retrying", zap.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		return err
	})
}

// Get returns a profile value.
func (s *SQLiteDB) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := s.qb.Select(colValue).
		From(tableProfileKV).
		Where(sq.Eq{colProfile: s.profile, colKey: key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("failed to build query: %w", err)
	}
	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a profile value.
func (s *SQLiteDB) Set(ctx context.Context, key, value string) error {
	b := s.qb.Insert(tableProfileKV).
		Columns(colProfile, colKey, colValue, colUpdatedAt).
		Values(s.profile, key, value, time.Now().UnixMilli()).
		Suffix("ON CONFLICT(profile, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at")
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteDB) Delete(ctx context.Context, key string) error {
	b := s.qb.Delete(tableProfileKV).Where(sq.Eq{colProfile: s.profile, colKey: key})
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Append journals one ledger mutation.
func (s *SQLiteDB) Append(ctx context.Context, e ledger.Entry) error {
	b := s.qb.Insert(tableEntries).
		Columns(colID, colProfile, colKind, colAmount, colBalance, colRef, colAt).
		Values(e.ID.String(), s.profile, string(e.Kind), e.Amount.String(), e.Balance.String(), e.Ref, e.At.UnixMilli())
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// ListEntries pages the journal, newest first.
func (s *SQLiteDB) ListEntries(ctx context.Context, query EntriesQuery) (*EntriesPage, error) {
	where := sq.And{sq.Eq{colProfile: s.profile}}
	if query.Ref != "" {
		tail := ":" + query.Ref
		where = append(where, sq.Or{
			sq.Eq{colRef: query.Ref},
			sq.Expr("substr("+colRef+", -length(?)) = ?", tail, tail),
		})
	}

	totalCount, err := s.count(ctx, tableEntries, where)
	if err != nil {
		return nil, err
	}
	page, perPage := normalizePage(query.Page, query.PerPage)

	q, args, err := s.qb.Select(colID, colKind, colAmount, colBalance, colRef, colAt).
		From(tableEntries).
		Where(where).
		OrderBy(colAt+" DESC", "rowid DESC").
		Limit(uint64(perPage)).
		Offset(uint64((page - 1) * perPage)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var e ledger.Entry
		var kind string
		var at int64
		if err := rows.Scan(&e.ID, &kind, &e.Amount, &e.Balance, &e.Ref, &at); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Kind = ledger.EntryKind(kind)
		e.At = time.UnixMilli(at).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return &EntriesPage{
		Entries:    entries,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(totalCount, perPage),
	}, nil
}

// RecordRound stores a finished round. Active snapshots are ignored.
func (s *SQLiteDB) RecordRound(ctx context.Context, snap round.Snapshot) error {
	if !snap.Finished() {
		return nil
	}
	params, err := json.Marshal(snap.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	outcome, err := json.Marshal(snap.View)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	payout, result := decimal.Zero, ""
	if snap.Resolution != nil {
		payout, result = snap.Resolution.Payout, string(snap.Resolution.Result)
	}
	settled := snap.UpdatedAt
	if settled.IsZero() {
		settled = time.Now()
	}

	b := s.qb.Insert(tableRounds).
		Columns(append([]string{colProfile}, roundColumns...)...).
		Values(s.profile, snap.ID, snap.GameID, snap.Amount.String(), payout.String(), snap.Multiplier,
			result, string(snap.Status), string(params), string(outcome),
			snap.PlacedAt.UnixMilli(), settled.UnixMilli()).
		Suffix("ON CONFLICT(id) DO NOTHING")
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to record round %s: %w", snap.ID, err)
	}
	return nil
}

// GetRound retrieves a stored round by ID
func (s *SQLiteDB) GetRound(ctx context.Context, id string) (*RoundRecord, error) {
	q, args, err := s.qb.Select(roundColumns...).
		From(tableRounds).
		Where(sq.Eq{colProfile: s.profile, colID: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rec, err := scanRound(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("round %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return rec, nil
}

// ListRounds retrieves rounds with pagination and filtering
func (s *SQLiteDB) ListRounds(ctx context.Context, query RoundsQuery) (*RoundsList, error) {
	where := sq.Eq{colProfile: s.profile}
	if query.Game != "" {
		where[colGame] = query.Game
	}

	totalCount, err := s.count(ctx, tableRounds, where)
	if err != nil {
		return nil, err
	}
	page, perPage := normalizePage(query.Page, query.PerPage)

	q, args, err := s.qb.Select(roundColumns...).
		From(tableRounds).
		Where(where).
		OrderBy(colSettledAt+" DESC", "rowid DESC").
		Limit(uint64(perPage)).
		Offset(uint64((page - 1) * perPage)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []RoundRecord{}
	for rows.Next() {
		rec, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}

	return &RoundsList{
		Rounds:     rounds,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(totalCount, perPage),
	}, nil
}

func (s *SQLiteDB) count(ctx context.Context, table string, where sq.Sqlizer) (int, error) {
	q, args, err := s.qb.Select("COUNT(*)").From(table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to get total count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(row scanner) (*RoundRecord, error) {
	var rec RoundRecord
	var params, outcome string
	var placed, settled int64
	err := row.Scan(&rec.ID, &rec.Game, &rec.Amount, &rec.Payout, &rec.Multiplier, &rec.Result,
		&rec.Status, &params, &outcome, &placed, &settled)
	if err != nil {
		return nil, err
	}
	rec.Params = json.RawMessage(params)
	rec.Outcome = json.RawMessage(outcome)
	rec.PlacedAt = time.UnixMilli(placed).UTC()
	rec.SettledAt = time.UnixMilli(settled).UTC()
	return &rec, nil
}
