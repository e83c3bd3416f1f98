package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/scripting"
	"github.com/MJE43/neon-arcade/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidAmount = "invalid_amount"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"

	// Gameplay errors
	ErrTypeInsufficientFunds = "insufficient_funds"
	ErrTypeInvalidTransition = "invalid_transition"
	ErrTypeRoundInProgress   = "round_in_progress"
	ErrTypeRoundNotFound     = "round_not_found"
	ErrTypeGameNotFound      = "game_not_found"
	ErrTypeAutoplay          = "autoplay_error"

	// System errors
	ErrTypeRetryBound         = "retry_bound_exceeded"
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidAmount, ErrTypeInvalidParams, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeInsufficientFunds, ErrTypeInvalidTransition, ErrTypeRoundInProgress,
		ErrTypeRoundNotFound, ErrTypeGameNotFound, ErrTypeAutoplay:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// GamesResponse represents the games metadata response
type GamesResponse struct {
	Games         []games.GameSpec `json:"games"`
	EngineVersion string           `json:"engine_version"`
}

type BalanceResponse struct {
	Balance  decimal.Decimal  `json:"balance"`
	Starting *decimal.Decimal `json:"starting_balance,omitempty"`
}

// PlaceBetRequest is the body of POST /games/{game}/rounds. Amount is a
// decimal string or number.
type PlaceBetRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Params map[string]any  `json:"params,omitempty"`
}

type ActionRequest struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

// RoundResponse carries a live round, or its history record once the
// manager has forgotten it.
type RoundResponse struct {
	Round  *round.Snapshot    `json:"round,omitempty"`
	Record *store.RoundRecord `json:"record,omitempty"`
}

// RoundsResponse lists the active rounds next to a page of history.
type RoundsResponse struct {
	Active  []round.Snapshot  `json:"active"`
	History *store.RoundsList `json:"history,omitempty"`
}

// AutoplayRequest starts a script session.
type AutoplayRequest struct {
	Script string `json:"script"`
}

type AutoplayResponse struct {
	State scripting.EngineSnapshot `json:"state"`
}

// Event is one websocket message.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	EventBalance     = "balance"
	EventRound       = "round"
	EventScriptState = "script_state"
	EventScriptLog   = "script_log"
)
