package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/ledger"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/store"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error message.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps an engine error to its wire type and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ErrTypeInsufficientFunds, http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount):
		return ErrTypeInvalidAmount, http.StatusBadRequest
	case errors.Is(err, games.ErrInvalidParams):
		return ErrTypeInvalidParams, http.StatusBadRequest
	case errors.Is(err, games.ErrInvalidTransition):
		return ErrTypeInvalidTransition, http.StatusConflict
	case errors.Is(err, round.ErrRoundInProgress):
		return ErrTypeRoundInProgress, http.StatusConflict
	case errors.Is(err, round.ErrRoundNotFound), errors.Is(err, store.ErrNotFound):
		return ErrTypeRoundNotFound, http.StatusNotFound
	case errors.Is(err, games.ErrRetryBoundExceeded):
		return ErrTypeRetryBound, http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTypeTimeout, http.StatusGatewayTimeout
	default:
		return ErrTypeInternal, http.StatusInternalServerError
	}
}

// FromError converts an engine error into its wire form for callers outside
// HTTP, such as the desktop bindings.
func FromError(err error) EngineError {
	var engineErr EngineError
	if errors.As(err, &engineErr) {
		return engineErr
	}
	errType, _ := classify(err)
	return NewError(errType, err.Error()).Build()
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	log *zap.Logger
}

func NewErrorHandler(log *zap.Logger) *ErrorHandler {
	return &ErrorHandler{log: log}
}

// HandleError classifies err and writes the matching EngineError.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var engineErr EngineError
	if errors.As(err, &engineErr) {
		status := http.StatusBadRequest
		if GetErrorCategory(engineErr.Type) == CategorySystem {
			status = http.StatusInternalServerError
		}
		eh.write(w, r, status, engineErr)
		return
	}

	errType, status := classify(err)
	engineErr = NewError(errType, err.Error()).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()
	eh.write(w, r, status, engineErr)
}

// HandleValidationError handles malformed requests before they reach the engine.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()
	eh.write(w, r, http.StatusBadRequest, engineErr)
}

func (eh *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request, errType, message string) {
	engineErr := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		Build()
	eh.write(w, r, http.StatusNotFound, engineErr)
}

func (eh *ErrorHandler) write(w http.ResponseWriter, r *http.Request, status int, engineErr EngineError) {
	eh.logError(r, engineErr, status)
	writeErrorResponse(w, status, engineErr)
}

// logError logs client errors at warn and server errors at error.
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	fields := []zap.Field{
		zap.String("type", engineErr.Type),
		zap.String("category", string(GetErrorCategory(engineErr.Type))),
		zap.Int("status", status),
		zap.String("request_id", engineErr.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_ip", r.RemoteAddr),
	}
	if status >= http.StatusInternalServerError {
		eh.log.Error(engineErr.Message, fields...)
		return
	}
	eh.log.Warn(engineErr.Message, fields...)
}

// writeErrorResponse writes the error response as JSON
func writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.log.Error("panic recovered",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.Any("panic", rvr),
					zap.Stack("stack"),
				)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()
				writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
