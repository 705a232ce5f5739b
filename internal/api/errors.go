package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/seedvault"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
	cause     error
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

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause adds the underlying cause error
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	eb.cause = err
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

// classify maps a domain error to an HTTP status and error type.
func classify(err error) (int, string) {
	var ee EngineError
	switch {
	case errors.As(err, &ee):
		return http.StatusBadRequest, ee.Type
	case errors.Is(err, session.ErrInsufficientStake), errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusPaymentRequired, ErrTypeInsufficientFunds
	case errors.Is(err, session.ErrGateClosed):
		return http.StatusTooManyRequests, ErrTypeGateClosed
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, ErrTypeInvalidTransition
	case errors.Is(err, session.ErrUnknownEntry):
		return http.StatusBadRequest, ErrTypeUnknownEntry
	case errors.Is(err, resolver.ErrOutOfRange):
		return http.StatusBadRequest, ErrTypeOutOfRange
	case errors.Is(err, session.ErrInvalidArgument), errors.Is(err, simulate.ErrInvalidRequest),
		errors.Is(err, seedvault.ErrNoAccount):
		return http.StatusBadRequest, ErrTypeInvalidParams
	case errors.Is(err, games.ErrInvalidStake):
		return http.StatusBadRequest, ErrTypeInvalidStake
	case errors.Is(err, simulate.ErrGameNotFound):
		return http.StatusNotFound, ErrTypeGameNotFound
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeSessionNotFound
	case errors.Is(err, session.ErrInvalidConfig):
		return http.StatusInternalServerError, ErrTypeGameEvaluation
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger zerolog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger zerolog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError classifies err and writes the matching response.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, context map[string]interface{}) {
	status, errType := classify(err)
	eb := NewError(errType, err.Error()).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method)
	for k, v := range context {
		eb.WithContext(k, v)
	}
	engineErr := eb.Build()

	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleTyped writes an error of a known type and status.
func (eh *ErrorHandler) HandleTyped(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	engineErr := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)

	ev := eh.logger.Error()
	if status < 500 {
		ev = eh.logger.Warn()
	}
	ev = ev.
		Str("type", engineErr.Type).
		Str("category", string(category)).
		Int("status", status).
		Str("request_id", engineErr.RequestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_ip", r.RemoteAddr)

	for key, value := range engineErr.Context {
		// Never log raw seeds - only hashes
		if key == "server_seed" || key == "client_seed" {
			continue
		}
		ev = ev.Interface(key, value)
	}
	ev.Msg(engineErr.Message)
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Error().Err(err).Msg("failed to encode error response")
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

				eh.logger.Error().
					Str("request_id", requestID).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Interface("panic", rvr).
					Msg("panic recovered")

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
