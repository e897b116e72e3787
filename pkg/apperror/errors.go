package apperror

import (
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that branch on error class
// rather than on individual codes.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindAuthorization  Kind = "AUTHORIZATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindStateConflict  Kind = "STATE_CONFLICT"
	KindGateway        Kind = "GATEWAY"
	KindDuplicateEvent Kind = "DUPLICATE_EVENT" // internal-only, never surfaced
	KindInternal       Kind = "INTERNAL"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Retryable  bool   `json:"-"` // Gateway errors only: transient vs permanent
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Amount must be positive", http.StatusBadRequest)
}

func ErrAmountMismatch() *AppError {
	return New(KindValidation, "VAL_003", "Amount or currency does not match the accepted offer", http.StatusBadRequest)
}

func ErrRefundExceedsBalance() *AppError {
	return New(KindValidation, "VAL_004", "Refund amount exceeds remaining balance", http.StatusBadRequest)
}

// ---- Authorization (AUTHZ) ----

func ErrInvalidToken() *AppError {
	return New(KindAuthorization, "AUTHZ_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden(message string) *AppError {
	return New(KindAuthorization, "AUTHZ_002", message, http.StatusForbidden)
}

func ErrNotParticipant() *AppError {
	return New(KindAuthorization, "AUTHZ_003", "Actor is not a participant of this payment", http.StatusForbidden)
}

func ErrAdminOnly() *AppError {
	return New(KindAuthorization, "AUTHZ_004", "Admin role required", http.StatusForbidden)
}

// ---- Not found (NF) ----

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- State conflicts (STATE) ----

// ErrStateConflict signals that the precondition for a ledger transition no
// longer holds. The caller should reload and retry, or treat it as terminal.
func ErrStateConflict(current, required string) *AppError {
	return New(KindStateConflict, "STATE_001",
		fmt.Sprintf("Payment is %s, transition requires %s", current, required),
		http.StatusConflict)
}

func ErrWorkNotCompleted() *AppError {
	return New(KindStateConflict, "STATE_002", "Job completion has not been confirmed", http.StatusConflict)
}

func ErrWorkAlreadyStarted() *AppError {
	return New(KindStateConflict, "STATE_003", "Cannot cancel after work has started", http.StatusConflict)
}

// ---- Gateway (GW) ----

// ErrGatewayUnavailable wraps a transient gateway failure (timeout, 5xx).
// The ledger is guaranteed unchanged; the caller may retry.
func ErrGatewayUnavailable(err error) *AppError {
	e := Wrap(KindGateway, "GW_001", "Payment gateway temporarily unavailable", http.StatusBadGateway, err)
	e.Retryable = true
	return e
}

// ErrGatewayRejected wraps a permanent gateway rejection (4xx).
func ErrGatewayRejected(err error) *AppError {
	return Wrap(KindGateway, "GW_002", "Payment gateway rejected the request", http.StatusUnprocessableEntity, err)
}

// ---- Webhook events (EVT) ----

// ErrDuplicateEvent is an internal signal that a gateway event id was already
// processed. The webhook handler converts it into a successful no-op response.
func ErrDuplicateEvent(eventID string) *AppError {
	return New(KindDuplicateEvent, "EVT_001",
		fmt.Sprintf("Event %s already processed", eventID),
		http.StatusOK)
}

func ErrInvalidWebhookSignature() *AppError {
	return New(KindAuthorization, "EVT_002", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Rate limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindValidation, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Kind == kind
}
