// Package errors provides the application error type shared by the valuator,
// the alert evaluator and the HTTP layer. Callers import it as apperrors.
package errors

import "net/http"

// AppError is a structured error carrying a stable code, a human-readable
// message, the HTTP status it maps to and an optional internal cause.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so that
// errors.Is matches copies made by Wrap and WithMessage against the sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Holding errors.
var (
	ErrInvalidSymbol = &AppError{Code: "INVALID_SYMBOL", Message: "Symbol is required", StatusCode: http.StatusBadRequest}
	ErrInvalidShares = &AppError{Code: "INVALID_SHARES", Message: "Shares must be a positive number", StatusCode: http.StatusBadRequest}
)

// Alert errors.
var (
	ErrInvalidTargetPrice = &AppError{Code: "INVALID_TARGET_PRICE", Message: "Please enter a valid price", StatusCode: http.StatusBadRequest}
	ErrInvalidAlertType   = &AppError{Code: "INVALID_ALERT_TYPE", Message: "Alert type must be above or below", StatusCode: http.StatusBadRequest}
	ErrAlertDirection     = &AppError{Code: "ALERT_DIRECTION", Message: "Target price is on the wrong side of the current price", StatusCode: http.StatusUnprocessableEntity}
	ErrAlertNotFound      = &AppError{Code: "ALERT_NOT_FOUND", Message: "Alert not found", StatusCode: http.StatusNotFound}
)

// Quote source errors.
var (
	ErrQuoteSource   = &AppError{Code: "QUOTE_SOURCE", Message: "Failed to fetch stock data", StatusCode: http.StatusBadGateway}
	ErrRateLimited   = &AppError{Code: "RATE_LIMITED", Message: "API rate limit exceeded. Please try again later.", StatusCode: http.StatusTooManyRequests}
	ErrNotConfigured = &AppError{Code: "NOT_CONFIGURED", Message: "FINNHUB_API_KEY environment variable is not set", StatusCode: http.StatusServiceUnavailable}
	ErrNoQuoteData   = &AppError{Code: "NO_QUOTE_DATA", Message: "No data available for symbol", StatusCode: http.StatusNotFound}
	ErrStockNotFound = &AppError{Code: "STOCK_NOT_FOUND", Message: "Stock not found", StatusCode: http.StatusNotFound}
)
