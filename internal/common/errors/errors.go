package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// 4xx Client Errors
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeNonceNotFound    = "NONCE_NOT_FOUND"

	// Login lifecycle
	CodeLoginCanceled         = "LOGIN_CANCELED"
	CodeNoAccountsFound       = "NO_ACCOUNTS_FOUND"
	CodeNotLoggedIn           = "NOT_LOGGED_IN"
	CodeWalletAddressMismatch = "WALLET_ADDRESS_MISMATCH"
	CodeSignatureDeclined     = "SIGNATURE_DECLINED"
	CodeUnknownWallet         = "UNKNOWN_WALLET"

	// 5xx Server Errors
	CodeInternal   = "INTERNAL_ERROR"
	CodeDBError    = "DB_ERROR"
	CodeRedisError = "REDIS_ERROR"
	CodeChainError = "CHAIN_ERROR"
	CodeBackend    = "BACKEND_ERROR"
)

// Sentinels for errors.Is checks. AppError.Is matches on Code, so
// constructors below produce values that compare equal to these.
var (
	ErrLoginCanceled         = LoginCanceled()
	ErrNoAccountsFound       = NoAccountsFound()
	ErrNotLoggedIn           = NotLoggedIn()
	ErrWalletAddressMismatch = &AppError{Code: CodeWalletAddressMismatch, Message: "Wallet address mismatch", StatusCode: http.StatusConflict}
	ErrSignatureDeclined     = SignatureDeclined()
	ErrUnknownWallet         = &AppError{Code: CodeUnknownWallet, Message: "Unknown wallet", StatusCode: http.StatusBadRequest}
	ErrNonceNotFound         = NonceNotFound()
	ErrInvalidSignature      = InvalidSignature()
	ErrUnauthorized          = &AppError{Code: CodeUnauthorized, Message: "Unauthorized", StatusCode: http.StatusUnauthorized}
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Error constructors

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func InvalidSignature() *AppError {
	return &AppError{
		Code:       CodeInvalidSignature,
		Message:    "Signature verification failed",
		StatusCode: http.StatusUnauthorized,
	}
}

func NonceNotFound() *AppError {
	return &AppError{
		Code:       CodeNonceNotFound,
		Message:    "No pending nonce for wallet address",
		StatusCode: http.StatusBadRequest,
	}
}

func LoginCanceled() *AppError {
	return &AppError{
		Code:       CodeLoginCanceled,
		Message:    "Login canceled by user",
		StatusCode: http.StatusBadRequest,
	}
}

func NoAccountsFound() *AppError {
	return &AppError{
		Code:       CodeNoAccountsFound,
		Message:    "No accounts found",
		StatusCode: http.StatusBadRequest,
	}
}

func NotLoggedIn() *AppError {
	return &AppError{
		Code:       CodeNotLoggedIn,
		Message:    "Not logged in",
		StatusCode: http.StatusUnauthorized,
	}
}

func WalletAddressMismatch(connected, loggedIn string) *AppError {
	return &AppError{
		Code:       CodeWalletAddressMismatch,
		Message:    "Wallet address mismatch",
		StatusCode: http.StatusConflict,
		Details: map[string]any{
			"connected": connected,
			"logged_in": loggedIn,
		},
	}
}

func SignatureDeclined() *AppError {
	return &AppError{
		Code:       CodeSignatureDeclined,
		Message:    "Signature request declined",
		StatusCode: http.StatusBadRequest,
	}
}

func UnknownWallet(walletID string) *AppError {
	return &AppError{
		Code:       CodeUnknownWallet,
		Message:    fmt.Sprintf("Unknown wallet %q", walletID),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]any{"wallet_id": walletID},
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func DBError(err error) *AppError {
	return &AppError{
		Code:       CodeDBError,
		Message:    "Database error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func RedisError(err error) *AppError {
	return &AppError{
		Code:       CodeRedisError,
		Message:    "Redis error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func ChainError(message string) *AppError {
	return &AppError{
		Code:       CodeChainError,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// Backend wraps an error body returned by the backend function-call API.
func Backend(code, message string, statusCode int) *AppError {
	if code == "" {
		code = CodeBackend
	}
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// AsAppError extracts an AppError from err's chain if present
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
