package badge

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers of the badge service.
const (
	// ErrCodeUnauthorized indicates a non-owner invoked an owner-only operation.
	ErrCodeUnauthorized = "UNAUTHORIZED"

	// ErrCodeNotEligible indicates the claimant failed the eligibility gate.
	ErrCodeNotEligible = "NOT_ELIGIBLE"

	// ErrCodeAlreadyClaimed indicates the claimant already holds the badge.
	ErrCodeAlreadyClaimed = "ALREADY_CLAIMED"

	// ErrCodeRevoked indicates the claimant is under a revocation lock.
	ErrCodeRevoked = "REVOKED"

	// ErrCodeInvalidSignature indicates the signature does not recover to the
	// claimant over the pledge content.
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"

	// ErrCodeNonTransferable indicates a transfer was attempted.
	ErrCodeNonTransferable = "NON_TRANSFERABLE"

	// ErrCodeNoSuchPledge indicates the badge id was never added.
	ErrCodeNoSuchPledge = "NO_SUCH_PLEDGE"

	// ErrCodeEligibilityCheckFailed indicates the eligibility oracle could not
	// answer. Claims fail closed.
	ErrCodeEligibilityCheckFailed = "ELIGIBILITY_CHECK_FAILED"

	// ErrCodeJournalWriteFailed indicates the operation could not be recorded
	// and was therefore not applied.
	ErrCodeJournalWriteFailed = "JOURNAL_WRITE_FAILED"
)

// Error is a badge service error carrying one of the ErrCode* codes.
type Error struct {
	// Code is one of the ErrCode* values.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a new Error that wraps an underlying error.
func WrapError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinel errors for use with errors.Is.
var (
	ErrUnauthorized           = NewError(ErrCodeUnauthorized, "caller is not the owner")
	ErrNotEligible            = NewError(ErrCodeNotEligible, "account is not eligible")
	ErrAlreadyClaimed         = NewError(ErrCodeAlreadyClaimed, "badge already claimed")
	ErrRevoked                = NewError(ErrCodeRevoked, "badge revoked for account")
	ErrInvalidSignature       = NewError(ErrCodeInvalidSignature, "signature does not match pledge and account")
	ErrNonTransferable        = NewError(ErrCodeNonTransferable, "badges cannot be transferred")
	ErrNoSuchPledge           = NewError(ErrCodeNoSuchPledge, "pledge does not exist")
	ErrEligibilityCheckFailed = NewError(ErrCodeEligibilityCheckFailed, "eligibility check failed")
	ErrJournalWriteFailed     = NewError(ErrCodeJournalWriteFailed, "failed to record operation")
)

// AsError checks if err is an Error and returns it if so.
func AsError(err error) (*Error, bool) {
	var badgeErr *Error
	if errors.As(err, &badgeErr) {
		return badgeErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an Error, or returns empty string.
func GetErrorCode(err error) string {
	if badgeErr, ok := AsError(err); ok {
		return badgeErr.Code
	}
	return ""
}
