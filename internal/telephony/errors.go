package telephony

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means the user has no telephony identity.
	ErrNotConnected = errors.New("telephony: not connected")
	// ErrRefreshFailed means the provider rejected the refresh token or the
	// refresh timed out. The identity is kept; the user must reconnect.
	ErrRefreshFailed = errors.New("telephony: token refresh failed")
	// ErrUnauthorized means the provider rejected an access token that was
	// valid by the local clock, even after one forced refresh.
	ErrUnauthorized = errors.New("telephony: unauthorized by provider")
	ErrCallFailed   = errors.New("telephony: call failed")
	// ErrInvalidSignature is a webhook HMAC mismatch.
	ErrInvalidSignature = errors.New("telephony: invalid webhook signature")
	ErrInvalidArgument  = errors.New("telephony: invalid argument")
	ErrInvalidState     = errors.New("telephony: invalid oauth state")
)

// CallFailedError carries the provider status of a failed ring-out.
// StatusCode is 0 for transport failures and timeouts.
type CallFailedError struct {
	StatusCode int
	Err        error
}

func (e *CallFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("telephony: call failed: %v", e.Err)
	}
	return fmt.Sprintf("telephony: call failed with status %d", e.StatusCode)
}

func (e *CallFailedError) Is(target error) bool { return target == ErrCallFailed }

func (e *CallFailedError) Unwrap() error { return e.Err }

var (
	errEmptyNumber       = errors.New("phone number is required")
	errUnparseableNumber = errors.New("phone number cannot be normalized")
	errInvalidRecord     = errors.New("invalid call-log record")
)

func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
