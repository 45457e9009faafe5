package executor

import "errors"

var (
	// ErrPreflight means the final gas estimate reverted, the opportunity is skipped
	ErrPreflight = errors.New("preflight estimation failed")
	// ErrBroadcast and ErrWaitTimeout fail the attempt and back off the scheduler
	ErrBroadcast   = errors.New("broadcast failed")
	ErrWaitTimeout = errors.New("confirmation wait failed")
	ErrNonce       = errors.New("nonce unavailable")
	ErrReadOnly    = errors.New("signer has no key")
)

// ReasonDecodingFailed is reported when a reverted transaction does not revert on replay
const ReasonDecodingFailed = "reason decoding failed"
