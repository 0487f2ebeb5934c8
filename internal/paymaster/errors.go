package paymaster

import "errors"

// Error taxonomy for the sponsorship workflow. Everything except
// ErrInvalidRequest and ErrRequestMissing is recoverable: the session stays
// open and the caller may retry.
var (
	// ErrChainUnavailable means no connected RPC client. Reads treat this as
	// "no data yet"; writes are disallowed.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrInvalidRequest is returned by Open for a malformed target address or
	// call data. Rejected before any chain interaction.
	ErrInvalidRequest = errors.New("invalid paymaster request")

	// ErrNotEligible is returned by Confirm while the evaluator reports
	// sponsorship unavailable. No chain interaction occurs.
	ErrNotEligible = errors.New("not eligible for sponsorship")

	// ErrEstimationFailed means the simulated call would revert.
	ErrEstimationFailed = errors.New("fee estimation failed")

	// ErrSubmissionFailed means the sponsored transaction could not be sent.
	ErrSubmissionFailed = errors.New("transaction submission failed")

	// ErrRequestMissing is an internal precondition violation: an operation
	// that needs an open request was called without one.
	ErrRequestMissing = errors.New("no open paymaster request")
)
