package models

import "errors"

// ─── Pipeline error taxonomy ────────────────────────────────────────────
//
// Per-event failures wrap one of these sentinels so the orchestrator can
// classify them with errors.Is without string matching. Quality rejection
// is deliberately NOT an error: it is a recorded verdict on the event.

var (
	// ErrInsufficientData: no usable raw samples exist for the event window.
	// Fatal to the current stage; the event stays at its prior level.
	ErrInsufficientData = errors.New("insufficient data for event window")

	// ErrInsufficientChannels: too few valid spatial cells to form the
	// MUSIC covariance matrix.
	ErrInsufficientChannels = errors.New("insufficient spatial channels")

	// ErrDetectionFailed: numerical failure inside the MUSIC stage
	// (e.g. the eigendecomposition did not converge).
	ErrDetectionFailed = errors.New("signal detection failed")

	// ErrStorage: catalog or array-store I/O failure. The batch continues;
	// the event task is marked failed.
	ErrStorage = errors.New("storage failure")

	// ErrBadTransition: an illegal process-level transition was attempted.
	ErrBadTransition = errors.New("illegal process-level transition")

	// ErrConfig: invalid parameter combination. Aborts a run before any
	// batch work starts.
	ErrConfig = errors.New("invalid configuration")
)
