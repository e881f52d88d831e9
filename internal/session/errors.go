package session

import "codeberg.org/mutker/ergmon/internal/errors"

const (
	// State machine misuse
	ErrAlreadyRecording = errors.ErrorCode("session_already_recording")
	ErrNotRecording     = errors.ErrorCode("session_not_recording")
	ErrNotStopped       = errors.ErrorCode("session_not_stopped")
	ErrFinished         = errors.ErrorCode("session_already_finished")

	// Lifecycle errors
	ErrSourceRequired      = errors.ErrorCode("session_source_required")
	ErrSummaryNotAvailable = errors.ErrorCode("session_summary_not_available")
)
