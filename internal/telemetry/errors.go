package telemetry

import "codeberg.org/mutker/ergmon/internal/errors"

const (
	// Source errors
	ErrSourceUnavailable = errors.ErrorCode("telemetry_source_unavailable")
	ErrSourceTimeout     = errors.ErrorCode("telemetry_source_timeout")
	ErrMalformedReading  = errors.ErrorCode("telemetry_malformed_reading")
	ErrSourceClosed      = errors.ErrorCode("telemetry_source_closed")

	// Transport errors
	ErrNoTransport       = errors.ErrorCode("telemetry_no_transport")
	ErrTransportFailed   = errors.ErrorCode("telemetry_transport_failed")

	// Simulator errors
	ErrInvalidSimConfig = errors.ErrorCode("telemetry_invalid_simulator_config")
)
