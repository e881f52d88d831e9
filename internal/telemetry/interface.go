package telemetry

import (
	"context"
	"time"
)

// SourceKind identifies where samples originate.
type SourceKind string

const (
	SourceLive      SourceKind = "live"
	SourceSimulated SourceKind = "simulated"
)

// StrokeState is the drive/recovery flag reported by the monitor, when
// the source provides it.
type StrokeState int8

const (
	StrokeUnknown StrokeState = iota
	StrokeDrive
	StrokeRecovery
)

func (s StrokeState) String() string {
	switch s {
	case StrokeDrive:
		return "drive"
	case StrokeRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Sample is a snapshot of machine state at one poll instant. Timestamps
// carry millisecond resolution; within one session they are non-decreasing,
// as is distance.
type Sample struct {
	Timestamp   time.Time
	Distance    float64 // meters, cumulative
	StrokeRate  float64 // strokes/min, source-reported
	Pace        float64 // seconds per 500m, source-reported
	Power       float64 // watts
	Calories    float64
	HeartRate   int
	StrokeState StrokeState
	StrokeCount int // cumulative, source-reported
}

// Source produces samples on demand. Both the live monitor and the
// simulator implement it; callers never distinguish them beyond Kind.
type Source interface {
	// Poll returns the latest available reading. It blocks no longer
	// than the source's configured timeout or ctx, whichever is shorter.
	Poll(ctx context.Context) (Sample, error)

	IsAvailable() bool
	Kind() SourceKind
	Close() error
}

// Transport is the seam to the physical monitor connection. The USB/CSAFE
// binding lives outside this module and registers itself via
// RegisterTransport.
type Transport interface {
	ReadSample() (Sample, error)
	Connected() bool
	Close() error
}
