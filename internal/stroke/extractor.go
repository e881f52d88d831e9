// Package stroke segments the raw sample stream into discrete stroke
// events as samples arrive. A stroke boundary is the recovery to drive
// transition when the source reports stroke states, or an increment of
// the source-reported cumulative stroke count otherwise.
package stroke

import (
	"time"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/telemetry"
)

// Stroke is one complete drive+recovery cycle, derived from the run of
// samples between two boundaries. Length is meters covered per stroke,
// the metric the vendor display does not expose.
type Stroke struct {
	Index         int // 1-based, contiguous
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	Distance      float64
	Length        float64
	AvgPower      float64
	AvgPace       float64
	AvgStrokeRate float64
}

// Extractor consumes samples one at a time and emits a Stroke whenever a
// boundary closes one. It keeps only the current run of samples; closed
// strokes are the caller's to store.
type Extractor struct {
	seeded bool
	last   telemetry.Sample
	run    []telemetry.Sample
	count  int
}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Observe feeds the next sample. It returns the closed Stroke and true
// when the sample completes one. Samples with decreasing distance or a
// non-increasing timestamp are rejected with ErrInvalidSample and leave
// the window untouched; the caller still stores them for audit.
func (e *Extractor) Observe(s telemetry.Sample) (Stroke, bool, error) {
	if !e.seeded {
		// The first sample only seeds the window
		e.seeded = true
		e.last = s
		e.run = append(e.run[:0], s)
		return Stroke{}, false, nil
	}

	if err := e.validate(s); err != nil {
		return Stroke{}, false, err
	}

	boundary := e.isBoundary(s)
	if !boundary {
		e.run = append(e.run, s)
		e.last = s
		return Stroke{}, false, nil
	}

	closed := e.close(s)
	e.run = append(e.run[:0], s)
	e.last = s
	return closed, true, nil
}

// Finish discards the in-progress partial stroke. A session stopped
// mid-stroke never emits a truncated stroke.
func (e *Extractor) Finish() {
	e.run = e.run[:0]
	e.seeded = false
	e.last = telemetry.Sample{}
}

// Count returns the number of strokes emitted so far.
func (e *Extractor) Count() int {
	return e.count
}

func (e *Extractor) validate(s telemetry.Sample) error {
	errFactory := errors.New()
	if !s.Timestamp.After(e.last.Timestamp) {
		return errFactory.WithData(ErrInvalidSample, "non-increasing timestamp")
	}
	if s.Distance < e.last.Distance {
		return errFactory.WithData(ErrInvalidSample, "decreasing distance")
	}
	return nil
}

func (e *Extractor) isBoundary(s telemetry.Sample) bool {
	if e.last.StrokeState != telemetry.StrokeUnknown && s.StrokeState != telemetry.StrokeUnknown {
		return e.last.StrokeState == telemetry.StrokeRecovery && s.StrokeState == telemetry.StrokeDrive
	}
	return s.StrokeCount > e.last.StrokeCount
}

func (e *Extractor) close(boundary telemetry.Sample) Stroke {
	start := e.run[0]
	span := append(append([]telemetry.Sample(nil), e.run...), boundary)

	var power, pace, rate float64
	for _, sample := range span {
		power += sample.Power
		pace += sample.Pace
		rate += sample.StrokeRate
	}
	n := float64(len(span))

	e.count++
	distance := boundary.Distance - start.Distance
	return Stroke{
		Index:         e.count,
		StartTime:     start.Timestamp,
		EndTime:       boundary.Timestamp,
		Duration:      boundary.Timestamp.Sub(start.Timestamp),
		Distance:      distance,
		Length:        distance,
		AvgPower:      power / n,
		AvgPace:       pace / n,
		AvgStrokeRate: rate / n,
	}
}
