package stroke_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(0, 0).UTC()

func sampleAt(offset time.Duration, distance float64, state telemetry.StrokeState, count int) telemetry.Sample {
	return telemetry.Sample{
		Timestamp:   t0.Add(offset),
		Distance:    distance,
		StrokeRate:  24,
		Pace:        120,
		Power:       200,
		StrokeState: state,
		StrokeCount: count,
	}
}

func TestFirstSampleSeedsWindow(t *testing.T) {
	e := stroke.NewExtractor()

	_, closed, err := e.Observe(sampleAt(0, 0, telemetry.StrokeDrive, 0))
	require.NoError(t, err)
	assert.False(t, closed, "the first sample must never close a stroke")
	assert.Zero(t, e.Count())
}

func TestBoundaryOnRecoveryToDrive(t *testing.T) {
	e := stroke.NewExtractor()

	samples := []telemetry.Sample{
		sampleAt(0, 0, telemetry.StrokeDrive, 0),
		sampleAt(500*time.Millisecond, 4, telemetry.StrokeDrive, 0),
		sampleAt(time.Second, 7, telemetry.StrokeRecovery, 0),
		sampleAt(1500*time.Millisecond, 9, telemetry.StrokeRecovery, 0),
	}
	for _, s := range samples {
		_, closed, err := e.Observe(s)
		require.NoError(t, err)
		require.False(t, closed)
	}

	st, closed, err := e.Observe(sampleAt(2*time.Second, 10, telemetry.StrokeDrive, 1))
	require.NoError(t, err)
	require.True(t, closed, "recovery to drive transition must close the stroke")

	assert.Equal(t, 1, st.Index)
	assert.Equal(t, t0, st.StartTime)
	assert.Equal(t, t0.Add(2*time.Second), st.EndTime)
	assert.Equal(t, 2*time.Second, st.Duration)
	assert.InDelta(t, 10, st.Distance, 0.0001)
	assert.InDelta(t, 10, st.Length, 0.0001)
	assert.InDelta(t, 200, st.AvgPower, 0.0001)
	assert.InDelta(t, 120, st.AvgPace, 0.0001)
}

func TestBoundaryOnStrokeCountIncrement(t *testing.T) {
	e := stroke.NewExtractor()

	// No stroke state reported; fall back to the cumulative stroke count
	_, closed, err := e.Observe(sampleAt(0, 0, telemetry.StrokeUnknown, 5))
	require.NoError(t, err)
	require.False(t, closed)

	_, closed, err = e.Observe(sampleAt(time.Second, 6, telemetry.StrokeUnknown, 5))
	require.NoError(t, err)
	require.False(t, closed)

	st, closed, err := e.Observe(sampleAt(2*time.Second, 11, telemetry.StrokeUnknown, 6))
	require.NoError(t, err)
	require.True(t, closed)
	assert.InDelta(t, 11, st.Length, 0.0001)
	assert.Equal(t, 2*time.Second, st.Duration)
}

func TestInvalidSampleRejected(t *testing.T) {
	e := stroke.NewExtractor()

	_, _, err := e.Observe(sampleAt(time.Second, 10, telemetry.StrokeDrive, 1))
	require.NoError(t, err)

	// Decreasing distance
	_, closed, err := e.Observe(sampleAt(2*time.Second, 5, telemetry.StrokeRecovery, 1))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, stroke.ErrInvalidSample))
	assert.False(t, closed)

	// Non-increasing timestamp
	_, _, err = e.Observe(sampleAt(time.Second, 12, telemetry.StrokeRecovery, 1))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, stroke.ErrInvalidSample))

	// A valid successor still closes against the last accepted sample
	_, closed, err = e.Observe(sampleAt(3*time.Second, 12, telemetry.StrokeRecovery, 1))
	require.NoError(t, err)
	require.False(t, closed)

	st, closed, err := e.Observe(sampleAt(4*time.Second, 14, telemetry.StrokeDrive, 2))
	require.NoError(t, err)
	require.True(t, closed)
	assert.Equal(t, 1, st.Index)
	assert.InDelta(t, 4, st.Length, 0.0001, "rejected samples must not contribute to stroke length")
}

func TestFinishDiscardsPartialStroke(t *testing.T) {
	e := stroke.NewExtractor()

	_, _, err := e.Observe(sampleAt(0, 0, telemetry.StrokeDrive, 0))
	require.NoError(t, err)
	_, _, err = e.Observe(sampleAt(time.Second, 5, telemetry.StrokeRecovery, 0))
	require.NoError(t, err)

	e.Finish()
	assert.Zero(t, e.Count(), "a partial stroke is discarded, not emitted truncated")
}

func TestStrokeSequenceContiguous(t *testing.T) {
	e := stroke.NewExtractor()

	var strokes []stroke.Stroke
	for i := 0; i <= 40; i++ {
		s := sampleAt(time.Duration(i)*500*time.Millisecond, float64(i), telemetry.StrokeUnknown, i/4)
		st, closed, err := e.Observe(s)
		require.NoError(t, err)
		if closed {
			strokes = append(strokes, st)
		}
	}

	require.NotEmpty(t, strokes)
	for i, st := range strokes {
		assert.Equal(t, i+1, st.Index, "indices must be contiguous")
		if i > 0 {
			prev := strokes[i-1]
			assert.Equal(t, prev.EndTime, st.StartTime, "strokes must tile the timeline")
			assert.True(t, st.EndTime.After(st.StartTime))
		}
	}
}
