package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/session"
	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource hands out one sample per poll with strictly increasing
// timestamps and distance, optionally holding each poll for readDelay.
type countingSource struct {
	mu        sync.Mutex
	issued    int
	readDelay time.Duration
	base      time.Time
}

func (c *countingSource) Poll(_ context.Context) (telemetry.Sample, error) {
	if c.readDelay > 0 {
		time.Sleep(c.readDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base.IsZero() {
		c.base = time.Unix(0, 0).UTC()
	}
	c.issued++
	return telemetry.Sample{
		Timestamp:   c.base.Add(time.Duration(c.issued) * time.Second),
		Distance:    float64(c.issued),
		StrokeCount: c.issued / 4,
	}, nil
}

func (*countingSource) IsAvailable() bool          { return true }
func (*countingSource) Kind() telemetry.SourceKind { return telemetry.SourceSimulated }
func (*countingSource) Close() error               { return nil }

// timeoutSource fails every poll with a timeout.
type timeoutSource struct{}

func (*timeoutSource) Poll(_ context.Context) (telemetry.Sample, error) {
	return telemetry.Sample{}, errors.New().New(telemetry.ErrSourceTimeout)
}

func (*timeoutSource) IsAvailable() bool          { return false }
func (*timeoutSource) Kind() telemetry.SourceKind { return telemetry.SourceSimulated }
func (*timeoutSource) Close() error               { return nil }

func newSimulator(t *testing.T, cfg telemetry.SimulatorConfig) telemetry.Source {
	t.Helper()
	src, err := telemetry.NewSimulatedSource(cfg)
	require.NoError(t, err)
	return src
}

func TestStateMachineGuards(t *testing.T) {
	s := session.New(session.Options{PollInterval: time.Millisecond})

	err := s.Stop()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrNotRecording))

	_, err = s.Analyze()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrNotStopped))

	_, err = s.Summary()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrSummaryNotAvailable))

	err = s.Start(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrSourceRequired))
	assert.Equal(t, session.Idle, s.State())

	require.NoError(t, s.Start(newSimulator(t, telemetry.SimulatorConfig{Seed: 1})))
	assert.Equal(t, session.Recording, s.State())

	err = s.Start(newSimulator(t, telemetry.SimulatorConfig{Seed: 2}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrAlreadyRecording))

	require.NoError(t, s.Stop())
	assert.Equal(t, session.Stopped, s.State())

	err = s.Stop()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrNotRecording))

	err = s.Start(newSimulator(t, telemetry.SimulatorConfig{Seed: 3}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrFinished))
}

func TestRecordAnalyzeLifecycle(t *testing.T) {
	var sampleCount atomic.Int64
	s := session.New(session.Options{
		PollInterval: time.Millisecond,
		OnSample: func(telemetry.Sample, *stroke.Stroke) {
			sampleCount.Add(1)
		},
	})

	require.NoError(t, s.Start(newSimulator(t, telemetry.SimulatorConfig{Seed: 42})))
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, telemetry.SourceSimulated, s.SourceKind())
	assert.Nil(t, s.Samples(), "buffers are not readable while recording")

	require.Eventually(t, func() bool { return sampleCount.Load() >= 100 },
		5*time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	samples := s.Samples()
	strokes := s.Strokes()
	require.NotEmpty(t, samples)
	require.NotEmpty(t, strokes)

	for i := 1; i < len(samples); i++ {
		assert.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp))
		assert.GreaterOrEqual(t, samples[i].Distance, samples[i-1].Distance)
	}
	for i, st := range strokes {
		assert.Equal(t, i+1, st.Index)
		if i > 0 {
			assert.Equal(t, strokes[i-1].EndTime, st.StartTime)
		}
	}

	first, err := s.Analyze()
	require.NoError(t, err)
	assert.Equal(t, session.Analyzed, s.State())
	assert.Equal(t, len(strokes), first.StrokeCount)

	got, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second, err := s.Analyze()
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-analyzing must yield identical results")
}

func TestConcurrentStopMidPoll(t *testing.T) {
	src := &countingSource{readDelay: 30 * time.Millisecond}
	s := session.New(session.Options{
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
	})

	require.NoError(t, s.Start(src))
	time.Sleep(100 * time.Millisecond)

	// Stop lands while a poll is almost certainly in flight
	require.NoError(t, s.Stop())

	samples := s.Samples()
	require.NotEmpty(t, samples)
	for i := 1; i < len(samples); i++ {
		assert.InDelta(t, samples[i-1].Distance+1, samples[i].Distance, 0.0001,
			"sample sequence must have no duplicate, missing or out-of-order entries")
	}
}

func TestTimeoutEscalation(t *testing.T) {
	s := session.New(session.Options{
		PollInterval:     time.Millisecond,
		TimeoutThreshold: 3,
	})

	require.NoError(t, s.Start(&timeoutSource{}))
	require.Eventually(t, func() bool { return s.State() == session.Stopped },
		5*time.Second, time.Millisecond,
		"repeated timeouts must escalate to source unavailable and stop the session")

	summary, err := s.Analyze()
	require.NoError(t, err)
	assert.Zero(t, summary.StrokeCount)
	assert.Empty(t, summary.Splits)
}

func TestSourceExhaustionFinalizesWithData(t *testing.T) {
	src := newSimulator(t, telemetry.SimulatorConfig{Seed: 5, TotalDistance: 50})
	s := session.New(session.Options{PollInterval: time.Millisecond})

	require.NoError(t, s.Start(src))
	require.Eventually(t, func() bool { return s.State() == session.Stopped },
		5*time.Second, time.Millisecond)

	require.NotEmpty(t, s.Samples(), "data collected before the source went away is kept")

	summary, err := s.Analyze()
	require.NoError(t, err)
	assert.InDelta(t, 50, summary.TotalDistance, 0.0001)
}

func TestZeroSampleSession(t *testing.T) {
	s := session.New(session.Options{
		PollInterval:     time.Hour, // first tick never fires
		TimeoutThreshold: 100,
	})

	require.NoError(t, s.Start(&timeoutSource{}))
	require.NoError(t, s.Stop())

	summary, err := s.Analyze()
	require.NoError(t, err)
	assert.Zero(t, summary.StrokeCount)
	assert.Zero(t, summary.TotalDistance)
	assert.Empty(t, summary.Splits)
}
