package telemetry_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollN(t *testing.T, src telemetry.Source, n int) []telemetry.Sample {
	t.Helper()
	samples := make([]telemetry.Sample, 0, n)
	for i := 0; i < n; i++ {
		sample, err := src.Poll(context.Background())
		require.NoError(t, err)
		samples = append(samples, sample)
	}
	return samples
}

func TestSimulatorDeterminism(t *testing.T) {
	cfg := telemetry.SimulatorConfig{Seed: 1234}

	first, err := telemetry.NewSimulatedSource(cfg)
	require.NoError(t, err)
	second, err := telemetry.NewSimulatedSource(cfg)
	require.NoError(t, err)

	a := pollN(t, first, 200)
	b := pollN(t, second, 200)

	assert.Equal(t, a, b, "same seed and poll count must yield an identical sample sequence")
}

func TestSimulatorDifferentSeeds(t *testing.T) {
	first, err := telemetry.NewSimulatedSource(telemetry.SimulatorConfig{Seed: 1})
	require.NoError(t, err)
	second, err := telemetry.NewSimulatedSource(telemetry.SimulatorConfig{Seed: 2})
	require.NoError(t, err)

	a := pollN(t, first, 50)
	b := pollN(t, second, 50)

	assert.NotEqual(t, a, b)
}

func TestSimulatorMonotonicity(t *testing.T) {
	src, err := telemetry.NewSimulatedSource(telemetry.SimulatorConfig{Seed: 7})
	require.NoError(t, err)

	samples := pollN(t, src, 300)
	for i := 1; i < len(samples); i++ {
		assert.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp),
			"timestamps must increase at sample %d", i)
		assert.GreaterOrEqual(t, samples[i].Distance, samples[i-1].Distance,
			"distance must not decrease at sample %d", i)
		assert.GreaterOrEqual(t, samples[i].StrokeCount, samples[i-1].StrokeCount,
			"stroke count must not decrease at sample %d", i)
	}
}

func TestSimulatorStrokeStates(t *testing.T) {
	src, err := telemetry.NewSimulatedSource(telemetry.SimulatorConfig{Seed: 7})
	require.NoError(t, err)

	samples := pollN(t, src, 300)

	transitions := 0
	for i := 1; i < len(samples); i++ {
		require.NotEqual(t, telemetry.StrokeUnknown, samples[i].StrokeState)
		if samples[i-1].StrokeState == telemetry.StrokeRecovery &&
			samples[i].StrokeState == telemetry.StrokeDrive {
			transitions++
		}
	}
	assert.Positive(t, transitions, "expected recovery to drive transitions")
}

func TestSimulatorFixedDistanceProgram(t *testing.T) {
	src, err := telemetry.NewSimulatedSource(telemetry.SimulatorConfig{
		Seed:          9,
		TotalDistance: 100,
	})
	require.NoError(t, err)

	var last telemetry.Sample
	for {
		sample, err := src.Poll(context.Background())
		if err != nil {
			assert.True(t, errors.HasCode(err, telemetry.ErrSourceUnavailable))
			break
		}
		last = sample
	}

	assert.InDelta(t, 100, last.Distance, 0.0001, "program must end exactly at the configured distance")
	assert.False(t, src.IsAvailable())
}

func TestSimulatorClosed(t *testing.T) {
	src, err := telemetry.NewSimulatedSource(telemetry.SimulatorConfig{Seed: 3})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = src.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrSourceClosed))
	assert.False(t, src.IsAvailable())
}

func TestSimulatorCadence(t *testing.T) {
	src, err := telemetry.NewSimulatedSource(telemetry.SimulatorConfig{
		Seed:           5,
		SampleInterval: 250 * time.Millisecond,
	})
	require.NoError(t, err)

	samples := pollN(t, src, 10)
	for i := 1; i < len(samples); i++ {
		assert.Equal(t, 250*time.Millisecond, samples[i].Timestamp.Sub(samples[i-1].Timestamp))
	}
}
