package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/ergmon/internal/analysis"
	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
)

func testRecord() Record {
	base := time.UnixMilli(1700000000000).UTC()
	rec := Record{
		SessionID:  "20231114T221320",
		SourceKind: telemetry.SourceSimulated,
		StartedAt:  base,
		StoppedAt:  base.Add(30 * time.Second),
	}
	for i := 0; i < 10; i++ {
		state := telemetry.StrokeRecovery
		if i%2 == 0 {
			state = telemetry.StrokeDrive
		}
		rec.Samples = append(rec.Samples, telemetry.Sample{
			Timestamp:   base.Add(time.Duration(i) * 500 * time.Millisecond),
			Distance:    float64(i) * 4.3,
			StrokeRate:  27.5 + float64(i)*0.1,
			Pace:        119.7,
			Power:       201.3456789,
			Calories:    float64(i) * 0.12,
			HeartRate:   140 + i,
			StrokeState: state,
			StrokeCount: i / 2,
		})
	}
	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * 2 * time.Second)
		rec.Strokes = append(rec.Strokes, stroke.Stroke{
			Index:         i,
			StartTime:     start,
			EndTime:       start.Add(2 * time.Second),
			Duration:      2 * time.Second,
			Distance:      9.5,
			Length:        9.5,
			AvgPower:      198.7654321,
			AvgPace:       120.25,
			AvgStrokeRate: 28.1,
		})
	}
	return rec
}

func TestCSVRoundTrip(t *testing.T) {
	sink, err := NewCSVSink(t.TempDir())
	require.NoError(t, err)

	rec := testRecord()
	summary := analysis.Summarize(analysis.Input{
		SessionID:  rec.SessionID,
		SourceKind: rec.SourceKind,
		StartedAt:  rec.StartedAt,
		StoppedAt:  rec.StoppedAt,
		Samples:    rec.Samples,
		Strokes:    rec.Strokes,
	})

	path, err := sink.Write(rec, summary)
	require.NoError(t, err)
	assert.Equal(t, "workout_20231114T221320.csv", filepath.Base(path))

	got, err := ReadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, rec.SourceKind, got.SourceKind)
	assert.Equal(t, rec.StartedAt, got.StartedAt)
	assert.Equal(t, rec.StoppedAt, got.StoppedAt)
	assert.Equal(t, rec.Samples, got.Samples)
	assert.Equal(t, rec.Strokes, got.Strokes)
}

func TestCSVWriteOverwritesExisting(t *testing.T) {
	sink, err := NewCSVSink(t.TempDir())
	require.NoError(t, err)

	rec := testRecord()
	summary := analysis.Summarize(analysis.Input{
		SessionID: rec.SessionID,
		StartedAt: rec.StartedAt,
		StoppedAt: rec.StoppedAt,
		Samples:   rec.Samples,
		Strokes:   rec.Strokes,
	})

	path1, err := sink.Write(rec, summary)
	require.NoError(t, err)
	path2, err := sink.Write(rec, summary)
	require.NoError(t, err)
	assert.Equal(t, path1, path2)

	got, err := ReadCSV(path2)
	require.NoError(t, err)
	assert.Len(t, got.Samples, len(rec.Samples))
}

func TestCSVSinkRejectsEmptyDir(t *testing.T) {
	_, err := NewCSVSink("")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidDataDir))
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrReadFailed))
}

func TestReadCSVMalformed(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"no session block": "# samples\ntimestamp_ms,distance\n",
		"bad sample row":   "# session\nid,source,started_ms,stopped_ms\nx,simulated,0,1\n# samples\nh\nnot-a-number,1,2,3,4,5,6,drive,0\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err := ReadCSV(path)
		require.Error(t, err, name)
		assert.True(t, errors.HasCode(err, ErrMalformedFile), name)
	}
}
