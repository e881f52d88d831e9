// CSV sink: one file per finished session, holding the raw sample table,
// the derived stroke table and the summary/split blocks. Numeric fields
// survive a write/read cycle exactly: floats are rendered with the
// shortest representation that parses back to the same bits, timestamps
// as millisecond epoch integers.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"codeberg.org/mutker/ergmon/internal/analysis"
	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/logger"
	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644

	sectionSession = "# session"
	sectionSamples = "# samples"
	sectionStrokes = "# strokes"
	sectionSummary = "# summary"
	sectionSplits  = "# splits"
)

var (
	sampleHeader = []string{
		"timestamp_ms", "distance", "stroke_rate", "pace", "power",
		"calories", "heart_rate", "stroke_state", "stroke_count",
	}
	strokeHeader = []string{
		"index", "start_ms", "end_ms", "duration_ms", "distance",
		"length", "avg_power", "avg_pace", "avg_stroke_rate",
	}
	splitHeader = []string{
		"index", "start_distance", "end_distance", "elapsed_ms",
		"avg_pace", "avg_stroke_rate", "avg_power", "avg_stroke_length",
		"stroke_count",
	}
	summaryHeader = []string{
		"total_distance", "total_duration_ms", "stroke_count",
		"stroke_rate_mean", "stroke_rate_min", "stroke_rate_max",
		"pace_mean", "pace_min", "pace_max",
		"power_mean", "power_min", "power_max",
		"length_mean", "length_min", "length_max",
		"consistency",
	}
)

// CSVSink writes finished sessions to per-session files under a data
// directory.
type CSVSink struct {
	dir string
}

func NewCSVSink(dir string) (*CSVSink, error) {
	errFactory := errors.New()
	if dir == "" {
		return nil, errFactory.New(ErrInvalidDataDir)
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrInvalidDataDir, err)
	}
	return &CSVSink{dir: dir}, nil
}

// Write serializes the record and its summary, returning the file path.
func (s *CSVSink) Write(rec Record, summary analysis.SessionSummary) (string, error) {
	errFactory := errors.New()

	path := filepath.Join(s.dir, "workout_"+rec.SessionID+".csv")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return "", errFactory.Wrap(ErrWriteFailed, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	rows := [][]string{
		{sectionSession},
		{"id", "source", "started_ms", "stopped_ms"},
		{
			rec.SessionID,
			string(rec.SourceKind),
			ms(rec.StartedAt),
			ms(rec.StoppedAt),
		},
		{sectionSamples},
		sampleHeader,
	}
	for _, sample := range rec.Samples {
		rows = append(rows, sampleRow(sample))
	}

	rows = append(rows, []string{sectionStrokes}, strokeHeader)
	for _, st := range rec.Strokes {
		rows = append(rows, strokeRow(st))
	}

	rows = append(rows, []string{sectionSummary}, summaryHeader, summaryRow(summary))

	rows = append(rows, []string{sectionSplits}, splitHeader)
	for _, split := range summary.Splits {
		rows = append(rows, splitRow(split))
	}

	if err := w.WriteAll(rows); err != nil {
		return "", errFactory.Wrap(ErrWriteFailed, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := f.Sync(); err != nil {
		return "", errFactory.Wrap(ErrWriteFailed, err)
	}

	logger.Info().
		Str("path", path).
		Int("samples", len(rec.Samples)).
		Int("strokes", len(rec.Strokes)).
		Msg("Session exported")

	return path, nil
}

// ReadCSV reconstructs the sample and stroke sequences from an exported
// file. Summary blocks are not parsed; they re-derive from the strokes.
func ReadCSV(path string) (Record, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return Record{}, errFactory.Wrap(ErrReadFailed, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return Record{}, errFactory.Wrap(ErrMalformedFile, err)
	}

	var rec Record
	section := ""
	expectHeader := false
	for _, row := range rows {
		if len(row) == 1 {
			switch row[0] {
			case sectionSession, sectionSamples, sectionStrokes, sectionSummary, sectionSplits:
				section = row[0]
				expectHeader = true
				continue
			}
		}
		if expectHeader {
			expectHeader = false
			continue
		}

		switch section {
		case sectionSession:
			if err := parseSessionRow(row, &rec); err != nil {
				return Record{}, err
			}
		case sectionSamples:
			sample, err := parseSampleRow(row)
			if err != nil {
				return Record{}, err
			}
			rec.Samples = append(rec.Samples, sample)
		case sectionStrokes:
			st, err := parseStrokeRow(row)
			if err != nil {
				return Record{}, err
			}
			rec.Strokes = append(rec.Strokes, st)
		}
	}

	if rec.SessionID == "" {
		return Record{}, errors.New().WithData(ErrMalformedFile, "missing session block")
	}
	return rec, nil
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func fl(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sampleRow(s telemetry.Sample) []string {
	return []string{
		ms(s.Timestamp),
		fl(s.Distance),
		fl(s.StrokeRate),
		fl(s.Pace),
		fl(s.Power),
		fl(s.Calories),
		strconv.Itoa(s.HeartRate),
		s.StrokeState.String(),
		strconv.Itoa(s.StrokeCount),
	}
}

func strokeRow(s stroke.Stroke) []string {
	return []string{
		strconv.Itoa(s.Index),
		ms(s.StartTime),
		ms(s.EndTime),
		strconv.FormatInt(s.Duration.Milliseconds(), 10),
		fl(s.Distance),
		fl(s.Length),
		fl(s.AvgPower),
		fl(s.AvgPace),
		fl(s.AvgStrokeRate),
	}
}

func summaryRow(s analysis.SessionSummary) []string {
	return []string{
		fl(s.TotalDistance),
		strconv.FormatInt(s.TotalDuration.Milliseconds(), 10),
		strconv.Itoa(s.StrokeCount),
		fl(s.StrokeRate.Mean), fl(s.StrokeRate.Min), fl(s.StrokeRate.Max),
		fl(s.Pace.Mean), fl(s.Pace.Min), fl(s.Pace.Max),
		fl(s.Power.Mean), fl(s.Power.Min), fl(s.Power.Max),
		fl(s.StrokeLength.Mean), fl(s.StrokeLength.Min), fl(s.StrokeLength.Max),
		fl(s.Consistency),
	}
}

func splitRow(s analysis.Split) []string {
	return []string{
		strconv.Itoa(s.Index),
		fl(s.StartDistance),
		fl(s.EndDistance),
		strconv.FormatInt(s.ElapsedTime.Milliseconds(), 10),
		fl(s.AvgPace),
		fl(s.AvgStrokeRate),
		fl(s.AvgPower),
		fl(s.AvgStrokeLength),
		strconv.Itoa(s.StrokeCount),
	}
}

func parseSessionRow(row []string, rec *Record) error {
	errFactory := errors.New()
	if len(row) != 4 {
		return errFactory.WithData(ErrMalformedFile, "bad session row")
	}
	startedMs, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		return errFactory.Wrap(ErrMalformedFile, err)
	}
	stoppedMs, err := strconv.ParseInt(row[3], 10, 64)
	if err != nil {
		return errFactory.Wrap(ErrMalformedFile, err)
	}
	rec.SessionID = row[0]
	rec.SourceKind = telemetry.SourceKind(row[1])
	rec.StartedAt = time.UnixMilli(startedMs).UTC()
	rec.StoppedAt = time.UnixMilli(stoppedMs).UTC()
	return nil
}

func parseSampleRow(row []string) (telemetry.Sample, error) {
	errFactory := errors.New()
	if len(row) != len(sampleHeader) {
		return telemetry.Sample{}, errFactory.WithData(ErrMalformedFile, "bad sample row")
	}
	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return telemetry.Sample{}, errFactory.Wrap(ErrMalformedFile, err)
	}
	floats := make([]float64, 5)
	for i, idx := range []int{1, 2, 3, 4, 5} {
		floats[i], err = strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return telemetry.Sample{}, errFactory.Wrap(ErrMalformedFile, err)
		}
	}
	heartRate, err := strconv.Atoi(row[6])
	if err != nil {
		return telemetry.Sample{}, errFactory.Wrap(ErrMalformedFile, err)
	}
	strokeCount, err := strconv.Atoi(row[8])
	if err != nil {
		return telemetry.Sample{}, errFactory.Wrap(ErrMalformedFile, err)
	}
	return telemetry.Sample{
		Timestamp:   time.UnixMilli(tsMs).UTC(),
		Distance:    floats[0],
		StrokeRate:  floats[1],
		Pace:        floats[2],
		Power:       floats[3],
		Calories:    floats[4],
		HeartRate:   heartRate,
		StrokeState: parseStrokeState(row[7]),
		StrokeCount: strokeCount,
	}, nil
}

func parseStrokeRow(row []string) (stroke.Stroke, error) {
	errFactory := errors.New()
	if len(row) != len(strokeHeader) {
		return stroke.Stroke{}, errFactory.WithData(ErrMalformedFile, "bad stroke row")
	}
	index, err := strconv.Atoi(row[0])
	if err != nil {
		return stroke.Stroke{}, errFactory.Wrap(ErrMalformedFile, err)
	}
	ints := make([]int64, 3)
	for i, idx := range []int{1, 2, 3} {
		ints[i], err = strconv.ParseInt(row[idx], 10, 64)
		if err != nil {
			return stroke.Stroke{}, errFactory.Wrap(ErrMalformedFile, err)
		}
	}
	floats := make([]float64, 5)
	for i, idx := range []int{4, 5, 6, 7, 8} {
		floats[i], err = strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return stroke.Stroke{}, errFactory.Wrap(ErrMalformedFile, err)
		}
	}
	return stroke.Stroke{
		Index:         index,
		StartTime:     time.UnixMilli(ints[0]).UTC(),
		EndTime:       time.UnixMilli(ints[1]).UTC(),
		Duration:      time.Duration(ints[2]) * time.Millisecond,
		Distance:      floats[0],
		Length:        floats[1],
		AvgPower:      floats[2],
		AvgPace:       floats[3],
		AvgStrokeRate: floats[4],
	}, nil
}

func parseStrokeState(s string) telemetry.StrokeState {
	switch s {
	case "drive":
		return telemetry.StrokeDrive
	case "recovery":
		return telemetry.StrokeRecovery
	default:
		return telemetry.StrokeUnknown
	}
}
