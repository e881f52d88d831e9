// Package analysis derives aggregate statistics and the 500m split
// breakdown from a completed session. Summarize is a pure function of
// the finalized sample and stroke sequences, so re-running it yields
// bit-identical results.
package analysis

import (
	"math"
	"time"

	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
)

// SplitDistance is the fixed distance bucket used for pacing analysis.
const SplitDistance = 500.0

// Input is the finalized state of a stopped session.
type Input struct {
	SessionID  string
	SourceKind telemetry.SourceKind
	StartedAt  time.Time
	StoppedAt  time.Time
	Samples    []telemetry.Sample
	Strokes    []stroke.Stroke
}

// Stat holds mean/min/max over the stroke sequence.
type Stat struct {
	Mean float64
	Min  float64
	Max  float64
}

// Split is a fixed 500m distance bucket of strokes.
type Split struct {
	Index           int // 1-based
	StartDistance   float64
	EndDistance     float64
	ElapsedTime     time.Duration
	AvgPace         float64
	AvgStrokeRate   float64
	AvgPower        float64
	AvgStrokeLength float64
	StrokeCount     int
}

// SessionSummary is the aggregate analysis of a whole session.
// Immutable once produced.
type SessionSummary struct {
	SessionID     string
	SourceKind    telemetry.SourceKind
	TotalDistance float64
	TotalDuration time.Duration
	StrokeCount   int
	StrokeRate    Stat
	Pace          Stat
	Power         Stat
	StrokeLength  Stat
	// Consistency is 100 minus the stroke length's coefficient of
	// variation as a percentage, clamped to [0, 100].
	Consistency float64
	Splits      []Split
}

// Summarize computes the session summary. Aggregates run over the stroke
// sequence, not the raw samples; a session with zero completed strokes
// yields zero counts and an empty split list.
func Summarize(in Input) SessionSummary {
	summary := SessionSummary{
		SessionID:     in.SessionID,
		SourceKind:    in.SourceKind,
		TotalDistance: totalDistance(in.Samples),
		TotalDuration: totalDuration(in),
		StrokeCount:   len(in.Strokes),
	}

	if len(in.Strokes) == 0 {
		return summary
	}

	summary.StrokeRate = statOf(in.Strokes, func(s stroke.Stroke) float64 { return s.AvgStrokeRate })
	summary.Pace = statOf(in.Strokes, func(s stroke.Stroke) float64 { return s.AvgPace })
	summary.Power = statOf(in.Strokes, func(s stroke.Stroke) float64 { return s.AvgPower })
	summary.StrokeLength = statOf(in.Strokes, func(s stroke.Stroke) float64 { return s.Length })
	summary.Consistency = consistency(in.Strokes, summary.StrokeLength.Mean)
	summary.Splits = computeSplits(in.Strokes)

	return summary
}

func totalDistance(samples []telemetry.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	minDist, maxDist := samples[0].Distance, samples[0].Distance
	for _, s := range samples[1:] {
		minDist = math.Min(minDist, s.Distance)
		maxDist = math.Max(maxDist, s.Distance)
	}
	return maxDist - minDist
}

func totalDuration(in Input) time.Duration {
	if !in.StartedAt.IsZero() && !in.StoppedAt.IsZero() {
		return in.StoppedAt.Sub(in.StartedAt)
	}
	if len(in.Samples) > 1 {
		return in.Samples[len(in.Samples)-1].Timestamp.Sub(in.Samples[0].Timestamp)
	}
	return 0
}

func statOf(strokes []stroke.Stroke, value func(stroke.Stroke) float64) Stat {
	stat := Stat{Min: value(strokes[0]), Max: value(strokes[0])}
	sum := 0.0
	for _, s := range strokes {
		v := value(s)
		sum += v
		stat.Min = math.Min(stat.Min, v)
		stat.Max = math.Max(stat.Max, v)
	}
	stat.Mean = sum / float64(len(strokes))
	return stat
}

func consistency(strokes []stroke.Stroke, mean float64) float64 {
	if len(strokes) < 2 || mean == 0 {
		return 100
	}
	var sq float64
	for _, s := range strokes {
		d := s.Length - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(strokes)-1))
	pct := (1 - stdev/mean) * 100
	return math.Max(0, math.Min(100, pct))
}

// computeSplits walks the stroke sequence in order, attributing each
// stroke to the 500m bucket its midpoint distance falls in. A midpoint
// exactly on a boundary goes to the earlier split.
func computeSplits(strokes []stroke.Stroke) []Split {
	type bucket struct {
		elapsed time.Duration
		pace    float64
		rate    float64
		power   float64
		length  float64
		count   int
	}

	var buckets []bucket
	acc := 0.0
	for _, s := range strokes {
		mid := acc + s.Distance/2
		idx := int(mid / SplitDistance)
		if mid > 0 && math.Mod(mid, SplitDistance) == 0 {
			idx--
		}
		for len(buckets) <= idx {
			buckets = append(buckets, bucket{})
		}
		b := &buckets[idx]
		b.elapsed += s.Duration
		b.pace += s.AvgPace
		b.rate += s.AvgStrokeRate
		b.power += s.AvgPower
		b.length += s.Length
		b.count++
		acc += s.Distance
	}

	splits := make([]Split, 0, len(buckets))
	for i, b := range buckets {
		split := Split{
			Index:         i + 1,
			StartDistance: float64(i) * SplitDistance,
			EndDistance:   float64(i+1) * SplitDistance,
			ElapsedTime:   b.elapsed,
			StrokeCount:   b.count,
		}
		if split.EndDistance > acc {
			split.EndDistance = acc
		}
		if b.count > 0 {
			n := float64(b.count)
			split.AvgPace = b.pace / n
			split.AvgStrokeRate = b.rate / n
			split.AvgPower = b.power / n
			split.AvgStrokeLength = b.length / n
		}
		splits = append(splits, split)
	}
	return splits
}
