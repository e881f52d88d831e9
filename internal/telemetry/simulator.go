package telemetry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"codeberg.org/mutker/ergmon/internal/errors"
)

const (
	defaultSampleInterval = 500 * time.Millisecond
	defaultStrokeRate     = 28.0  // strokes/min
	defaultPace           = 120.0 // seconds per 500m
	defaultStrokeLength   = 10.0  // meters per stroke

	// Fraction of the stroke cycle spent in the drive phase
	drivePhase = 0.4

	// Jitter bounds, matching a steady-state rower
	rateJitter   = 3.0
	paceJitter   = 5.0
	lengthJitter = 0.15
)

// SimulatorConfig tunes the synthetic rower. The zero value of any field
// falls back to its default; a fixed Seed yields an identical sample
// sequence across runs.
type SimulatorConfig struct {
	Seed           int64
	SampleInterval time.Duration
	StrokeRate     float64 // target strokes/min
	Pace           float64 // target seconds per 500m
	StrokeLength   float64 // target meters per stroke
	TotalDistance  float64 // stop producing after this many meters; 0 = endless
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Seed:           42,
		SampleInterval: defaultSampleInterval,
		StrokeRate:     defaultStrokeRate,
		Pace:           defaultPace,
		StrokeLength:   defaultStrokeLength,
	}
}

func (c SimulatorConfig) withDefaults() SimulatorConfig {
	def := DefaultSimulatorConfig()
	if c.SampleInterval <= 0 {
		c.SampleInterval = def.SampleInterval
	}
	if c.StrokeRate <= 0 {
		c.StrokeRate = def.StrokeRate
	}
	if c.Pace <= 0 {
		c.Pace = def.Pace
	}
	if c.StrokeLength <= 0 {
		c.StrokeLength = def.StrokeLength
	}
	return c
}

func (c SimulatorConfig) Validate() error {
	errFactory := errors.New()
	if c.SampleInterval < 0 || c.StrokeRate < 0 || c.Pace < 0 ||
		c.StrokeLength < 0 || c.TotalDistance < 0 {
		return errFactory.New(ErrInvalidSimConfig)
	}
	return nil
}

type simulator struct {
	cfg SimulatorConfig
	rng *rand.Rand

	mu          sync.Mutex
	closed      bool
	exhausted   bool
	simTime     time.Duration
	sinceStroke time.Duration
	distance    float64
	strokeCount int
}

// Simulated clock origin. Fixed so a seed fully determines the sequence,
// timestamps included.
var simEpoch = time.Unix(0, 0).UTC()

// NewSimulatedSource generates plausible steady-state rowing samples.
// Deterministic for a given config.
func NewSimulatedSource(cfg SimulatorConfig) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &simulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (s *simulator) Poll(_ context.Context) (Sample, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Sample{}, errFactory.New(ErrSourceClosed)
	}
	if s.exhausted {
		return Sample{}, errFactory.WithMessage(ErrSourceUnavailable, "simulated program finished")
	}

	s.simTime += s.cfg.SampleInterval
	s.sinceStroke += s.cfg.SampleInterval

	strokeInterval := time.Duration(60.0 / s.cfg.StrokeRate * float64(time.Second))
	for s.sinceStroke >= strokeInterval {
		s.sinceStroke -= strokeInterval
		s.strokeCount++
		s.distance += s.cfg.StrokeLength + s.uniform(-lengthJitter, lengthJitter)
	}

	if s.cfg.TotalDistance > 0 && s.distance >= s.cfg.TotalDistance {
		s.distance = s.cfg.TotalDistance
		s.exhausted = true
	}

	state := StrokeRecovery
	if float64(s.sinceStroke) < drivePhase*float64(strokeInterval) {
		state = StrokeDrive
	}

	pace := s.cfg.Pace + s.uniform(-paceJitter, paceJitter)
	paceFactor := math.Pow(pace/500.0, 3)
	power := 0.0
	if paceFactor > 0 {
		power = 2.8 / paceFactor
	}

	return Sample{
		Timestamp:   simEpoch.Add(s.simTime),
		Distance:    s.distance,
		StrokeRate:  s.cfg.StrokeRate + s.uniform(-rateJitter, rateJitter),
		Pace:        pace,
		Power:       power,
		Calories:    s.simTime.Hours() * power * 4,
		HeartRate:   165 + s.rng.Intn(21) - 10,
		StrokeState: state,
		StrokeCount: s.strokeCount,
	}, nil
}

func (s *simulator) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.exhausted
}

func (*simulator) Kind() SourceKind {
	return SourceSimulated
}

func (s *simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
