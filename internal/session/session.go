// Package session owns one recorded rowing effort: the sample and stroke
// buffers, the Idle -> Recording -> Stopped -> Analyzed state machine,
// and the polling loop that is the sole writer to the buffers while
// recording. Readers touch the buffers only after the Stopped handoff,
// gated by the atomic state flag.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/ergmon/internal/analysis"
	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/logger"
	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
)

type State int32

const (
	Idle State = iota
	Recording
	Stopped
	Analyzed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	case Analyzed:
		return "analyzed"
	default:
		return "unknown"
	}
}

const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultPollTimeout      = telemetry.DefaultPollTimeout
	DefaultTimeoutThreshold = 5
)

// Options tunes the polling loop. OnSample, when set, is invoked from
// the polling goroutine after each accepted or rejected sample, with the
// stroke it closed, if any.
type Options struct {
	PollInterval     time.Duration
	PollTimeout      time.Duration
	TimeoutThreshold int
	OnSample         func(telemetry.Sample, *stroke.Stroke)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.TimeoutThreshold <= 0 {
		o.TimeoutThreshold = DefaultTimeoutThreshold
	}
	return o
}

// Session is the aggregate root for one recording.
type Session struct {
	opts Options

	state atomic.Int32

	id         string
	sourceKind telemetry.SourceKind
	startedAt  time.Time
	stoppedAt  time.Time

	source    telemetry.Source
	extractor *stroke.Extractor

	samples  []telemetry.Sample
	strokes  []stroke.Stroke
	rejected int

	summary *analysis.SessionSummary

	stopCh chan struct{}
	done   chan struct{}
}

func New(opts Options) *Session {
	return &Session{
		opts:      opts.withDefaults(),
		extractor: stroke.NewExtractor(),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) SourceKind() telemetry.SourceKind {
	return s.sourceKind
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

func (s *Session) StoppedAt() time.Time {
	return s.stoppedAt
}

// Start binds the session to the source and begins the polling loop.
// Allowed only from Idle.
func (s *Session) Start(source telemetry.Source) error {
	errFactory := errors.New()

	if source == nil {
		return errFactory.New(ErrSourceRequired)
	}

	if !s.state.CompareAndSwap(int32(Idle), int32(Recording)) {
		if s.State() == Recording {
			return errFactory.New(ErrAlreadyRecording)
		}
		return errFactory.New(ErrFinished)
	}

	s.source = source
	s.sourceKind = source.Kind()
	s.startedAt = time.Now()
	s.id = s.startedAt.Format("20060102T150405")
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	logger.Info().
		Str("session_id", s.id).
		Str("source", string(s.sourceKind)).
		Msg("Recording started")

	go s.loop()

	return nil
}

// Stop halts polling and finalizes the buffers. Allowed only from
// Recording; safe to invoke concurrently with an in-flight poll.
func (s *Session) Stop() error {
	if !s.state.CompareAndSwap(int32(Recording), int32(Stopped)) {
		return errors.New().New(ErrNotRecording)
	}

	close(s.stopCh)
	<-s.done

	s.stoppedAt = time.Now()
	s.extractor.Finish()

	logger.Info().
		Str("session_id", s.id).
		Int("samples", len(s.samples)).
		Int("strokes", len(s.strokes)).
		Int("rejected", s.rejected).
		Msg("Recording stopped")

	return nil
}

// Analyze derives the session summary. Allowed from Stopped or Analyzed;
// calling it again re-derives the same summary from the same sequences.
func (s *Session) Analyze() (analysis.SessionSummary, error) {
	state := s.State()
	if state != Stopped && state != Analyzed {
		return analysis.SessionSummary{}, errors.New().New(ErrNotStopped)
	}

	summary := analysis.Summarize(analysis.Input{
		SessionID:  s.id,
		SourceKind: s.sourceKind,
		StartedAt:  s.startedAt,
		StoppedAt:  s.stoppedAt,
		Samples:    s.samples,
		Strokes:    s.strokes,
	})
	s.summary = &summary
	s.state.Store(int32(Analyzed))

	return summary, nil
}

// Summary returns the derived summary once the session is analyzed.
func (s *Session) Summary() (analysis.SessionSummary, error) {
	if s.State() != Analyzed || s.summary == nil {
		return analysis.SessionSummary{}, errors.New().New(ErrSummaryNotAvailable)
	}
	return *s.summary, nil
}

// Samples returns a copy of the recorded sample sequence, including
// rejected samples kept for audit. Nil while recording.
func (s *Session) Samples() []telemetry.Sample {
	if s.State() < Stopped {
		return nil
	}
	return append([]telemetry.Sample(nil), s.samples...)
}

// Strokes returns a copy of the derived stroke sequence. Nil while
// recording.
func (s *Session) Strokes() []stroke.Stroke {
	if s.State() < Stopped {
		return nil
	}
	return append([]stroke.Stroke(nil), s.strokes...)
}

// RejectedSamples returns how many samples were stored for audit but
// excluded from stroke computation.
func (s *Session) RejectedSamples() int {
	if s.State() < Stopped {
		return 0
	}
	return s.rejected
}

// loop is the polling goroutine, the only writer to the sample and
// stroke buffers.
func (s *Session) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	consecutiveTimeouts := 0

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PollTimeout)
		sample, err := s.source.Poll(ctx)
		cancel()

		// A stop may have landed while the poll was in flight; exit
		// without appending further data.
		if s.State() != Recording {
			return
		}

		if err != nil {
			if errors.HasCode(err, telemetry.ErrSourceTimeout) {
				consecutiveTimeouts++
				logger.Warn().
					Str("session_id", s.id).
					Int("consecutive", consecutiveTimeouts).
					Msg("Poll timed out")
				if consecutiveTimeouts < s.opts.TimeoutThreshold {
					continue
				}
				logger.Error().
					Str("session_id", s.id).
					Int("threshold", s.opts.TimeoutThreshold).
					Msg("Source unavailable after repeated timeouts; stopping recording")
			} else {
				logger.Error().
					Err(err).
					Str("session_id", s.id).
					Msg("Source unavailable; stopping recording with data collected so far")
			}
			s.halt()
			return
		}
		consecutiveTimeouts = 0

		s.samples = append(s.samples, sample)

		closedStroke, closed, err := s.extractor.Observe(sample)
		if err != nil {
			// Kept verbatim in the sample sequence for audit, excluded
			// from stroke computation
			s.rejected++
			logger.Debug().
				Err(err).
				Str("session_id", s.id).
				Float64("distance_m", sample.Distance).
				Msg("Rejected sample")
			s.notify(sample, nil)
			continue
		}

		if closed {
			s.strokes = append(s.strokes, closedStroke)
			logger.Debug().
				Str("session_id", s.id).
				Int("stroke", closedStroke.Index).
				Float64("length_m", closedStroke.Length).
				Msg("Stroke closed")
			s.notify(sample, &closedStroke)
			continue
		}
		s.notify(sample, nil)
	}
}

// halt finalizes from inside the polling loop when the source fails.
func (s *Session) halt() {
	s.stoppedAt = time.Now()
	s.extractor.Finish()
	s.state.CompareAndSwap(int32(Recording), int32(Stopped))
}

func (s *Session) notify(sample telemetry.Sample, closed *stroke.Stroke) {
	if s.opts.OnSample != nil {
		s.opts.OnSample(sample, closed)
	}
}
