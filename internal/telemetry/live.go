package telemetry

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/logger"
)

const DefaultPollTimeout = 1000 * time.Millisecond

var (
	transportMu      sync.Mutex
	transportFactory func() (Transport, error)
)

// RegisterTransport installs the factory for the physical monitor
// connection. The hardware binding calls this from its init.
func RegisterTransport(factory func() (Transport, error)) {
	transportMu.Lock()
	defer transportMu.Unlock()
	transportFactory = factory
}

// OpenTransport opens the registered transport, failing when no hardware
// binding is linked into the build.
func OpenTransport() (Transport, error) {
	transportMu.Lock()
	factory := transportFactory
	transportMu.Unlock()

	if factory == nil {
		return nil, errors.New().New(ErrNoTransport)
	}
	return factory()
}

type liveSource struct {
	transport Transport
	timeout   time.Duration
	closed    bool
	mu        sync.Mutex
}

// NewLiveSource wraps a monitor transport in the Source capability.
// A non-positive timeout falls back to DefaultPollTimeout.
func NewLiveSource(t Transport, timeout time.Duration) Source {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &liveSource{
		transport: t,
		timeout:   timeout,
	}
}

type readResult struct {
	sample Sample
	err    error
}

func (s *liveSource) Poll(ctx context.Context) (Sample, error) {
	errFactory := errors.New()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Sample{}, errFactory.New(ErrSourceClosed)
	}

	if !s.transport.Connected() {
		return Sample{}, errFactory.WithMessage(ErrSourceUnavailable, "monitor disconnected")
	}

	results := make(chan readResult, 1)
	go func() {
		sample, err := s.transport.ReadSample()
		results <- readResult{sample: sample, err: err}
	}()

	select {
	case <-ctx.Done():
		return Sample{}, errFactory.Wrap(ErrSourceTimeout, ctx.Err())
	case <-time.After(s.timeout):
		logger.Debug().Dur("timeout", s.timeout).Msg("Poll exceeded timeout")
		return Sample{}, errFactory.New(ErrSourceTimeout)
	case res := <-results:
		if res.err != nil {
			return Sample{}, errFactory.Wrap(ErrSourceUnavailable, res.err)
		}
		sample := res.sample
		if sample.Timestamp.IsZero() {
			sample.Timestamp = time.Now()
		}
		// Sample timestamps carry millisecond resolution
		sample.Timestamp = sample.Timestamp.Truncate(time.Millisecond)

		if err := validateReading(sample); err != nil {
			return Sample{}, errFactory.Wrap(ErrSourceUnavailable, err)
		}
		return sample, nil
	}
}

func (s *liveSource) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.transport.Connected()
}

func (*liveSource) Kind() SourceKind {
	return SourceLive
}

func (s *liveSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.transport.Close(); err != nil {
		return errors.New().Wrap(ErrTransportFailed, err)
	}
	return nil
}

// validateReading rejects readings the monitor could not plausibly have
// produced. Per-session ordering (timestamps, distance) is enforced
// downstream by the stroke extractor, which sees the whole sequence.
func validateReading(s Sample) error {
	errFactory := errors.New()
	switch {
	case s.Distance < 0:
		return errFactory.WithData(ErrMalformedReading, "negative distance")
	case s.StrokeRate < 0:
		return errFactory.WithData(ErrMalformedReading, "negative stroke rate")
	case s.Pace < 0:
		return errFactory.WithData(ErrMalformedReading, "negative pace")
	case s.Power < 0:
		return errFactory.WithData(ErrMalformedReading, "negative power")
	case s.StrokeCount < 0:
		return errFactory.WithData(ErrMalformedReading, "negative stroke count")
	default:
		return nil
	}
}
