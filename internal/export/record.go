package export

import (
	"time"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/session"
	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
)

// Record is the finalized, serializable view of a session. Sinks consume
// it instead of the live aggregate so nothing here can race the polling
// loop.
type Record struct {
	SessionID  string
	SourceKind telemetry.SourceKind
	StartedAt  time.Time
	StoppedAt  time.Time
	Samples    []telemetry.Sample
	Strokes    []stroke.Stroke
}

// Snapshot captures a session for persistence. The session must be
// analyzed; sink writes never overlap the recording window.
func Snapshot(s *session.Session) (Record, error) {
	if s.State() != session.Analyzed {
		return Record{}, errors.New().New(ErrNotFinalized)
	}
	return Record{
		SessionID:  s.ID(),
		SourceKind: s.SourceKind(),
		StartedAt:  s.StartedAt(),
		StoppedAt:  s.StoppedAt(),
		Samples:    s.Samples(),
		Strokes:    s.Strokes(),
	}, nil
}
