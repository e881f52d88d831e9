package export

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/ergmon/internal/analysis"
	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/logger"
	"codeberg.org/mutker/ergmon/internal/telemetry"

	_ "github.com/mattn/go-sqlite3"
)

// Archive persists finished sessions to durable storage for later
// retrieval across runs.
type Archive interface {
	Store(ctx context.Context, rec Record, summary analysis.SessionSummary) error
	List(ctx context.Context) ([]SessionInfo, error)
	LoadSummary(ctx context.Context, id string) (analysis.SessionSummary, error)
	Close() error
}

// SessionInfo is the per-session row kept in the archive index.
type SessionInfo struct {
	ID            string
	SourceKind    telemetry.SourceKind
	StartedAt     time.Time
	TotalDistance float64
	TotalDuration time.Duration
	StrokeCount   int
}

type sqliteArchive struct {
	db *sql.DB
	mu sync.Mutex
}

// NewArchive opens (or creates) the sqlite archive at dbPath.
func NewArchive(dbPath string) (Archive, error) {
	errFactory := errors.New()

	if dbPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := dbPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	version, err := schemaVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	switch version {
	case 0:
		if err := initSchema(db); err != nil {
			db.Close()
			return nil, err
		}
	case SchemaVersion:
	default:
		db.Close()
		return nil, errFactory.WithData(ErrSchemaMismatch, version)
	}

	logger.Debug().Str("path", dbPath).Msg("Session archive opened")

	return &sqliteArchive{db: db}, nil
}

func (a *sqliteArchive) Store(ctx context.Context, rec Record, summary analysis.SessionSummary) error {
	errFactory := errors.New()

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback store transaction")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, insertSessionSQL,
		rec.SessionID,
		string(rec.SourceKind),
		rec.StartedAt.UnixMilli(),
		rec.StoppedAt.UnixMilli(),
		summary.TotalDistance,
		summary.TotalDuration.Milliseconds(),
		summary.StrokeCount,
		summary.StrokeRate.Mean, summary.StrokeRate.Min, summary.StrokeRate.Max,
		summary.Pace.Mean, summary.Pace.Min, summary.Pace.Max,
		summary.Power.Mean, summary.Power.Min, summary.Power.Max,
		summary.StrokeLength.Mean, summary.StrokeLength.Min, summary.StrokeLength.Max,
		summary.Consistency,
	); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	sampleStmt, err := tx.PrepareContext(ctx, insertSampleSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer sampleStmt.Close()
	for seq, s := range rec.Samples {
		if _, err := sampleStmt.ExecContext(ctx,
			rec.SessionID, seq,
			s.Timestamp.UnixMilli(), s.Distance, s.StrokeRate, s.Pace,
			s.Power, s.Calories, s.HeartRate, s.StrokeState.String(), s.StrokeCount,
		); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	strokeStmt, err := tx.PrepareContext(ctx, insertStrokeSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer strokeStmt.Close()
	for _, st := range rec.Strokes {
		if _, err := strokeStmt.ExecContext(ctx,
			rec.SessionID, st.Index,
			st.StartTime.UnixMilli(), st.EndTime.UnixMilli(), st.Duration.Milliseconds(),
			st.Distance, st.Length, st.AvgPower, st.AvgPace, st.AvgStrokeRate,
		); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	splitStmt, err := tx.PrepareContext(ctx, insertSplitSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer splitStmt.Close()
	for _, split := range summary.Splits {
		if _, err := splitStmt.ExecContext(ctx,
			rec.SessionID, split.Index,
			split.StartDistance, split.EndDistance, split.ElapsedTime.Milliseconds(),
			split.AvgPace, split.AvgStrokeRate, split.AvgPower, split.AvgStrokeLength,
			split.StrokeCount,
		); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	logger.Debug().
		Str("session_id", rec.SessionID).
		Int("samples", len(rec.Samples)).
		Int("strokes", len(rec.Strokes)).
		Msg("Session archived")

	return nil
}

func (a *sqliteArchive) List(ctx context.Context) ([]SessionInfo, error) {
	errFactory := errors.New()

	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx, `
        SELECT id, source, started_ms, total_distance, total_duration_ms, stroke_count
        FROM sessions
        ORDER BY started_ms
    `)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var source string
		var startedMs, durationMs int64
		if err := rows.Scan(&info.ID, &source, &startedMs,
			&info.TotalDistance, &durationMs, &info.StrokeCount); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		info.SourceKind = telemetry.SourceKind(source)
		info.StartedAt = time.UnixMilli(startedMs).UTC()
		info.TotalDuration = time.Duration(durationMs) * time.Millisecond
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	return infos, nil
}

// LoadSummary reconstructs a stored session's summary, splits included.
func (a *sqliteArchive) LoadSummary(ctx context.Context, id string) (analysis.SessionSummary, error) {
	errFactory := errors.New()

	a.mu.Lock()
	defer a.mu.Unlock()

	var summary analysis.SessionSummary
	var source string
	var durationMs int64
	err := a.db.QueryRowContext(ctx, `
        SELECT id, source, total_distance, total_duration_ms, stroke_count,
               stroke_rate_mean, stroke_rate_min, stroke_rate_max,
               pace_mean, pace_min, pace_max,
               power_mean, power_min, power_max,
               length_mean, length_min, length_max,
               consistency
        FROM sessions
        WHERE id = ?
    `, id).Scan(
		&summary.SessionID, &source, &summary.TotalDistance, &durationMs, &summary.StrokeCount,
		&summary.StrokeRate.Mean, &summary.StrokeRate.Min, &summary.StrokeRate.Max,
		&summary.Pace.Mean, &summary.Pace.Min, &summary.Pace.Max,
		&summary.Power.Mean, &summary.Power.Min, &summary.Power.Max,
		&summary.StrokeLength.Mean, &summary.StrokeLength.Min, &summary.StrokeLength.Max,
		&summary.Consistency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return analysis.SessionSummary{}, errFactory.WithData(ErrSessionNotFound, id)
	}
	if err != nil {
		return analysis.SessionSummary{}, errFactory.Wrap(ErrStorageAccess, err)
	}
	summary.SourceKind = telemetry.SourceKind(source)
	summary.TotalDuration = time.Duration(durationMs) * time.Millisecond

	rows, err := a.db.QueryContext(ctx, `
        SELECT idx, start_distance, end_distance, elapsed_ms,
               avg_pace, avg_stroke_rate, avg_power, avg_stroke_length, stroke_count
        FROM splits
        WHERE session_id = ?
        ORDER BY idx
    `, id)
	if err != nil {
		return analysis.SessionSummary{}, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	for rows.Next() {
		var split analysis.Split
		var elapsedMs int64
		if err := rows.Scan(&split.Index, &split.StartDistance, &split.EndDistance,
			&elapsedMs, &split.AvgPace, &split.AvgStrokeRate, &split.AvgPower,
			&split.AvgStrokeLength, &split.StrokeCount); err != nil {
			return analysis.SessionSummary{}, errFactory.Wrap(ErrStorageAccess, err)
		}
		split.ElapsedTime = time.Duration(elapsedMs) * time.Millisecond
		summary.Splits = append(summary.Splits, split)
	}
	if err := rows.Err(); err != nil {
		return analysis.SessionSummary{}, errFactory.Wrap(ErrStorageAccess, err)
	}

	return summary, nil
}

func (a *sqliteArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	if err := a.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
