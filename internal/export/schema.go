package export

import (
	"database/sql"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS sessions (
	       id               TEXT PRIMARY KEY,
	       source           TEXT NOT NULL CHECK (source IN ('live', 'simulated')),
	       started_ms       INTEGER NOT NULL,
	       stopped_ms       INTEGER NOT NULL,
	       total_distance   REAL NOT NULL,
	       total_duration_ms INTEGER NOT NULL,
	       stroke_count     INTEGER NOT NULL,
	       stroke_rate_mean REAL NOT NULL,
	       stroke_rate_min  REAL NOT NULL,
	       stroke_rate_max  REAL NOT NULL,
	       pace_mean        REAL NOT NULL,
	       pace_min         REAL NOT NULL,
	       pace_max         REAL NOT NULL,
	       power_mean       REAL NOT NULL,
	       power_min        REAL NOT NULL,
	       power_max        REAL NOT NULL,
	       length_mean      REAL NOT NULL,
	       length_min       REAL NOT NULL,
	       length_max       REAL NOT NULL,
	       consistency      REAL NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       session_id   TEXT NOT NULL REFERENCES sessions(id),
	       seq          INTEGER NOT NULL,
	       timestamp_ms INTEGER NOT NULL,
	       distance     REAL NOT NULL,
	       stroke_rate  REAL NOT NULL,
	       pace         REAL NOT NULL,
	       power        REAL NOT NULL,
	       calories     REAL NOT NULL,
	       heart_rate   INTEGER NOT NULL,
	       stroke_state TEXT NOT NULL,
	       stroke_count INTEGER NOT NULL,
	       PRIMARY KEY (session_id, seq)
	   );
	   CREATE TABLE IF NOT EXISTS strokes (
	       session_id   TEXT NOT NULL REFERENCES sessions(id),
	       idx          INTEGER NOT NULL,
	       start_ms     INTEGER NOT NULL,
	       end_ms       INTEGER NOT NULL,
	       duration_ms  INTEGER NOT NULL,
	       distance     REAL NOT NULL,
	       length       REAL NOT NULL,
	       avg_power    REAL NOT NULL,
	       avg_pace     REAL NOT NULL,
	       avg_stroke_rate REAL NOT NULL,
	       PRIMARY KEY (session_id, idx)
	   );
	   CREATE TABLE IF NOT EXISTS splits (
	       session_id     TEXT NOT NULL REFERENCES sessions(id),
	       idx            INTEGER NOT NULL,
	       start_distance REAL NOT NULL,
	       end_distance   REAL NOT NULL,
	       elapsed_ms     INTEGER NOT NULL,
	       avg_pace       REAL NOT NULL,
	       avg_stroke_rate REAL NOT NULL,
	       avg_power      REAL NOT NULL,
	       avg_stroke_length REAL NOT NULL,
	       stroke_count   INTEGER NOT NULL,
	       PRIMARY KEY (session_id, idx)
	   );`

	insertSessionSQL = `
    INSERT INTO sessions (
        id, source, started_ms, stopped_ms,
        total_distance, total_duration_ms, stroke_count,
        stroke_rate_mean, stroke_rate_min, stroke_rate_max,
        pace_mean, pace_min, pace_max,
        power_mean, power_min, power_max,
        length_mean, length_min, length_max,
        consistency
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSampleSQL = `
    INSERT INTO samples (
        session_id, seq, timestamp_ms, distance, stroke_rate, pace,
        power, calories, heart_rate, stroke_state, stroke_count
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertStrokeSQL = `
    INSERT INTO strokes (
        session_id, idx, start_ms, end_ms, duration_ms,
        distance, length, avg_power, avg_pace, avg_stroke_rate
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSplitSQL = `
    INSERT INTO splits (
        session_id, idx, start_distance, end_distance, elapsed_ms,
        avg_pace, avg_stroke_rate, avg_power, avg_stroke_length, stroke_count
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// initSchema creates the schema and records the current version.
func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback schema transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Debug().Int("version", SchemaVersion).Msg("Archive schema initialized")
	return nil
}

// schemaVersion returns the stored schema version, 0 for a fresh
// database.
func schemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name='schema_versions'
        )
    `).Scan(&exists)
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}
	return version, nil
}
