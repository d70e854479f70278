package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
)

// Store reads and writes tracking sessions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Call MigrateUp before use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Flush implements pipeline.TrajectorySink. The session, its samples and its
// loss events are written in one transaction.
func (s *Store) Flush(ctx context.Context, rec *pipeline.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	st := rec.Stats
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, started_at, finished_at, seed_x, seed_y,
			sync_lag, sync_correlation, sync_low_confidence,
			stop_reason, error, frames, samples, depth_valid,
			misses, losses, reseeds, mean_quality, mean_latency_ns, frames_per_second
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), rec.Seed.X, rec.Seed.Y,
		rec.Sync.Lag, nullFloat(rec.Sync.Correlation), rec.Sync.LowConfidence,
		string(rec.StopReason), rec.Error, st.Frames, st.Samples, st.DepthValid,
		st.Misses, st.Losses, st.Reseeds, st.MeanQuality, int64(st.MeanLatency), st.FramesPerSecond,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", rec.ID, err)
	}

	sampleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracked_samples (
			session_id, frame_index, timestamp_ns, x, y, depth_m, depth_valid, quality
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()
	for _, smp := range rec.Samples {
		if _, err = sampleStmt.ExecContext(ctx, rec.ID, smp.FrameIndex, int64(smp.Timestamp),
			smp.X, smp.Y, smp.Depth, smp.DepthValid, smp.Quality); err != nil {
			return fmt.Errorf("insert sample %d: %w", smp.FrameIndex, err)
		}
	}

	lossStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO loss_events (
			session_id, frame_index, timestamp_ns, last_x, last_y, quality, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare loss insert: %w", err)
	}
	defer lossStmt.Close()
	for _, l := range rec.Losses {
		if _, err = lossStmt.ExecContext(ctx, rec.ID, l.FrameIndex, int64(l.Timestamp),
			l.LastPosition.X, l.LastPosition.Y, l.Quality, string(l.Reason)); err != nil {
			return fmt.Errorf("insert loss event %d: %w", l.FrameIndex, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", rec.ID, err)
	}
	return nil
}

// SessionSummary is a stored session without its samples.
type SessionSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Seed       image.Point
	Sync       pipeline.SyncInfo
	StopReason pipeline.StopReason
	Error      string
	Stats      pipeline.Stats
}

// Session returns the stored summary of one session, or sql.ErrNoRows.
func (s *Store) Session(ctx context.Context, id string) (*SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, started_at, finished_at, seed_x, seed_y,
			sync_lag, sync_correlation, sync_low_confidence,
			stop_reason, error, frames, samples, depth_valid,
			misses, losses, reseeds, mean_quality, mean_latency_ns, frames_per_second
		FROM sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

// Sessions returns every stored session, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]*SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, started_at, finished_at, seed_x, seed_y,
			sync_lag, sync_correlation, sync_low_confidence,
			stop_reason, error, frames, samples, depth_valid,
			misses, losses, reseeds, mean_quality, mean_latency_ns, frames_per_second
		FROM sessions ORDER BY started_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionSummary
	for rows.Next() {
		sum, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionSummary, error) {
	var (
		sum               SessionSummary
		started, finished int64
		corr              sql.NullFloat64
		stopReason        string
		meanLatency       int64
	)
	err := row.Scan(&sum.ID, &started, &finished, &sum.Seed.X, &sum.Seed.Y,
		&sum.Sync.Lag, &corr, &sum.Sync.LowConfidence,
		&stopReason, &sum.Error, &sum.Stats.Frames, &sum.Stats.Samples, &sum.Stats.DepthValid,
		&sum.Stats.Misses, &sum.Stats.Losses, &sum.Stats.Reseeds, &sum.Stats.MeanQuality,
		&meanLatency, &sum.Stats.FramesPerSecond)
	if err != nil {
		return nil, err
	}
	sum.StartedAt = time.Unix(0, started).UTC()
	sum.FinishedAt = time.Unix(0, finished).UTC()
	sum.Sync.Correlation = math.NaN()
	if corr.Valid {
		sum.Sync.Correlation = corr.Float64
	}
	sum.StopReason = pipeline.StopReason(stopReason)
	sum.Stats.MeanLatency = time.Duration(meanLatency)
	return &sum, nil
}

// Samples returns the trajectory of a session in frame order.
func (s *Store) Samples(ctx context.Context, sessionID string) ([]pipeline.TrackedSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_index, timestamp_ns, x, y, depth_m, depth_valid, quality
		FROM tracked_samples WHERE session_id = ? ORDER BY frame_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []pipeline.TrackedSample
	for rows.Next() {
		var smp pipeline.TrackedSample
		var ts int64
		if err := rows.Scan(&smp.FrameIndex, &ts, &smp.X, &smp.Y, &smp.Depth, &smp.DepthValid, &smp.Quality); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.Timestamp = time.Duration(ts)
		out = append(out, smp)
	}
	return out, rows.Err()
}

// Losses returns the loss events of a session in frame order.
func (s *Store) Losses(ctx context.Context, sessionID string) ([]pipeline.LossEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_index, timestamp_ns, last_x, last_y, quality, reason
		FROM loss_events WHERE session_id = ? ORDER BY frame_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query loss events: %w", err)
	}
	defer rows.Close()

	var out []pipeline.LossEvent
	for rows.Next() {
		var l pipeline.LossEvent
		var ts int64
		var reason string
		if err := rows.Scan(&l.FrameIndex, &ts, &l.LastPosition.X, &l.LastPosition.Y, &l.Quality, &reason); err != nil {
			return nil, fmt.Errorf("scan loss event: %w", err)
		}
		l.Timestamp = time.Duration(ts)
		l.Reason = pipeline.LossReason(reason)
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, by cascade, its samples and losses.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
