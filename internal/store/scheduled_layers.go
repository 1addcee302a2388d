package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ScheduledLayer is the job-store record the reflection scheduler keeps
// per layer: the outcome of its last activation and the running
// baseline used for threshold-driven activation.
type ScheduledLayer struct {
	LayerName      string
	LastStatus     string
	LastRunAt      *time.Time
	LastRunID      string
	RunCount       int
	SignalBaseline int
	UpdatedAt      time.Time
}

// GetScheduledLayer reads a layer's job-store record, nil if it has never run.
func (s *Store) GetScheduledLayer(name string) (*ScheduledLayer, error) {
	row := s.db.QueryRow(`
SELECT layer_name, last_status, last_run_at, last_run_id, run_count, signal_baseline, updated_at
FROM scheduled_layers WHERE layer_name = ?`, name)
	sl, err := scanScheduledLayer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get scheduled layer %s: %w", name, err)
	}
	return sl, nil
}

// RecordScheduledLayerRun upserts the job-store record after an
// activation completes, bumping run_count and resetting the signal
// baseline to the total passed by the caller.
func (s *Store) RecordScheduledLayerRun(name, status string, runAt time.Time, runID string, signalBaseline int) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
INSERT INTO scheduled_layers(layer_name, last_status, last_run_at, last_run_id, run_count, signal_baseline, updated_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(layer_name) DO UPDATE SET
	last_status = excluded.last_status,
	last_run_at = excluded.last_run_at,
	last_run_id = excluded.last_run_id,
	run_count = scheduled_layers.run_count + 1,
	signal_baseline = excluded.signal_baseline,
	updated_at = excluded.updated_at`,
		name, status, runAt, runID, signalBaseline, now)
	if err != nil {
		return fmt.Errorf("store: record scheduled layer run %s: %w", name, err)
	}
	return nil
}

// ListScheduledLayers returns every layer the scheduler has a job-store
// record for, newest activity first, for the "reflect jobs" CLI surface.
func (s *Store) ListScheduledLayers() ([]ScheduledLayer, error) {
	rows, err := s.db.Query(`
SELECT layer_name, last_status, last_run_at, last_run_id, run_count, signal_baseline, updated_at
FROM scheduled_layers ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled layers: %w", err)
	}
	defer rows.Close()
	var out []ScheduledLayer
	for rows.Next() {
		sl, err := scanScheduledLayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sl)
	}
	return out, rows.Err()
}

func scanScheduledLayer(row rowScanner) (*ScheduledLayer, error) {
	var sl ScheduledLayer
	var lastRunAt sql.NullTime
	if err := row.Scan(&sl.LayerName, &sl.LastStatus, &lastRunAt, &sl.LastRunID, &sl.RunCount, &sl.SignalBaseline, &sl.UpdatedAt); err != nil {
		return nil, err
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		sl.LastRunAt = &t
	}
	return &sl, nil
}
