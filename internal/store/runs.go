package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertRun records the start of a layer activation. Status defaults to
// dry until UpdateRun finalizes it.
func (s *Store) InsertRun(r *Run) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = RunDry
	}
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return fmt.Errorf("store: marshal run errors: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO runs(
	id, layer_name, layer_content_hash, started_at, ended_at, status,
	targets_matched, targets_processed, targets_skipped, insights_created,
	model_profile, model_provider, model_name, tokens_in, tokens_out, tokens_total, estimated_cost, errors_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.LayerName, r.LayerContentHash, r.StartedAt, r.EndedAt, r.Status,
		r.TargetsMatched, r.TargetsProcessed, r.TargetsSkipped, r.InsightsCreated,
		r.ModelProfile, r.ModelProvider, r.ModelName, r.TokensIn, r.TokensOut, r.TokensTotal, r.EstimatedCost, string(errs))
	if err != nil {
		return fmt.Errorf("store: insert run for layer %s: %w", r.LayerName, err)
	}
	return nil
}

// UpdateRun overwrites the mutable fields of a run at completion.
func (s *Store) UpdateRun(r *Run) error {
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return fmt.Errorf("store: marshal run errors: %w", err)
	}
	_, err = s.db.Exec(`
UPDATE runs SET ended_at = ?, status = ?, targets_matched = ?, targets_processed = ?, targets_skipped = ?,
	insights_created = ?, model_profile = ?, model_provider = ?, model_name = ?,
	tokens_in = ?, tokens_out = ?, tokens_total = ?, estimated_cost = ?, errors_json = ?
WHERE id = ?`,
		r.EndedAt, r.Status, r.TargetsMatched, r.TargetsProcessed, r.TargetsSkipped,
		r.InsightsCreated, r.ModelProfile, r.ModelProvider, r.ModelName,
		r.TokensIn, r.TokensOut, r.TokensTotal, r.EstimatedCost, string(errs), r.ID)
	if err != nil {
		return fmt.Errorf("store: update run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun reads a single run by id, nil if not found.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(runSelect+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run %s: %w", id, err)
	}
	return r, nil
}

// RunFilter selects runs for the introspection surface.
type RunFilter struct {
	LayerName string
	Status    string
	Since     time.Time
	Limit     int
	Offset    int
}

// ListRuns returns runs matching filter, newest first.
func (s *Store) ListRuns(f RunFilter) ([]Run, error) {
	q := runSelect + ` WHERE 1=1`
	var args []any
	if f.LayerName != "" {
		q += ` AND layer_name = ?`
		args = append(args, f.LayerName)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += ` AND started_at >= ?`
		args = append(args, f.Since)
	}
	q += ` ORDER BY started_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
		if f.Offset > 0 {
			q += fmt.Sprintf(` OFFSET %d`, f.Offset)
		}
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// RunStatsSummary aggregates run counts and token usage over a window,
// for the operator-facing summary endpoint.
type RunStatsSummary struct {
	TotalRuns      int
	SuccessRuns    int
	PartialRuns    int
	FailedRuns     int
	TotalTokens    int64
	TotalCost      float64
	InsightsCreated int
}

// SummarizeRuns aggregates runs since t.
func (s *Store) SummarizeRuns(since time.Time) (RunStatsSummary, error) {
	row := s.db.QueryRow(`
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(tokens_total), 0),
	COALESCE(SUM(estimated_cost), 0),
	COALESCE(SUM(insights_created), 0)
FROM runs WHERE started_at >= ?`, since)
	var out RunStatsSummary
	if err := row.Scan(&out.TotalRuns, &out.SuccessRuns, &out.PartialRuns, &out.FailedRuns,
		&out.TotalTokens, &out.TotalCost, &out.InsightsCreated); err != nil {
		return RunStatsSummary{}, fmt.Errorf("store: summarize runs: %w", err)
	}
	return out, nil
}

const runSelect = `
SELECT id, layer_name, layer_content_hash, started_at, ended_at, status,
	targets_matched, targets_processed, targets_skipped, insights_created,
	model_profile, model_provider, model_name, tokens_in, tokens_out, tokens_total, estimated_cost, errors_json
FROM runs`

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var endedAt sql.NullTime
	var errsJSON string
	if err := row.Scan(
		&r.ID, &r.LayerName, &r.LayerContentHash, &r.StartedAt, &endedAt, &r.Status,
		&r.TargetsMatched, &r.TargetsProcessed, &r.TargetsSkipped, &r.InsightsCreated,
		&r.ModelProfile, &r.ModelProvider, &r.ModelName, &r.TokensIn, &r.TokensOut, &r.TokensTotal, &r.EstimatedCost, &errsJSON,
	); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	if errsJSON != "" {
		if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal run errors: %w", err)
		}
	}
	return &r, nil
}
