package store

import (
	"fmt"
	"time"
)

// InsertCall records one model invocation in full, for auditability and
// cost tracking.
func (s *Store) InsertCall(c *Call) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
INSERT INTO calls(
	id, run_id, kind, profile, provider, model, prompt, response,
	tokens_in, tokens_out, estimated_cost, latency_ms, success, error_message, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.RunID, c.Kind, c.Profile, c.Provider, c.Model, c.Prompt, c.Response,
		c.TokensIn, c.TokensOut, c.EstimatedCost, c.LatencyMs, c.Success, c.ErrorMessage, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert call for run %s: %w", c.RunID, err)
	}
	return nil
}

// ListCallsByRun returns every call recorded against a run, in order.
func (s *Store) ListCallsByRun(runID string) ([]Call, error) {
	rows, err := s.db.Query(`
SELECT id, run_id, kind, profile, provider, model, prompt, response,
	tokens_in, tokens_out, estimated_cost, latency_ms, success, error_message, created_at
FROM calls WHERE run_id = ? ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list calls for run %s: %w", runID, err)
	}
	defer rows.Close()
	var out []Call
	for rows.Next() {
		var c Call
		if err := rows.Scan(&c.ID, &c.RunID, &c.Kind, &c.Profile, &c.Provider, &c.Model, &c.Prompt, &c.Response,
			&c.TokensIn, &c.TokensOut, &c.EstimatedCost, &c.LatencyMs, &c.Success, &c.ErrorMessage, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
