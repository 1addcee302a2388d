package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertInsight persists a new insight. The caller is responsible for
// having computed strength and validated the valence/constraint rules
// before calling this.
func (s *Store) InsertInsight(in *Insight) error {
	if in.ID == "" {
		in.ID = NewID()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
INSERT INTO insights(
	id, topic_key, category, content, sources_scope_max, created_at, run_id,
	salience_spent, strength_adjustment, strength, confidence, importance, novelty,
	joy, concern, curiosity, warmth, tension,
	supersedes, quarantined, conflict_resolved,
	context_channel, context_thread, context_subject, participants, conflicts_with, synthesis_sources
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.TopicKey, in.Category, in.Content, in.SourcesScopeMax, in.CreatedAt, in.RunID,
		in.SalienceSpent, in.StrengthAdjustment, in.Strength, in.Confidence, in.Importance, in.Novelty,
		in.Joy, in.Concern, in.Curiosity, in.Warmth, in.Tension,
		in.Supersedes, in.Quarantined, in.ConflictResolved,
		in.ContextChannel, in.ContextThread, in.ContextSubject, in.Participants, in.ConflictsWith, in.SynthesisSources)
	if err != nil {
		return fmt.Errorf("store: insert insight for %s: %w", in.TopicKey, err)
	}
	return nil
}

// GetInsight reads a single insight by id, nil if not found.
func (s *Store) GetInsight(id string) (*Insight, error) {
	row := s.db.QueryRow(insightSelect+` WHERE id = ?`, id)
	in, err := scanInsight(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get insight %s: %w", id, err)
	}
	return in, nil
}

// InsightFilter selects insights for retrieval profiles and introspection.
type InsightFilter struct {
	TopicKey          string
	Category          string
	ExcludeQuarantine bool
	MinStrength       float64
	Since             time.Time
	Limit             int
	Offset            int
	OrderByStrength   bool // true: strongest first; false: newest first
}

// ListInsights returns insights matching filter.
func (s *Store) ListInsights(f InsightFilter) ([]Insight, error) {
	q := insightSelect + ` WHERE 1=1`
	var args []any
	if f.TopicKey != "" {
		q += ` AND topic_key = ?`
		args = append(args, f.TopicKey)
	}
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.ExcludeQuarantine {
		q += ` AND quarantined = 0`
	}
	if f.MinStrength > 0 {
		q += ` AND strength >= ?`
		args = append(args, f.MinStrength)
	}
	if !f.Since.IsZero() {
		q += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	if f.OrderByStrength {
		q += ` ORDER BY strength DESC, created_at DESC`
	} else {
		q += ` ORDER BY created_at DESC`
	}
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
		if f.Offset > 0 {
			q += fmt.Sprintf(` OFFSET %d`, f.Offset)
		}
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list insights: %w", err)
	}
	defer rows.Close()
	var out []Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// SetQuarantined flips the quarantine flag on an insight, used when a
// contradiction is detected and cannot be auto-resolved.
func (s *Store) SetQuarantined(id string, quarantined bool) error {
	_, err := s.db.Exec(`UPDATE insights SET quarantined = ? WHERE id = ?`, quarantined, id)
	if err != nil {
		return fmt.Errorf("store: set quarantined %s: %w", id, err)
	}
	return nil
}

// ResolveConflict marks an insight's conflict as resolved and records
// which insight ids it conflicts with.
func (s *Store) ResolveConflict(id, conflictsWith string) error {
	_, err := s.db.Exec(`UPDATE insights SET conflict_resolved = 1, conflicts_with = ? WHERE id = ?`, conflictsWith, id)
	if err != nil {
		return fmt.Errorf("store: resolve conflict %s: %w", id, err)
	}
	return nil
}

// MarkSuperseded records that newID supersedes the insight at id.
func (s *Store) MarkSuperseded(id, newID string) error {
	_, err := s.db.Exec(`UPDATE insights SET supersedes = ? WHERE id = ?`, newID, id)
	if err != nil {
		return fmt.Errorf("store: mark superseded %s: %w", id, err)
	}
	return nil
}

// CountInsights returns the total number of insights in category, the
// running total the reflection scheduler compares against a layer's
// signal baseline for threshold-driven activation.
func (s *Store) CountInsights(category string) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM insights WHERE category = ?`, category)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count insights %s: %w", category, err)
	}
	return n, nil
}

// SearchInsights does a plain substring match over insight content, newest
// first, for the "/insights/search" introspection route.
func (s *Store) SearchInsights(q string, limit int) ([]Insight, error) {
	query := insightSelect + ` WHERE content LIKE ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(query, "%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("store: search insights: %w", err)
	}
	defer rows.Close()
	var out []Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

const insightSelect = `
SELECT id, topic_key, category, content, sources_scope_max, created_at, run_id,
	salience_spent, strength_adjustment, strength, confidence, importance, novelty,
	joy, concern, curiosity, warmth, tension,
	supersedes, quarantined, conflict_resolved,
	context_channel, context_thread, context_subject, participants, conflicts_with, synthesis_sources
FROM insights`

func scanInsight(row rowScanner) (*Insight, error) {
	var in Insight
	if err := row.Scan(
		&in.ID, &in.TopicKey, &in.Category, &in.Content, &in.SourcesScopeMax, &in.CreatedAt, &in.RunID,
		&in.SalienceSpent, &in.StrengthAdjustment, &in.Strength, &in.Confidence, &in.Importance, &in.Novelty,
		&in.Joy, &in.Concern, &in.Curiosity, &in.Warmth, &in.Tension,
		&in.Supersedes, &in.Quarantined, &in.ConflictResolved,
		&in.ContextChannel, &in.ContextThread, &in.ContextSubject, &in.Participants, &in.ConflictsWith, &in.SynthesisSources,
	); err != nil {
		return nil, err
	}
	return &in, nil
}
