package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AppendLedgerEntry appends one append-only transaction. Ledger entries
// are never reversed or deleted — a compensating entry is
// a new row, never a mutation.
func (s *Store) AppendLedgerEntry(e *LedgerEntry) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
INSERT INTO ledger_entries(id, topic_key, kind, amount, reason, source_topic, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TopicKey, e.Kind, e.Amount, e.Reason, e.SourceTopic, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append ledger entry for %s: %w", e.TopicKey, err)
	}
	return nil
}

// TopicBalance returns the sum of all ledger amounts for a topic — the
// sole authoritative definition of "balance"
func (s *Store) TopicBalance(topicKey string) (float64, error) {
	row := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE topic_key = ?`, topicKey)
	var bal float64
	if err := row.Scan(&bal); err != nil {
		return 0, fmt.Errorf("store: topic balance %s: %w", topicKey, err)
	}
	return bal, nil
}

// TopicBalanceSince returns the sum of ledger amounts for a topic created
// strictly after t, used for decay and pressure windows.
func (s *Store) TopicBalanceSince(topicKey string, t time.Time) (float64, error) {
	row := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE topic_key = ? AND created_at > ?`, topicKey, t)
	var bal float64
	if err := row.Scan(&bal); err != nil {
		return 0, fmt.Errorf("store: topic balance since %s: %w", topicKey, err)
	}
	return bal, nil
}

// ListLedgerEntries returns entries for a topic ordered by time, newest
// first, up to limit (0 = unlimited).
func (s *Store) ListLedgerEntries(topicKey string, limit int) ([]LedgerEntry, error) {
	q := `SELECT id, topic_key, kind, amount, reason, source_topic, created_at FROM ledger_entries WHERE topic_key = ? ORDER BY created_at DESC, id DESC`
	args := []any{topicKey}
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list ledger entries %s: %w", topicKey, err)
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.TopicKey, &e.Kind, &e.Amount, &e.Reason, &e.SourceTopic, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// BalancesForCategory returns topic_key => balance for every topic of a
// category (optionally scoped to one server), used by budget-group
// selection
func (s *Store) BalancesForCategory(category, server string) (map[string]float64, error) {
	q := `
SELECT t.key, COALESCE(SUM(l.amount), 0)
FROM topics t
LEFT JOIN ledger_entries l ON l.topic_key = t.key
WHERE t.category = ?`
	args := []any{category}
	if server != "" && server != "*" {
		q += ` AND t.server = ?`
		args = append(args, server)
	}
	q += ` GROUP BY t.key`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: balances for category %s: %w", category, err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var key string
		var bal float64
		if err := rows.Scan(&key, &bal); err != nil {
			return nil, err
		}
		out[key] = bal
	}
	return out, rows.Err()
}

// AllBalances returns topic_key => balance for every topic that has ever
// earned salience, for the introspection surface's cross-category views.
func (s *Store) AllBalances(limit int) (map[string]float64, error) {
	q := `
SELECT t.key, COALESCE(SUM(l.amount), 0)
FROM topics t
LEFT JOIN ledger_entries l ON l.topic_key = t.key
GROUP BY t.key
HAVING COALESCE(SUM(l.amount), 0) != 0
ORDER BY 2 DESC`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("store: all balances: %w", err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var key string
		var bal float64
		if err := rows.Scan(&key, &bal); err != nil {
			return nil, err
		}
		out[key] = bal
	}
	return out, rows.Err()
}

// LastDecayAt returns the created_at of the most recent decay entry for
// a topic, zero time if none exists — used to determine days missed.
func (s *Store) LastDecayAt(topicKey string) (time.Time, error) {
	row := s.db.QueryRow(`SELECT MAX(created_at) FROM ledger_entries WHERE topic_key = ? AND kind = ?`, topicKey, TxnDecay)
	var t sql.NullTime
	if err := row.Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("store: last decay at %s: %w", topicKey, err)
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}
