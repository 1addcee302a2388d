package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertTopic creates a topic if it does not exist and always refreshes
// last_activity_at to now.
func (s *Store) UpsertTopic(key, category, server string, provisional bool) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
INSERT INTO topics(key, category, server, provisional, created_at, last_activity_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET last_activity_at = excluded.last_activity_at`,
		key, category, server, provisional, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert topic %s: %w", key, err)
	}
	return nil
}

// TouchTopic refreshes last_activity_at for an existing topic without
// otherwise creating or modifying it.
func (s *Store) TouchTopic(key string) error {
	_, err := s.db.Exec(`UPDATE topics SET last_activity_at = ? WHERE key = ?`, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("store: touch topic %s: %w", key, err)
	}
	return nil
}

// GetTopic reads a topic by key, nil if not found.
func (s *Store) GetTopic(key string) (*Topic, error) {
	row := s.db.QueryRow(`SELECT key, category, server, provisional, created_at, last_activity_at FROM topics WHERE key = ?`, key)
	var t Topic
	if err := row.Scan(&t.Key, &t.Category, &t.Server, &t.Provisional, &t.CreatedAt, &t.LastActivityAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get topic %s: %w", key, err)
	}
	return &t, nil
}

// ListInactiveTopics returns topics whose last_activity_at is older than
// cutoff, used by the decay sweep
func (s *Store) ListInactiveTopics(cutoff time.Time) ([]Topic, error) {
	rows, err := s.db.Query(`SELECT key, category, server, provisional, created_at, last_activity_at FROM topics WHERE last_activity_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list inactive topics: %w", err)
	}
	defer rows.Close()
	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.Key, &t.Category, &t.Server, &t.Provisional, &t.CreatedAt, &t.LastActivityAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTopicsByCategory returns every topic of a given category, optionally
// restricted to one server (empty server means global-only for global
// categories, or "any server" when server is "*").
func (s *Store) ListTopicsByCategory(category, server string) ([]Topic, error) {
	q := `SELECT key, category, server, provisional, created_at, last_activity_at FROM topics WHERE category = ?`
	args := []any{category}
	switch server {
	case "*":
		// no server filter: every server plus global
	case "":
		q += ` AND server = ''`
	default:
		q += ` AND server = ?`
		args = append(args, server)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list topics by category %s: %w", category, err)
	}
	defer rows.Close()
	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.Key, &t.Category, &t.Server, &t.Provisional, &t.CreatedAt, &t.LastActivityAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// KeysLike returns every topic key matching a SQL LIKE pattern, used for
// the global-user pattern scan over server:*:user:<id>.
func (s *Store) KeysLike(pattern string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM topics WHERE key LIKE ?`, pattern)
	if err != nil {
		return nil, fmt.Errorf("store: keys like %s: %w", pattern, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// RecordUserServerActivity records that user was observed active in
// server, for the two-distinct-servers global-warming trigger
// Returns the number of distinct servers the user has
// now been observed in.
func (s *Store) RecordUserServerActivity(userID, serverID string) (int, error) {
	_, err := s.db.Exec(`
INSERT INTO user_server_activity(user_id, server_id, first_seen_at) VALUES (?, ?, ?)
ON CONFLICT(user_id, server_id) DO NOTHING`, userID, serverID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: record user-server activity: %w", err)
	}
	row := s.db.QueryRow(`SELECT COUNT(DISTINCT server_id) FROM user_server_activity WHERE user_id = ?`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count user-server activity: %w", err)
	}
	return n, nil
}
