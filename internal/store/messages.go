package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertMessage persists a new message observation. If id is empty a
// time-sortable id is generated. Returns inserted=false when the id
// already existed (upsert-by-id), so callers can skip re-earning for a
// message they have already processed.
func (s *Store) InsertMessage(m *Message) (inserted bool, err error) {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.IngestedAt.IsZero() {
		m.IngestedAt = time.Now().UTC()
	}
	if m.Visibility == "" {
		m.Visibility = ScopePublic
	}
	res, err := s.db.Exec(`
INSERT INTO messages(id, channel_id, server_id, author_id, content, created_at, visibility, reply_to, thread_id, has_media, has_link, ingested_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		m.ID, m.ChannelID, m.ServerID, m.AuthorID, m.Content, m.CreatedAt, m.Visibility,
		m.ReplyTo, m.ThreadID, m.HasMedia, m.HasLink, m.IngestedAt)
	if err != nil {
		return false, fmt.Errorf("store: insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert message rows affected: %w", err)
	}
	return n > 0, nil
}

// SoftDeleteMessage marks a message deleted without removing the row.
func (s *Store) SoftDeleteMessage(id string) error {
	_, err := s.db.Exec(`UPDATE messages SET deleted_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: soft delete message %s: %w", id, err)
	}
	return nil
}

// GetMessage reads a single message by id, nil if not found.
func (s *Store) GetMessage(id string) (*Message, error) {
	row := s.db.QueryRow(`
SELECT id, channel_id, server_id, author_id, content, created_at, visibility, reply_to, thread_id, has_media, has_link, ingested_at, deleted_at
FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get message %s: %w", id, err)
	}
	return m, nil
}

// MessageFilter selects messages for fetch_messages nodes
type MessageFilter struct {
	ChannelID       string
	ServerID        string
	AuthorIDs       []string
	ThreadID        string
	ReplyAuthorID   string // messages whose reply-target's author is this id
	Since           time.Time
	ExcludeDeleted  bool
	Limit           int
}

// ListMessages returns messages matching filter, newest first.
func (s *Store) ListMessages(f MessageFilter) ([]Message, error) {
	q := `SELECT id, channel_id, server_id, author_id, content, created_at, visibility, reply_to, thread_id, has_media, has_link, ingested_at, deleted_at FROM messages WHERE 1=1`
	var args []any
	if f.ChannelID != "" {
		q += ` AND channel_id = ?`
		args = append(args, f.ChannelID)
	}
	if f.ServerID != "" {
		q += ` AND server_id = ?`
		args = append(args, f.ServerID)
	}
	if f.ThreadID != "" {
		q += ` AND thread_id = ?`
		args = append(args, f.ThreadID)
	}
	if len(f.AuthorIDs) > 0 {
		q += ` AND author_id IN (` + placeholders(len(f.AuthorIDs)) + `)`
		for _, a := range f.AuthorIDs {
			args = append(args, a)
		}
	}
	if !f.Since.IsZero() {
		q += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	if f.ExcludeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// RepliesByAuthorTo returns messages authored by replyAuthor whose
// reply-target was authored by targetAuthor within the channel/server,
// used by dyad message selection
func (s *Store) RepliesBetween(serverID, a, b string, since time.Time) ([]Message, error) {
	rows, err := s.db.Query(`
SELECT m.id, m.channel_id, m.server_id, m.author_id, m.content, m.created_at, m.visibility, m.reply_to, m.thread_id, m.has_media, m.has_link, m.ingested_at, m.deleted_at
FROM messages m
JOIN messages p ON m.reply_to = p.id
WHERE m.server_id = ? AND m.deleted_at IS NULL AND m.created_at >= ?
AND ((m.author_id = ? AND p.author_id = ?) OR (m.author_id = ? AND p.author_id = ?))
ORDER BY m.created_at DESC`, serverID, since, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("store: replies between %s/%s: %w", a, b, err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ThreadsSharedBetween returns thread ids where both a and b posted
// within the lookback window.
func (s *Store) ThreadsSharedBetween(serverID, a, b string, since time.Time) ([]string, error) {
	rows, err := s.db.Query(`
SELECT DISTINCT t1.thread_id
FROM messages t1
JOIN messages t2 ON t1.thread_id = t2.thread_id AND t1.thread_id != ''
WHERE t1.server_id = ? AND t1.created_at >= ? AND t1.author_id = ? AND t2.author_id = ?`,
		serverID, since, a, b)
	if err != nil {
		return nil, fmt.Errorf("store: shared threads %s/%s: %w", a, b, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ThreadsByChannel returns distinct thread ids observed under a channel.
func (s *Store) ThreadsByChannel(serverID, channelID string) ([]string, error) {
	rows, err := s.db.Query(`
SELECT DISTINCT thread_id FROM messages
WHERE server_id = ? AND channel_id = ? AND thread_id != ''`, serverID, channelID)
	if err != nil {
		return nil, fmt.Errorf("store: threads by channel %s: %w", channelID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var deletedAt sql.NullTime
	if err := row.Scan(&m.ID, &m.ChannelID, &m.ServerID, &m.AuthorID, &m.Content, &m.CreatedAt,
		&m.Visibility, &m.ReplyTo, &m.ThreadID, &m.HasMedia, &m.HasLink, &m.IngestedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	return &m, nil
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
