package store

import "fmt"

// RecordSubjectSource ties a subject topic back to the message and topic
// that first surfaced it, so later retrieval can trace provenance.
func (s *Store) RecordSubjectSource(rec SubjectSource) error {
	_, err := s.db.Exec(`
INSERT INTO subject_sources(subject_topic_key, source_message_id, source_topic_key, run_id)
VALUES (?, ?, ?, ?)
ON CONFLICT(subject_topic_key, source_message_id, source_topic_key, run_id) DO NOTHING`,
		rec.SubjectTopicKey, rec.SourceMessageID, rec.SourceTopicKey, rec.RunID)
	if err != nil {
		return fmt.Errorf("store: record subject source for %s: %w", rec.SubjectTopicKey, err)
	}
	return nil
}

// ListSubjectSources returns every source recorded for a subject topic.
func (s *Store) ListSubjectSources(subjectTopicKey string) ([]SubjectSource, error) {
	rows, err := s.db.Query(`
SELECT subject_topic_key, source_message_id, source_topic_key, run_id
FROM subject_sources WHERE subject_topic_key = ?`, subjectTopicKey)
	if err != nil {
		return nil, fmt.Errorf("store: list subject sources for %s: %w", subjectTopicKey, err)
	}
	defer rows.Close()
	var out []SubjectSource
	for rows.Next() {
		var r SubjectSource
		if err := rows.Scan(&r.SubjectTopicKey, &r.SourceMessageID, &r.SourceTopicKey, &r.RunID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
