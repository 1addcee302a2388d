package store

// migration is one forward-only step applied inside a transaction.
// Generalizes the teacher's best-effort ALTER TABLE calls into an
// auditable, versioned sequence.
type migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema: topics, ledger, messages, insights, runs, calls",
		Up: `
CREATE TABLE IF NOT EXISTS topics (
	key TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	server TEXT NOT NULL DEFAULT '',
	provisional BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_activity_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_topics_category ON topics(category);
CREATE INDEX IF NOT EXISTS idx_topics_server ON topics(server);
CREATE INDEX IF NOT EXISTS idx_topics_last_activity ON topics(last_activity_at);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	topic_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	amount REAL NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	source_topic TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ledger_topic ON ledger_entries(topic_key);
CREATE INDEX IF NOT EXISTS idx_ledger_topic_time ON ledger_entries(topic_key, created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger_entries(created_at);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	server_id TEXT NOT NULL DEFAULT '',
	author_id TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	visibility TEXT NOT NULL DEFAULT 'public',
	reply_to TEXT NOT NULL DEFAULT '',
	thread_id TEXT NOT NULL DEFAULT '',
	has_media BOOLEAN NOT NULL DEFAULT 0,
	has_link BOOLEAN NOT NULL DEFAULT 0,
	ingested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	deleted_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_author ON messages(author_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_reply ON messages(reply_to);

CREATE TABLE IF NOT EXISTS insights (
	id TEXT PRIMARY KEY,
	topic_key TEXT NOT NULL,
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	sources_scope_max TEXT NOT NULL DEFAULT 'public',
	created_at DATETIME NOT NULL,
	run_id TEXT NOT NULL,
	salience_spent REAL NOT NULL DEFAULT 0,
	strength_adjustment REAL NOT NULL DEFAULT 1,
	strength REAL NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 0,
	importance REAL NOT NULL DEFAULT 0,
	novelty REAL NOT NULL DEFAULT 0,
	joy REAL,
	concern REAL,
	curiosity REAL,
	warmth REAL,
	tension REAL,
	supersedes TEXT NOT NULL DEFAULT '',
	quarantined BOOLEAN NOT NULL DEFAULT 0,
	conflict_resolved BOOLEAN NOT NULL DEFAULT 0,
	context_channel TEXT NOT NULL DEFAULT '',
	context_thread TEXT NOT NULL DEFAULT '',
	context_subject TEXT NOT NULL DEFAULT '',
	participants TEXT NOT NULL DEFAULT '',
	conflicts_with TEXT NOT NULL DEFAULT '',
	synthesis_sources TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_insights_topic_created ON insights(topic_key, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_topic_strength ON insights(topic_key, strength);
CREATE INDEX IF NOT EXISTS idx_insights_topic_category ON insights(topic_key, category);
CREATE INDEX IF NOT EXISTS idx_insights_run ON insights(run_id);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	layer_name TEXT NOT NULL,
	layer_content_hash TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	ended_at DATETIME,
	status TEXT NOT NULL DEFAULT 'dry',
	targets_matched INTEGER NOT NULL DEFAULT 0,
	targets_processed INTEGER NOT NULL DEFAULT 0,
	targets_skipped INTEGER NOT NULL DEFAULT 0,
	insights_created INTEGER NOT NULL DEFAULT 0,
	model_profile TEXT NOT NULL DEFAULT '',
	model_provider TEXT NOT NULL DEFAULT '',
	model_name TEXT NOT NULL DEFAULT '',
	tokens_in INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	tokens_total INTEGER NOT NULL DEFAULT 0,
	estimated_cost REAL NOT NULL DEFAULT 0,
	errors_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_runs_layer ON runs(layer_name, started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS calls (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	profile TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL DEFAULT '',
	response TEXT NOT NULL DEFAULT '',
	tokens_in INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	estimated_cost REAL NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL DEFAULT 1,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_calls_run ON calls(run_id);

CREATE TABLE IF NOT EXISTS subject_sources (
	subject_topic_key TEXT NOT NULL,
	source_message_id TEXT NOT NULL,
	source_topic_key TEXT NOT NULL,
	run_id TEXT NOT NULL,
	PRIMARY KEY (subject_topic_key, source_message_id, source_topic_key, run_id)
);
CREATE INDEX IF NOT EXISTS idx_subject_sources_subject ON subject_sources(subject_topic_key);

CREATE TABLE IF NOT EXISTS user_server_activity (
	user_id TEXT NOT NULL,
	server_id TEXT NOT NULL,
	first_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, server_id)
);

CREATE TABLE IF NOT EXISTS scheduled_layers (
	layer_name TEXT PRIMARY KEY,
	last_status TEXT NOT NULL DEFAULT '',
	last_run_at DATETIME,
	last_run_id TEXT NOT NULL DEFAULT '',
	run_count INTEGER NOT NULL DEFAULT 0,
	signal_baseline INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}
