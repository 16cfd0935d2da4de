package store

const schema = `
CREATE TABLE IF NOT EXISTS swarms (
	swarm_id TEXT PRIMARY KEY,
	feature TEXT NOT NULL,
	manifest_path TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('created', 'running', 'complete', 'failed')),
	auto_merge INTEGER NOT NULL DEFAULT 0,
	notify_on_complete INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS workers (
	worker_id INTEGER PRIMARY KEY AUTOINCREMENT,
	swarm_id TEXT NOT NULL,
	packet_id INTEGER NOT NULL,
	packet_name TEXT NOT NULL,
	worktree TEXT,
	status TEXT NOT NULL CHECK(status IN ('registered', 'running', 'complete', 'failed')),
	tasks_total INTEGER NOT NULL,
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	final_commit TEXT,
	tests_passed INTEGER,
	review_passed INTEGER,
	registered_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT,
	FOREIGN KEY (swarm_id) REFERENCES swarms(swarm_id) ON DELETE CASCADE,
	UNIQUE(swarm_id, packet_id)
);

CREATE TABLE IF NOT EXISTS events (
	event_id INTEGER PRIMARY KEY AUTOINCREMENT,
	swarm_id TEXT NOT NULL,
	event_type TEXT NOT NULL CHECK(event_type IN (
		'worker_registered', 'progress', 'worker_complete',
		'worker_error', 'all_complete', 'heartbeat'
	)),
	packet_id INTEGER,
	task_id TEXT,
	task_name TEXT,
	commit_sha TEXT,
	error_type TEXT,
	error_message TEXT,
	recoverable INTEGER,
	event_data TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY (swarm_id) REFERENCES swarms(swarm_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_swarms_status ON swarms(status);
CREATE INDEX IF NOT EXISTS idx_swarms_created_at ON swarms(created_at);
CREATE INDEX IF NOT EXISTS idx_workers_swarm_status ON workers(swarm_id, status);
CREATE INDEX IF NOT EXISTS idx_workers_packet ON workers(swarm_id, packet_id);
CREATE INDEX IF NOT EXISTS idx_events_swarm ON events(swarm_id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
`
