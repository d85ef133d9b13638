package pgx

// Schema is the DDL this adapter expects. It is not applied automatically;
// run it with a migration tool of your choice before pointing a Log at a
// database.
const Schema = `
CREATE TABLE IF NOT EXISTS stream_meta (
	stream_id       text PRIMARY KEY,
	current_version text NOT NULL,
	last_txn_id     text
);

CREATE TABLE IF NOT EXISTS events (
	id         bigserial PRIMARY KEY,
	stream_id  text NOT NULL,
	version    text NOT NULL,
	event_type text NOT NULL,
	data       jsonb NOT NULL,
	ts         timestamptz NOT NULL,
	UNIQUE (stream_id, version)
);
CREATE INDEX IF NOT EXISTS events_stream_id_id_idx ON events (stream_id, id);

CREATE TABLE IF NOT EXISTS snapshots (
	stream_id text PRIMARY KEY,
	version   text NOT NULL,
	data      jsonb NOT NULL,
	ts        timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS subscription_cursors (
	subscriber    text NOT NULL,
	stream_filter text NOT NULL,
	last_id       bigint NOT NULL DEFAULT 0,
	PRIMARY KEY (subscriber, stream_filter)
);
`
