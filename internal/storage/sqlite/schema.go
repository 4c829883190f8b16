package sqlite

// Schema is the embedded SQLite schema. All statements are idempotent so
// opening an existing database is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS entity_documents (
    session_id TEXT PRIMARY KEY,
    revision   INTEGER NOT NULL,
    doc        TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
    session_id TEXT PRIMARY KEY,
    session    TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'active',
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated_at
    ON chat_sessions(updated_at);

CREATE TABLE IF NOT EXISTS entity_embeddings (
    session_id TEXT NOT NULL,
    entity_id  TEXT NOT NULL,
    model      TEXT NOT NULL,
    vector     TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, entity_id)
);
`
