package postgres

// Schema is the embedded PostgreSQL schema. All statements use IF NOT
// EXISTS so applying it on an existing database is safe. The pgvector
// column is added separately once the extension is confirmed present.
const Schema = `
CREATE TABLE IF NOT EXISTS entity_documents (
    session_id TEXT PRIMARY KEY,
    revision   BIGINT NOT NULL,
    doc        JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
    session_id TEXT PRIMARY KEY,
    session    JSONB NOT NULL,
    status     TEXT NOT NULL DEFAULT 'active',
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated_at
    ON chat_sessions(updated_at);

CREATE TABLE IF NOT EXISTS entity_embeddings (
    session_id TEXT NOT NULL,
    entity_id  TEXT NOT NULL,
    model      TEXT NOT NULL,
    vector     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, entity_id)
);
`

// VectorColumn adds the pgvector column used for cosine-distance queries.
// Executed only when the vector extension is available.
const VectorColumn = `
ALTER TABLE entity_embeddings ADD COLUMN IF NOT EXISTS vector_vec vector
`
