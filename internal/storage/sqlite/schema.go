package sqlite

const schema = `
-- Projects table
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE CHECK(length(name) > 0),
    stack TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Sessions table
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    session_id TEXT NOT NULL CHECK(length(session_id) > 0),
    type TEXT NOT NULL DEFAULT 'feature' CHECK(type IN ('blueprint', 'feature')),
    status TEXT NOT NULL DEFAULT 'draft',
    owner TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (project_id, session_id),
    FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

-- Artifacts table
-- idse_id is the stable natural key {project}::{session}::{stage}; it and
-- created_at never change after the first write. content_hash and
-- fingerprint are recomputed on every write.
CREATE TABLE IF NOT EXISTS artifacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    stage TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    idse_id TEXT NOT NULL UNIQUE,
    fingerprint TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (session_id, stage),
    FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_stage ON artifacts(stage);
CREATE INDEX IF NOT EXISTS idx_artifacts_content_hash ON artifacts(content_hash);

-- Artifact dependencies (edge schema). Only the upstream direction is
-- stored; downstream is derived by query.
CREATE TABLE IF NOT EXISTS artifact_dependencies (
    artifact_id INTEGER NOT NULL,
    depends_on_artifact_id INTEGER NOT NULL,
    dependency_type TEXT NOT NULL DEFAULT 'upstream',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (artifact_id, depends_on_artifact_id),
    FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE,
    FOREIGN KEY (depends_on_artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_artifact_deps_artifact ON artifact_dependencies(artifact_id);
CREATE INDEX IF NOT EXISTS idx_artifact_deps_depends_on ON artifact_dependencies(depends_on_artifact_id);

-- Sync metadata: per-artifact, per-backend bookkeeping for hash-gated
-- idempotent sync. Rows cascade with artifact deletion and are otherwise
-- never deleted.
CREATE TABLE IF NOT EXISTS sync_metadata (
    artifact_id INTEGER NOT NULL,
    backend TEXT NOT NULL,
    last_push_hash TEXT NOT NULL DEFAULT '',
    last_push_at DATETIME,
    last_pull_hash TEXT NOT NULL DEFAULT '',
    last_pull_at DATETIME,
    remote_id TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (artifact_id, backend),
    FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sync_metadata_remote ON sync_metadata(backend, remote_id);

-- Session tags: unordered bag used to derive optional remote properties
-- (layer, run_scope, version, capability).
CREATE TABLE IF NOT EXISTS session_tags (
    session_id INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (session_id, key),
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Session state: per-session JSON blob keyed by stage. The DB copy is
-- authoritative; file views are regenerated from it.
CREATE TABLE IF NOT EXISTS session_state (
    session_id INTEGER PRIMARY KEY,
    state TEXT NOT NULL DEFAULT '{}',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Components parsed from implementation artifacts. parent_primitives is a
-- JSON array and must be non-empty (artifact -> component -> primitive chain).
CREATE TABLE IF NOT EXISTS components (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'operation',
    source_file TEXT NOT NULL DEFAULT '',
    parent_primitives TEXT NOT NULL DEFAULT '[]',
    last_seen_in_session TEXT NOT NULL DEFAULT '',
    last_updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Promotion records: append-only audit of every gate decision, allow or
-- deny. Rows are never mutated or deleted.
CREATE TABLE IF NOT EXISTS promotion_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    candidate_claim_text TEXT NOT NULL,
    classification TEXT NOT NULL,
    evidence_hash TEXT NOT NULL,
    source_sessions TEXT NOT NULL DEFAULT '[]',
    source_stages TEXT NOT NULL DEFAULT '[]',
    feedback_artifacts TEXT NOT NULL DEFAULT '[]',
    decision TEXT NOT NULL CHECK(decision IN ('allow', 'deny')),
    reasons TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE INDEX IF NOT EXISTS idx_promotion_records_project ON promotion_records(project_id);

-- Blueprint claims: dual-entry lifecycle. Converged claims always carry a
-- promotion record; declared claims never do.
CREATE TABLE IF NOT EXISTS blueprint_claims (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    classification TEXT NOT NULL,
    claim_text TEXT NOT NULL,
    origin TEXT NOT NULL CHECK(origin IN ('declared', 'converged')),
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'superseded', 'invalidated')),
    promotion_record_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    superseded_by INTEGER,
    FOREIGN KEY (project_id) REFERENCES projects(id),
    FOREIGN KEY (promotion_record_id) REFERENCES promotion_records(id),
    CHECK (
        (origin = 'converged' AND promotion_record_id IS NOT NULL) OR
        (origin = 'declared' AND promotion_record_id IS NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_claims_project ON blueprint_claims(project_id);
-- Active claim text is unique per project; terminal rows may repeat.
CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_active_text
    ON blueprint_claims(project_id, claim_text) WHERE status = 'active';

-- Claim lifecycle events (append-only audit trail). Reinforcement is
-- recorded as active -> active with a non-empty reason.
CREATE TABLE IF NOT EXISTS claim_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    claim_id INTEGER NOT NULL,
    old_status TEXT NOT NULL DEFAULT '',
    new_status TEXT NOT NULL,
    reason TEXT NOT NULL CHECK(length(reason) > 0),
    actor TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (claim_id) REFERENCES blueprint_claims(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_claim_events_claim ON claim_events(claim_id);

-- Feedback signals attached to artifacts. A contradiction signal on any
-- evidence artifact blocks promotion.
CREATE TABLE IF NOT EXISTS feedback_signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    artifact_id INTEGER NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('contradiction', 'support')),
    note TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_feedback_signals_artifact ON feedback_signals(artifact_id);

-- Migration markers: one row per applied migration.
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
