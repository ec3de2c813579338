package repository

// Schema definitions for the batch result store.
// Compatible with both SQLite and PostgreSQL.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS risk_batches (
    id TEXT PRIMARY KEY,
    phase TEXT NOT NULL,
    total INTEGER NOT NULL,
    scored INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    mean_score REAL NOT NULL,
    sanctions_matches INTEGER NOT NULL,
    summary TEXT NOT NULL,
    errors TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_batches_completed ON risk_batches(completed_at);
`

const schemaBatchEntries = `
CREATE TABLE IF NOT EXISTS risk_batch_entries (
    batch_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    customer_id TEXT NOT NULL,
    score INTEGER,
    band TEXT,
    payload TEXT NOT NULL,
    PRIMARY KEY (batch_id, position)
);

CREATE INDEX IF NOT EXISTS idx_risk_batch_entries_customer ON risk_batch_entries(customer_id);
CREATE INDEX IF NOT EXISTS idx_risk_batch_entries_band ON risk_batch_entries(batch_id, band);
`

// AllSchemas returns every schema statement in creation order.
func AllSchemas() []string {
	return []string{schemaBatches, schemaBatchEntries}
}
