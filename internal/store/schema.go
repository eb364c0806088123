package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS budgets (
    scope                TEXT PRIMARY KEY,
    data                 TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bill_snapshots (
    bill_id              TEXT PRIMARY KEY,
    project_id           TEXT NOT NULL,
    period               TEXT,
    created_at           TEXT NOT NULL,
    data                 TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS billed_documents (
    document_id          TEXT PRIMARY KEY,
    bill_id              TEXT NOT NULL REFERENCES bill_snapshots(bill_id) ON DELETE CASCADE,
    kind                 TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS charts (
    project_id           TEXT PRIMARY KEY,
    data                 TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS change_orders (
    project_id           TEXT NOT NULL,
    uuid                 TEXT NOT NULL,
    position             INTEGER NOT NULL,
    name                 TEXT NOT NULL,
    subtotal             TEXT NOT NULL,
    content              TEXT NOT NULL,
    PRIMARY KEY (project_id, uuid)
);

CREATE INDEX IF NOT EXISTS idx_bill_snapshots_project ON bill_snapshots(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_billed_documents_bill ON billed_documents(bill_id);
`
