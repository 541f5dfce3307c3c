package store

const schema = `
CREATE TABLE IF NOT EXISTS trend_queries (
    id         TEXT PRIMARY KEY,
    industry   TEXT NOT NULL,
    region     TEXT NOT NULL,
    persona    TEXT NOT NULL,
    date_range TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queries_status ON trend_queries(status);
CREATE INDEX IF NOT EXISTS idx_queries_created_at ON trend_queries(created_at);
CREATE INDEX IF NOT EXISTS idx_queries_params ON trend_queries(industry, region, persona, date_range);

CREATE TABLE IF NOT EXISTS trend_results (
    id               TEXT PRIMARY KEY,
    query_id         TEXT NOT NULL REFERENCES trend_queries(id),
    version          INTEGER NOT NULL DEFAULT 1,
    topic            TEXT NOT NULL,
    summary          TEXT NOT NULL DEFAULT '',
    sources          TEXT NOT NULL DEFAULT '{}',
    engagement_score REAL NOT NULL DEFAULT 0,
    freshness_score  REAL NOT NULL DEFAULT 0,
    relevance_score  REAL NOT NULL DEFAULT 0,
    final_score      REAL NOT NULL DEFAULT 0,
    suggested_angles TEXT NOT NULL DEFAULT '[]',
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_query ON trend_results(query_id);
CREATE INDEX IF NOT EXISTS idx_results_query_version ON trend_results(query_id, version);
CREATE INDEX IF NOT EXISTS idx_results_final_score ON trend_results(final_score);

CREATE TABLE IF NOT EXISTS subscriptions (
    id         TEXT PRIMARY KEY,
    query_id   TEXT NOT NULL REFERENCES trend_queries(id),
    email      TEXT NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions(active);
CREATE INDEX IF NOT EXISTS idx_subscriptions_query ON subscriptions(query_id);
`
