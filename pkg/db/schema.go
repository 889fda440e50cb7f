package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- News sources: crawl targets with rolling collection statistics
CREATE TABLE IF NOT EXISTS news_sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    url TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL DEFAULT 'General',
    description TEXT DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT 1,
    added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_collected TIMESTAMP,
    collection_count INTEGER NOT NULL DEFAULT 0,
    avg_articles_found REAL NOT NULL DEFAULT 0.0
);

CREATE INDEX IF NOT EXISTS idx_news_sources_active ON news_sources(active);

-- Collection batches: one record per URL-collection pass
CREATE TABLE IF NOT EXISTS collection_batches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    total_urls INTEGER NOT NULL DEFAULT 0,
    sources_count INTEGER NOT NULL DEFAULT 0,
    use_browser BOOLEAN NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT 0,
    error_message TEXT
);

-- Collected URLs: canonical article URLs discovered per batch.
-- The same URL may reappear across batches but never twice within one.
CREATE TABLE IF NOT EXISTS collected_urls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL,
    url TEXT NOT NULL,
    domain TEXT NOT NULL,
    collected_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    batch_id TEXT NOT NULL,
    used_in_pipeline BOOLEAN NOT NULL DEFAULT 0,
    pipeline_run_id TEXT,
    FOREIGN KEY (source_id) REFERENCES news_sources (id) ON DELETE CASCADE,
    FOREIGN KEY (batch_id) REFERENCES collection_batches (batch_id) ON DELETE CASCADE,
    UNIQUE(url, batch_id)
);

CREATE INDEX IF NOT EXISTS idx_collected_urls_source_id ON collected_urls(source_id);
CREATE INDEX IF NOT EXISTS idx_collected_urls_batch_id ON collected_urls(batch_id);
CREATE INDEX IF NOT EXISTS idx_collected_urls_domain ON collected_urls(domain);
CREATE INDEX IF NOT EXISTS idx_collected_urls_used ON collected_urls(used_in_pipeline);

-- Pipeline runs: one record per end-to-end pipeline execution
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'running',
    urls_processed INTEGER NOT NULL DEFAULT 0,
    summaries_generated INTEGER NOT NULL DEFAULT 0,
    model_used TEXT,
    use_browser BOOLEAN NOT NULL DEFAULT 0,
    error_message TEXT
);

-- Article summaries: keyed by source_file, the idempotency key.
-- Array-valued parsed fields are stored as JSON text.
CREATE TABLE IF NOT EXISTS article_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_file TEXT NOT NULL,
    source_url TEXT,
    processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    model_used TEXT NOT NULL,
    raw_response TEXT NOT NULL,

    summary TEXT,
    investment_implications TEXT,
    key_metrics TEXT,
    companies_mentioned TEXT,
    sectors_affected TEXT,
    sentiment TEXT,
    risk_factors TEXT,
    opportunities TEXT,
    time_horizon TEXT,
    confidence_score REAL,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    pipeline_run_id TEXT,
    url_id INTEGER,

    FOREIGN KEY (pipeline_run_id) REFERENCES pipeline_runs (run_id) ON DELETE SET NULL,
    FOREIGN KEY (url_id) REFERENCES collected_urls (id) ON DELETE SET NULL,
    UNIQUE(source_file)
);

CREATE INDEX IF NOT EXISTS idx_article_summaries_processed_at ON article_summaries(processed_at);
CREATE INDEX IF NOT EXISTS idx_article_summaries_sentiment ON article_summaries(sentiment);
CREATE INDEX IF NOT EXISTS idx_article_summaries_pipeline_run ON article_summaries(pipeline_run_id);
CREATE INDEX IF NOT EXISTS idx_article_summaries_url ON article_summaries(source_url);
`
