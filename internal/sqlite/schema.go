// Package sqlite implements the SQLite backend for the fiberplant Repository
// port. SQLite is the query engine; JSONL files in the data directory are the
// source of truth and are rewritten when an edit session commits.
package sqlite

// Schema DDL for all tables.
const (
	createClasses = `CREATE TABLE classes (
    class_name TEXT PRIMARY KEY COLLATE NOCASE,
    fields TEXT NOT NULL,
    geometry TEXT NOT NULL
);`

	createRelations = `CREATE TABLE relations (
    relation_name TEXT PRIMARY KEY COLLATE NOCASE,
    origin_class TEXT NOT NULL,
    dest_class TEXT NOT NULL
);`

	createRecords = `CREATE TABLE records (
    record_id TEXT PRIMARY KEY,
    class_name TEXT NOT NULL COLLATE NOCASE,
    attrs TEXT NOT NULL,
    shape TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createLinks = `CREATE TABLE links (
    link_id TEXT PRIMARY KEY,
    link_type TEXT NOT NULL COLLATE NOCASE,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    created_at TEXT NOT NULL
);`
)

// Index DDL for relationship lookups and class scans.
const (
	idxRecordsClass  = `CREATE INDEX idx_records_class ON records(class_name);`
	idxLinksUnique   = `CREATE UNIQUE INDEX idx_links_unique ON links(link_type, from_id, to_id);`
	idxLinksTypeFrom = `CREATE INDEX idx_links_type_from ON links(link_type, from_id);`
	idxLinksTypeTo   = `CREATE INDEX idx_links_type_to ON links(link_type, to_id);`
	idxLinksTo       = `CREATE INDEX idx_links_to ON links(to_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createClasses,
	createRelations,
	createRecords,
	createLinks,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxRecordsClass,
	idxLinksUnique,
	idxLinksTypeFrom,
	idxLinksTypeTo,
	idxLinksTo,
}
