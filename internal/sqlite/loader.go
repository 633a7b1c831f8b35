// This file implements JSONL loading on attach and JSONL persistence on
// commit.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// tableMapping ties a JSONL file to its SQLite table. jsonColumns hold JSON
// text in SQLite and nested JSON values in the file.
type tableMapping struct {
	file        string
	table       string
	columns     []string
	jsonColumns map[string]bool
	orderBy     string
}

// jsonlTableMapping lists every persisted table. Classes and relations load
// before the records and links that reference them.
var jsonlTableMapping = []tableMapping{
	{
		file:        classesJSONL,
		table:       "classes",
		columns:     []string{"class_name", "fields", "geometry"},
		jsonColumns: map[string]bool{"fields": true},
		orderBy:     "class_name",
	},
	{
		file:    relationsJSONL,
		table:   "relations",
		columns: []string{"relation_name", "origin_class", "dest_class"},
		orderBy: "relation_name",
	},
	{
		file:        recordsJSONL,
		table:       "records",
		columns:     []string{"record_id", "class_name", "attrs", "shape", "created_at", "updated_at"},
		jsonColumns: map[string]bool{"attrs": true, "shape": true},
		orderBy:     "created_at, record_id",
	},
	{
		file:    linksJSONL,
		table:   "links",
		columns: []string{"link_id", "link_type", "from_id", "to_id", "created_at"},
		orderBy: "created_at, link_id",
	},
}

// loadAllJSONL reads each JSONL file from dataDir and inserts records into
// the corresponding SQLite table. Loading is transactional: all files load or
// the database stays empty. Malformed lines and rows that violate
// constraints are skipped; unknown fields are ignored.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range jsonlTableMapping {
		records, err := readJSONL(filepath.Join(dataDir, m.file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.file, err)
		}
		if len(records) == 0 {
			continue
		}
		if err := insertRecords(tx, m, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", m.file, m.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertRecords inserts parsed JSONL records into one SQLite table. Only
// columns listed in the mapping are extracted.
func insertRecords(tx *sql.Tx, m tableMapping, records []json.RawMessage) error {
	placeholders := make([]string, len(m.columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		m.table,
		strings.Join(m.columns, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", m.table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}

		args := make([]any, len(m.columns))
		for i, col := range m.columns {
			raw, ok := obj[col]
			if !ok || string(raw) == "null" {
				args[i] = nil
				continue
			}
			if m.jsonColumns[col] {
				args[i] = string(raw)
				continue
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				args[i] = nil
				continue
			}
			args[i] = v
		}

		if _, err := stmt.Exec(args...); err != nil {
			continue
		}
	}
	return nil
}

// persistAllJSONL rewrites every JSONL file from the committed database.
func persistAllJSONL(ctx context.Context, db *sql.DB, dataDir string) error {
	for _, m := range jsonlTableMapping {
		records, err := dumpTable(ctx, db, m)
		if err != nil {
			return err
		}
		if err := writeJSONL(filepath.Join(dataDir, m.file), records); err != nil {
			return fmt.Errorf("writing %s: %w", m.file, err)
		}
	}
	return nil
}

// dumpTable reads all rows of one table as JSONL records.
func dumpTable(ctx context.Context, db *sql.DB, m tableMapping) ([]json.RawMessage, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(m.columns, ", "), m.table, m.orderBy)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading %s for JSONL: %w", m.table, err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		vals := make([]sql.NullString, len(m.columns))
		ptrs := make([]any, len(m.columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s for JSONL: %w", m.table, err)
		}

		obj := make(map[string]any, len(m.columns))
		for i, col := range m.columns {
			switch {
			case !vals[i].Valid:
				obj[col] = nil
			case m.jsonColumns[col]:
				obj[col] = json.RawMessage(vals[i].String)
			default:
				obj[col] = vals[i].String
			}
		}
		rec, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("encoding %s record: %w", m.table, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
