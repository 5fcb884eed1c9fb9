// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index keeps processed nodes in a SQLite database with an FTS5
// full-text index for review and lookup.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ragprep/pkg/types"
)

const dbFile = "nodes.db"

// Store manages the node index database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
}

// Open opens or creates dir/nodes.db and its schema.
func Open(cfg types.IndexConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = types.DefaultPipelineConfig().Index.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, dir: dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the directory holding the database and exports.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source_file TEXT,
			processed_at TEXT,
			pipeline_version TEXT,
			run_id TEXT,
			converter TEXT,
			page_count INTEGER,
			total_nodes INTEGER,
			domains TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			node_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			section TEXT,
			token_estimate INTEGER,
			domain TEXT,
			tags TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_doc_id ON nodes(doc_id)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_domain ON nodes(domain)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='nodes_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE nodes_fts USING fts5(
			content, section,
			content=nodes, content_rowid=rowid,
			tokenize='unicode61 remove_diacritics 2'
		)`,
		`CREATE TRIGGER nodes_ai AFTER INSERT ON nodes BEGIN
			INSERT INTO nodes_fts(rowid, content, section) VALUES (new.rowid, new.content, new.section);
		END`,
		`CREATE TRIGGER nodes_ad AFTER DELETE ON nodes BEGIN
			INSERT INTO nodes_fts(nodes_fts, rowid, content, section) VALUES('delete', old.rowid, old.content, old.section);
		END`,
		`CREATE TRIGGER nodes_au AFTER UPDATE ON nodes BEGIN
			INSERT INTO nodes_fts(nodes_fts, rowid, content, section) VALUES('delete', old.rowid, old.content, old.section);
			INSERT INTO nodes_fts(rowid, content, section) VALUES (new.rowid, new.content, new.section);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// Ingest replaces the stored nodes of out.DocID with out.Nodes in one
// transaction and returns the number of nodes written.
func (s *Store) Ingest(ctx context.Context, out *types.Output) (int, error) {
	if out.DocID == "" {
		return 0, fmt.Errorf("document has no doc_id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE doc_id = ?`, out.DocID); err != nil {
		return 0, fmt.Errorf("deleting old nodes: %w", err)
	}

	info := out.ProcessingInfo
	processedAt := ""
	if !info.ProcessedAt.IsZero() {
		processedAt = info.ProcessedAt.UTC().Format(time.RFC3339)
	}
	domainsJSON, _ := json.Marshal(nonNil(info.TaggingStats.DetectedDomains))
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, source_file, processed_at, pipeline_version, run_id, converter, page_count, total_nodes, domains)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source_file=excluded.source_file, processed_at=excluded.processed_at,
			pipeline_version=excluded.pipeline_version, run_id=excluded.run_id,
			converter=excluded.converter, page_count=excluded.page_count,
			total_nodes=excluded.total_nodes, domains=excluded.domains`,
		out.DocID, info.SourceFile, processedAt, info.PipelineVersion, info.RunID,
		info.Converter, info.PageCount, len(out.Nodes), string(domainsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("upserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (id, doc_id, node_index, content, section, token_estimate, domain, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range out.Nodes {
		tagsJSON, _ := json.Marshal(nonNil(n.Metadata.Tags))
		_, err := stmt.ExecContext(ctx,
			n.ID, out.DocID, n.Metadata.NodeIndex, n.Content, n.Section,
			n.Metadata.TokenEstimate, n.Metadata.Domain, string(tagsJSON),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing %s: %w", out.DocID, err)
	}
	return len(out.Nodes), nil
}

// Remove deletes a document and its nodes. It reports whether the
// document was present.
func (s *Store) Remove(ctx context.Context, docID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
	if err != nil {
		return false, fmt.Errorf("deleting %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DocumentSummary is one row of the documents table.
type DocumentSummary struct {
	ID          string   `json:"id" yaml:"id"`
	SourceFile  string   `json:"source_file" yaml:"source_file"`
	ProcessedAt string   `json:"processed_at" yaml:"processed_at"`
	TotalNodes  int      `json:"total_nodes" yaml:"total_nodes"`
	Domains     []string `json:"domains" yaml:"domains"`
}

// Documents lists indexed documents ordered by id.
func (s *Store) Documents(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_file, processed_at, total_nodes, domains FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentSummary
	for rows.Next() {
		var (
			d           DocumentSummary
			source      sql.NullString
			processedAt sql.NullString
			domainsJSON sql.NullString
		)
		if err := rows.Scan(&d.ID, &source, &processedAt, &d.TotalNodes, &domainsJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		d.SourceFile = source.String
		d.ProcessedAt = processedAt.String
		if domainsJSON.Valid {
			json.Unmarshal([]byte(domainsJSON.String), &d.Domains)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
