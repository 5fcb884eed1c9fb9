// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryOptions holds parameters for index queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string.
	Query string

	// Domain filters by the node's primary domain.
	Domain string

	// Tags filters by one or more tags with AND semantics.
	Tags []string

	// DocID filters by document.
	DocID string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Domain == "" && len(q.Tags) == 0 && q.DocID == ""
}

// Result is an indexed node with its document's source file.
type Result struct {
	ID            string   `json:"id" yaml:"id"`
	DocID         string   `json:"doc_id" yaml:"doc_id"`
	NodeIndex     int      `json:"node_index" yaml:"node_index"`
	Content       string   `json:"content" yaml:"content"`
	Section       string   `json:"section" yaml:"section"`
	TokenEstimate int      `json:"token_estimate" yaml:"token_estimate"`
	Domain        string   `json:"domain" yaml:"domain"`
	Tags          []string `json:"tags" yaml:"tags"`
	SourceFile    string   `json:"source_file,omitempty" yaml:"source_file,omitempty"`
}

// Search queries the index with optional full-text search and filters.
// Full-text results are ranked by relevance; filter-only results follow
// document order.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]Result, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = strings.TrimSpace(opts.Query) != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT n.id, n.doc_id, n.node_index, n.content, n.section,
				n.token_estimate, n.domain, n.tags, d.source_file
			FROM nodes_fts
			JOIN nodes n ON n.rowid = nodes_fts.rowid
			LEFT JOIN documents d ON n.doc_id = d.id
			WHERE nodes_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT n.id, n.doc_id, n.node_index, n.content, n.section,
				n.token_estimate, n.domain, n.tags, d.source_file
			FROM nodes n
			LEFT JOIN documents d ON n.doc_id = d.id
			WHERE 1=1`)
	}

	if opts.Domain != "" {
		qb.WriteString(` AND n.domain = ?`)
		args = append(args, opts.Domain)
	}
	if opts.DocID != "" {
		qb.WriteString(` AND n.doc_id = ?`)
		args = append(args, opts.DocID)
	}
	for _, tag := range opts.Tags {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(n.tags) WHERE value = ?)`)
		args = append(args, tag)
	}

	if useFTS {
		qb.WriteString(` ORDER BY nodes_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY n.doc_id, n.node_index`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			section  sql.NullString
			domain   sql.NullString
			tagsJSON sql.NullString
			source   sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.DocID, &r.NodeIndex, &r.Content, &section,
			&r.TokenEstimate, &domain, &tagsJSON, &source,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Section = section.String
		r.Domain = domain.String
		r.SourceFile = source.String
		r.Tags = []string{}
		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
