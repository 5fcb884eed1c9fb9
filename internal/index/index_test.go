// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ragprep/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.IndexConfig{Dir: filepath.Join(t.TempDir(), "index"), MaxResults: 20})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func node(docID string, i int, content, section, domain string, tags ...string) types.Node {
	return types.Node{
		ID:      types.NodeID(docID, i),
		Content: content,
		Section: section,
		Metadata: types.NodeMetadata{
			DocID: docID, NodeIndex: i, TokenEstimate: 10,
			Tags: tags, Domain: domain,
		},
	}
}

func output(docID string, nodes ...types.Node) *types.Output {
	return &types.Output{
		DocID: docID,
		Nodes: types.ToOutputNodes(nodes),
		ProcessingInfo: types.ProcessingInfo{
			SourceFile:      docID + ".pdf",
			ProcessedAt:     time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
			PipelineVersion: types.PipelineVersion,
			TotalNodes:      len(nodes),
			TaggingStats:    types.TaggingStats{DetectedDomains: []string{"Y học"}},
		},
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Ingest(ctx, output("tim_mach",
		node("tim_mach", 0, "Bệnh nhân tăng huyết áp cần theo dõi.", "Chương 1", "Y học", "Huyết áp"),
		node("tim_mach", 1, "Suy tim và rung nhĩ thường gặp ở người cao tuổi.", "Chương 2", "Y học", "Tim mạch", "Huyết áp"),
	))
	require.NoError(t, err)
	_, err = s.Ingest(ctx, output("ngan_hang",
		node("ngan_hang", 0, "Ngân hàng điều chỉnh lãi suất tiền gửi.", "", "Kinh tế - Tài chính", "Ngân hàng"),
	))
	require.NoError(t, err)
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "index")
	s, err := Open(types.IndexConfig{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "nodes.db"))
	assert.NoError(t, err)
	assert.Equal(t, dir, s.Dir())
	assert.Equal(t, 20, s.maxResults)
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(types.IndexConfig{Dir: dir})
	require.NoError(t, err)
	seed(t, s)
	require.NoError(t, s.Close())

	s, err = Open(types.IndexConfig{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Search(context.Background(), QueryOptions{Query: "lãi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ngan_hang_node_0000"}, ids(got))
}

func TestIngest_ReplacesDocument(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	n, err := s.Ingest(ctx, output("tim_mach", node("tim_mach", 0, "Nội dung mới về điện tâm đồ.", "", "Y học")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Search(ctx, QueryOptions{DocID: "tim_mach"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Nội dung mới về điện tâm đồ.", got[0].Content)
	assert.Equal(t, []string{}, got[0].Tags)

	stale, err := s.Search(ctx, QueryOptions{Query: "rung"})
	require.NoError(t, err)
	assert.Empty(t, stale, "replaced nodes must leave the FTS index")
}

func TestIngest_RequiresDocID(t *testing.T) {
	s := testStore(t)
	_, err := s.Ingest(context.Background(), &types.Output{})
	assert.Error(t, err)
}

func TestIngest_RollsBackOnDuplicateID(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	dup := node("tim_mach", 0, "Một.", "", "Y học")
	_, err := s.Ingest(ctx, output("tim_mach", dup, dup))
	require.Error(t, err)

	got, err := s.Search(ctx, QueryOptions{DocID: "tim_mach"})
	require.NoError(t, err)
	assert.Len(t, got, 2, "failed ingest must keep the previous nodes")
}

func TestSearch(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	tests := []struct {
		name string
		opts QueryOptions
		want []string
	}{
		{"full text", QueryOptions{Query: "huyết"}, []string{"tim_mach_node_0000"}},
		{"section column", QueryOptions{Query: "section:chương"}, []string{"tim_mach_node_0000", "tim_mach_node_0001"}},
		{"domain filter", QueryOptions{Domain: "Kinh tế - Tài chính"}, []string{"ngan_hang_node_0000"}},
		{"single tag", QueryOptions{Tags: []string{"Huyết áp"}}, []string{"tim_mach_node_0000", "tim_mach_node_0001"}},
		{"tags are ANDed", QueryOptions{Tags: []string{"Huyết áp", "Tim mạch"}}, []string{"tim_mach_node_0001"}},
		{"doc filter keeps order", QueryOptions{DocID: "tim_mach"}, []string{"tim_mach_node_0000", "tim_mach_node_0001"}},
		{"no filters lists all by doc", QueryOptions{}, []string{"ngan_hang_node_0000", "tim_mach_node_0000", "tim_mach_node_0001"}},
		{"limit", QueryOptions{MaxResults: 1}, []string{"ngan_hang_node_0000"}},
		{"query and domain", QueryOptions{Query: "tim", Domain: "Kinh tế - Tài chính"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(context.Background(), tt.opts)
			require.NoError(t, err)
			if tt.opts.Query != "" && len(tt.want) > 1 {
				assert.ElementsMatch(t, tt.want, ids(got))
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSearch_ResultFields(t *testing.T) {
	s := testStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), QueryOptions{Query: "rung"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "tim_mach", r.DocID)
	assert.Equal(t, 1, r.NodeIndex)
	assert.Equal(t, "Chương 2", r.Section)
	assert.Equal(t, "Y học", r.Domain)
	assert.Equal(t, []string{"Tim mạch", "Huyết áp"}, r.Tags)
	assert.Equal(t, "tim_mach.pdf", r.SourceFile)
	assert.Equal(t, 10, r.TokenEstimate)
}

func TestQueryOptions_IsEmpty(t *testing.T) {
	assert.True(t, QueryOptions{MaxResults: 5}.IsEmpty())
	assert.False(t, QueryOptions{Tags: []string{"x"}}.IsEmpty())
	assert.False(t, QueryOptions{DocID: "d"}.IsEmpty())
}

func TestRemoveAndDocuments(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "ngan_hang", docs[0].ID)
	assert.Equal(t, "2026-01-15T09:00:00Z", docs[1].ProcessedAt)
	assert.Equal(t, 2, docs[1].TotalNodes)
	assert.Equal(t, []string{"Y học"}, docs[1].Domains)

	removed, err := s.Remove(ctx, "tim_mach")
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := s.Search(ctx, QueryOptions{Query: "huyết"})
	require.NoError(t, err)
	assert.Empty(t, got)

	removed, err = s.Remove(ctx, "tim_mach")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestExport(t *testing.T) {
	s := testStore(t)
	seed(t, s)
	ctx := context.Background()

	yamlPath, err := s.ExportYAML(ctx, QueryOptions{Domain: "Y học"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "export.yaml"), yamlPath)
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML []Result
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, []string{"tim_mach_node_0000", "tim_mach_node_0001"}, ids(fromYAML))

	jsonPath, err := s.ExportJSON(ctx, QueryOptions{Domain: "Luật"})
	require.NoError(t, err)
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var fromJSON []Result
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.NotNil(t, fromJSON)
	assert.Empty(t, fromJSON)
}
