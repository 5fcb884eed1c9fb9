// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "hyphenated word across lines",
			input: "công nghệ thông tin kỹ thuật-\nsố hóa",
			want:  "công nghệ thông tin kỹ thuậtsố hóa",
		},
		{
			name:  "sentence continued on lowercase line",
			input: "Đây là một câu bị\nngắt dòng giữa chừng.",
			want:  "Đây là một câu bị ngắt dòng giữa chừng.",
		},
		{
			name:  "chain of broken lines",
			input: "Một câu\nbị ngắt\nnhiều lần.",
			want:  "Một câu bị ngắt nhiều lần.",
		},
		{
			name:  "punctuated line end is preserved",
			input: "Câu thứ nhất.\nthứ hai viết thường.",
			want:  "Câu thứ nhất.\nthứ hai viết thường.",
		},
		{
			name:  "headings and lists untouched",
			input: "# Tiêu đề\ncon chữ\n- mục một\nmục hai",
			want:  "# Tiêu đề\ncon chữ\n- mục một\nmục hai",
		},
		{
			name:  "missing space after period before capital",
			input: "Đây là văn bản.Có lỗi về khoảng cách.",
			want:  "Đây là văn bản. Có lỗi về khoảng cách.",
		},
		{
			name:  "missing space after comma",
			input: "Hà Nội,Huế,Đà Nẵng",
			want:  "Hà Nội, Huế, Đà Nẵng",
		},
		{
			name:  "zero read as letter o",
			input: "0ption và Hell0",
			want:  "Option và Hello",
		},
		{
			name:  "viet nam spacing",
			input: "Việt   Nam và VIỆT  NAM",
			want:  "Việt Nam và VIỆT NAM",
		},
		{
			name:  "curly quotes and dashes",
			input: "“Xin chào” – ‘bạn’ — nhé",
			want:  `"Xin chào" - 'bạn' - nhé`,
		},
		{
			name:  "ellipsis kept and repeats collapsed",
			input: "Chờ đã..... Thật sao?? Tuyệt!!! Hết..",
			want:  "Chờ đã... Thật sao? Tuyệt! Hết.",
		},
		{
			name:  "space before punctuation removed",
			input: "Kết quả , rất tốt !",
			want:  "Kết quả, rất tốt!",
		},
		{
			name:  "decimal and time untouched",
			input: "Giá trị 3,5 lúc 10:30",
			want:  "Giá trị 3,5 lúc 10:30",
		},
		{
			name:  "three newlines become two",
			input: "A.\n\n\n\nB.",
			want:  "A.\n\nB.",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeComposesDiacritics(t *testing.T) {
	decomposed := norm.NFD.String("Tiếng Việt có dấu")
	require.NotEqual(t, "Tiếng Việt có dấu", decomposed)

	assert.Equal(t, "Tiếng Việt có dấu", Normalize(decomposed))
}

func TestNormalizeIdempotent(t *testing.T) {
	input := "# Mở đầu\n\nĐây là đoạn\nvăn bản,có lỗi .Và “trích dẫn”...\n\n- mục\n"
	once := Normalize(input)
	assert.Equal(t, once, Normalize(once))
}

func TestNormalizeLeavesFencedCode(t *testing.T) {
	input := "```\nfoo\nbar baz\n```"
	assert.Equal(t, input, Normalize(input))
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	require.NotEmpty(t, table.Rules)
	for _, r := range table.Rules {
		assert.NotEmpty(t, r.Name)
		assert.NotEmpty(t, r.Pattern)
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - name: ocr-rn
    pattern: 'rn(?:g)'
    replace: 'm'
`), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	require.Len(t, table.Rules, 1)

	n, err := New(table)
	require.NoError(t, err)
	assert.Equal(t, "hello m", n.Normalize("hello  rng"))
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New(Table{Rules: []Rule{{Name: "broken", Pattern: "([a-z"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestLoadTableMissingFile(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
