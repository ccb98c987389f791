package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSplitter(t *testing.T, size, overlap int) *RecursiveSplitter {
	t.Helper()
	s, err := NewRecursiveSplitter(size, overlap)
	require.NoError(t, err)
	return s
}

func TestRecursiveSplitter(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		want    []Piece
	}{
		{
			name: "fits in one piece",
			size: 100,
			text: "This is a simple paragraph.",
			want: []Piece{{Text: "This is a simple paragraph.", Start: 0}},
		},
		{
			name: "words without overlap",
			size: 10,
			text: "aaaa bbbb cccc",
			want: []Piece{{Text: "aaaa bbbb", Start: 0}, {Text: "cccc", Start: 10}},
		},
		{
			name:    "words with overlap",
			size:    10,
			overlap: 5,
			text:    "aaaa bbbb cccc dddd",
			want: []Piece{
				{Text: "aaaa bbbb", Start: 0},
				{Text: "bbbb cccc", Start: 5},
				{Text: "cccc dddd", Start: 10},
			},
		},
		{
			name: "paragraphs preferred",
			size: 20,
			text: "para one here\n\npara two here",
			want: []Piece{{Text: "para one here", Start: 0}, {Text: "para two here", Start: 15}},
		},
		{
			name: "hard cut without separators",
			size: 4,
			text: "abcdefghij",
			want: []Piece{{Text: "abcd", Start: 0}, {Text: "efgh", Start: 4}, {Text: "ij", Start: 8}},
		},
		{
			name: "sizes and offsets count runes",
			size: 3,
			text: "éé\n\nab",
			want: []Piece{{Text: "éé", Start: 0}, {Text: "ab", Start: 4}},
		},
		{
			name: "empty",
			size: 10,
			text: "",
			want: []Piece{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newSplitter(t, tt.size, tt.overlap).Split(tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecursiveSplitter_Invariants(t *testing.T) {
	text := strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit.\n", 60) +
		"\n\n" + strings.Repeat("Ünïcödé wörds ", 150)
	s := newSplitter(t, 1000, 200)

	first := s.Split(text)
	require.NotEmpty(t, first)
	assert.Equal(t, first, s.Split(text), "splitting is deterministic")

	runes := []rune(text)
	for i, p := range first {
		n := utf8.RuneCountInString(p.Text)
		assert.LessOrEqual(t, n, 1000, "piece %d too long", i)
		require.GreaterOrEqual(t, p.Start, 0, "piece %d not located", i)
		assert.Equal(t, p.Text, string(runes[p.Start:p.Start+n]), "piece %d offset", i)
		if i > 0 {
			assert.Greater(t, p.Start, first[i-1].Start)
		}
	}
}

func TestNewRecursiveSplitter_Invalid(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {10, 10}, {10, -1}, {-5, 0}} {
		_, err := NewRecursiveSplitter(tc.size, tc.overlap)
		assert.Error(t, err, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}
