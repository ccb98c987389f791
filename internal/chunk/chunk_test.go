package chunk_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

func TestNew_AssignsUniqueIDs(t *testing.T) {
	a := chunk.New("a", nil)
	b := chunk.New("a", nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Metadata)
}

func TestStableID(t *testing.T) {
	assert.Equal(t, chunk.StableID("doc-1", "0"), chunk.StableID("doc-1", "0"))
	assert.NotEqual(t, chunk.StableID("doc-1", "0"), chunk.StableID("doc-1", "1"))
	// separator keeps part boundaries significant
	assert.NotEqual(t, chunk.StableID("ab", "c"), chunk.StableID("a", "bc"))
}

func TestChunk_Validate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   chunk.Chunk
		wantErr bool
	}{
		{
			name:  "Valid document",
			chunk: chunk.NewWithID("1", "t", chunk.Metadata{"source_type": "document", "source": "a.pdf"}),
		},
		{
			name: "Valid code",
			chunk: chunk.NewWithID("1", "t", chunk.Metadata{
				"source_type": "code", "source": "a.py", "start_line": 3, "end_line": 3,
			}),
		},
		{
			name:    "Missing id",
			chunk:   chunk.NewWithID("", "t", chunk.Metadata{"source_type": "document", "source": "a"}),
			wantErr: true,
		},
		{
			name:    "Unknown source type",
			chunk:   chunk.NewWithID("1", "t", chunk.Metadata{"source_type": "web", "source": "a"}),
			wantErr: true,
		},
		{
			name:    "Missing source",
			chunk:   chunk.NewWithID("1", "t", chunk.Metadata{"source_type": "document"}),
			wantErr: true,
		},
		{
			name: "Inverted span",
			chunk: chunk.NewWithID("1", "t", chunk.Metadata{
				"source_type": "code", "source": "a.py", "start_line": 5, "end_line": 4,
			}),
			wantErr: true,
		},
		{
			name:    "Code without span",
			chunk:   chunk.NewWithID("1", "t", chunk.Metadata{"source_type": "code", "source": "a.py"}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, chunk.ErrInvalidChunk))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetadata_Matches(t *testing.T) {
	md := chunk.Metadata{
		"source_type":   "code",
		"start_line":    12,
		"has_docstring": true,
		"methods":       []string{"a", "b"},
	}

	assert.True(t, md.Matches(nil))
	assert.True(t, md.Matches(map[string]any{"source_type": "code"}))
	assert.True(t, md.Matches(map[string]any{"start_line": 12.0}))
	assert.True(t, md.Matches(map[string]any{"has_docstring": true}))
	assert.True(t, md.Matches(map[string]any{"methods": []any{"a", "b"}}))
	assert.False(t, md.Matches(map[string]any{"source_type": "document"}))
	assert.False(t, md.Matches(map[string]any{"repo_url": "x"}))
	assert.False(t, md.Matches(map[string]any{"start_line": "12"}))
}

func TestMetadata_JSONRoundTripAccessors(t *testing.T) {
	in := chunk.Metadata{"chunk_index": 4, "methods": []string{"run"}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out chunk.Metadata
	require.NoError(t, json.Unmarshal(raw, &out))

	idx, ok := out.Int("chunk_index")
	assert.True(t, ok)
	assert.Equal(t, 4, idx)
	assert.Equal(t, []string{"run"}, out.Strings("methods"))
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	orig := chunk.Metadata{"methods": []string{"a"}, "source": "x"}
	cp := orig.Clone()
	cp["source"] = "y"
	cp.Strings("methods")[0] = "z"

	assert.Equal(t, "x", orig.String("source"))
	assert.Equal(t, []string{"a"}, orig.Strings("methods"))
}
