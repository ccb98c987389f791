package vector_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

type fakeEmbedder struct {
	failOn string
	calls  atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("quota exceeded")
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeBackend struct {
	mu        sync.Mutex
	ensured   atomic.Int32
	ensureErr error
	puts      [][]vector.Record
	putErr    error
	putErrAt  int
	hits      []vector.Hit
	deleted   vector.Filter
}

func (f *fakeBackend) EnsureClass(_ context.Context, _ string) error {
	f.ensured.Add(1)
	return f.ensureErr
}

func (f *fakeBackend) Put(_ context.Context, _ string, records []vector.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, records)
	if f.putErrAt > 0 && len(f.puts) != f.putErrAt {
		return nil
	}
	return f.putErr
}

func (f *fakeBackend) Query(_ context.Context, _ string, _ []float32, _ int, _ vector.Filter) ([]vector.Hit, error) {
	return append([]vector.Hit(nil), f.hits...), nil
}

func (f *fakeBackend) Delete(_ context.Context, _ string, filter vector.Filter) (int, error) {
	f.deleted = filter
	return 2, nil
}

func (f *fakeBackend) Count(_ context.Context, _ string, _ vector.Filter) (int, error) {
	return 7, nil
}

var errConnReset = errors.New("connection reset")

func docChunk(id, text string) chunk.Chunk {
	return chunk.NewWithID(id, text, chunk.Metadata{"source_type": "document", "source": "a.txt"})
}

func TestIndex_EnsureCollection(t *testing.T) {
	backend := &fakeBackend{}
	ix := vector.NewIndex(backend, &fakeEmbedder{}, vector.Config{})

	var wg sync.WaitGroup
	handles := make([]*vector.Collection, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := ix.EnsureCollection(context.Background(), "DocAIChunk")
			assert.NoError(t, err)
			handles[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), backend.ensured.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}

	_, err := ix.EnsureCollection(context.Background(), "")
	assert.Error(t, err)
}

func TestIndex_EnsureCollectionRetriesAfterFailure(t *testing.T) {
	backend := &fakeBackend{ensureErr: errors.New("weaviate down")}
	ix := vector.NewIndex(backend, &fakeEmbedder{}, vector.Config{})

	_, err := ix.EnsureCollection(context.Background(), "DocAIChunk")
	require.Error(t, err)

	backend.ensureErr = nil
	c, err := ix.EnsureCollection(context.Background(), "DocAIChunk")
	require.NoError(t, err)
	assert.Equal(t, "DocAIChunk", c.Name())
	assert.Equal(t, int32(2), backend.ensured.Load())
}

func TestCollection_Upsert(t *testing.T) {
	tests := []struct {
		name     string
		chunks   []chunk.Chunk
		embedder *fakeEmbedder
		putErr   error
		putErrAt int
		wantErr  error
		wantPuts int
		checkErr func(t *testing.T, err error)
	}{
		{
			name:     "batches after embedding",
			chunks:   []chunk.Chunk{docChunk("a", "one"), docChunk("b", "two"), docChunk("c", "three")},
			embedder: &fakeEmbedder{},
			wantPuts: 2,
		},
		{
			name:     "empty input",
			embedder: &fakeEmbedder{},
		},
		{
			name:     "duplicate ids",
			chunks:   []chunk.Chunk{docChunk("a", "one"), docChunk("a", "two")},
			embedder: &fakeEmbedder{},
			wantErr:  vector.ErrDuplicateID,
		},
		{
			name:     "invalid chunk",
			chunks:   []chunk.Chunk{chunk.NewWithID("x", "t", chunk.Metadata{"source_type": "document"})},
			embedder: &fakeEmbedder{},
			wantErr:  chunk.ErrInvalidChunk,
		},
		{
			name:     "embedding failure stores nothing",
			chunks:   []chunk.Chunk{docChunk("a", "one"), docChunk("b", "boom")},
			embedder: &fakeEmbedder{failOn: "boom"},
			checkErr: func(t *testing.T, err error) { assert.ErrorContains(t, err, "quota exceeded") },
		},
		{
			name:     "per-object rejections",
			chunks:   []chunk.Chunk{docChunk("a", "one")},
			embedder: &fakeEmbedder{},
			putErr:   &vector.UpsertError{Failed: map[string]string{"a": "invalid vector"}},
			wantPuts: 1,
			checkErr: func(t *testing.T, err error) {
				var upErr *vector.UpsertError
				require.ErrorAs(t, err, &upErr)
				assert.Equal(t, "invalid vector", upErr.Failed["a"])
				assert.Contains(t, err.Error(), "a: invalid vector")
			},
		},
		{
			name:     "later batch transport failure",
			chunks:   []chunk.Chunk{docChunk("a", "one"), docChunk("b", "two"), docChunk("c", "three"), docChunk("d", "four"), docChunk("e", "five")},
			embedder: &fakeEmbedder{},
			putErr:   errConnReset,
			putErrAt: 2,
			wantPuts: 2,
			checkErr: func(t *testing.T, err error) {
				var upErr *vector.UpsertError
				require.ErrorAs(t, err, &upErr)
				assert.ErrorIs(t, err, errConnReset)
				assert.Len(t, upErr.Failed, 3)
				for _, id := range []string{"c", "d", "e"} {
					assert.Contains(t, upErr.Failed, id)
				}
				assert.NotContains(t, upErr.Failed, "a")
				assert.NotContains(t, upErr.Failed, "b")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{putErr: tt.putErr, putErrAt: tt.putErrAt}
			ix := vector.NewIndex(backend, tt.embedder, vector.Config{BatchSize: 2, EmbedConcurrency: 2})
			coll, err := ix.EnsureCollection(context.Background(), "DocAIChunk")
			require.NoError(t, err)

			err = coll.Upsert(context.Background(), tt.chunks)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.checkErr != nil:
				tt.checkErr(t, err)
			default:
				assert.NoError(t, err)
			}
			assert.Len(t, backend.puts, tt.wantPuts)

			if tt.name == "batches after embedding" {
				assert.Len(t, backend.puts[0], 2)
				assert.Equal(t, "c", backend.puts[1][0].ID)
				assert.Equal(t, []float32{5, 1}, backend.puts[1][0].Vector)
				assert.Equal(t, "a.txt", backend.puts[0][0].Metadata.String("source"))
			}
		})
	}
}

func TestCollection_SearchOrdering(t *testing.T) {
	backend := &fakeBackend{hits: []vector.Hit{
		{Chunk: docChunk("c", "x"), Score: 0.5},
		{Chunk: docChunk("b", "x"), Score: 0.9},
		{Chunk: docChunk("a", "x"), Score: 0.5},
		{Chunk: docChunk("d", "x"), Score: 0.1},
	}}
	ix := vector.NewIndex(backend, &fakeEmbedder{}, vector.Config{})
	coll, err := ix.EnsureCollection(context.Background(), "DocAIChunk")
	require.NoError(t, err)

	hits, err := coll.Search(context.Background(), "question", 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, vector.DefaultTopK)
	assert.Equal(t, []string{"b", "a", "c"}, []string{hits[0].Chunk.ID, hits[1].Chunk.ID, hits[2].Chunk.ID})

	hits, err = coll.Search(context.Background(), "question", 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestCollection_DeleteAndCount(t *testing.T) {
	backend := &fakeBackend{}
	ix := vector.NewIndex(backend, &fakeEmbedder{}, vector.Config{})
	coll, err := ix.EnsureCollection(context.Background(), "DocAIChunk")
	require.NoError(t, err)

	_, err = coll.Delete(context.Background(), vector.Filter{})
	assert.ErrorIs(t, err, vector.ErrEmptyFilter)
	assert.Nil(t, backend.deleted)

	n, err := coll.Delete(context.Background(), vector.Filter{"document_id": "d1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, vector.Filter{"document_id": "d1"}, backend.deleted)

	n, err = coll.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
