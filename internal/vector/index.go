package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

const DefaultTopK = 3

var (
	ErrDuplicateID = errors.New("duplicate chunk id")
	ErrEmptyFilter = errors.New("delete requires a non-empty filter")
)

// Filter matches chunks whose metadata equals every key/value pair.
// An empty filter matches everything.
type Filter map[string]any

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Record is a chunk together with its embedding as handed to a Backend.
type Record struct {
	ID       string
	Text     string
	Metadata chunk.Metadata
	Vector   []float32
}

type Hit struct {
	Chunk chunk.Chunk
	Score float64
}

// Backend is a vector store holding one class of records per collection.
type Backend interface {
	EnsureClass(ctx context.Context, class string) error
	Put(ctx context.Context, class string, records []Record) error
	Query(ctx context.Context, class string, vector []float32, k int, filter Filter) ([]Hit, error)
	Delete(ctx context.Context, class string, filter Filter) (int, error)
	Count(ctx context.Context, class string, filter Filter) (int, error)
}

// UpsertError lists the records that were not stored, keyed by chunk id.
// Ids missing from Failed were written. Cause is set when a batch failed as
// a whole.
type UpsertError struct {
	Failed map[string]string
	Cause  error
}

func (e *UpsertError) Unwrap() error { return e.Cause }

func (e *UpsertError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+e.Failed[id])
	}
	return fmt.Sprintf("%d records rejected: %s", len(ids), strings.Join(parts, "; "))
}

type Config struct {
	// EmbedConcurrency bounds parallel embedding calls within one upsert.
	EmbedConcurrency int
	BatchSize        int
}

type Index struct {
	backend  Backend
	embedder Embedder
	cfg      Config

	mu          sync.Mutex
	collections map[string]*collectionSlot
}

type collectionSlot struct {
	mu   sync.Mutex
	coll *Collection
}

func NewIndex(backend Backend, embedder Embedder, cfg Config) *Index {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Index{
		backend:     backend,
		embedder:    embedder,
		cfg:         cfg,
		collections: make(map[string]*collectionSlot),
	}
}

// EnsureCollection returns the handle for name, creating the backing class
// on first use. Concurrent callers for the same name share one creation and
// existing data is never truncated. A failed creation is retried by the next
// caller.
func (ix *Index) EnsureCollection(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, errors.New("collection name is required")
	}

	ix.mu.Lock()
	slot, ok := ix.collections[name]
	if !ok {
		slot = &collectionSlot{}
		ix.collections[name] = slot
	}
	ix.mu.Unlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.coll != nil {
		return slot.coll, nil
	}
	if err := ix.backend.EnsureClass(ctx, name); err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", name, err)
	}
	slot.coll = &Collection{name: name, ix: ix}
	slog.InfoContext(ctx, "collection ready", "collection", name)
	return slot.coll, nil
}

// Collection is a named set of embedded chunks.
type Collection struct {
	name string
	ix   *Index
}

func (c *Collection) Name() string { return c.name }

// Upsert embeds every chunk and then writes them. Nothing is written when
// validation or any embedding fails. Write failures come back as an
// *UpsertError naming every chunk that was not stored.
func (c *Collection) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		if err := ch.Validate(); err != nil {
			return err
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.ix.cfg.EmbedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := c.ix.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := make(map[string]string)
	for start := 0; start < len(chunks); start += c.ix.cfg.BatchSize {
		end := min(start+c.ix.cfg.BatchSize, len(chunks))
		records := make([]Record, 0, end-start)
		for i := start; i < end; i++ {
			records = append(records, Record{
				ID:       chunks[i].ID,
				Text:     chunks[i].Text,
				Metadata: chunks[i].Metadata,
				Vector:   vectors[i],
			})
		}

		err := c.ix.backend.Put(ctx, c.name, records)
		var upErr *UpsertError
		switch {
		case err == nil:
		case errors.As(err, &upErr):
			for id, reason := range upErr.Failed {
				failed[id] = reason
			}
		default:
			// Earlier batches are already stored, so report what was not.
			cause := fmt.Errorf("write batch to %s: %w", c.name, err)
			for _, ch := range chunks[start:] {
				failed[ch.ID] = cause.Error()
			}
			slog.ErrorContext(ctx, "batch write failed", "collection", c.name,
				"stored", start, "not_stored", len(chunks)-start, "error", err)
			return &UpsertError{Failed: failed, Cause: cause}
		}
	}

	if len(failed) > 0 {
		return &UpsertError{Failed: failed}
	}
	slog.DebugContext(ctx, "upserted chunks", "collection", c.name, "count", len(chunks))
	return nil
}

// Search returns up to k chunks most similar to query, best first. Equal
// scores are ordered by ascending chunk id.
func (c *Collection) Search(ctx context.Context, query string, k int, filter Filter) ([]Hit, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := c.ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := c.ix.backend.Query(ctx, c.name, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes every chunk matching filter and reports how many went.
func (c *Collection) Delete(ctx context.Context, filter Filter) (int, error) {
	if len(filter) == 0 {
		return 0, ErrEmptyFilter
	}
	n, err := c.ix.backend.Delete(ctx, c.name, filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.name, err)
	}
	return n, nil
}

func (c *Collection) Count(ctx context.Context, filter Filter) (int, error) {
	n, err := c.ix.backend.Count(ctx, c.name, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

// SortHits orders hits by descending score, then ascending chunk id.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
}
