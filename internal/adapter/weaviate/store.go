package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

// overFetch multiplies the query limit when part of the filter can only be
// applied after decoding metadata_json.
const overFetch = 10

// Store is the Weaviate vector.Backend. Each collection is a class with
// vectorizer "none"; vectors are always supplied by the caller.
type Store struct {
	client *weaviate.Client
	schema vector.SchemaClient
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client, schema: NewSchemaAdapter(client)}
}

func (s *Store) EnsureClass(ctx context.Context, class string) error {
	return vector.EnsureSchema(ctx, s.schema, class)
}

func (s *Store) Put(ctx context.Context, class string, records []vector.Record) error {
	objs := make([]*models.Object, 0, len(records))
	for _, r := range records {
		props, err := properties(r)
		if err != nil {
			return err
		}
		objs = append(objs, &models.Object{
			Class:      class,
			ID:         strfmt.UUID(r.ID),
			Properties: props,
			Vector:     r.Vector,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return err
	}

	failed := make(map[string]string)
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		var msgs []string
		for _, e := range obj.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		if len(msgs) > 0 {
			failed[obj.ID.String()] = strings.Join(msgs, "; ")
		}
	}
	if len(failed) > 0 {
		return &vector.UpsertError{Failed: failed}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, class string, vec []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	where, residual, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}

	limit := k
	if len(residual) > 0 {
		limit = k * overFetch
	}

	fields := []graphql.Field{
		{Name: vector.PropText},
		{Name: vector.PropMetadata},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	q := s.client.GraphQL().Get().
		WithClassName(class).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(limit).
		WithFields(fields...)
	if where != nil {
		q = q.WithWhere(where)
	}

	res, err := q.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var hits []vector.Hit
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objs, ok := data[class].([]interface{}); ok {
			for _, o := range objs {
				props, ok := o.(map[string]interface{})
				if !ok {
					continue
				}
				hit, err := decodeHit(props)
				if err != nil {
					return nil, err
				}
				if !hit.Chunk.Metadata.Matches(residual) {
					continue
				}
				hits = append(hits, hit)
			}
		}
	}

	vector.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, class string, filter vector.Filter) (int, error) {
	where, residual, err := buildWhere(filter)
	if err != nil {
		return 0, err
	}
	if len(residual) > 0 || where == nil {
		return 0, fmt.Errorf("delete needs filterable keys, got %v", keys(filter))
	}

	// One batch delete removes at most QUERY_MAXIMUM_RESULTS objects, so
	// repeat until a round leaves nothing behind.
	total := 0
	for {
		resp, err := s.client.Batch().ObjectsBatchDeleter().
			WithClassName(class).
			WithOutput("minimal").
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return total, err
		}
		if resp == nil || resp.Results == nil {
			return total, nil
		}
		total += int(resp.Results.Successful)
		if resp.Results.Successful == 0 || resp.Results.Matches <= resp.Results.Successful {
			return total, nil
		}
		slog.DebugContext(ctx, "batch delete hit the result limit, repeating",
			"class", class, "matches", resp.Results.Matches, "deleted", resp.Results.Successful)
	}
}

func (s *Store) Count(ctx context.Context, class string, filter vector.Filter) (int, error) {
	where, residual, err := buildWhere(filter)
	if err != nil {
		return 0, err
	}
	if len(residual) > 0 {
		return 0, fmt.Errorf("count needs filterable keys, got %v", keys(filter))
	}

	q := s.client.GraphQL().Aggregate().
		WithClassName(class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if where != nil {
		q = q.WithWhere(where)
	}

	res, err := q.Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if groups, ok := agg[class].([]interface{}); ok && len(groups) > 0 {
			if group, ok := groups[0].(map[string]interface{}); ok {
				if meta, ok := group["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

// properties stores the full metadata as JSON plus the filterable keys as
// first-class properties.
func properties(r vector.Record) (map[string]interface{}, error) {
	raw, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata of %s: %w", r.ID, err)
	}
	props := map[string]interface{}{
		vector.PropText:     r.Text,
		vector.PropMetadata: string(raw),
	}
	for key, dataType := range vector.FilterableProperties {
		if _, ok := r.Metadata[key]; !ok {
			continue
		}
		switch dataType {
		case "int":
			if n, ok := r.Metadata.Int(key); ok {
				props[key] = n
			}
		case "boolean":
			if b, ok := r.Metadata[key].(bool); ok {
				props[key] = b
			}
		default:
			if s, ok := r.Metadata[key].(string); ok {
				props[key] = s
			}
		}
	}
	return props, nil
}

// buildWhere translates the filterable part of filter into a where clause.
// Keys Weaviate cannot filter on are returned as the residual filter.
func buildWhere(filter vector.Filter) (*filters.WhereBuilder, vector.Filter, error) {
	var operands []*filters.WhereBuilder
	residual := vector.Filter{}

	for _, key := range keys(filter) {
		value := filter[key]
		dataType, ok := vector.FilterableProperties[key]
		if !ok {
			residual[key] = value
			continue
		}
		w := filters.Where().WithPath([]string{key}).WithOperator(filters.Equal)
		switch dataType {
		case "int":
			n, ok := chunk.Metadata{key: value}.Int(key)
			if !ok {
				return nil, nil, fmt.Errorf("filter %s: want a number, got %T", key, value)
			}
			w = w.WithValueInt(int64(n))
		case "boolean":
			b, ok := value.(bool)
			if !ok {
				return nil, nil, fmt.Errorf("filter %s: want a boolean, got %T", key, value)
			}
			w = w.WithValueBoolean(b)
		default:
			str, ok := value.(string)
			if !ok {
				return nil, nil, fmt.Errorf("filter %s: want a string, got %T", key, value)
			}
			w = w.WithValueText(str)
		}
		operands = append(operands, w)
	}

	switch len(operands) {
	case 0:
		return nil, residual, nil
	case 1:
		return operands[0], residual, nil
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands), residual, nil
	}
}

func decodeHit(props map[string]interface{}) (vector.Hit, error) {
	var hit vector.Hit
	md := chunk.Metadata{}
	if raw, ok := props[vector.PropMetadata].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			return hit, fmt.Errorf("decode metadata: %w", err)
		}
	}
	text, _ := props[vector.PropText].(string)

	var id string
	if additional, ok := props["_additional"].(map[string]interface{}); ok {
		id, _ = additional["id"].(string)
		// cosine distance is 1 - similarity
		if d, ok := additional["distance"].(float64); ok {
			hit.Score = 1 - d
		}
	}
	hit.Chunk = chunk.NewWithID(id, text, md)
	return hit, nil
}

func keys(filter vector.Filter) []string {
	out := make([]string, 0, len(filter))
	for k := range filter {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
