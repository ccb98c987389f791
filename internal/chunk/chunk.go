package chunk

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidChunk = errors.New("invalid chunk")

type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeCode     SourceType = "code"
)

type CodeType string

const (
	CodeTypeFunction     CodeType = "function"
	CodeTypeClass        CodeType = "class"
	CodeTypeMethod       CodeType = "method"
	CodeTypeFileFallback CodeType = "file_fallback"
)

// Metadata keys shared by the extractor, the document chunker and the index.
const (
	KeySourceType   = "source_type"
	KeySource       = "source"
	KeyRelativePath = "relative_path"
	KeyLanguage     = "language"

	KeyCodeType     = "code_type"
	KeyStartLine    = "start_line"
	KeyEndLine      = "end_line"
	KeyHasDocstring = "has_docstring"
	KeyFunctionName = "function_name"
	KeyClassName    = "class_name"
	KeyMethodName   = "method_name"
	KeyMethodType   = "method_type"
	KeyMethods      = "methods"
	KeyClassAttrs   = "class_attrs"
	KeyBases        = "bases"
	KeyGithubLink   = "github_link"
	KeyParsingError = "parsing_error"

	KeyDocumentID   = "document_id"
	KeyDocumentType = "document_type"
	KeyChunkIndex   = "chunk_index"
	KeyStartIndex   = "start_index"
	KeyPage         = "page"
	KeyTotalPages   = "total_pages"

	KeyProjectID = "project_id"
	KeyRepoURL   = "repo_url"
	KeyBranch    = "branch"
	KeyRepoName  = "repo_name"
)

// stableNamespace scopes name-based chunk ids to this application.
var stableNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/MohamedBiize/DocAI/chunk"))

// Chunk is the atomic indexable unit: text to embed plus its metadata.
type Chunk struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// New returns a chunk with a fresh random id.
func New(text string, md Metadata) Chunk {
	return NewWithID(uuid.New().String(), text, md)
}

func NewWithID(id, text string, md Metadata) Chunk {
	if md == nil {
		md = Metadata{}
	}
	return Chunk{ID: id, Text: text, Metadata: md}
}

// StableID derives a deterministic id from the given parts. Re-ingesting a
// source with stable ids overwrites its chunks instead of adding new ones.
func StableID(parts ...string) string {
	return uuid.NewSHA1(stableNamespace, []byte(strings.Join(parts, "\x00"))).String()
}

// Validate checks the required metadata keys and the line span of code chunks.
func (c Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidChunk)
	}
	st := c.Metadata.String(KeySourceType)
	switch SourceType(st) {
	case SourceTypeDocument, SourceTypeCode:
	default:
		return fmt.Errorf("%w: %s: bad source_type %q", ErrInvalidChunk, c.ID, st)
	}
	if c.Metadata.String(KeySource) == "" {
		return fmt.Errorf("%w: %s: missing source", ErrInvalidChunk, c.ID)
	}
	if SourceType(st) != SourceTypeCode {
		return nil
	}
	start, okStart := c.Metadata.Int(KeyStartLine)
	end, okEnd := c.Metadata.Int(KeyEndLine)
	if !okStart || !okEnd {
		return fmt.Errorf("%w: %s: code chunk without line span", ErrInvalidChunk, c.ID)
	}
	if start < 1 || start > end {
		return fmt.Errorf("%w: %s: line span %d-%d", ErrInvalidChunk, c.ID, start, end)
	}
	return nil
}

// Metadata is the generic key/value map attached to a chunk. Values are
// scalars (string, bool, numbers) or string lists.
type Metadata map[string]any

func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

// Merge copies every key of other into m, overwriting existing values.
func (m Metadata) Merge(other Metadata) Metadata {
	for k, v := range other {
		m[k] = v
	}
	return m
}

func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int reads an integer value. Values decoded from JSON arrive as float64.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	}
	return 0, false
}

func (m Metadata) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Strings reads a list value, accepting both []string and the []any shape
// produced by JSON decoding.
func (m Metadata) Strings(key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Matches reports whether every key/value pair of filter equals the
// corresponding metadata value. A nil or empty filter matches everything.
func (m Metadata) Matches(filter map[string]any) bool {
	for k, want := range filter {
		got, ok := m[k]
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}

// ValuesEqual compares metadata values, treating all numeric types as equal
// when they hold the same number.
func ValuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if la, ok := toStrings(a); ok {
		lb, ok := toStrings(b)
		return ok && reflect.DeepEqual(la, lb)
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
