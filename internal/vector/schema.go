package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

const (
	PropText     = "text"
	PropMetadata = "metadata_json"
)

// FilterableProperties maps metadata keys stored as first-class properties to
// their Weaviate data type. Other metadata keys live only in metadata_json.
var FilterableProperties = map[string]string{
	"source_type":   "text",
	"source":        "text",
	"document_id":   "text",
	"project_id":    "text",
	"repo_url":      "text",
	"branch":        "text",
	"repo_name":     "text",
	"code_type":     "text",
	"relative_path": "text",
	"language":      "text",
	"chunk_index":   "int",
	"start_line":    "int",
	"end_line":      "int",
	"has_docstring": "boolean",
}

var filterableOrder = []string{
	"source_type", "source", "document_id", "project_id", "repo_url", "branch", "repo_name",
	"code_type", "relative_path", "language", "chunk_index", "start_line", "end_line", "has_docstring",
}

func chunkProperties() []*models.Property {
	no := false
	props := []*models.Property{
		{
			Name:         PropText,
			DataType:     []string{"text"},
			Tokenization: "word",
		},
		{
			Name:            PropMetadata,
			DataType:        []string{"text"},
			IndexFilterable: &no,
			IndexSearchable: &no,
		},
	}
	for _, name := range filterableOrder {
		p := &models.Property{Name: name, DataType: []string{FilterableProperties[name]}}
		if p.DataType[0] == "text" {
			// exact match on identifiers and paths
			p.Tokenization = "field"
		}
		props = append(props, p)
	}
	return props
}

// EnsureSchema creates the chunk class when missing and adds any property an
// older class lacks. It never drops data.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := chunkProperties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "A chunk of an ingested document or source file",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
