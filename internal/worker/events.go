package worker

// DocumentPayload is published on the ingest.document topic.
type DocumentPayload struct {
	DocumentID   string         `json:"document_id"`
	FilePath     string         `json:"file_path"`
	DocumentType string         `json:"document_type,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Replace      bool           `json:"replace,omitempty"`

	CorrelationID string `json:"correlation_id"`
}

// RepositoryPayload is published on the ingest.repository topic. Root points
// at an existing checkout; when empty the worker clones RepoURL itself.
type RepositoryPayload struct {
	ProjectID string `json:"project_id"`
	RepoURL   string `json:"repo_url"`
	Branch    string `json:"branch"`
	Root      string `json:"root,omitempty"`
	Replace   bool   `json:"replace,omitempty"`

	CorrelationID string `json:"correlation_id"`
}
