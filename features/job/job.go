package job

import (
	"encoding/json"
	"time"
)

// Job is an ingestion message that failed and is kept for a manual retry.
// ResourceID is the document or project id the message was about.
type Job struct {
	ID         string          `json:"id"`
	ResourceID string          `json:"resource_id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"created_at"`
}
