package config

const (
	// TopicIngestDocument carries uploaded documents waiting to be chunked and indexed.
	TopicIngestDocument = "ingest.document"

	// TopicIngestRepository carries code repositories waiting to be cloned and extracted.
	TopicIngestRepository = "ingest.repository"
)

// Topics lists every topic the service publishes to or consumes from.
var Topics = []string{TopicIngestDocument, TopicIngestRepository}
