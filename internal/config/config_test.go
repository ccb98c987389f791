package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamedBiize/DocAI/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "weaviate", cfg.VectorBackend)
	assert.Equal(t, "DocAIChunk", cfg.CollectionName)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.SearchTopK)
	assert.Equal(t, 60*time.Second, cfg.GenerationTimeout())
	assert.True(t, cfg.EnableAPI)
	assert.True(t, cfg.EnableIngestWorker)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	err := os.WriteFile(".env", []byte("DB_HOST=loaded-from-file"), 0o600)
	require.NoError(t, err)
	defer os.Remove(".env")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_Toggles(t *testing.T) {
	t.Setenv("ENABLE_API", "false")
	t.Setenv("ENABLE_INGEST_WORKER", "false")
	t.Setenv("INGESTION_CONCURRENCY", "10")
	t.Setenv("VECTOR_BACKEND", "memory")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.False(t, cfg.EnableIngestWorker)
	assert.Equal(t, 10, cfg.IngestionConcurrency)
	assert.Equal(t, config.VectorBackendMemory, cfg.VectorBackend)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("CHUNK_OVERLAP", "1000")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestConfig_DSN(t *testing.T) {
	cfg := config.Config{DBHost: "db", DBPort: 5433, DBUser: "u", DBPass: "p", DBName: "n"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", cfg.DSN())
}
