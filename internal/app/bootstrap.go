package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/MohamedBiize/DocAI/internal/adapter/gemini"
	"github.com/MohamedBiize/DocAI/internal/adapter/memory"
	wstore "github.com/MohamedBiize/DocAI/internal/adapter/weaviate"
	"github.com/MohamedBiize/DocAI/internal/config"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

// Dependencies are the external resources the application runs against.
type Dependencies struct {
	DB          *sql.DB
	Chunks      *vector.Collection
	NSQProducer *nsq.Producer
	Generator   *gemini.Generator

	closers []io.Closer
}

// ClassEnsurer is the schema side of a vector backend.
type ClassEnsurer interface {
	EnsureClass(ctx context.Context, class string) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Database
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	deps.DB = db

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		deps.Close()
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied")

	// Vector backend
	var backend vector.Backend
	switch cfg.VectorBackend {
	case config.VectorBackendMemory:
		slog.Warn("using in-memory vector backend, chunks are lost on restart")
		backend = memory.NewStore()
	default:
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(wClient)
		if err := EnsureSchemaWithRetry(ctx, store, cfg.CollectionName, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		backend = store
	}

	// Models
	if cfg.GeminiAPIKey == "" {
		deps.Close()
		return nil, fmt.Errorf("%w: GEMINI_API_KEY", config.ErrMissingRequired)
	}
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("gemini embedder error: %w", err)
	}
	deps.closers = append(deps.closers, embedder)

	deps.Generator, err = gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel, cfg.GenerationTimeout())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("gemini generator error: %w", err)
	}
	deps.closers = append(deps.closers, deps.Generator)

	index := vector.NewIndex(backend, embedder, vector.Config{EmbedConcurrency: cfg.EmbedConcurrency})
	deps.Chunks, err = index.EnsureCollection(ctx, cfg.CollectionName)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("collection error: %w", err)
	}

	// NSQ Producer
	// MaxMsgSize is enforced by nsqd, go-nsq v1.1.0 has no client-side setting.
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	createTopics(cfg.NSQDHTTP, config.Topics)

	return deps, nil
}

// Close releases every resource Bootstrap opened.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

// createTopics asks nsqd to create every topic up front. Consumers that look
// a topic up before anything was published would otherwise get a 404.
func createTopics(nsqdHTTP string, topics []string) {
	if nsqdHTTP == "" {
		return
	}
	create := func(topic string) {
		u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		resp, err := http.Post(u, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
		if resp.StatusCode != http.StatusOK {
			slog.Warn("NSQ topic creation rejected", "topic", topic, "status", resp.StatusCode)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		for _, topic := range topics {
			create(topic)
		}
	}()
}

// EnsureSchemaWithRetry creates or migrates the chunk class, retrying while
// the vector store is still starting up.
func EnsureSchemaWithRetry(ctx context.Context, store ClassEnsurer, class string, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureClass(ctx, class); err == nil {
			return nil
		}
		slog.Warn("failed to ensure vector schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	if err == nil {
		err = errors.New("no schema attempts configured")
	}
	return err
}
