package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/MohamedBiize/DocAI/features/chat"
	"github.com/MohamedBiize/DocAI/features/document"
	"github.com/MohamedBiize/DocAI/features/job"
	"github.com/MohamedBiize/DocAI/features/mcp"
	"github.com/MohamedBiize/DocAI/features/project"
	"github.com/MohamedBiize/DocAI/features/stats"
	"github.com/MohamedBiize/DocAI/internal/code"
	"github.com/MohamedBiize/DocAI/internal/config"
	"github.com/MohamedBiize/DocAI/internal/ingest"
	"github.com/MohamedBiize/DocAI/internal/loader"
	"github.com/MohamedBiize/DocAI/internal/middleware"
	"github.com/MohamedBiize/DocAI/internal/repo"
	"github.com/MohamedBiize/DocAI/internal/retrieval"
	"github.com/MohamedBiize/DocAI/internal/text"
	"github.com/MohamedBiize/DocAI/internal/vector"
	"github.com/MohamedBiize/DocAI/internal/worker"
)

const consumerChannel = "docai"

// Publisher hands a message to the queue.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler         http.Handler
	Orchestrator    *ingest.Orchestrator
	Retrieval       *retrieval.Service
	DocumentService *document.Service
	ProjectService  *project.Service
	IngestConsumer  *worker.IngestConsumer

	cfg     *config.Config
	closers []io.Closer
}

func New(
	cfg *config.Config,
	db *sql.DB,
	chunks *vector.Collection,
	pub Publisher,
	gen retrieval.Generator,
) (*App, error) {
	a := &App{cfg: cfg}

	// Ingestion pipeline
	loaders := loader.NewRegistry(cfg.PDFToTextPath, nil)
	splitter, err := text.NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("splitter: %w", err)
	}
	docChunker := text.NewDocumentChunker(loaders, splitter)
	extractor := code.NewExtractor()

	a.Orchestrator = ingest.New(ingest.Config{
		Concurrency: cfg.ParseConcurrency,
		StableIDs:   cfg.StableChunkIDs,
	}, docChunker, extractor, chunks)

	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	a.DocumentService = document.NewService(documentRepo, pub, chunks)
	documentHandler := document.NewHandler(a.DocumentService, docChunker, document.HandlerConfig{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadSizeMB << 20,
	})

	// Feature: Project
	projectRepo := project.NewPostgresRepo(db)
	a.ProjectService = project.NewService(projectRepo, pub, chunks)
	projectHandler := project.NewHandler(a.ProjectService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, pub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(documentRepo, projectRepo, jobRepo, chunks)

	// Feature: Retrieval, Chat & MCP
	queryLogger, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err, "path", cfg.QueryLogPath)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	} else {
		a.closers = append(a.closers, closer)
	}

	a.Retrieval = retrieval.NewService(retrieval.Config{TopK: cfg.SearchTopK}, chunks, gen, queryLogger)
	chatService := chat.NewService(a.Retrieval, chat.NewPostgresRepo(db))
	chatHandler := chat.NewHandler(chatService)
	mcpHandler := mcp.NewHandler(a.Retrieval, a.Retrieval, a.DocumentService, a.ProjectService)

	// Worker
	a.IngestConsumer = worker.NewIngestConsumer(
		a.Orchestrator,
		repo.NewCloner(cfg.CloneDir, nil),
		a.DocumentService,
		a.ProjectService,
		jobRepo,
	)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}
	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(h))
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents/upload", route(documentHandler.Upload))
	mux.Handle("GET /documents", route(documentHandler.List))
	mux.Handle("GET /documents/{id}", route(documentHandler.Get))
	mux.Handle("DELETE /documents/{id}", route(documentHandler.Delete))
	mux.Handle("POST /documents/{id}/reingest", route(documentHandler.Reingest))

	mux.Handle("POST /code/ingest", route(projectHandler.Create))
	mux.Handle("GET /code/projects", route(projectHandler.List))
	mux.Handle("GET /code/projects/{id}", route(projectHandler.Get))
	mux.Handle("DELETE /code/projects/{id}", route(projectHandler.Delete))
	mux.Handle("POST /code/projects/{id}/reingest", route(projectHandler.Reingest))

	mux.Handle("POST /ask", route(chatHandler.Ask))
	mux.Handle("POST /code/query", route(chatHandler.CodeQuery))
	mux.Handle("POST /feedback", route(chatHandler.Feedback))

	mux.Handle("GET /jobs/failed", route(jobHandler.List))
	mux.Handle("POST /jobs/{id}/retry", route(jobHandler.Retry))

	mux.Handle("GET /stats", route(statsHandler.GetStats))

	// Streamable HTTP uses POST for messages, GET for the event stream and
	// DELETE to end a session.
	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		mux.Handle(method+" /mcp", middleware.CorrelationID(mcpHandler))
	}

	// Preflight for every route.
	mux.Handle("OPTIONS /", route(func(http.ResponseWriter, *http.Request) {}))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = mux
	return a, nil
}

// StartConsumers subscribes the ingest consumer to both ingestion topics.
// Without a lookupd address the consumers connect to nsqd directly.
func (a *App) StartConsumers() ([]*nsq.Consumer, error) {
	handlers := map[string]nsq.Handler{
		config.TopicIngestDocument:   a.IngestConsumer.DocumentHandler(),
		config.TopicIngestRepository: a.IngestConsumer.RepositoryHandler(),
	}

	var consumers []*nsq.Consumer
	for _, topic := range config.Topics {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxInFlight = a.cfg.IngestionConcurrency
		// Cloning and embedding a repository can take minutes.
		nsqCfg.MsgTimeout = 15 * time.Minute

		consumer, err := nsq.NewConsumer(topic, consumerChannel, nsqCfg)
		if err != nil {
			stopConsumers(consumers)
			return nil, fmt.Errorf("nsq consumer %s: %w", topic, err)
		}
		consumer.AddConcurrentHandlers(handlers[topic], a.cfg.IngestionConcurrency)

		if a.cfg.NSQLookupd != "" {
			err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
		} else {
			err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
		}
		if err != nil {
			consumer.Stop()
			stopConsumers(consumers)
			return nil, fmt.Errorf("connect consumer %s: %w", topic, err)
		}
		slog.Info("NSQ consumer connected", "topic", topic, "concurrency", a.cfg.IngestionConcurrency)
		consumers = append(consumers, consumer)
	}
	return consumers, nil
}

func stopConsumers(consumers []*nsq.Consumer) {
	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
}

func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnableIngestWorker {
		consumers, err := a.StartConsumers()
		if err != nil {
			return err
		}
		defer stopConsumers(consumers)
	}

	if !a.cfg.EnableAPI {
		slog.Info("API disabled, running ingestion worker only")
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the resources New opened.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close", "error", err)
		}
	}
}
