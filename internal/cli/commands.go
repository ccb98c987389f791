// Package cli is the docai command line: offline extraction and splitting,
// plus ingestion and question answering against the configured index.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/MohamedBiize/DocAI/internal/adapter/gemini"
	"github.com/MohamedBiize/DocAI/internal/adapter/memory"
	wstore "github.com/MohamedBiize/DocAI/internal/adapter/weaviate"
	"github.com/MohamedBiize/DocAI/internal/config"
	"github.com/MohamedBiize/DocAI/internal/logger"
	"github.com/MohamedBiize/DocAI/internal/retrieval"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "docai",
	Short: "Ingest documents and code, then ask questions about them",
	Long: `docai chunks documents and source files, indexes them in a vector store
and answers questions from the most relevant chunks.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		slog.SetDefault(logger.New(cmd.ErrOrStderr(), level))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
}

func Execute() error {
	return rootCmd.Execute()
}

// Runtime builders. Tests replace them to avoid real backends.
var (
	loadConfig = config.Load

	openCollection = func(ctx context.Context, cfg *config.Config) (*vector.Collection, func(), error) {
		if err := requireAPIKey(cfg); err != nil {
			return nil, nil, err
		}
		var backend vector.Backend
		if cfg.VectorBackend == config.VectorBackendMemory {
			backend = memory.NewStore()
		} else {
			client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
			if err != nil {
				return nil, nil, fmt.Errorf("weaviate client: %w", err)
			}
			backend = wstore.NewStore(client)
		}

		embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini embedder: %w", err)
		}
		index := vector.NewIndex(backend, embedder, vector.Config{EmbedConcurrency: cfg.EmbedConcurrency})
		coll, err := index.EnsureCollection(ctx, cfg.CollectionName)
		if err != nil {
			embedder.Close()
			return nil, nil, err
		}
		return coll, func() { embedder.Close() }, nil
	}

	openGenerator = func(ctx context.Context, cfg *config.Config) (retrieval.Generator, func(), error) {
		if err := requireAPIKey(cfg); err != nil {
			return nil, nil, err
		}
		gen, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel, cfg.GenerationTimeout())
		if err != nil {
			return nil, nil, fmt.Errorf("gemini generator: %w", err)
		}
		return gen, func() { gen.Close() }, nil
	}
)

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func requireAPIKey(cfg *config.Config) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", config.ErrMissingRequired)
	}
	return nil
}
