package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/code"
	"github.com/MohamedBiize/DocAI/internal/config"
	"github.com/MohamedBiize/DocAI/internal/ingest"
	"github.com/MohamedBiize/DocAI/internal/loader"
	"github.com/MohamedBiize/DocAI/internal/text"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

var (
	ingestReplace bool

	ingestDocID   string
	ingestDocType string

	ingestRepoURL   string
	ingestBranch    string
	ingestProjectID string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk and index a document or a repository checkout",
}

var ingestDocumentCmd = &cobra.Command{
	Use:   "document [path]",
	Short: "Index one document",
	Long: `Loads the document, splits it into chunks and indexes them. Without --id the
document id is derived from the absolute path, so repeated runs with
--replace overwrite the same document.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestDocument,
}

var ingestRepoCmd = &cobra.Command{
	Use:   "repo [dir]",
	Short: "Index every supported source file of a local checkout",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestRepo,
}

func init() {
	ingestCmd.PersistentFlags().BoolVar(&ingestReplace, "replace", false, "delete previously indexed chunks first")

	ingestDocumentCmd.Flags().StringVar(&ingestDocID, "id", "", "document id")
	ingestDocumentCmd.Flags().StringVar(&ingestDocType, "type", "", "document type stored in chunk metadata")

	ingestRepoCmd.Flags().StringVar(&ingestRepoURL, "repo-url", "", "repository URL recorded on every chunk")
	ingestRepoCmd.Flags().StringVar(&ingestBranch, "branch", "main", "branch recorded on every chunk")
	ingestRepoCmd.Flags().StringVar(&ingestProjectID, "project-id", "", "project id (derived from repo URL and branch when empty)")
	_ = ingestRepoCmd.MarkFlagRequired("repo-url")

	ingestCmd.AddCommand(ingestDocumentCmd, ingestRepoCmd)
	rootCmd.AddCommand(ingestCmd)
}

func newOrchestrator(cfg *config.Config, index *vector.Collection) (*ingest.Orchestrator, error) {
	splitter, err := text.NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	docs := text.NewDocumentChunker(loader.NewRegistry(cfg.PDFToTextPath, nil), splitter)
	return ingest.New(ingest.Config{
		Concurrency: cfg.ParseConcurrency,
		StableIDs:   cfg.StableChunkIDs,
	}, docs, code.NewExtractor(), index), nil
}

func runIngestDocument(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	id := ingestDocID
	if id == "" {
		id = chunk.StableID(path)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	index, closeIndex, err := openCollection(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	orch, err := newOrchestrator(cfg, index)
	if err != nil {
		return err
	}
	n, err := orch.IngestDocument(ctx, ingest.DocumentSource{
		DocumentID:   id,
		FilePath:     path,
		DocumentType: ingestDocType,
		Replace:      ingestReplace,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks for document %s\n", n, id)
	return nil
}

func runIngestRepo(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	projectID := ingestProjectID
	if projectID == "" {
		projectID = chunk.StableID(ingestRepoURL, ingestBranch)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	index, closeIndex, err := openCollection(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	orch, err := newOrchestrator(cfg, index)
	if err != nil {
		return err
	}
	n, err := orch.IngestRepository(ctx, ingest.RepositorySource{
		ProjectID: projectID,
		RepoURL:   ingestRepoURL,
		Branch:    ingestBranch,
		Root:      root,
		Replace:   ingestReplace,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks for project %s\n", n, projectID)
	return nil
}
