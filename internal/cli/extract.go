package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/code"
	"github.com/MohamedBiize/DocAI/internal/loader"
	"github.com/MohamedBiize/DocAI/internal/text"
)

var (
	splitChunkSize    int
	splitChunkOverlap int
	splitPDFToText    string
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Print the code chunks of a source file as JSON",
	Long: `Parses a Python or Go source file and prints one chunk per function, class
and method. Files that do not parse yield a single fallback chunk.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var splitCmd = &cobra.Command{
	Use:   "split [file]",
	Short: "Print the chunks of a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplit,
}

func init() {
	splitCmd.Flags().IntVar(&splitChunkSize, "chunk-size", 1000, "maximum chunk length in characters")
	splitCmd.Flags().IntVar(&splitChunkOverlap, "chunk-overlap", 200, "characters shared by consecutive chunks")
	splitCmd.Flags().StringVar(&splitPDFToText, "pdftotext", "pdftotext", "path to the pdftotext binary")
	rootCmd.AddCommand(extractCmd, splitCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	path := args[0]
	extractor := code.NewExtractor()
	if !extractor.Supports(path) {
		return fmt.Errorf("unsupported source file %q", filepath.Ext(path))
	}

	chunks, err := extractor.ExtractFile(context.Background(), path, filepath.ToSlash(path))
	if err != nil {
		return fmt.Errorf("extract failed: %w", err)
	}
	return printJSON(cmd, nonNilChunks(chunks))
}

func runSplit(cmd *cobra.Command, args []string) error {
	path := args[0]
	splitter, err := text.NewRecursiveSplitter(splitChunkSize, splitChunkOverlap)
	if err != nil {
		return err
	}
	chunker := text.NewDocumentChunker(loader.NewRegistry(splitPDFToText, nil), splitter)
	if !chunker.Supports(path) {
		return fmt.Errorf("unsupported document format %q", filepath.Ext(path))
	}

	base := chunk.Metadata{
		chunk.KeySource:     filepath.Base(path),
		chunk.KeySourceType: string(chunk.SourceTypeDocument),
	}
	chunks, err := chunker.Chunk(context.Background(), path, base)
	if err != nil {
		return fmt.Errorf("split failed: %w", err)
	}
	return printJSON(cmd, nonNilChunks(chunks))
}

func nonNilChunks(chunks []chunk.Chunk) []chunk.Chunk {
	if chunks == nil {
		return []chunk.Chunk{}
	}
	return chunks
}
