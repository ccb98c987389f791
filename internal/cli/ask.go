package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/retrieval"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

var (
	askSourceType string
	askRepoURL    string
	askProjectID  string
	askTopK       int
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSourceType, "source-type", "", "restrict to document or code chunks")
	askCmd.Flags().StringVar(&askRepoURL, "repo-url", "", "restrict to chunks of one repository")
	askCmd.Flags().StringVar(&askProjectID, "project-id", "", "restrict to chunks of one project")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default SEARCH_TOP_K)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer and sources as JSON")
	rootCmd.AddCommand(askCmd)
}

func askFilter() vector.Filter {
	f := vector.Filter{}
	if askSourceType != "" {
		f[chunk.KeySourceType] = askSourceType
	}
	if askRepoURL != "" {
		f[chunk.KeyRepoURL] = askRepoURL
	}
	if askProjectID != "" {
		f[chunk.KeyProjectID] = askProjectID
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if askTopK > 0 {
		cfg.SearchTopK = askTopK
	}

	ctx := cmd.Context()
	index, closeIndex, err := openCollection(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	gen, closeGen, err := openGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGen()

	svc := retrieval.NewService(retrieval.Config{TopK: cfg.SearchTopK}, index, gen, retrieval.NewQueryLogger(io.Discard))
	res := svc.Answer(ctx, question, askFilter())

	if askJSON {
		return printJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Answer)
	if len(res.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, src := range res.Sources {
		label := src.Metadata.String(chunk.KeySource)
		if p := src.Metadata.String(chunk.KeyRelativePath); p != "" {
			label = p
		}
		fmt.Fprintf(out, "  [%d] %s (%.2f)\n", i+1, label, src.Score)
		if src.Link != "" {
			fmt.Fprintf(out, "      %s\n", src.Link)
		}
	}
	return nil
}
