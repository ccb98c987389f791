package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/MohamedBiize/DocAI/features/document"
	"github.com/MohamedBiize/DocAI/features/project"
	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/retrieval"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

const (
	ServerName    = "docai"
	ServerVersion = "1.0.0"
)

type Answerer interface {
	Answer(ctx context.Context, question string, filter vector.Filter) retrieval.Result
}

type Searcher interface {
	Search(ctx context.Context, query string, k int, filter vector.Filter) ([]retrieval.SourceReference, error)
}

type DocumentLister interface {
	List(ctx context.Context) ([]document.Document, error)
}

type ProjectLister interface {
	List(ctx context.Context) ([]project.Project, error)
}

// Handler exposes retrieval as MCP tools over streamable HTTP.
type Handler struct {
	answerer Answerer
	searcher Searcher
	docs     DocumentLister
	projects ProjectLister

	server *server.MCPServer
	http   *server.StreamableHTTPServer
}

func NewHandler(a Answerer, s Searcher, docs DocumentLister, projects ProjectLister) *Handler {
	h := &Handler{answerer: a, searcher: s, docs: docs, projects: projects}

	h.server = server.NewMCPServer(ServerName, ServerVersion)
	h.server.AddTool(askTool(), h.handleAsk)
	h.server.AddTool(searchTool(), h.handleSearch)
	h.server.AddTool(listSourcesTool(), h.handleListSources)

	h.http = server.NewStreamableHTTPServer(h.server)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.http.ServeHTTP(w, r)
}

func (h *Handler) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	question, _ := args["question"].(string)
	if strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	res := h.answerer.Answer(ctx, question, filtersArg(args))
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolAsk, "sources", len(res.Sources))

	var b strings.Builder
	b.WriteString(res.Answer)
	if len(res.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for i, src := range res.Sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, sourceLabel(src))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (h *Handler) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	limit := intArg(args, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit)), nil
	}

	refs, err := h.searcher.Search(ctx, query, limit, filtersArg(args))
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		return mcp.NewToolResultError("Search failed: " + err.Error()), nil
	}
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolSearch, "result_count", len(refs))

	if len(refs) == 0 {
		return mcp.NewToolResultText("No results found."), nil
	}

	var b strings.Builder
	for i, ref := range refs {
		fmt.Fprintf(&b, "Result %d (Score: %.2f):\n", i+1, ref.Score)
		fmt.Fprintf(&b, "Source: %s\n", sourceLabel(ref))
		if t := ref.Metadata.String(chunk.KeyCodeType); t != "" {
			fmt.Fprintf(&b, "Type: %s\n", t)
		}
		fmt.Fprintf(&b, "Content:\n%s\n\n---\n", ref.Text)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (h *Handler) handleListSources(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := h.docs.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "list documents failed", "error", err)
		return mcp.NewToolResultError("Error: " + err.Error()), nil
	}
	projects, err := h.projects.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "list projects failed", "error", err)
		return mcp.NewToolResultError("Error: " + err.Error()), nil
	}

	type simpleSource struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		Processed bool   `json:"processed"`
	}
	sources := make([]simpleSource, 0, len(docs)+len(projects))
	for _, d := range docs {
		sources = append(sources, simpleSource{ID: d.ID, Name: d.Filename, Type: "document", Processed: d.Processed})
	}
	for _, p := range projects {
		sources = append(sources, simpleSource{ID: p.ID, Name: p.RepoURL + "@" + p.Branch, Type: "code", Processed: p.Processed})
	}
	if len(sources) == 0 {
		return mcp.NewToolResultText("No sources found."), nil
	}

	out, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("Error marshalling results"), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func sourceLabel(ref retrieval.SourceReference) string {
	if ref.Link != "" {
		return ref.Link
	}
	label := ref.Metadata.String(chunk.KeySource)
	if rel := ref.Metadata.String(chunk.KeyRelativePath); rel != "" {
		label = rel
	}
	if page, ok := ref.Metadata.Int(chunk.KeyPage); ok {
		label = fmt.Sprintf("%s (page %d)", label, page)
	}
	return label
}

func filtersArg(args map[string]interface{}) vector.Filter {
	f, ok := args["filters"].(map[string]interface{})
	if !ok || len(f) == 0 {
		return nil
	}
	return vector.Filter(f)
}

func intArg(args map[string]interface{}, key string, def int) int {
	if n, ok := chunk.Metadata(args).Int(key); ok {
		return n
	}
	return def
}
