package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	ToolAsk         = "docai_ask"
	ToolSearch      = "docai_search"
	ToolListSources = "docai_list_sources"

	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

var filtersSchema = map[string]interface{}{
	"type": "object",
	"description": `Exact-match metadata filters ANDed together, e.g. {"source_type": "code", "repo_name": "widgets"} or {"document_id": "..."}. ` +
		`Common keys: source_type (document|code), document_id, document_type, project_id, repo_url, code_type (function|class|method|module), relative_path.`,
}

func askTool() mcp.Tool {
	return mcp.Tool{
		Name: ToolAsk,
		Description: `Question answering tool. Retrieves the most relevant indexed chunks and answers the question from them. ` +
			`Use this for direct questions about uploaded documents or ingested code repositories. The answer cites its sources.`,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"filters": filtersSchema,
			},
			Required: []string{"question"},
		},
	}
}

func searchTool() mcp.Tool {
	return mcp.Tool{
		Name: ToolSearch,
		Description: `Search tool. Returns the raw chunks most similar to the query, with their metadata and source links, without generating an answer. ` +
			`Use this to find code entities or document passages and read them yourself.`,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-50)",
					"default":     defaultSearchLimit,
					"minimum":     1,
					"maximum":     maxSearchLimit,
				},
				"filters": filtersSchema,
			},
			Required: []string{"query"},
		},
	}
}

func listSourcesTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolListSources,
		Description: `Discovery tool. Lists the uploaded documents and ingested code projects with their ids. Use the ids as document_id or project_id filters.`,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
