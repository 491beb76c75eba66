// Package mcp implements the Model Context Protocol server for Conexus.
package mcp

import "encoding/json"

// Tool names exposed by the MCP server.
const (
	ToolRepoSearch  = "repo.search"
	ToolRepoExplain = "repo.explain"
	ToolRepoGrep    = "repo.grep"
	ToolRepoSync    = "repo.sync"
	ToolRepoStatus  = "repo.status"
	ToolRepoList    = "repo.list"
)

// Resource URI scheme.
const (
	ResourceScheme = "engine"
	ResourceFiles  = "files"
)

// SearchRequest represents the input for the repo.search tool.
type SearchRequest struct {
	Query   string         `json:"query"`
	TopK    int            `json:"top_k,omitempty"`
	Offset  int            `json:"offset,omitempty"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

// SearchFilters narrows a search to specific repos, branches, or languages.
type SearchFilters struct {
	RepoRefs []string `json:"repo_refs,omitempty"`
	Branch   string   `json:"branch,omitempty"`
	Language string   `json:"language,omitempty"`
}

// SearchResponse represents the output of the repo.search tool.
type SearchResponse struct {
	Results    []SearchResultItem `json:"results"`
	TotalCount int                `json:"total_count"`
	QueryTime  float64            `json:"query_time_ms"`
	Offset     int                `json:"offset,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	HasMore    bool               `json:"has_more,omitempty"`
}

// SearchResultItem represents a single search result chunk.
type SearchResultItem struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Score    float32                `json:"score"`
	FilePath string                 `json:"file_path,omitempty"`
	RepoRef  string                 `json:"repo_ref,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ExplainRequest represents the input for the repo.explain tool.
type ExplainRequest struct {
	FilePath string `json:"file_path"`
	RepoRef  string `json:"repo_ref,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// ExplainResponse represents the output of the repo.explain tool.
type ExplainResponse struct {
	Explanation string       `json:"explanation"`
	Complexity  string       `json:"complexity,omitempty"`
	Examples    []CodeExample `json:"examples,omitempty"`
}

// CodeExample is a snippet of indexed content backing an explanation.
type CodeExample struct {
	FilePath  string `json:"file_path"`
	RepoRef   string `json:"repo_ref,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
	Content   string `json:"content"`
}

// GrepRequest represents the input for the repo.grep tool.
type GrepRequest struct {
	Pattern    string `json:"pattern"`
	RepoRef    string `json:"repo_ref,omitempty"`
	PathGlob   string `json:"path_glob,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// GrepResponse represents the output of the repo.grep tool.
type GrepResponse struct {
	Results    []GrepResult `json:"results"`
	TotalCount int          `json:"total_count"`
	Truncated  bool         `json:"truncated,omitempty"`
}

// GrepResult is a single matching line.
type GrepResult struct {
	FilePath   string `json:"file_path"`
	RepoRef    string `json:"repo_ref,omitempty"`
	LineNumber int    `json:"line_number"`
	Line       string `json:"line"`
}

// RepoSyncRequest represents the input for the repo.sync tool.
type RepoSyncRequest struct {
	RepoRef string `json:"repo_ref"`
	Wait    bool   `json:"wait,omitempty"`
}

// RepoSyncResponse represents the output of the repo.sync tool.
type RepoSyncResponse struct {
	RepoRef string `json:"repo_ref"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// RepoStatusRequest represents the input for the repo.status tool. An
// empty RepoRef reports every tracked repository.
type RepoStatusRequest struct {
	RepoRef string `json:"repo_ref,omitempty"`
}

// RepoStatusItem describes one tracked repository's sync state.
type RepoStatusItem struct {
	RepoRef      string            `json:"repo_ref"`
	DiskPath     string            `json:"disk_path"`
	Status       string            `json:"status"`
	StatusDetail string            `json:"status_detail,omitempty"`
	LastSyncedAt string            `json:"last_synced_at,omitempty"`
	LastIndexed  map[string]string `json:"last_indexed,omitempty"`
}

// RepoStatusResponse represents the output of the repo.status tool.
type RepoStatusResponse struct {
	Repos []RepoStatusItem `json:"repos"`
}

// RepoListResponse represents the output of the repo.list tool.
type RepoListResponse struct {
	Repos []RepoStatusItem `json:"repos"`
}

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceDefinition represents an MCP resource.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// GetToolDefinitions returns all tool definitions for the MCP server.
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolRepoSearch,
			Description: "Performs a hybrid vector + BM25 search over indexed repositories and returns the most relevant chunks.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Natural language or code query."},
					"top_k": {"type": "integer", "default": 20, "maximum": 100},
					"offset": {"type": "integer", "default": 0, "minimum": 0},
					"filters": {
						"type": "object",
						"properties": {
							"repo_refs": {"type": "array", "items": {"type": "string"}},
							"branch": {"type": "string"},
							"language": {"type": "string"}
						}
					}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        ToolRepoExplain,
			Description: "Explains a file (or a specific line within it) using indexed chunks as supporting evidence.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string"},
					"repo_ref": {"type": "string"},
					"line": {"type": "integer"}
				},
				"required": ["file_path"]
			}`),
		},
		{
			Name:        ToolRepoGrep,
			Description: "Runs a regular expression search across indexed files, optionally scoped to one repository.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"pattern": {"type": "string"},
					"repo_ref": {"type": "string"},
					"path_glob": {"type": "string"},
					"max_results": {"type": "integer", "default": 100}
				},
				"required": ["pattern"]
			}`),
		},
		{
			Name:        ToolRepoSync,
			Description: "Enqueues a sync-and-index pass for a repo ref (backend//identity), optionally waiting for it to finish.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"repo_ref": {"type": "string"},
					"wait": {"type": "boolean", "default": false}
				},
				"required": ["repo_ref"]
			}`),
		},
		{
			Name:        ToolRepoStatus,
			Description: "Reports sync status for one repo ref, or every tracked repository when repo_ref is omitted.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"repo_ref": {"type": "string"}
				}
			}`),
		},
		{
			Name:        ToolRepoList,
			Description: "Lists every repository currently tracked in the pool.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
	}
}
