package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ferg-cod3s/conexus/internal/cache"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/protocol"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/ferg-cod3s/conexus/internal/syncpipeline"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// Server implements the MCP tool surface over the sync/indexing core:
// a repo pool, its sync queue, the file cache backing incremental
// syncs, and the vector store the queue's writers populate.
type Server struct {
	pool      *repo.Pool
	queue     *syncpipeline.Queue
	fileCache *cache.FileCache
	src       statestore.Source

	vectorStore vectorstore.VectorStore
	embedder    embedding.Embedder

	logger       *observability.Logger
	metrics      *observability.MetricsCollector
	errorHandler *observability.ErrorHandler

	searchCache *searchCache
	rootPath    string

	jsonrpcSrv *protocol.Server
}

// NewServer wires a Server to the live sync pipeline state (pool,
// queue, file cache) and the search backend (vector store, embedder),
// then wraps it in a JSON-RPC server reading/writing reader/writer.
func NewServer(
	reader io.Reader,
	writer io.Writer,
	rootPath string,
	pool *repo.Pool,
	queue *syncpipeline.Queue,
	fileCache *cache.FileCache,
	src statestore.Source,
	vectorStore vectorstore.VectorStore,
	embedder embedding.Embedder,
	logger *observability.Logger,
	metrics *observability.MetricsCollector,
	errorHandler *observability.ErrorHandler,
) *Server {
	s := &Server{
		pool:         pool,
		queue:        queue,
		fileCache:    fileCache,
		src:          src,
		vectorStore:  vectorStore,
		embedder:     embedder,
		logger:       logger,
		metrics:      metrics,
		errorHandler: errorHandler,
		searchCache:  newSearchCache(),
		rootPath:     rootPath,
	}
	s.jsonrpcSrv = protocol.NewServer(reader, writer, s)
	return s
}

// Handle implements protocol.Handler for the stdio transport.
func (s *Server) Handle(method string, params json.RawMessage) (interface{}, error) {
	ctx := context.Background()

	switch method {
	case "tools/list":
		return map[string]interface{}{"tools": GetToolDefinitions()}, nil

	case "tools/call":
		var req ToolCallRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
		}
		return s.dispatchTool(ctx, req.Name, req.Arguments)

	case "resources/list":
		return map[string]interface{}{
			"resources": []ResourceDefinition{
				{
					URI:         fmt.Sprintf("%s://%s/", ResourceScheme, ResourceFiles),
					Name:        "Indexed Files",
					Description: "Browse indexed repository files",
					MimeType:    "application/x-directory",
				},
			},
		}, nil

	case "resources/read":
		var req struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
		}
		return map[string]interface{}{
			"contents": []map[string]interface{}{
				{"uri": req.URI, "mimeType": "text/plain", "text": "use repo.grep or repo.search to read indexed content"},
			},
		}, nil

	default:
		return nil, &protocol.Error{Code: protocol.MethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

// ToolCallRequest is the params shape of a JSON-RPC tools/call request.
type ToolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) dispatchTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case ToolRepoSearch:
		return s.handleRepoSearch(ctx, args)
	case ToolRepoExplain:
		return s.handleRepoExplain(ctx, args)
	case ToolRepoGrep:
		return s.handleRepoGrep(ctx, args)
	case ToolRepoSync:
		return s.handleRepoSync(ctx, args)
	case ToolRepoStatus:
		return s.handleRepoStatus(ctx, args)
	case ToolRepoList:
		return s.handleRepoList(ctx, args)
	default:
		return nil, &protocol.Error{Code: protocol.MethodNotFound, Message: fmt.Sprintf("unknown tool: %s", name)}
	}
}

// Serve starts the MCP server.
func (s *Server) Serve() error {
	return s.jsonrpcSrv.Serve()
}

// Close releases resources held directly by the server. The vector
// store and file cache are owned by the composition root in
// cmd/conexus and are closed there, not here.
func (s *Server) Close() error {
	return nil
}
