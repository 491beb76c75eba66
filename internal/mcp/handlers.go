package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ferg-cod3s/conexus/internal/indexer"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/planner"
	"github.com/ferg-cod3s/conexus/internal/protocol"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/security"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

func (s *Server) handleRepoSearch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req SearchRequest
	startTime := time.Now()

	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid search request: %v", err)}
	}
	if req.Query == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "query is required"}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 20
	}
	if topK > 100 {
		topK = 100
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	cacheKey := fmt.Sprintf("%s|%d|%d|%+v", req.Query, topK, offset, req.Filters)
	if cached, ok := s.searchCache.Get(cacheKey); ok {
		return cached, nil
	}

	queryVec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		s.handleError(ctx, err, "repo.search")
		return nil, &protocol.Error{Code: protocol.InternalError, Message: fmt.Sprintf("failed to generate query embedding: %v", err)}
	}

	opts := vectorstore.SearchOptions{
		Limit:   topK,
		Offset:  offset,
		Filters: make(map[string]interface{}),
	}
	if req.Filters != nil {
		// Only a single repo_ref can be pushed down as a store filter
		// today; the chunk metadata written by PipelineWriters carries
		// one repo_ref per row, not a set, so multi-repo filtering
		// would need a post-filter pass instead.
		if len(req.Filters.RepoRefs) == 1 {
			opts.Filters["repo_ref"] = req.Filters.RepoRefs[0]
		}
	}

	results, err := s.vectorStore.SearchHybrid(ctx, req.Query, queryVec.Vector, opts)
	if err != nil {
		s.handleError(ctx, err, "repo.search")
		return nil, &protocol.Error{Code: protocol.InternalError, Message: fmt.Sprintf("search failed: %v", err)}
	}

	queryTime := float64(time.Since(startTime).Milliseconds())
	totalCount, err := s.vectorStore.Count(ctx)
	if err != nil {
		totalCount = int64(len(results))
	}

	searchResults := make([]SearchResultItem, 0, len(results))
	for _, r := range results {
		item := SearchResultItem{
			ID:       r.Document.ID,
			Content:  r.Document.Content,
			Score:    r.Score,
			Metadata: r.Document.Metadata,
		}
		if fp, ok := r.Document.Metadata["file_path"].(string); ok {
			item.FilePath = fp
		}
		if rr, ok := r.Document.Metadata["repo_ref"].(string); ok {
			item.RepoRef = rr
		}
		searchResults = append(searchResults, item)
	}

	resp := SearchResponse{
		Results:    searchResults,
		TotalCount: len(searchResults),
		QueryTime:  queryTime,
		Offset:     offset,
		Limit:      topK,
		HasMore:    int64(offset+len(results)) < totalCount,
	}
	s.searchCache.Put(cacheKey, resp)

	if s.metrics != nil {
		s.metrics.MCPRequestsTotal.WithLabelValues(ToolRepoSearch, "success").Inc()
	}
	return resp, nil
}

func (s *Server) handleRepoExplain(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req ExplainRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid request: %v", err)}
	}
	if req.FilePath == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "file_path is required"}
	}

	cleanedPath, err := security.ValidatePath(req.FilePath, "")
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid file path: %v", err)}
	}

	opts := vectorstore.SearchOptions{
		Limit:   10,
		Filters: map[string]interface{}{"file_path": cleanedPath},
	}
	if req.RepoRef != "" {
		opts.Filters["repo_ref"] = req.RepoRef
	}

	results, err := s.vectorStore.SearchBM25(ctx, "", opts)
	if err != nil {
		s.handleError(ctx, err, "repo.explain")
		return nil, &protocol.Error{Code: protocol.InternalError, Message: fmt.Sprintf("lookup failed: %v", err)}
	}
	if len(results) == 0 {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("%s is not indexed", cleanedPath)}
	}

	examples := make([]CodeExample, 0, len(results))
	var combined strings.Builder
	for _, r := range results {
		ex := CodeExample{FilePath: cleanedPath, Content: r.Document.Content}
		if rr, ok := r.Document.Metadata["repo_ref"].(string); ok {
			ex.RepoRef = rr
		}
		if sl, ok := r.Document.Metadata["start_line"].(int); ok {
			ex.StartLine = sl
		}
		if el, ok := r.Document.Metadata["end_line"].(int); ok {
			ex.EndLine = el
		}
		if req.Line > 0 && ex.StartLine > 0 && (req.Line < ex.StartLine || req.Line > ex.EndLine) {
			continue
		}
		examples = append(examples, ex)
		combined.WriteString(r.Document.Content)
		combined.WriteString("\n")
	}
	if len(examples) == 0 {
		examples = append(examples, CodeExample{FilePath: cleanedPath, Content: results[0].Document.Content})
		combined.WriteString(results[0].Document.Content)
	}

	return ExplainResponse{
		Explanation: generateExplanation(cleanedPath, combined.String()),
		Complexity:  assessComplexity(combined.String()),
		Examples:    examples,
	}, nil
}

func generateExplanation(filePath, content string) string {
	lines := strings.Count(content, "\n") + 1
	return fmt.Sprintf("%s has %d indexed lines across its chunked regions. %s", filePath, lines, summarizeContent(content))
}

func summarizeContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) > 240 {
		trimmed = trimmed[:240] + "..."
	}
	first := strings.SplitN(trimmed, "\n", 2)[0]
	return fmt.Sprintf("First indexed line: %q", first)
}

func assessComplexity(content string) string {
	lines := strings.Split(content, "\n")
	branches := 0
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "if ") || strings.HasPrefix(t, "for ") || strings.HasPrefix(t, "switch ") || strings.HasPrefix(t, "case ") {
			branches++
		}
	}
	switch {
	case len(lines) > 300 || branches > 30:
		return "high"
	case len(lines) > 100 || branches > 10:
		return "medium"
	default:
		return "low"
	}
}

func (s *Server) handleRepoGrep(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req GrepRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid request: %v", err)}
	}
	if req.Pattern == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "pattern is required"}
	}

	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid pattern: %v", err)}
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	roots, err := s.grepRoots(req.RepoRef)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}

	// literalHints lets us skip files that can't possibly match before
	// paying for a full regexp pass over their contents.
	var literalHints []string
	if frag, err := planner.Plan(req.Pattern); err == nil {
		literalHints = planner.Optimize(frag).Literals()
	}

	var results []GrepResult
	truncated := false
	for _, root := range roots {
		files, err := getFilesToSearch(root.diskPath, req.PathGlob)
		if err != nil {
			continue
		}
		for _, f := range files {
			if len(results) >= maxResults {
				truncated = true
				break
			}
			matches, err := grepInFile(f, re, literalHints, maxResults-len(results))
			if err != nil {
				continue
			}
			rel, _ := filepath.Rel(root.diskPath, f)
			for _, m := range matches {
				m.FilePath = rel
				m.RepoRef = root.ref
				results = append(results, m)
			}
		}
		if truncated {
			break
		}
	}

	return GrepResponse{Results: results, TotalCount: len(results), Truncated: truncated}, nil
}

type grepRoot struct {
	ref      string
	diskPath string
}

func (s *Server) grepRoots(refArg string) ([]grepRoot, error) {
	if refArg != "" {
		ref, err := repo.ParseRepoRef(refArg)
		if err != nil {
			return nil, fmt.Errorf("invalid repo_ref: %w", err)
		}
		r, ok := s.pool.Get(ref)
		if !ok {
			return nil, fmt.Errorf("repo %s is not tracked", refArg)
		}
		return []grepRoot{{ref: refArg, diskPath: r.DiskPath}}, nil
	}

	var roots []grepRoot
	s.pool.Scan(func(ref repo.RepoRef, r *repo.Repository) {
		if r.GetStatus().Kind == repo.Removed {
			return
		}
		roots = append(roots, grepRoot{ref: ref.String(), diskPath: r.DiskPath})
	})
	sort.Slice(roots, func(i, j int) bool { return roots[i].ref < roots[j].ref })
	return roots, nil
}

func getFilesToSearch(root, pathGlob string) ([]string, error) {
	ignorePatterns := indexer.DefaultIgnorePatterns()
	if gi, err := indexer.LoadGitignore(filepath.Join(root, ".gitignore"), root); err == nil {
		ignorePatterns = append(ignorePatterns, gi...)
	}
	walker := indexer.NewFileWalker(5 * 1024 * 1024)

	var files []string
	err := walker.Walk(context.Background(), root, ignorePatterns, func(path string, info fs.FileInfo) error {
		if info.IsDir() {
			return nil
		}
		if pathGlob != "" {
			rel, _ := filepath.Rel(root, path)
			if ok, _ := filepath.Match(pathGlob, rel); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func grepInFile(path string, re *regexp.Regexp, literalHints []string, limit int) ([]GrepResult, error) {
	if len(literalHints) > 0 {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		content := string(raw)
		found := false
		for _, lit := range literalHints {
			if strings.Contains(content, lit) {
				found = true
				break
			}
		}
		if !found {
			return nil, nil
		}
		return grepLines(strings.NewReader(content), re, limit), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return grepLines(f, re, limit), nil
}

func grepLines(r interface{ Read([]byte) (int, error) }, re *regexp.Regexp, limit int) []GrepResult {
	var out []GrepResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			out = append(out, GrepResult{LineNumber: lineNo, Line: line})
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (s *Server) handleRepoSync(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req RepoSyncRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid request: %v", err)}
	}
	if req.RepoRef == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "repo_ref is required"}
	}
	ref, err := repo.ParseRepoRef(req.RepoRef)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid repo_ref: %v", err)}
	}

	if _, ok := s.pool.Get(ref); !ok {
		s.pool.Entry(ref, func() *repo.Repository { return repo.NewRepository(ref, s.diskPathFor(ref)) })
	}

	if req.Wait {
		status, err := s.queue.WaitForSyncAndIndex(ctx, s.pool, s.fileCache, ref)
		if err != nil {
			return nil, &protocol.Error{Code: protocol.InternalError, Message: fmt.Sprintf("sync failed: %v", err)}
		}
		return RepoSyncResponse{RepoRef: req.RepoRef, Status: status.Kind.String(), Message: status.Message}, nil
	}

	s.queue.Enqueue(ctx, s.pool, s.fileCache, ref)
	return RepoSyncResponse{RepoRef: req.RepoRef, Status: repo.Queued.String()}, nil
}

// diskPathFor picks where a freshly-discovered ref's working copy lives.
// A local ref's identity already is its disk path; a GitHub ref has no
// disk path yet, so it gets a slot under the local cache directory keyed
// by its sanitized owner/repo identity.
func (s *Server) diskPathFor(ref repo.RepoRef) string {
	if ref.Backend == repo.BackendLocal {
		return ref.Identity
	}
	return filepath.Join(s.src.LocalCacheDir(), strings.ReplaceAll(ref.Identity, "/", "_"))
}

func (s *Server) handleRepoStatus(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req RepoStatusRequest
	if len(args) > 0 {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid request: %v", err)}
		}
	}

	if req.RepoRef != "" {
		ref, err := repo.ParseRepoRef(req.RepoRef)
		if err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid repo_ref: %v", err)}
		}
		r, ok := s.pool.Get(ref)
		if !ok {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("repo %s is not tracked", req.RepoRef)}
		}
		return RepoStatusResponse{Repos: []RepoStatusItem{repoStatusItem(ref, r)}}, nil
	}

	var items []RepoStatusItem
	s.pool.Scan(func(ref repo.RepoRef, r *repo.Repository) {
		items = append(items, repoStatusItem(ref, r))
	})
	sort.Slice(items, func(i, j int) bool { return items[i].RepoRef < items[j].RepoRef })
	return RepoStatusResponse{Repos: items}, nil
}

func (s *Server) handleRepoList(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var items []RepoStatusItem
	s.pool.Scan(func(ref repo.RepoRef, r *repo.Repository) {
		items = append(items, repoStatusItem(ref, r))
	})
	sort.Slice(items, func(i, j int) bool { return items[i].RepoRef < items[j].RepoRef })
	return RepoListResponse{Repos: items}, nil
}

func repoStatusItem(ref repo.RepoRef, r *repo.Repository) RepoStatusItem {
	status := r.GetStatus()
	item := RepoStatusItem{
		RepoRef:     ref.String(),
		DiskPath:    r.DiskPath,
		Status:      status.Kind.String(),
		LastIndexed: r.LastIndexed,
	}
	if status.Kind == repo.Error {
		item.StatusDetail = status.Message
	}
	if !r.LastSyncedAt.IsZero() {
		item.LastSyncedAt = r.LastSyncedAt.Format(time.RFC3339)
	}
	return item
}

func (s *Server) handleError(ctx context.Context, err error, tool string) {
	if s.errorHandler == nil {
		return
	}
	s.errorHandler.HandleError(ctx, err, observability.ExtractErrorContext(ctx, tool))
}
