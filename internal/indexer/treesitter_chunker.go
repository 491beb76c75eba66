package indexer

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// minChunkBytes rejects slivers (a lone brace, a blank line window at
// the end of a file) that would otherwise pollute the index with
// entries too small to ever be a useful search result.
const minChunkBytes = 50

// lineWindowSize is the fallback chunk size, in source lines, for
// languages with no tree-sitter grammar wired below and for any
// top-level region a grammar's query didn't claim (file header
// comments, package-level var blocks, and the like).
const lineWindowSize = 15

// sectionNodeTypes lists the tree-sitter node types, per language,
// that we treat as a natural chunk boundary: top-level declarations a
// reader would recognize as "one unit" (a function, a class, a
// struct).
var sectionNodeTypes = map[string]map[string]bool{
	"go": {
		"function_declaration": true,
		"method_declaration":   true,
		"type_declaration":     true,
	},
	"python": {
		"function_definition": true,
		"class_definition":    true,
	},
	"javascript": {
		"function_declaration": true,
		"class_declaration":    true,
		"method_definition":    true,
	},
}

func languageForExt(ext string) (*sitter.Language, string, bool) {
	switch ext {
	case ".go":
		return golang.GetLanguage(), "go", true
	case ".py":
		return python.GetLanguage(), "python", true
	case ".js", ".jsx", ".mjs":
		return javascript.GetLanguage(), "javascript", true
	default:
		return nil, "", false
	}
}

// TreeSitterChunker chunks source by parsing it with tree-sitter and
// slicing out each top-level section node; anything tree-sitter
// doesn't have a grammar for (or doesn't claim as a section) falls
// back to fixed line windows. It is the only chunker in this package.
type TreeSitterChunker struct {
	parser *sitter.Parser
}

func NewTreeSitterChunker() *TreeSitterChunker {
	return &TreeSitterChunker{parser: sitter.NewParser()}
}

func (c *TreeSitterChunker) Supports(ext string) bool {
	_, _, ok := languageForExt(ext)
	return ok
}

// Chunk parses content and returns one Chunk per top-level section
// node, with any leftover lines between/around sections folded into
// line-window chunks. Leftover regions whose trimmed text is under
// minChunkBytes are dropped, as are line windows under that size.
func (c *TreeSitterChunker) Chunk(ctx context.Context, content, filePath, ext string) ([]Chunk, error) {
	lang, langName, ok := languageForExt(ext)
	if !ok {
		return chunkByLineWindow(content, filePath, "text")
	}

	c.parser.SetLanguage(lang)
	tree, err := c.parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return chunkByLineWindow(content, filePath, langName)
	}
	defer tree.Close()

	sectionTypes := sectionNodeTypes[langName]
	root := tree.RootNode()
	src := []byte(content)

	var chunks []Chunk
	lastEnd := uint32(0)

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if node == nil || !sectionTypes[node.Type()] {
			continue
		}
		text := string(src[node.StartByte():node.EndByte()])
		if len(strings.TrimSpace(text)) < minChunkBytes {
			continue
		}
		if node.StartByte() > lastEnd {
			gap := string(src[lastEnd:node.StartByte()])
			chunks = append(chunks, chunkGapAsWindows(gap, filePath, langName, lastEnd, content)...)
		}
		startLine := int(node.StartPoint().Row) + 1
		endLine := int(node.EndPoint().Row) + 1
		name := sectionName(node, src)
		chunks = append(chunks, Chunk{
			ID:        generateChunkID(filePath, node.Type(), name, startLine),
			Content:   text,
			FilePath:  filePath,
			Language:  langName,
			Type:      sectionChunkType(node.Type()),
			StartLine: startLine,
			EndLine:   endLine,
			Hash:      generateContentHash(text),
			Metadata:  map[string]string{"symbol": name},
		})
		lastEnd = node.EndByte()
	}
	if lastEnd < uint32(len(src)) {
		gap := string(src[lastEnd:])
		chunks = append(chunks, chunkGapAsWindows(gap, filePath, langName, lastEnd, content)...)
	}

	return chunks, nil
}

func sectionChunkType(nodeType string) ChunkType {
	switch {
	case strings.Contains(nodeType, "function") || strings.Contains(nodeType, "method"):
		return ChunkTypeFunction
	case strings.Contains(nodeType, "class"):
		return ChunkTypeClass
	case strings.Contains(nodeType, "type"):
		return ChunkTypeStruct
	default:
		return ChunkTypeUnknown
	}
}

// sectionName returns the text of the first direct child whose node
// type is "identifier" or "field_identifier", the shape tree-sitter
// grammars conventionally use for a declaration's own name, falling
// back to "" (the chunk is still
// indexed, just without a symbol label).
func sectionName(node *sitter.Node, src []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Type() == "identifier" || child.Type() == "field_identifier" {
			return string(src[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

// chunkGapAsWindows folds a non-section region of the source into
// lineWindowSize-line chunks rather than discarding it, since package
// docs, import blocks, and top-level constants are still searchable
// content even though they aren't a tree-sitter "section".
func chunkGapAsWindows(gap, filePath, language string, byteOffset uint32, fullContent string) []Chunk {
	if len(strings.TrimSpace(gap)) < minChunkBytes {
		return nil
	}
	startLine := strings.Count(fullContent[:byteOffset], "\n") + 1
	chunks, _ := chunkByLineWindow(gap, filePath, language)
	for i := range chunks {
		chunks[i].StartLine += startLine - 1
		chunks[i].EndLine += startLine - 1
	}
	return chunks
}

// chunkByLineWindow is the universal fallback: fixed windows of
// lineWindowSize lines, rejecting any window under minChunkBytes.
func chunkByLineWindow(content, filePath, language string) ([]Chunk, error) {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	for start := 0; start < len(lines); start += lineWindowSize {
		end := start + lineWindowSize
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "\n")
		if len(strings.TrimSpace(text)) < minChunkBytes {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:        generateChunkID(filePath, "window", fmt.Sprintf("%d", start), start+1),
			Content:   text,
			FilePath:  filePath,
			Language:  language,
			Type:      ChunkTypeUnknown,
			StartLine: start + 1,
			EndLine:   end,
			Hash:      generateContentHash(text),
		})
	}
	return chunks, nil
}
