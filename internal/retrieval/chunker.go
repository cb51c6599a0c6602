// Package retrieval implements hybrid BM25 + dense-embedding search over a
// workspace's source files, fused with Reciprocal Rank Fusion, plus an
// LLM-driven query-expansion/rerank sub-agent on top of it.
//
// Grounded on original_source/workers/codeforge/retrieval.py's CodeChunker
// and HybridRetriever, reduced to Go source only the same way
// internal/repomap and internal/codegraph reduce their tree-sitter
// counterparts: go/parser walks top-level declarations instead of a
// tree-sitter grammar per language (see DESIGN.md's stdlib-use
// justification). Non-Go files still produce a single whole-file chunk so
// BM25 can index them, just without definition-boundary splitting.
package retrieval

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/repomap"
)

// DefaultMaxChunkLines matches retrieval.py's _DEFAULT_MAX_CHUNK_LINES.
const DefaultMaxChunkLines = 100

// CodeChunk is a contiguous block of source extracted from a file.
type CodeChunk struct {
	Filepath   string
	StartLine  int // 1-based, inclusive
	EndLine    int // 1-based, inclusive
	Content    string
	Language   string
	SymbolName string
}

// Chunker splits source files into chunks at definition boundaries.
type Chunker struct {
	maxChunkLines int
}

// NewChunker creates a chunker. maxChunkLines <= 0 uses DefaultMaxChunkLines.
func NewChunker(maxChunkLines int) *Chunker {
	if maxChunkLines <= 0 {
		maxChunkLines = DefaultMaxChunkLines
	}
	return &Chunker{maxChunkLines: maxChunkLines}
}

// ChunkWorkspace walks workspacePath and chunks every recognized source
// file, honoring internal/repomap's shared skip-dir/size/file-count limits.
func (c *Chunker) ChunkWorkspace(workspacePath string) []CodeChunk {
	var chunks []CodeChunk
	for _, absPath := range repomap.CollectFiles(workspacePath) {
		language, ok := repomap.LanguageForExt(filepath.Ext(absPath))
		if !ok {
			continue
		}
		relPath, err := filepath.Rel(workspacePath, absPath)
		if err != nil {
			continue
		}
		chunks = append(chunks, c.ChunkFile(absPath, relPath, language)...)
	}
	return chunks
}

// ChunkFile parses a single file and splits it at definition boundaries.
// Non-Go files (and Go files that fail to parse) fall back to one
// whole-file chunk, matching retrieval.py's "no definitions found" path.
func (c *Chunker) ChunkFile(absPath, relPath, language string) []CodeChunk {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil
	}

	lines := splitKeepEnds(string(source))
	if len(lines) == 0 {
		return nil
	}

	var definitions []definitionSpan
	if language == "go" {
		definitions = goDefinitionSpans(relPath, source)
	}

	if len(definitions) == 0 {
		return c.wholeFileFallback(relPath, language, lines)
	}
	return c.chunkAroundDefinitions(relPath, language, lines, definitions)
}

type definitionSpan struct {
	startLine0 int // 0-indexed
	endLine0   int // 0-indexed, inclusive
	name       string
}

func goDefinitionSpans(relPath string, source []byte) []definitionSpan {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, source, 0)
	if err != nil {
		return nil
	}

	var spans []definitionSpan
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name == nil {
				continue
			}
			spans = append(spans, spanFor(fset, d.Pos(), d.End(), d.Name.Name))
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name != nil {
						spans = append(spans, spanFor(fset, d.Pos(), d.End(), s.Name.Name))
					}
				case *ast.ValueSpec:
					for _, name := range s.Names {
						spans = append(spans, spanFor(fset, d.Pos(), d.End(), name.Name))
					}
				}
			}
		}
	}
	return spans
}

func spanFor(fset *token.FileSet, start, end token.Pos, name string) definitionSpan {
	return definitionSpan{
		startLine0: fset.Position(start).Line - 1,
		endLine0:   fset.Position(end).Line - 1,
		name:       name,
	}
}

func (c *Chunker) wholeFileFallback(relPath, language string, lines []string) []CodeChunk {
	full := strings.Join(lines, "")
	if strings.TrimSpace(full) == "" {
		return nil
	}
	return []CodeChunk{{
		Filepath: relPath, StartLine: 1, EndLine: len(lines),
		Content: full, Language: language, SymbolName: "",
	}}
}

func (c *Chunker) chunkAroundDefinitions(relPath, language string, lines []string, definitions []definitionSpan) []CodeChunk {
	var chunks []CodeChunk
	coveredUpTo := 0

	for _, def := range definitions {
		if def.startLine0 > coveredUpTo {
			gap := strings.Join(lines[coveredUpTo:def.startLine0], "")
			if strings.TrimSpace(gap) != "" {
				chunks = append(chunks, CodeChunk{
					Filepath: relPath, StartLine: coveredUpTo + 1, EndLine: def.startLine0,
					Content: gap, Language: language, SymbolName: "",
				})
			}
		}

		numLines := def.endLine0 - def.startLine0 + 1
		if numLines > c.maxChunkLines {
			chunks = append(chunks, c.splitOversizedDefinition(relPath, language, lines, def)...)
		} else {
			chunks = append(chunks, CodeChunk{
				Filepath: relPath, StartLine: def.startLine0 + 1, EndLine: def.endLine0 + 1,
				Content: strings.Join(lines[def.startLine0:def.endLine0+1], ""),
				Language: language, SymbolName: def.name,
			})
		}

		coveredUpTo = def.endLine0 + 1
	}

	if coveredUpTo < len(lines) {
		tail := strings.Join(lines[coveredUpTo:], "")
		if strings.TrimSpace(tail) != "" {
			chunks = append(chunks, CodeChunk{
				Filepath: relPath, StartLine: coveredUpTo + 1, EndLine: len(lines),
				Content: tail, Language: language, SymbolName: "",
			})
		}
	}

	return chunks
}

func (c *Chunker) splitOversizedDefinition(relPath, language string, lines []string, def definitionSpan) []CodeChunk {
	numLines := def.endLine0 - def.startLine0 + 1
	var sub []CodeChunk
	for offset := 0; offset < numLines; offset += c.maxChunkLines {
		subStart := def.startLine0 + offset
		subEnd := def.startLine0 + offset + c.maxChunkLines - 1
		if subEnd > def.endLine0 {
			subEnd = def.endLine0
		}
		symbolName := ""
		if def.name != "" {
			symbolName = def.name + " (part " + strconv.Itoa(offset/c.maxChunkLines+1) + ")"
		}
		sub = append(sub, CodeChunk{
			Filepath: relPath, StartLine: subStart + 1, EndLine: subEnd + 1,
			Content:  strings.Join(lines[subStart:subEnd+1], ""),
			Language: language, SymbolName: symbolName,
		})
	}
	return sub
}

// splitKeepEnds splits text into lines, keeping line terminators, mirroring
// Python's str.splitlines(keepends=True).
func splitKeepEnds(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
