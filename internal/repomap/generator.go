// Package repomap builds a ranked, token-budgeted text map of a workspace's
// source symbols: collect source files, extract Go definition/reference
// tags via go/parser, build a cross-file dependency graph, rank files with
// weighted PageRank, and render the top-ranked files' symbols within a
// token budget.
//
// Grounded on original_source/workers/codeforge/repomap.py's
// RepoMapGenerator, reduced from its multi-language tree-sitter extraction
// to Go's standard library AST (no tree-sitter binding exists anywhere in
// the example pack; see DESIGN.md's stdlib-use justification for this
// package).
package repomap

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Result mirrors repomap.py's RepoMapResult: the rendered map plus the
// bookkeeping a caller needs to decide whether to inject it as a
// model.ContextEntry.
type Result struct {
	MapText    string
	TokenCount int
	FileCount  int
	SymbolCount int
	Languages  []string
}

// Generator produces a Result for one workspace.
type Generator struct {
	tokenBudget int
}

// NewGenerator creates a generator with the given token budget. A
// non-positive budget falls back to the original's default of 1024.
func NewGenerator(tokenBudget int) *Generator {
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}
	return &Generator{tokenBudget: tokenBudget}
}

// Generate builds the repo map for workspacePath. activeFiles are
// workspace-relative paths that should be weighted more heavily in the
// dependency graph (e.g. files already open in the run's context).
func (g *Generator) Generate(workspacePath string, activeFiles []string) Result {
	files := collectFiles(workspacePath)
	if len(files) == 0 {
		return Result{}
	}

	var allTags []SymbolTag
	languagesSeen := make(map[string]struct{})

	for _, absPath := range files {
		relPath, err := filepath.Rel(workspacePath, absPath)
		if err != nil {
			continue
		}
		ext := filepath.Ext(absPath)
		language, ok := extensionLanguage[ext]
		if !ok {
			continue
		}
		languagesSeen[language] = struct{}{}
		if language != "go" {
			continue
		}
		source, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}
		allTags = append(allTags, extractTags(relPath, source)...)
	}

	languages := make([]string, 0, len(languagesSeen))
	for lang := range languagesSeen {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	if len(allTags) == 0 {
		return Result{FileCount: len(files), Languages: languages}
	}

	graph := buildGraph(allTags, activeFiles)
	ranked := pagerank(graph)

	var defTags []SymbolTag
	for _, t := range allTags {
		if t.Kind == kindDef {
			defTags = append(defTags, t)
		}
	}
	sort.SliceStable(defTags, func(i, j int) bool {
		ri, rj := ranked[defTags[i].RelPath], ranked[defTags[j].RelPath]
		if ri != rj {
			return ri > rj
		}
		return defTags[i].Line < defTags[j].Line
	})

	mapText := formatMap(defTags, g.tokenBudget)
	return Result{
		MapText:     mapText,
		TokenCount:  len(mapText) / charsPerToken,
		FileCount:   len(files),
		SymbolCount: len(defTags),
		Languages:   languages,
	}
}

// LanguageForExt reports the language name for a file extension, per the
// same extensionLanguage table Generate uses. Exported for internal/codegraph.
func LanguageForExt(ext string) (string, bool) {
	lang, ok := extensionLanguage[ext]
	return lang, ok
}

// CollectFiles recursively collects source files under root, skipping
// ignored directories and large files, capped at maxFiles. Exported so
// internal/codegraph can reuse the same file-collection walk rather than
// duplicating it.
func CollectFiles(root string) []string {
	return collectFiles(root)
}

// collectFiles recursively collects source files under root, skipping
// ignored directories and files over maxFileSize, capped at maxFiles.
func collectFiles(root string) []string {
	var collected []string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if len(collected) >= maxFiles {
			return filepath.SkipAll
		}
		if info.IsDir() {
			if _, skip := skipDirs[info.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := extensionLanguage[filepath.Ext(path)]; !ok {
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}
		collected = append(collected, path)
		return nil
	})
	return collected
}

// buildGraph builds a directed graph where edges point from a file that
// references a symbol to the file(s) that define it, weighted per
// repomap.py's _build_graph: long names weigh more, private-looking names
// weigh less, and edges touching an active file are boosted.
func buildGraph(tags []SymbolTag, activeFiles []string) *digraph {
	graph := newDigraph()

	defsByName := make(map[string]map[string]struct{})
	for _, tag := range tags {
		if tag.Kind != kindDef {
			continue
		}
		if defsByName[tag.Name] == nil {
			defsByName[tag.Name] = make(map[string]struct{})
		}
		defsByName[tag.Name][tag.RelPath] = struct{}{}
		graph.addNode(tag.RelPath)
	}

	active := make(map[string]struct{}, len(activeFiles))
	for _, f := range activeFiles {
		active[f] = struct{}{}
	}

	for _, tag := range tags {
		if tag.Kind != kindRef {
			continue
		}
		defFiles, ok := defsByName[tag.Name]
		if !ok {
			continue
		}
		for defFile := range defFiles {
			if defFile == tag.RelPath {
				continue
			}
			weight := 1.0
			if len(tag.Name) >= 8 {
				weight *= 10.0
			}
			if strings.HasPrefix(tag.Name, "_") {
				weight *= 0.1
			}
			if _, ok := active[tag.RelPath]; ok {
				weight *= 50.0
			} else if _, ok := active[defFile]; ok {
				weight *= 50.0
			}

			if graph.hasEdge(tag.RelPath, defFile) {
				graph.addEdge(tag.RelPath, defFile, graph.edgeWeight(tag.RelPath, defFile)+weight)
			} else {
				graph.addEdge(tag.RelPath, defFile, weight)
			}
		}
	}

	return graph
}

// formatMap renders ranked definition tags within charBudget characters,
// finding the maximum number of highest-ranked files that fit via binary
// search over the rendered output length. The top-ranked file is always
// rendered, even when it alone exceeds the budget.
func formatMap(rankedTags []SymbolTag, tokenBudget int) string {
	if len(rankedTags) == 0 {
		return ""
	}
	charBudget := tokenBudget * charsPerToken

	var filesOrder []string
	tagsByFile := make(map[string][]SymbolTag)
	seen := make(map[string]struct{})
	for _, tag := range rankedTags {
		if _, ok := seen[tag.RelPath]; !ok {
			seen[tag.RelPath] = struct{}{}
			filesOrder = append(filesOrder, tag.RelPath)
		}
		tagsByFile[tag.RelPath] = append(tagsByFile[tag.RelPath], tag)
	}

	lo, hi := 1, len(filesOrder)
	best := renderMap(filesOrder[:1], tagsByFile)

	for lo <= hi {
		mid := (lo + hi) / 2
		rendered := renderMap(filesOrder[:mid], tagsByFile)
		if len(rendered) <= charBudget {
			best = rendered
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	return best
}

func renderMap(files []string, tagsByFile map[string][]SymbolTag) string {
	var lines []string
	for _, path := range files {
		lines = append(lines, path)
		for _, tag := range tagsByFile[path] {
			lines = append(lines, "    "+tag.Name)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
