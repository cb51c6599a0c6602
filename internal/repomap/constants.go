package repomap

// skipDirs are never descended into when collecting source files.
var skipDirs = map[string]struct{}{
	".git":            {},
	"node_modules":    {},
	"vendor":          {},
	"__pycache__":     {},
	"dist":            {},
	"build":           {},
	".venv":           {},
	".tox":            {},
	".mypy_cache":     {},
	".ruff_cache":     {},
	".pytest_cache":   {},
}

// extensionLanguage maps a file extension to the language name reported in
// a RepoMapResult. Only "go" gets definition/reference extraction (below);
// the rest are counted toward file/language totals but contribute no tags,
// since the pack carries no tree-sitter binding to parse them.
var extensionLanguage = map[string]string{
	".py":   "python",
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "tsx",
	".js":   "javascript",
	".jsx":  "javascript",
	".java": "java",
	".rs":   "rust",
	".rb":   "ruby",
	".c":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".cxx":  "cpp",
	".cs":   "csharp",
	".kt":   "kotlin",
	".swift": "swift",
	".php":  "php",
	".h":    "c",
	".hpp":  "cpp",
}

const (
	// maxFileSize skips any source file larger than 100KB.
	maxFileSize = 100 * 1024
	// maxFiles caps the number of files a single generate() call collects.
	maxFiles = 2000
	// charsPerToken is the same rough token-estimate heuristic history.go uses.
	charsPerToken = 4
)

const (
	pagerankDamping    = 0.85
	pagerankIterations = 100
	pagerankTolerance  = 1e-6
)

// defaultTokenBudget is used when a caller doesn't override it.
const defaultTokenBudget = 1024
