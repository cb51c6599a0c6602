package repomap

import (
	"go/ast"
	"go/parser"
	"go/token"
)

// SymbolTag is a single definition or reference extracted from a source
// file, grounded on repomap.py's SymbolTag dataclass.
type SymbolTag struct {
	RelPath string
	Line    int // 1-indexed
	Name    string
	Kind    string // "def" or "ref"
	Scope   string // "public" or "private"
}

const (
	kindDef = "def"
	kindRef = "ref"
)

// extractTags parses a Go source file and returns its top-level definition
// tags (functions, methods, types, consts, vars) plus reference tags for
// every identifier not locally defined in the file. Non-Go languages have
// no extractor (see extensionLanguage's comment) and extractTags is never
// called for them.
func extractTags(relPath string, source []byte) []SymbolTag {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, source, parser.ParseComments)
	if err != nil {
		return nil
	}

	var tags []SymbolTag
	defNames := make(map[string]struct{})

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name == nil {
				continue
			}
			addDef(&tags, defNames, relPath, fset, d.Pos(), d.Name.Name)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name != nil {
						addDef(&tags, defNames, relPath, fset, s.Pos(), s.Name.Name)
					}
				case *ast.ValueSpec:
					for _, name := range s.Names {
						addDef(&tags, defNames, relPath, fset, name.Pos(), name.Name)
					}
				}
			}
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		ident, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		name := ident.Name
		if len(name) < 2 {
			return true
		}
		if _, isDef := defNames[name]; isDef {
			return true
		}
		if name == "_" || isGoKeywordLike(name) {
			return true
		}
		pos := fset.Position(ident.Pos())
		tags = append(tags, SymbolTag{RelPath: relPath, Line: pos.Line, Name: name, Kind: kindRef, Scope: "public"})
		return true
	})

	return tags
}

func addDef(tags *[]SymbolTag, defNames map[string]struct{}, relPath string, fset *token.FileSet, pos token.Pos, name string) {
	scope := "private"
	if ast.IsExported(name) {
		scope = "public"
	}
	position := fset.Position(pos)
	*tags = append(*tags, SymbolTag{RelPath: relPath, Line: position.Line, Name: name, Kind: kindDef, Scope: scope})
	defNames[name] = struct{}{}
}

// isGoKeywordLike filters out the handful of predeclared identifiers that
// would otherwise show up as noisy cross-file "references" to every file
// that uses a basic type or built-in.
func isGoKeywordLike(name string) bool {
	switch name {
	case "string", "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
		"float32", "float64", "complex64", "complex128",
		"bool", "byte", "rune", "error", "any",
		"true", "false", "nil", "iota",
		"len", "cap", "make", "new", "append", "copy", "delete",
		"panic", "recover", "print", "println",
		"nolint":
		return true
	}
	return false
}
