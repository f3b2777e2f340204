// Package testutil provides helpers for enforcing import boundaries between
// the catalog's layers.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "github.com/almecha/GlucoseIoT"

// AssertNoTransitiveDependency loads pattern (e.g. ./... or a full import
// path) with its dependency graph and fails if any dependency satisfies
// forbidden. The reason is appended to the failure.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfTransitiveViolations(t, reason, viols)
}

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import path satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// InternalImportForbidden matches any path inside this module's internal tree.
func InternalImportForbidden(path string) bool {
	return strings.HasPrefix(path, ModulePath+"/internal/")
}

// TransportImportForbidden matches the HTTP layer and the router it uses.
func TransportImportForbidden(path string) bool {
	return path == ModulePath+"/internal/httpapi" || path == "github.com/gorilla/mux"
}

var loadDeps = func(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	return packages.Load(cfg, pattern)
}

func transitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, error) {
	roots, err := loadDeps(pattern)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var viols []string
	var walk func(p *packages.Package)
	walk = func(p *packages.Package) {
		for path, dep := range p.Imports {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			if forbidden(path) {
				viols = append(viols, path+" (via "+p.PkgPath+")")
			}
			walk(dep)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	sort.Strings(viols)
	return viols, nil
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfTransitiveViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden transitive dependency detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
