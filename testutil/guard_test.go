package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, ModulePath + "/internal/core", true},
		{"internal other module", InternalImportForbidden, "example.com/mod/internal/x", false},
		{"pkg", InternalImportForbidden, ModulePath + "/pkg/domain", false},
		{"httpapi", TransportImportForbidden, ModulePath + "/internal/httpapi", true},
		{"mux", TransportImportForbidden, "github.com/gorilla/mux", true},
		{"core", TransportImportForbidden, ModulePath + "/internal/core", false},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Fatalf("%s(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func writeFile(t *testing.T, path, src string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package tmp\nimport \"fmt\"\nimport \"forbidden/x\"\nfunc A(){fmt.Println(1)}")
	writeFile(t, filepath.Join(dir, "a_test.go"), "package tmp\nimport \"forbidden/y\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub", "b.go"), "package sub\nimport \"forbidden/z\"\n")

	viols, err := directImportViolations(dir, func(p string) bool { return len(p) > 9 && p[:9] == "forbidden" })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "forbidden/x (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.go"), "this is not go")
	if _, err := directImportViolations(dir, func(string) bool { return false }); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDirectImportViolationsMissingDir(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), func(string) bool { return false }); err == nil {
		t.Fatalf("expected error")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailHelpers(t *testing.T) {
	var r recordingFatal
	failIfDirectViolations(&r, "why", nil)
	failIfTransitiveViolations(&r, "why", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfTransitiveViolations(&r, "why", []string{"x"})
	if r.msg == "" {
		t.Fatalf("expected failure message")
	}
}

func TestDomainStaysIndependent(t *testing.T) {
	AssertNoTransitiveDependency(t, ModulePath+"/pkg/domain", InternalImportForbidden, "pkg/domain is the shared vocabulary")
	AssertNoDirectImports(t, filepath.Join("..", "pkg", "domain"), InternalImportForbidden, "pkg/domain is the shared vocabulary")
}

func TestCoreDoesNotDependOnTransport(t *testing.T) {
	AssertNoTransitiveDependency(t, ModulePath+"/internal/core", TransportImportForbidden, "core must stay usable without HTTP")
}
