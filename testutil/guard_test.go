package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalImportForbidden(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"gravecore/internal/core", true},
		{"gravecore/pkg/domain", false},
		{"github.com/pkg/errors", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestPackagesForbidden(t *testing.T) {
	forbidden := PackagesForbidden("internal/core", "/internal/api/")
	cases := []struct {
		in   string
		want bool
	}{
		{"gravecore/internal/core", true},
		{"gravecore/internal/api/http", true},
		{"gravecore/internal/corex", false},
		{"gravecore/internal/infra/mq", false},
		{"internal/core", false},
	}
	for _, c := range cases {
		if got := forbidden(c.in); got != c.want {
			t.Fatalf("forbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

type recordingFatal struct {
	msg string
}

func (r *recordingFatal) Fatalf(format string, args ...any) {
	r.msg = fmt.Sprintf(format, args...)
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport \"gravecore/internal/core\"\nvar _ = core.Apply\n")
	writeFile(t, dir, "b.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println() }\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"gravecore/internal/server\"\n")
	writeFile(t, dir, "notes.txt", "import \"gravecore/internal/core\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "c.go", "package sub\nimport \"gravecore/internal/core\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "a.go") {
		t.Fatalf("expected one violation in a.go, got %v", viols)
	}

	rec := &recordingFatal{}
	failIfDirectViolations(rec, "layering", viols)
	if !strings.Contains(rec.msg, "layering") || !strings.Contains(rec.msg, "gravecore/internal/core") {
		t.Fatalf("unexpected failure message %q", rec.msg)
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}\n")
	AssertNoDirectImports(t, dir, InternalImportForbidden, "only stdlib")
}

func TestDirectImportViolationsMissingDir(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
