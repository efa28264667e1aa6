package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[server]
port = 8080

[storage]
driver = "sqlite"
sqlite_path = "` + filepath.ToSlash(filepath.Join(dir, "gravecore.db")) + `"

[blob]
driver = "fs"
fs_root = "` + filepath.ToSlash(filepath.Join(dir, "blobs")) + `"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), &out, &errOut, nil); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, want := range []string{"serve", "backup"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("usage missing %q: %s", want, out.String())
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), &out, &errOut, []string{"exhume"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestRunCommandHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), &out, &errOut, []string{"backup", "--help"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "--list") {
		t.Fatalf("help missing flags: %s", out.String())
	}
}

func TestRunBackupWritesAndLists(t *testing.T) {
	t.Setenv("GRAVECORE_STORAGE_DRIVER", "")
	t.Setenv("GRAVECORE_BLOB_DRIVER", "")
	cfg := writeConfig(t)
	ctx := context.Background()

	var out, errOut bytes.Buffer
	if code := run(ctx, &out, &errOut, []string{"backup", "--config", cfg}); code != 0 {
		t.Fatalf("backup failed: %s", errOut.String())
	}
	key := strings.TrimSpace(out.String())
	if !strings.HasPrefix(key, "snapshots/") {
		t.Fatalf("unexpected key %q", key)
	}

	out.Reset()
	if code := run(ctx, &out, &errOut, []string{"backup", "-c", cfg, "--list"}); code != 0 {
		t.Fatalf("list failed: %s", errOut.String())
	}
	if !strings.Contains(out.String(), key) {
		t.Fatalf("listing missing %q: %s", key, out.String())
	}
}

func TestRunMissingConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), &out, &errOut, []string{"backup", "--config", filepath.Join(t.TempDir(), "none.toml")})
	if code != 1 || !strings.Contains(errOut.String(), "failed to load configuration") {
		t.Fatalf("expected config error, got %d %s", code, errOut.String())
	}
}
