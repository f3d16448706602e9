package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"slipstream/internal/fileutil"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if fileutil.FileExists(path) {
		t.Fatal("expected false for missing file")
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !fileutil.FileExists(path) {
		t.Fatal("expected true for regular file")
	}
	if fileutil.FileExists(dir) {
		t.Fatal("expected false for directory")
	}
}

func TestRemoveQuietly(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "input.mp4")
	nested := filepath.Join(dir, "out")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(nested, "segments"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fileutil.RemoveQuietly(nil, file, nested, filepath.Join(dir, "never-existed"))

	if fileutil.FileExists(file) {
		t.Fatal("file should be removed")
	}
	if _, err := os.Stat(nested); !os.IsNotExist(err) {
		t.Fatal("directory should be removed")
	}
}
