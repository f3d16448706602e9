package testsupport

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with exactly size bytes of filler content, creating
// parent directories as needed. A size <= 0 writes one byte so the file is
// never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	chunk := bytes.Repeat([]byte{0x42}, 32*1024)
	for written := int64(0); written < size; {
		n := size - written
		if n > int64(len(chunk)) {
			n = int64(len(chunk))
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		written += n
	}
}

// WriteSidecar writes the resumable-upload metadata file next to dataPath.
func WriteSidecar(t testing.TB, dataPath string, offset, size int64, metadata map[string]string) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"offset":   offset,
		"size":     size,
		"metadata": metadata,
	})
	if err != nil {
		t.Fatalf("marshal sidecar: %v", err)
	}
	if err := os.WriteFile(dataPath+".json", payload, 0o644); err != nil {
		t.Fatalf("write sidecar for %s: %v", dataPath, err)
	}
}
