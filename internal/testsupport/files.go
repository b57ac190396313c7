package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// JPEG returns a payload with JPEG start/end markers padded to size bytes.
// Detectors under test never decode it.
func JPEG(size int) []byte {
	if size < 4 {
		size = 4
	}
	buf := bytes.Repeat([]byte{0x42}, size)
	buf[0], buf[1] = 0xFF, 0xD8
	buf[size-2], buf[size-1] = 0xFF, 0xD9
	return buf
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
