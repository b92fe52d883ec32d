package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")

	existed, err := writeFileAtomic(path, []byte("first"))
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if existed {
		t.Error("first write reported an existing file")
	}

	existed, err = writeFileAtomic(path, []byte("second"))
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !existed {
		t.Error("second write did not report the existing file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the written file", len(entries))
	}
}

func TestWriteFileAtomicNameTooLong(t *testing.T) {
	path := filepath.Join(t.TempDir(), strings.Repeat("x", maxNameBytes+1))

	_, err := writeFileAtomic(path, []byte("data"))
	if err == nil {
		t.Fatal("expected an error for an over-long name")
	}
	if !isNameTooLong(err) {
		t.Errorf("isNameTooLong(%v) = false", err)
	}
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "page.html")
	if _, err := writeFileAtomic(path, []byte("data")); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
