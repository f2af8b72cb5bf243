package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func tempVault(t *testing.T, files map[string]string) *FS {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestList_MarkdownOnlySorted(t *testing.T) {
	s := tempVault(t, map[string]string{
		"b.md":             "b",
		"sub/a.md":         "a",
		"readme.txt":       "not md",
		".obsidian/x.md":   "hidden dir",
		".draft.md":        "hidden file",
		"deep/er/Upper.MD": "upper",
	})

	items, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"b.md", "deep/er/Upper.MD", "sub/a.md"}
	if len(items) != len(want) {
		t.Fatalf("items = %+v, want %v", items, want)
	}
	for i, p := range want {
		if items[i].Path != p {
			t.Errorf("items[%d] = %q, want %q", i, items[i].Path, p)
		}
	}
	if items[0].Size != 1 || items[0].ModTime.IsZero() {
		t.Errorf("metadata = %+v", items[0])
	}
}

func TestList_Cancelled(t *testing.T) {
	s := tempVault(t, map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.List(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRead(t *testing.T) {
	s := tempVault(t, map[string]string{"a/b/c.md": "deep"})
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestRead_MissingIsNotExist(t *testing.T) {
	s := tempVault(t, nil)
	_, err := s.Read("gone.md")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t, nil)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow", "", "."} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "notegraph-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
