package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, base string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(base, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNewLocalStorage_RequiresDirectory(t *testing.T) {
	base := t.TempDir()
	if _, err := NewLocalStorage(filepath.Join(base, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}

	file := filepath.Join(base, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocalStorage(file); err == nil {
		t.Error("expected error for a regular file")
	}
}

func TestLocalStorage_OpenAndExists(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, map[string]string{"data/users.csv": "id,name\n1,Alice\n"})

	s, err := NewLocalStorage(base)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx := context.Background()

	exists, err := s.Exists(ctx, "data/users.csv")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v", exists, err)
	}
	if exists, _ := s.Exists(ctx, "data"); exists {
		t.Error("a directory is not an object")
	}

	rc, err := s.Open(ctx, "data/users.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "id,name\n1,Alice\n" {
		t.Errorf("content = %q", content)
	}

	if _, err := s.Open(ctx, "data/orders.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Open(missing) = %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, map[string]string{
		"b.csv":         "",
		"a.json":        "",
		"logs/2024.csv": "",
		"logs/2025.csv": "",
	})
	s, err := NewLocalStorage(base)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	all, err := s.ListObjects(ctx, "")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	want := []string{"a.json", "b.csv", "logs/2024.csv", "logs/2025.csv"}
	if len(all) != len(want) {
		t.Fatalf("got %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("object %d = %q, want %q", i, all[i], want[i])
		}
	}

	none, err := s.ListObjects(ctx, "missing/")
	if err != nil || len(none) != 0 {
		t.Errorf("ListObjects(missing) = %v, %v", none, err)
	}
}

func TestGlob(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, map[string]string{
		"sales_jan.csv":       "",
		"sales_feb.csv":       "",
		"sales_feb.json":      "",
		"other.csv":           "",
		"archive/sales_x.csv": "",
	})
	s, err := NewLocalStorage(base)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []struct {
		pattern string
		want    []string
	}{
		{"sales_*.csv", []string{"sales_feb.csv", "sales_jan.csv"}},
		{"sales_???.*", []string{"sales_feb.csv", "sales_feb.json", "sales_jan.csv"}},
		{"archive/*.csv", []string{"archive/sales_x.csv"}},
		{"*.parquet", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := Glob(ctx, s, tt.pattern)
			if err != nil {
				t.Fatalf("Glob: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("match %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := Glob(ctx, s, "[bad"); err == nil {
		t.Error("expected error for malformed pattern")
	}
	if !IsGlob("a*.csv") || IsGlob("users.csv") {
		t.Error("IsGlob mismatch")
	}
}

func TestReadAll(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, map[string]string{"x.json": `[{"a":1}]`})
	s, err := NewLocalStorage(base)
	if err != nil {
		t.Fatal(err)
	}

	data, err := ReadAll(context.Background(), s, "x.json")
	if err != nil || string(data) != `[{"a":1}]` {
		t.Errorf("ReadAll = %q, %v", data, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ReadAll(ctx, s, "x.json"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ReadAll = %v", err)
	}
}
