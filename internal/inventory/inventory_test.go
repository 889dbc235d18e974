package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stacksync/internal/mgmt"
	"stacksync/internal/platform"
)

type fakeLister struct {
	functions []mgmt.FunctionInfo
	err       error
	calls     int
}

func (f *fakeLister) ListFunctions(ctx context.Context, projectRef string) ([]mgmt.FunctionInfo, error) {
	f.calls++
	return f.functions, f.err
}

func TestFetchPreservesOrder(t *testing.T) {
	lister := &fakeLister{functions: []mgmt.FunctionInfo{
		{Slug: "zeta"}, {Slug: "alpha"}, {Slug: "mid"},
	}}
	fetcher := NewFetcher(lister)

	inv, err := fetcher.Fetch(context.Background(), platform.Environment{Name: "src", ProjectRef: "r"})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"zeta", "alpha", "mid"}
	if len(inv.Names) != len(want) {
		t.Fatalf("names = %v, want %v", inv.Names, want)
	}
	for i := range want {
		if inv.Names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, inv.Names[i], want[i])
		}
	}
}

func TestFetchDoesNotRetry(t *testing.T) {
	lister := &fakeLister{err: errors.New("transient network error")}
	fetcher := NewFetcher(lister)

	_, err := fetcher.Fetch(context.Background(), platform.Environment{Name: "src"})
	if err == nil {
		t.Fatal("expected error")
	}
	if lister.calls != 1 {
		t.Errorf("ListFunctions called %d times, want exactly 1", lister.calls)
	}
}

func TestNewDeduplicates(t *testing.T) {
	inv := New(platform.Environment{}, []string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(inv.Names) != len(want) {
		t.Fatalf("names = %v, want %v", inv.Names, want)
	}
	for i := range want {
		if inv.Names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, inv.Names[i], want[i])
		}
	}
}

func TestContains(t *testing.T) {
	inv := New(platform.Environment{}, []string{"a", "b"})
	if !inv.Contains("a") || !inv.Contains("b") {
		t.Error("Contains misses present names")
	}
	if inv.Contains("c") {
		t.Error("Contains reports absent name")
	}
}

func TestRestrict(t *testing.T) {
	inv := New(platform.Environment{}, []string{"a", "b", "c"})
	got := inv.Restrict([]string{"c", "missing", "a"})

	want := []string{"c", "a"}
	if got.Len() != len(want) {
		t.Fatalf("restricted = %v, want %v", got.Names, want)
	}
	for i := range want {
		if got.Names[i] != want[i] {
			t.Errorf("restricted[%d] = %q, want %q", i, got.Names[i], want[i])
		}
	}
}

func TestReadNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	content := "hello\n\n# comment\n  spaced  \nworld\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := ReadNamesFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"hello", "spaced", "world"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestReadNamesFileMissing(t *testing.T) {
	if _, err := ReadNamesFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
