package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type fakeStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	removed []string
}

func (f *fakeStore) List(ctx context.Context, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for path := range f.files {
		names = append(names, filepath.Base(path))
	}
	return names, nil
}

func (f *fakeStore) Stat(ctx context.Context, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return 0, fmt.Errorf("no such file: %s", path)
	}
	return int64(len(data)), nil
}

func (f *fakeStore) OpenRange(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (f *fakeStore) Remove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	delete(f.files, path)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestFilterByGroups(t *testing.T) {
	names := []string{
		"[GroupA] Show 01 (WEB).mkv",
		"【GroupB】Other Show 02.mkv",
		"[groupa] Wrong Case 03.mkv",
		"GroupA without brackets 04.mkv",
		"[GroupC] Unwanted 05.mkv",
	}
	got := FilterByGroups(names, []string{"GroupA", "GroupB"})
	want := []string{
		"[GroupA] Show 01 (WEB).mkv",
		"【GroupB】Other Show 02.mkv",
	}
	if len(got) != len(want) {
		t.Fatalf("FilterByGroups = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FilterByGroups[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFilterByGroupsNoGroups(t *testing.T) {
	if got := FilterByGroups([]string{"[GroupA] Show 01.mkv"}, nil); len(got) != 0 {
		t.Errorf("FilterByGroups with no groups = %v, want none", got)
	}
}

func TestCleanStale(t *testing.T) {
	staging := t.TempDir()
	stale := filepath.Join(staging, "[GroupA] Show 01.mkv")
	keep := filepath.Join(staging, "[GroupA] Done 09.mkv")
	for _, path := range []string{stale, keep} {
		if err := os.WriteFile(path, []byte("partial"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	listing := []string{"[GroupA] Show 01.mkv", "[GroupA] Show 02.mkv"}
	if err := CleanStale(staging, listing); err != nil {
		t.Fatalf("CleanStale: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale staging file not removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("staging file absent from listing was removed")
	}
}

func TestCleanStaleMissingDir(t *testing.T) {
	if err := CleanStale(filepath.Join(t.TempDir(), "nope"), []string{"a"}); err != nil {
		t.Fatalf("CleanStale on missing dir: %v", err)
	}
}

func TestRunPartitionsOutcomes(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{}}
	good1 := make([]byte, 200_000)
	good2 := make([]byte, 150_000)
	rand.Read(good1)
	rand.Read(good2)
	store.files["/remote/[GroupA] Show 01.mkv"] = good1
	store.files["/remote/[GroupA] Show 02.mkv"] = good2

	staging := t.TempDir()
	summary := Run(context.Background(), store, []string{
		"[GroupA] Show 01.mkv",
		"[GroupA] Show 02.mkv",
		"[GroupA] Missing 03.mkv", // not on the store, stat fails
	}, Options{
		Workers:     2,
		Connections: 2,
		UseChunks:   true,
		StagingDir:  staging,
		RemoteDir:   "/remote",
	})

	if len(summary.Succeeded) != 2 {
		t.Errorf("Succeeded = %v, want 2 entries", summary.Succeeded)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != "[GroupA] Missing 03.mkv" {
		t.Errorf("Failed = %v, want the missing file only", summary.Failed)
	}
	for _, name := range summary.Succeeded {
		if _, err := os.Stat(filepath.Join(staging, name)); err != nil {
			t.Errorf("succeeded file %s not staged: %v", name, err)
		}
	}
}
