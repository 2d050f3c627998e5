package media

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
)

const trackURI = "https://media.example.com/audio/tone.wav"

func TestFetcherDownloadsOnce(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, trackURI, httpmock.NewStringResponder(http.StatusOK, "RIFF...."))

	dir := t.TempDir()
	f, err := NewFetcher(dir, DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	path, err := f.Resolve(context.Background(), trackURI)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".wav" || filepath.Dir(path) != dir {
		t.Errorf("unexpected cache path %s", path)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "RIFF...." {
		t.Errorf("unexpected contents %q", contents)
	}

	again, err := f.Resolve(context.Background(), trackURI)
	if err != nil {
		t.Fatal(err)
	}
	if again != path {
		t.Errorf("expected cached path %s, got %s", path, again)
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Errorf("expected a single download, got %d", n)
	}

	// The index survives a restart.
	reloaded, err := NewFetcher(dir, DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	if cached, err := reloaded.Resolve(context.Background(), trackURI); err != nil || cached != path {
		t.Errorf("reloaded fetcher returned %s, %v", cached, err)
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Errorf("expected a single download after reload, got %d", n)
	}
}

func TestFetcherEvictsFiles(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://media\.example\.com/`, httpmock.NewStringResponder(http.StatusOK, "data"))

	f, err := NewFetcher(t.TempDir(), 1)
	if err != nil {
		t.Fatal(err)
	}
	first, err := f.Resolve(context.Background(), "https://media.example.com/a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Resolve(context.Background(), "https://media.example.com/b.mp3"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(first); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("evicted file still present: %v", err)
	}
}

func TestFetcherHTTPError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, trackURI, httpmock.NewStringResponder(http.StatusNotFound, "missing"))

	f, err := NewFetcher(t.TempDir(), DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Resolve(context.Background(), trackURI); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestFetcherRejectsOversizedMedia(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodGet, trackURI, httpmock.NewStringResponder(http.StatusOK, "0123456789"))
	exact := "https://media.example.com/audio/short.wav"
	httpmock.RegisterResponder(http.MethodGet, exact, httpmock.NewStringResponder(http.StatusOK, "01234"))

	dir := t.TempDir()
	f, err := NewFetcher(dir, DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	f.MaxSize = 5

	if _, err := f.Resolve(context.Background(), trackURI); !errors.Is(err, ErrMediaTooLarge) {
		t.Errorf("expected ErrMediaTooLarge, got %v", err)
	}
	if _, ok := f.index.GetEntry(trackURI); ok {
		t.Error("oversized download was cached")
	}
	if _, err := f.Resolve(context.Background(), exact); err != nil {
		t.Errorf("download at the size limit failed: %s", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	// The accepted file and the index.
	if len(files) != 2 {
		t.Errorf("expected 2 files in cache dir, got %d", len(files))
	}
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		uri   string
		out   string
		isErr bool
	}{
		{uri: path, out: path},
		{uri: "file://" + filepath.ToSlash(path), out: filepath.ToSlash(path)},
		{uri: filepath.Join(dir, "missing.wav"), isErr: true},
		{uri: "content://media/external/audio/1", isErr: true},
	}
	for _, test := range testCases {
		out, err := resolveLocal(test.uri)
		if (err != nil) != test.isErr {
			t.Errorf("uri '%s' gave unexpected err = %v", test.uri, err)
		} else if out != test.out {
			t.Errorf("uri '%s' resolved to '%s' instead of '%s'", test.uri, out, test.out)
		}
	}
	if _, err := resolveLocal("content://media/external/audio/1"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
}
