package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/cache"
)

const (
	indexFilename = "index.json"
	// DefaultMaxEntries bounds the number of downloaded files kept in the cache directory.
	DefaultMaxEntries = 32
	// DefaultMaxSize bounds the size of a single download.
	DefaultMaxSize int64 = 256 << 20
)

var ErrMediaTooLarge = errors.New("media: file exceeds maximum download size")

// Fetcher resolves media URIs to local files, downloading http(s) URIs into a cache directory.
type Fetcher struct {
	// Client is used for downloads. If nil, http.DefaultClient is used.
	Client *http.Client
	// MaxSize is the largest download accepted, in bytes.
	MaxSize int64

	dir   string
	index *cache.MediaCache
	lock  sync.Mutex
}

// NewFetcher creates dir if needed and loads its index. A missing or corrupt index starts an empty
// cache.
func NewFetcher(dir string, maxEntries int) (*Fetcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("media: failed to create cache directory: %w", err)
	}
	index, err := cache.ImportFromFile(filepath.Join(dir, indexFilename))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warning("media: discarding unreadable cache index: %s", err)
		}
		index = cache.New(maxEntries)
	}
	index.MaxEntries = maxEntries
	return &Fetcher{dir: dir, index: index, MaxSize: DefaultMaxSize}, nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// Resolve returns a local path for uri. Plain paths and file:// URIs must exist; http(s) URIs are
// downloaded unless already cached.
func (f *Fetcher) Resolve(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return resolveLocal(uri)
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if entry, ok := f.index.GetEntry(uri); ok {
		if _, err := os.Stat(entry.Path); err == nil {
			log.Debug("Using cached copy of %s", uri)
			return entry.Path, nil
		}
		f.index.Remove(uri)
	}
	return f.download(ctx, u)
}

func (f *Fetcher) download(ctx context.Context, u *url.URL) (string, error) {
	uri := u.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	log.Info("Downloading %s", uri)
	resp, err := f.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("media: failed to fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media: failed to fetch %s: %s", uri, resp.Status)
	}
	if f.MaxSize > 0 && resp.ContentLength > f.MaxSize {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrMediaTooLarge, uri, resp.ContentLength)
	}

	filename := filepath.Join(f.dir, uuid.NewString()+path.Ext(u.Path))
	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	var body io.Reader = resp.Body
	if f.MaxSize > 0 {
		// One extra byte tells an exact fit from an oversized body.
		body = io.LimitReader(resp.Body, f.MaxSize+1)
	}
	size, err := io.Copy(file, body)
	if err == nil && f.MaxSize > 0 && size > f.MaxSize {
		err = fmt.Errorf("%w (%d bytes)", ErrMediaTooLarge, f.MaxSize)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filename)
		return "", fmt.Errorf("media: failed to download %s: %w", uri, err)
	}

	evicted := f.index.Update(uri, cache.Entry{
		Path:        filename,
		FetchedAt:   time.Now(),
		Size:        size,
		ContentType: resp.Header.Get("Content-Type"),
	})
	for _, entry := range evicted {
		if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warning("media: failed to remove evicted file: %s", err)
		}
	}
	if err := f.index.ExportToFile(filepath.Join(f.dir, indexFilename)); err != nil {
		log.Warning("media: failed to save cache index: %s", err)
	}
	return filename, nil
}

func resolveLocal(uri string) (string, error) {
	p := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" {
		switch {
		case u.Scheme == "file":
			p = u.Path
		case len(u.Scheme) == 1:
			// Windows drive letter.
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
		}
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("media: %w", err)
	}
	return p, nil
}
