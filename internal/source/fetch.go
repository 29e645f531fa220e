package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "recurset/internal/log"
)

// maxBodySize bounds a single rule text download.
const maxBodySize = 1 << 20

// Source is a single recurrence-rule text source: a local file or an
// HTTP(S) URL.
type Source struct {
	// ID is an internal identifier (e.g., config rule ID).
	ID   string
	Name string
	// Path is a local file. It takes precedence over URL.
	Path string
	URL  string
}

// Result contains the outcome of loading a single source.
type Result struct {
	Source    Source
	Body      []byte
	FromCache bool // body is the last accepted download, not a fresh one
}

// Loader reads rule texts from disk, or over HTTP with conditional
// requests and a per-URL disk cache.
type Loader struct {
	client   *http.Client
	cacheDir string
	// check rejects a downloaded body before it replaces the cached one.
	check func(body []byte) error
}

// NewLoader creates a Loader caching downloads under cacheDir
// (default ./var/rule-cache).
func NewLoader(cacheDir string) *Loader {
	if cacheDir == "" {
		cacheDir = "./var/rule-cache"
	}
	return &Loader{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// WithCheck returns a copy of l that only caches downloads accepted by
// check. A rejected download falls back to the cached body when there is one.
func (l *Loader) WithCheck(check func(body []byte) error) *Loader {
	c := *l
	c.check = check
	return &c
}

// LoadAll loads all given sources. Errors for individual sources are
// logged and returned in the error slice; the results only contain sources
// that produced a body.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) ([]Result, []error) {
	results := make([]Result, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := l.Load(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
			appLog.Error("rule source load failed", err, "id", src.ID, "url", redactURL(src.URL), "path", src.Path)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Load reads a single source.
func (l *Loader) Load(ctx context.Context, src Source) (Result, error) {
	switch {
	case src.Path != "":
		body, err := os.ReadFile(src.Path)
		if err != nil {
			return Result{}, err
		}
		appLog.Debug("rule file read", "id", src.ID, "path", src.Path, "bytes", len(body))
		return Result{Source: src, Body: body}, nil
	case src.URL != "":
		return l.fetch(ctx, src)
	default:
		return Result{}, errors.New("source has neither path nor URL")
	}
}

func (l *Loader) fetch(ctx context.Context, src Source) (Result, error) {
	cache := l.cacheFor(src.URL)
	meta, cached := cache.read()

	// stale answers with the cached body when one exists, else with cause.
	stale := func(cause error) (Result, error) {
		if len(cached) == 0 {
			return Result{}, cause
		}
		appLog.Error("rule fetch failed, using cached body", cause, "id", src.ID, "url", redactURL(src.URL))
		return Result{Source: src, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("rule fetch start", "id", src.ID, "url", redactURL(src.URL))
	resp, err := l.client.Do(req)
	if err != nil {
		return stale(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if len(cached) == 0 {
			return Result{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("rule fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return Result{Source: src, Body: cached, FromCache: true}, nil

	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
		if err != nil {
			return stale(err)
		}
		if len(body) > maxBodySize {
			return stale(fmt.Errorf("rule text exceeds %d bytes", maxBodySize))
		}
		if l.check != nil {
			if err := l.check(body); err != nil {
				return stale(fmt.Errorf("rejected download: %w", err))
			}
		}

		err = cache.write(cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}, body)
		if err != nil {
			appLog.Error("rule cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("rule fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return Result{Source: src, Body: body}, nil

	default:
		return stale(errors.New(resp.Status))
	}
}

// cacheMeta holds the validators of the cached download.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ruleCache is the cache directory of one URL.
type ruleCache struct {
	dir string
}

func (l *Loader) cacheFor(rawURL string) ruleCache {
	sum := sha256.Sum256([]byte(rawURL))
	return ruleCache{dir: filepath.Join(l.cacheDir, hex.EncodeToString(sum[:8]))}
}

func (c ruleCache) bodyPath() string { return filepath.Join(c.dir, "rule.txt") }
func (c ruleCache) metaPath() string { return filepath.Join(c.dir, "meta.json") }

// read returns the cached validators and body. Validators are dropped
// when the body is missing so the next request is unconditional.
func (c ruleCache) read() (cacheMeta, []byte) {
	body, err := os.ReadFile(c.bodyPath())
	if err != nil || len(body) == 0 {
		return cacheMeta{}, nil
	}
	var meta cacheMeta
	if data, err := os.ReadFile(c.metaPath()); err == nil {
		if json.Unmarshal(data, &meta) != nil {
			meta = cacheMeta{}
		}
	}
	return meta, body
}

// write stores body before meta so meta never describes a missing body.
func (c ruleCache) write(meta cacheMeta, body []byte) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	if err := writeFileAtomic(c.bodyPath(), body); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(c.metaPath(), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rule-cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// redactURL keeps only the scheme and host of a URL for logging.
//
//	https://example.com/private.txt?token=abcd -> https://example.com/...(redacted)
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "rules://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
