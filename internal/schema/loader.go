// Package schema resolves schema locators to parsed schemas and memoizes the
// first one resolved.
package schema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Loader reads the schema document a locator points at.
type Loader interface {
	Load(ctx context.Context, locator string) ([]byte, error)
}

// MultiLoader dispatches on the locator's URI scheme. Plain paths use the
// "file" loader.
type MultiLoader struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewMultiLoader creates a MultiLoader with file and http(s) loaders registered.
func NewMultiLoader(httpTimeout time.Duration) *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]Loader)}
	m.Register("file", NewFileLoader())
	httpLoader := NewHTTPLoader(httpTimeout)
	m.Register("http", httpLoader)
	m.Register("https", httpLoader)
	return m
}

// Register installs a loader for a scheme, replacing any previous one.
func (m *MultiLoader) Register(scheme string, l Loader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaders[strings.ToLower(scheme)] = l
}

// Schemes returns the registered schemes.
func (m *MultiLoader) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.loaders))
	for s := range m.loaders {
		out = append(out, s)
	}
	return out
}

// Load reads locator with the loader registered for its scheme.
func (m *MultiLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	scheme := Scheme(locator)

	m.mu.RLock()
	l, ok := m.loaders[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no schema loader registered for scheme %q", scheme)
	}
	return l.Load(ctx, locator)
}

// Scheme returns the lower-cased URI scheme of locator, or "file" for plain
// paths.
func Scheme(locator string) string {
	i := strings.Index(locator, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(locator[:i])
}

// FileLoader reads local files given as plain paths or file:// URIs.
type FileLoader struct{}

// NewFileLoader creates a FileLoader.
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

// Load reads the file.
func (l *FileLoader) Load(_ context.Context, locator string) ([]byte, error) {
	path := locator
	if Scheme(locator) == "file" && strings.Contains(locator, "://") {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, fmt.Errorf("invalid file uri %q: %w", locator, err)
		}
		path = u.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return data, nil
}

// HTTPLoader fetches schemas over HTTP(S), for example from a schema
// registry's raw schema endpoint.
type HTTPLoader struct {
	client *http.Client
}

// NewHTTPLoader creates an HTTPLoader with the given request timeout.
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLoader{client: &http.Client{Timeout: timeout}}
}

// Load performs a GET request and returns the body of a 2xx response.
func (l *HTTPLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch schema: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema response: %w", err)
	}
	return data, nil
}

// StaticLoader serves schemas from memory.
type StaticLoader map[string][]byte

// Load returns the document registered under locator.
func (l StaticLoader) Load(_ context.Context, locator string) ([]byte, error) {
	data, ok := l[locator]
	if !ok {
		return nil, fmt.Errorf("schema %q not found", locator)
	}
	return data, nil
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, locator string) ([]byte, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}
