// Package tokenizer implements the Tokenizer Cache (spec.md §4.2):
// download-on-miss tokenizer artifacts into a per-process directory,
// serialized under a single lock, written atomically.
package tokenizer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// Tokenizer counts tokens for a piece of text. Concrete implementations
// are built from the downloaded artifact; this package only owns the
// cache/fetch lifecycle.
type Tokenizer interface {
	CountTokens(text string) int
}

// Fetcher downloads the tokenizer artifact bytes for a model id. External
// collaborator surface — the registry of where artifacts live is a
// capability-discovery concern (spec.md §1 out-of-scope).
type Fetcher interface {
	Fetch(ctx context.Context, modelID string) ([]byte, error)
}

// Loader parses a downloaded artifact into a Tokenizer.
type Loader func(artifact []byte) (Tokenizer, error)

// Cache serves shared Tokenizers, downloading on miss into cacheDir.
type Cache struct {
	cacheDir string
	fetcher  Fetcher
	load     Loader

	mu        sync.Mutex // serializes downloads to avoid duplicate fetches
	tokenizers map[string]Tokenizer
}

// New constructs a Cache rooted at cacheDir.
func New(cacheDir string, fetcher Fetcher, load Loader) *Cache {
	return &Cache{
		cacheDir:   cacheDir,
		fetcher:    fetcher,
		load:       load,
		tokenizers: make(map[string]Tokenizer),
	}
}

// GetTokenizer returns the shared Tokenizer for modelID, downloading and
// caching it on first use (spec.md §4.2).
func (c *Cache) GetTokenizer(ctx context.Context, modelID string) (Tokenizer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tokenizers[modelID]; ok {
		return t, nil
	}

	path := c.artifactPath(modelID)
	data, err := os.ReadFile(path)
	if err != nil {
		data, err = c.download(ctx, modelID, path)
		if err != nil {
			return nil, err
		}
	}

	t, err := c.load(data)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer for %s: %w", modelID, err)
	}
	c.tokenizers[modelID] = t
	return t, nil
}

func (c *Cache) artifactPath(modelID string) string {
	return filepath.Join(c.cacheDir, "tokenizers", modelID, "tokenizer.json")
}

// download fetches the artifact and writes it atomically: to a temp path,
// then renamed into place on success (spec.md §4.2).
func (c *Cache) download(ctx context.Context, modelID, path string) ([]byte, error) {
	data, err := c.fetcher.Fetch(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("downloading tokenizer for %s: %w", modelID, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating tokenizer cache dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("writing tokenizer cache file: %w", err)
	}
	return data, nil
}
