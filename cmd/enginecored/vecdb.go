package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgewright/enginecore/pkg/memory"
	"github.com/forgewright/enginecore/pkg/rag/embed"
	"github.com/forgewright/enginecore/pkg/vecstore/cache"
	"github.com/forgewright/enginecore/pkg/vecstore/index"
	"github.com/forgewright/enginecore/pkg/vecstore/splitter"
	"github.com/forgewright/enginecore/pkg/vecstore/vectorizer"
)

// fsTextLoader satisfies vectorizer.TextLoader by reading files straight
// off disk and memories from a memory.Store (spec.md §4.5's loader seam).
type fsTextLoader struct {
	memories *memory.Store
}

func (l *fsTextLoader) LoadFile(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *fsTextLoader) LoadMemory(ctx context.Context, memid string) (string, bool, error) {
	if l.memories == nil {
		return "", false, nil
	}
	records, err := l.memories.MemoriesSelectAll(ctx)
	if err != nil {
		return "", false, err
	}
	for _, r := range records {
		if r.MemID == memid {
			return r.MPayload, true, nil
		}
	}
	return "", false, nil
}

// vecdbSet bundles the vector-indexing components started behind
// --vecdb, kept together so serve.go can close them on shutdown.
type vecdbSet struct {
	cache      *cache.Cache
	index      *index.Index
	vectorizer *vectorizer.Service
}

func (v *vecdbSet) Close() {
	if v.index != nil {
		_ = v.index.Close()
	}
	if v.cache != nil {
		_ = v.cache.Close()
	}
}

// startVecDB wires the Vector Cache, Vector Index and Vectorizer Service
// (spec.md §4.5, §6.3) rooted at dir, embedding through model's endpoint.
func startVecDB(ctx context.Context, dir string, embeddingModel embeddingModel, maxFiles, embeddingNCtx int, memories *memory.Store) (*vecdbSet, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating vecdb dir: %w", err)
	}

	c, err := cache.Open(ctx, filepath.Join(dir, "vector_cache.db"))
	if err != nil {
		return nil, fmt.Errorf("opening vector cache: %w", err)
	}
	idx, err := index.Open(ctx, filepath.Join(dir, "vector_index.db"))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("opening vector index: %w", err)
	}

	backend := embed.NewHTTPBackend(nil)
	style := embed.StyleOpenAI
	if embeddingModel.style == "hf" {
		style = embed.StyleHF
	}
	embedder := embed.New(backend, style, embeddingModel.id, embeddingModel.endpoint, embeddingModel.apiKey)

	svc := vectorizer.New(c, idx, splitter.New(embeddingNCtx), embedder, &fsTextLoader{memories: memories},
		vectorizer.WithEmbeddingNCtx(embeddingNCtx),
		vectorizer.WithVecDBMaxFiles(maxFiles),
		vectorizer.WithRateLimit(5, 10),
	)

	return &vecdbSet{cache: c, index: idx, vectorizer: svc}, nil
}

// embeddingModel is the subset of a capabilities.Record startVecDB needs.
type embeddingModel struct {
	id       string
	endpoint string
	apiKey   string
	style    string
}
