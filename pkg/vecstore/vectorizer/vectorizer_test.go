package vectorizer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/enginecore/pkg/vecstore"
	"github.com/forgewright/enginecore/pkg/vecstore/cache"
	"github.com/forgewright/enginecore/pkg/vecstore/index"
	"github.com/forgewright/enginecore/pkg/vecstore/splitter"
)

type fakeLoader struct{ files map[string]string }

func (f fakeLoader) LoadFile(_ context.Context, path string) (string, error) { return f.files[path], nil }
func (f fakeLoader) LoadMemory(_ context.Context, memid string) (string, bool, error) {
	t, ok := f.files[memid]
	return t, ok, nil
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *cache.Cache, *index.Index) {
	t.Helper()
	ctx := context.Background()
	c, err := cache.Open(ctx, filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	idx, err := index.Open(ctx, filepath.Join(t.TempDir(), "i.db"))
	require.NoError(t, err)
	sp := splitter.New(3)
	loader := fakeLoader{files: map[string]string{"a.go": "one\ntwo\nthree\nfour\nfive"}}
	s := New(c, idx, sp, fakeEmbedder{dim: 4}, loader)
	return s, c, idx
}

func TestDrainOneRound_ProcessesDirtyFile(t *testing.T) {
	t.Parallel()
	s, c, idx := newTestService(t)
	defer c.Close()
	defer idx.Close()

	s.MarkDirtyFile("a.go")
	drained := s.drainOneRound(context.Background())
	assert.True(t, drained)

	got, err := idx.Search(context.Background(), []float32{0, 0, 0, 0}, 10, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestMarkDirtyFile_RespectsMaxFiles(t *testing.T) {
	t.Parallel()
	s, c, idx := newTestService(t)
	defer c.Close()
	defer idx.Close()
	s.vecdbMaxFiles = 1

	s.MarkDirtyFile("a.go")
	s.MarkDirtyFile("b.go")
	status := s.Status()
	assert.True(t, status.VecDBMaxFilesHit)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	s, c, idx := newTestService(t)
	defer c.Close()
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}

func TestCacheHit_AvoidsReembedding(t *testing.T) {
	t.Parallel()
	s, c, idx := newTestService(t)
	defer c.Close()
	defer idx.Close()

	s.MarkDirtyFile("a.go")
	require.True(t, s.drainOneRound(context.Background()))
	firstReqs := s.Status().RequestsMadeSinceStart

	s.MarkDirtyFile("a.go")
	require.True(t, s.drainOneRound(context.Background()))
	secondReqs := s.Status().RequestsMadeSinceStart

	assert.Equal(t, firstReqs, secondReqs, "re-indexing identical content should hit the cache, not re-embed")
	_ = vecstore.StateDone
}
