package embed

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls      int32
	failFirstN int32
	vecLen     int
}

func (f *fakeBackend) CreateEmbeddings(_ context.Context, _ Style, _, _, _ string, texts []string) ([][]float32, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failFirstN {
		return nil, &StatusError{StatusCode: http.StatusServiceUnavailable}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.vecLen)
	}
	return out, nil
}

func TestEmbedBatch_Empty(t *testing.T) {
	t.Parallel()
	e := New(&fakeBackend{vecLen: 4}, StyleOpenAI, "m", "e", "k")
	got, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbedBatch_SplitsIntoBatches(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{vecLen: 3}
	e := New(backend, StyleOpenAI, "m", "e", "k", WithBatchSize(2), WithMaxConcurrency(2))

	texts := []string{"a", "b", "c", "d", "e"}
	got, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for _, v := range got {
		assert.Len(t, v, 3)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&backend.calls)) // batches of 2,2,1
}

func TestCallWithRetry_RetriesOnThrottle(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{vecLen: 2, failFirstN: 2}
	e := New(backend, StyleOpenAI, "m", "e", "k")
	_, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&backend.calls), int32(3))
}

func TestBatchSizeClampedTo256(t *testing.T) {
	t.Parallel()
	e := New(&fakeBackend{vecLen: 1}, StyleOpenAI, "m", "e", "k", WithBatchSize(1000))
	assert.Equal(t, 256, e.batchSize)
}
