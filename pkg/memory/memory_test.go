package memory

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memIDPattern = regexp.MustCompile(`^[0-9a-f]{10}$`)

type fakeDirty struct{ marked []string }

func (f *fakeDirty) MarkDirtyMemory(memid string) { f.marked = append(f.marked, memid) }

type fakeEmbedder struct{ vecs map[string][]float32 }

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) { return f.vecs[text], nil }

type fakeSearcher struct{ distances map[string]float64 }

func (f fakeSearcher) SearchMemory(_ context.Context, _ []float32, _ int) (map[string]float64, error) {
	return f.distances, nil
}

func TestMemoriesAdd_GeneratesValidMemID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dirty := &fakeDirty{}
	s, err := Open(ctx, filepath.Join(t.TempDir(), "mem.db"), WithDirtyNotifier(dirty))
	require.NoError(t, err)
	defer s.Close()

	memid, err := s.MemoriesAdd(ctx, "fact", "alpha beta", "proj", "{}", "user")
	require.NoError(t, err)
	assert.Regexp(t, memIDPattern, memid)
	assert.Contains(t, dirty.marked, memid)
}

func TestMemoriesSelectAll_AndErase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "mem.db"))
	require.NoError(t, err)
	defer s.Close()

	memid, err := s.MemoriesAdd(ctx, "fact", "alpha beta", "", "", "")
	require.NoError(t, err)

	all, err := s.MemoriesSelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alpha beta", all[0].MGoal)

	require.NoError(t, s.MemoriesErase(ctx, memid))
	all, err = s.MemoriesSelectAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoriesSearch_SortsByDistance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	embedder := fakeEmbedder{vecs: map[string][]float32{"gamma": {1, 0}}}
	s, err := Open(ctx, filepath.Join(t.TempDir(), "mem.db"))
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.MemoriesAdd(ctx, "fact", "alpha beta", "", "", "")
	require.NoError(t, err)
	id2, err := s.MemoriesAdd(ctx, "fact", "gamma delta", "", "", "")
	require.NoError(t, err)

	s2 := s
	s2.embedder = embedder
	s2.search = fakeSearcher{distances: map[string]float64{id1: 0.9, id2: 0.1}}

	results, err := s2.MemoriesSearch(ctx, "gamma", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, id2, results[0].Record.MemID)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestPubsubTriggered_WakesOnMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "mem.db"))
	require.NoError(t, err)
	defer s.Close()

	woke := make(chan bool, 1)
	go func() {
		woke <- s.PubsubTriggered(ctx, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = s.MemoriesAdd(ctx, "fact", "goal", "", "", "")
	require.NoError(t, err)

	select {
	case w := <-woke:
		assert.True(t, w)
	case <-time.After(time.Second):
		t.Fatal("pubsub did not wake on mutation")
	}
}

func TestPubsubTriggered_TimesOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "mem.db"))
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.PubsubTriggered(ctx, 20*time.Millisecond))
}
