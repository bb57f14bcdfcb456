// Package vectorizer implements the Vectorizer Service (spec.md §4.5): a
// background actor draining dirty file/memory queues, splitting,
// embedding misses, and writing the Vector Cache and Index. Scheduling is
// single-threaded cooperative within the service (spec.md §4.5); request
// fan-out to the embedding endpoint is bounded by the Embedding Client's
// own concurrency limit.
package vectorizer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/forgewright/enginecore/pkg/vecstore"
	"github.com/forgewright/enginecore/pkg/vecstore/cache"
	"github.com/forgewright/enginecore/pkg/vecstore/index"
	"github.com/forgewright/enginecore/pkg/vecstore/splitter"
)

// TextLoader fetches the current text for a dirty file path or memory id.
type TextLoader interface {
	LoadFile(ctx context.Context, path string) (string, error)
	LoadMemory(ctx context.Context, memid string) (text string, ok bool, err error)
}

// Embedder embeds a batch of window texts in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// cooldownAfterFailures is the number of consecutive embedding failures
// before the service parks in StateCooldown (SPEC_FULL.md §2).
const cooldownAfterFailures = 3

const cooldownBackoff = 5 * time.Second

// Service is the Vectorizer Service.
type Service struct {
	cache    *cache.Cache
	index    *index.Index
	splitter *splitter.Splitter
	embedder Embedder
	loader   TextLoader

	embeddingNCtx int
	vecdbMaxFiles int

	mu             sync.Mutex
	dirtyFiles     map[string]bool
	dirtyMemories  map[string]bool
	status         vecstore.Status
	consecutiveErr int

	notify chan struct{}
	watcher *fsnotify.Watcher
	limiter *rate.Limiter
}

// Option configures a Service.
type Option func(*Service)

func WithEmbeddingNCtx(n int) Option   { return func(s *Service) { s.embeddingNCtx = n } }
func WithVecDBMaxFiles(n int) Option   { return func(s *Service) { s.vecdbMaxFiles = n } }
func WithWatcher(w *fsnotify.Watcher) Option { return func(s *Service) { s.watcher = w } }

// WithRateLimit bounds how often the service calls out to the embedding
// endpoint, smoothing bursts from a large initial dirty-file backlog
// (spec.md §4.5 "background actor draining dirty ... queues").
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(s *Service) { s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst) }
}

// New constructs a Service.
func New(c *cache.Cache, idx *index.Index, sp *splitter.Splitter, embedder Embedder, loader TextLoader, opts ...Option) *Service {
	s := &Service{
		cache:         c,
		index:         idx,
		splitter:      sp,
		embedder:      embedder,
		loader:        loader,
		dirtyFiles:    make(map[string]bool),
		dirtyMemories: make(map[string]bool),
		notify:        make(chan struct{}, 1),
		status:        vecstore.Status{State: vecstore.StateStarting, VecDBErrors: make(map[string]int)},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// waitForRateLimit blocks until the next embedding request is allowed, a
// no-op when no rate limit was configured.
func (s *Service) waitForRateLimit(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// MarkDirtyFile enqueues a file path for (re)indexing.
func (s *Service) MarkDirtyFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.VecDBMaxFilesHit {
		return
	}
	if !s.dirtyFiles[path] {
		s.dirtyFiles[path] = true
		s.status.QueueAdditions++
		s.status.FilesTotal++
		s.status.FilesUnprocessed++
		if s.vecdbMaxFiles > 0 && s.status.FilesTotal > s.vecdbMaxFiles {
			s.status.VecDBMaxFilesHit = true
		}
	}
	s.wake()
}

// MarkDirtyMemory enqueues a memory id for (re)embedding; implements
// memory.DirtyNotifier.
func (s *Service) MarkDirtyMemory(memid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyMemories[memid] = true
	s.status.QueueAdditions++
	s.wake()
}

func (s *Service) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the service's progress.
func (s *Service) Status() vecstore.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.status
	out.VecDBErrors = make(map[string]int, len(s.status.VecDBErrors))
	for k, v := range s.status.VecDBErrors {
		out.VecDBErrors[k] = v
	}
	return out
}

// Run drains the dirty sets until ctx is canceled (spec.md §5 "a global
// shutdown flag drains background tasks"). It does not hold locks across
// suspension points (spec.md §4.5).
func (s *Service) Run(ctx context.Context) {
	s.setState(vecstore.StateParsing)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		case <-time.After(time.Second):
		}

		if ctx.Err() != nil {
			return
		}

		drained := s.drainOneRound(ctx)
		if !drained {
			s.setState(vecstore.StateDone)
			continue
		}
	}
}

// drainOneRound processes one snapshot of the dirty sets, reads each
// item's text once (spec.md §5 ordering guarantee: "its second indexing
// observes the final disk content"), and returns whether anything was
// processed.
func (s *Service) drainOneRound(ctx context.Context) bool {
	s.mu.Lock()
	files := make([]string, 0, len(s.dirtyFiles))
	for f := range s.dirtyFiles {
		files = append(files, f)
	}
	s.dirtyFiles = make(map[string]bool)
	mems := make([]string, 0, len(s.dirtyMemories))
	for m := range s.dirtyMemories {
		mems = append(mems, m)
	}
	s.dirtyMemories = make(map[string]bool)
	s.mu.Unlock()

	if len(files) == 0 && len(mems) == 0 {
		return false
	}
	s.setState(vecstore.StateParsing)

	for _, f := range files {
		if err := s.processFile(ctx, f); err != nil {
			s.recordError(err)
		}
		s.mu.Lock()
		if s.status.FilesUnprocessed > 0 {
			s.status.FilesUnprocessed--
		}
		s.mu.Unlock()
	}
	for _, m := range mems {
		if err := s.processMemory(ctx, m); err != nil {
			s.recordError(err)
		}
	}
	return true
}

func (s *Service) processFile(ctx context.Context, path string) error {
	text, err := s.loader.LoadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	windows := s.splitter.SplitText(path, text, s.embeddingNCtx)
	if err := s.index.DeleteByPath(ctx, path); err != nil {
		return fmt.Errorf("clearing old index rows for %s: %w", path, err)
	}
	return s.embedAndStore(ctx, windows, false)
}

func (s *Service) processMemory(ctx context.Context, memid string) error {
	text, ok, err := s.loader.LoadMemory(ctx, memid)
	if err != nil {
		return fmt.Errorf("loading memory %s: %w", memid, err)
	}
	if err := s.index.DeleteByMemID(ctx, memid); err != nil {
		return fmt.Errorf("clearing old index rows for memory %s: %w", memid, err)
	}
	if !ok {
		return nil // memory was deleted before we got to it
	}
	windows := s.splitter.SplitText(memid, text, s.embeddingNCtx)
	for i := range windows {
		windows[i].FilePath = memid
	}
	return s.embedAndStoreMemory(ctx, memid, windows)
}

func (s *Service) embedAndStore(ctx context.Context, windows []vecstore.Window, isMemory bool) error {
	if len(windows) == 0 {
		return nil
	}
	hashes := make([]string, len(windows))
	for i, w := range windows {
		hashes[i] = w.WindowTextHash
	}
	_, miss := s.cache.GetBySplits(hashes)

	missSet := make(map[string]bool, len(miss))
	for _, h := range miss {
		missSet[h] = true
	}

	var missTexts []string
	var missWindows []vecstore.Window
	for _, w := range windows {
		if missSet[w.WindowTextHash] {
			missTexts = append(missTexts, w.WindowText)
			missWindows = append(missWindows, w)
		}
	}

	if len(missTexts) > 0 {
		if err := s.waitForRateLimit(ctx); err != nil {
			return fmt.Errorf("waiting for embedding rate limit: %w", err)
		}
		vecs, err := s.embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}
		records := make([]cache.Record, len(missWindows))
		for i, w := range missWindows {
			records[i] = cache.Record{WindowText: w.WindowText, WindowTextHash: w.WindowTextHash, Vector: vecs[i]}
		}
		if err := s.cache.InsertRecords(ctx, records); err != nil {
			return fmt.Errorf("inserting cache records: %w", err)
		}
		s.mu.Lock()
		s.status.RequestsMadeSinceStart++
		s.status.VectorsMadeSinceStart += len(vecs)
		s.mu.Unlock()
		s.consecutiveErr = 0
	}

	allHashes := hashes
	fetched, err := s.cache.Fetch(ctx, allHashes)
	if err != nil {
		return fmt.Errorf("fetching vectors for index write: %w", err)
	}

	rows := make([]index.Row, len(windows))
	for i, w := range windows {
		rows[i] = index.Row{
			MemIDOrSnippetID: w.WindowTextHash,
			IsMemory:         isMemory,
			FilePath:         w.FilePath,
			StartLine:        w.StartLine,
			EndLine:          w.EndLine,
			WindowText:       w.WindowText,
			WindowTextHash:   w.WindowTextHash,
			Vector:           fetched[w.WindowTextHash],
		}
	}
	return s.index.InsertRows(ctx, rows)
}

func (s *Service) embedAndStoreMemory(ctx context.Context, memid string, windows []vecstore.Window) error {
	if len(windows) == 0 {
		return nil
	}
	hashes := make([]string, len(windows))
	for i, w := range windows {
		hashes[i] = w.WindowTextHash
	}
	_, miss := s.cache.GetBySplits(hashes)
	missSet := make(map[string]bool, len(miss))
	for _, h := range miss {
		missSet[h] = true
	}

	var missTexts []string
	var missWindows []vecstore.Window
	for _, w := range windows {
		if missSet[w.WindowTextHash] {
			missTexts = append(missTexts, w.WindowText)
			missWindows = append(missWindows, w)
		}
	}
	if len(missTexts) > 0 {
		if err := s.waitForRateLimit(ctx); err != nil {
			return fmt.Errorf("waiting for embedding rate limit: %w", err)
		}
		vecs, err := s.embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return fmt.Errorf("embedding memory batch: %w", err)
		}
		records := make([]cache.Record, len(missWindows))
		for i, w := range missWindows {
			records[i] = cache.Record{WindowText: w.WindowText, WindowTextHash: w.WindowTextHash, Vector: vecs[i]}
		}
		if err := s.cache.InsertRecords(ctx, records); err != nil {
			return err
		}
	}

	fetched, err := s.cache.Fetch(ctx, hashes)
	if err != nil {
		return err
	}
	rows := make([]index.Row, len(windows))
	for i, w := range windows {
		rows[i] = index.Row{
			MemIDOrSnippetID: memid,
			IsMemory:         true,
			FilePath:         memid,
			StartLine:        w.StartLine,
			EndLine:          w.EndLine,
			WindowText:       w.WindowText,
			WindowTextHash:   w.WindowTextHash,
			Vector:           fetched[w.WindowTextHash],
		}
	}
	return s.index.InsertRows(ctx, rows)
}

func (s *Service) recordError(err error) {
	slog.Warn("vectorizer item failed", "error", err)
	s.mu.Lock()
	s.status.VecDBErrors[err.Error()]++
	s.consecutiveErr++
	cool := s.consecutiveErr >= cooldownAfterFailures
	s.mu.Unlock()
	if cool {
		s.setState(vecstore.StateCooldown)
		time.Sleep(cooldownBackoff)
		s.mu.Lock()
		s.consecutiveErr = 0
		s.mu.Unlock()
	}
}

func (s *Service) setState(st vecstore.VectorizerState) {
	s.mu.Lock()
	s.status.State = st
	s.mu.Unlock()
}

// WatchFS wires an fsnotify.Watcher's events into MarkDirtyFile, matching
// paths against glob patterns (spec.md §4.5 "driven by filesystem ...
// events").
func (s *Service) WatchFS(ctx context.Context, patterns []string) {
	if s.watcher == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			matched, err := splitter.Matches(ev.Name, patterns)
			if err != nil || !matched {
				continue
			}
			s.MarkDirtyFile(ev.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("fsnotify watcher error", "error", err)
		}
	}
}
