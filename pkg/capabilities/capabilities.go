// Package capabilities implements the Capabilities Registry (spec.md
// §4.1): resolves a model id to its endpoint, wire style, tokenizer and
// feature flags, with TTL-based and mtime-based reload and a cache of
// resolved records plus reload-failure backoff (patrickmn/go-cache).
package capabilities

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/forgewright/enginecore/pkg/enginerr"
)

// EndpointStyle is the wire protocol a model endpoint speaks.
type EndpointStyle string

const (
	StyleOpenAI EndpointStyle = "openai"
	StyleHF     EndpointStyle = "hf"
)

// ReasoningSupport describes how a model exposes extended thinking.
type ReasoningSupport string

const (
	ReasoningNone     ReasoningSupport = "none"
	ReasoningOpenAI   ReasoningSupport = "openai"
	ReasoningAnthropic ReasoningSupport = "anthropic"
)

// Record is the resolved capability record for a model (spec.md §4.1).
type Record struct {
	ID                    string
	Endpoint              string
	EndpointStyle         EndpointStyle
	APIKey                string
	TokenizerURL          string
	SupportsTools         bool
	SupportsMultimodality bool
	SupportsReasoning     ReasoningSupport
	SupportsBoostReasoning bool
	DefaultTemperature    float64
	NCtx                  int
}

// ConfigSource supplies the raw model configuration the registry resolves
// against; it is external-collaborator surface (spec.md §1 out-of-scope:
// "model capability-discovery YAML loaders").
type ConfigSource interface {
	// Records returns all known records, keyed by bare model name.
	Records() (map[string]Record, error)
	// NewestConfigMTime returns the newest mtime among the source's
	// backing config files, used for staleness detection.
	NewestConfigMTime() (time.Time, error)
}

// EnvResolver resolves "$NAME"-prefixed keys against the environment
// (spec.md §4.1: "keys starting with $ are replaced by the named
// environment variable").
type EnvResolver interface {
	Lookup(name string) (string, bool)
}

type osEnv struct{}

func (osEnv) Lookup(name string) (string, bool) { return os.LookupEnv(name) }

// Registry resolves chat/completion/embedding models to capability
// records, reloading from ConfigSource on a TTL or mtime-staleness basis.
type Registry struct {
	source ConfigSource
	env    EnvResolver
	ttl    time.Duration

	mu           sync.RWMutex
	records      map[string]Record
	loadedAt     time.Time
	backoffCache *gocache.Cache // caches reload errors for a short backoff window
}

// Option configures a Registry.
type Option func(*Registry)

func WithTTL(d time.Duration) Option       { return func(r *Registry) { r.ttl = d } }
func WithEnvResolver(e EnvResolver) Option { return func(r *Registry) { r.env = e } }

const reloadFailureBackoff = 5 * time.Second

// New constructs a Registry. The first Resolve* call triggers an initial load.
func New(source ConfigSource, opts ...Option) *Registry {
	r := &Registry{
		source:       source,
		env:          osEnv{},
		ttl:          30 * time.Second,
		backoffCache: gocache.New(reloadFailureBackoff, reloadFailureBackoff),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveChatModel resolves a chat model id (spec.md §4.1).
func (r *Registry) ResolveChatModel(id string) (Record, error) { return r.resolve(id) }

// ResolveCompletionModel resolves a completion model id.
func (r *Registry) ResolveCompletionModel(id string) (Record, error) { return r.resolve(id) }

// GetEmbeddingModel resolves the configured embedding model.
func (r *Registry) GetEmbeddingModel() (Record, error) { return r.resolve("embedding") }

// resolve is total: it never returns a partial record (spec.md §4.1
// invariant). Strips a "provider/" prefix and a ":finetune" suffix.
func (r *Registry) resolve(id string) (Record, error) {
	if err := r.maybeReload(); err != nil {
		return Record{}, err
	}

	name := id
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.Index(name, ":"); idx >= 0 {
		name = name[:idx]
	}

	r.mu.RLock()
	rec, ok := r.records[name]
	r.mu.RUnlock()
	if !ok {
		return Record{}, enginerr.Unsupported(fmt.Sprintf("model %q is not registered", id), nil)
	}

	rec.APIKey = r.expandSecret(rec.APIKey)
	if !strings.HasPrefix(rec.Endpoint, "http://") && !strings.HasPrefix(rec.Endpoint, "https://") {
		return Record{}, enginerr.Internal(fmt.Sprintf("capability record for %q has non-absolute endpoint %q", id, rec.Endpoint), nil)
	}
	return rec, nil
}

func (r *Registry) expandSecret(v string) string {
	if !strings.HasPrefix(v, "$") {
		return v
	}
	name := strings.TrimPrefix(v, "$")
	if resolved, ok := r.env.Lookup(name); ok {
		return resolved
	}
	return v
}

// maybeReload reloads records if the TTL has expired or the source's
// config has a newer mtime than the last load. Failed reloads are cached
// for reloadFailureBackoff to avoid hammering a broken config source.
func (r *Registry) maybeReload() error {
	r.mu.RLock()
	stale := r.records == nil || time.Since(r.loadedAt) > r.ttl
	r.mu.RUnlock()

	if !stale {
		r.mu.RLock()
		loadedAt := r.loadedAt
		r.mu.RUnlock()
		mtime, err := r.source.NewestConfigMTime()
		if err == nil && mtime.After(loadedAt) {
			stale = true
		}
	}
	if !stale {
		return nil
	}

	if _, found := r.backoffCache.Get("reload_error"); found {
		return enginerr.Upstream("capability reload is backing off after a prior failure", nil)
	}

	records, err := r.source.Records()
	if err != nil {
		r.backoffCache.SetDefault("reload_error", err)
		return enginerr.Upstream("failed to reload capabilities", err)
	}

	r.mu.Lock()
	r.records = records
	r.loadedAt = time.Now()
	r.mu.Unlock()
	return nil
}
