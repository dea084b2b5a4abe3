package nestzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/nestzip/http"
	"github.com/meigma/nestzip/internal/region"
)

// Registry shares parsed root archives between independent users.
//
// Archives are keyed by the identity of their backing file (absolute path,
// size and modification time), so a rewritten file is parsed again. The
// registry holds archives weakly: once no caller references an archive it
// may be reclaimed, its file is closed, and the next Open parses it anew.
// Concurrent first opens of the same file share a single parse.
//
// Remote roots are identified by probing the server. A probe is trusted
// for the revalidation window (DefaultRevalidateAfter unless changed with
// WithRevalidateAfter); within it OpenURL issues no requests.
//
// Archives returned by a Registry ignore Close.
type Registry struct {
	logger      *slog.Logger
	archiveOpts []Option
	httpOpts    []http.Option
	revalidate  time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]weak.Pointer[Archive]
	remote  map[string]probe
	group   singleflight.Group

	parses    atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	reclaimed atomic.Int64
}

// RegistryStats reports registry activity.
type RegistryStats struct {
	Parses    int64
	Hits      int64
	Misses    int64
	Reclaimed int64
}

// DefaultRevalidateAfter is how long a remote probe is trusted.
const DefaultRevalidateAfter = 5 * time.Second

// probe records the key a URL resolved to and when.
type probe struct {
	key string
	at  time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:    make(map[string]weak.Pointer[Archive]),
		remote:     make(map[string]probe),
		revalidate: DefaultRevalidateAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry { return NewRegistry() })

// DefaultRegistry returns the process-wide registry used by resolvers that
// are not given one.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Open returns the root archive at path, parsing it only if no live archive
// for the same file is registered.
func (r *Registry) Open(path string) (*Archive, error) {
	key, err := region.FileIdentity(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	return r.get(key, func() (*Archive, error) {
		return Open(path, r.archiveOpts...)
	})
}

// OpenURL returns the root archive served at url through HTTP range
// requests.
//
// The remote is probed (a HEAD and a one-byte range request) unless it was
// probed within the revalidation window and its archive is still alive. A
// resource changed within the window is noticed by the conditional range
// reads, which then fail with http.ErrChanged.
func (r *Registry) OpenURL(ctx context.Context, url string) (*Archive, error) {
	if a := r.recentRemote(url); a != nil {
		r.hits.Add(1)
		r.log().Debug("registry hit", "url", url)
		return a, nil
	}

	// Registered archives outlive the request that created them.
	src, err := http.NewSource(context.WithoutCancel(ctx), url, r.httpOpts...)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, url, err)
	}
	key := src.SourceID()
	a, err := r.get(key, func() (*Archive, error) {
		return build(newConfig(r.archiveOpts), region.New(src), url, KindDirect, nil, true)
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.remote[url] = probe{key: key, at: r.now()}
	r.mu.Unlock()
	return a, nil
}

// recentRemote returns the live archive of a probe of url younger than the
// revalidation window.
func (r *Registry) recentRemote(url string) *Archive {
	if r.revalidate <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.remote[url]
	if !ok {
		return nil
	}
	if r.now().Sub(p.at) >= r.revalidate {
		delete(r.remote, url)
		return nil
	}
	wp, ok := r.entries[p.key]
	if !ok {
		delete(r.remote, url)
		return nil
	}
	return wp.Value()
}

func (r *Registry) get(key string, open func() (*Archive, error)) (*Archive, error) {
	if a := r.lookup(key); a != nil {
		r.hits.Add(1)
		r.log().Debug("registry hit", "key", key)
		return a, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if a := r.lookup(key); a != nil {
			r.hits.Add(1)
			return a, nil
		}
		r.misses.Add(1)
		r.log().Debug("registry miss", "key", key)
		a, err := open()
		if err != nil {
			return nil, err
		}
		r.parses.Add(1)
		r.register(key, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Archive), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (r *Registry) lookup(key string) *Archive {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.entries[key]
	if !ok {
		return nil
	}
	return wp.Value()
}

type reclaimArg struct {
	key    string
	closer io.Closer
}

func (r *Registry) register(key string, a *Archive) {
	a.shared.Store(true)
	r.mu.Lock()
	r.entries[key] = weak.Make(a)
	r.mu.Unlock()
	runtime.AddCleanup(a, r.reclaim, reclaimArg{key: key, closer: a.closer})
}

// reclaim runs after a registered archive has been garbage collected.
func (r *Registry) reclaim(arg reclaimArg) {
	if arg.closer != nil {
		_ = arg.closer.Close() //nolint:errcheck // nothing to report to
	}
	r.mu.Lock()
	if wp, ok := r.entries[arg.key]; ok && wp.Value() == nil {
		delete(r.entries, arg.key)
	}
	r.mu.Unlock()
	r.reclaimed.Add(1)
	r.log().Debug("registry reclaimed", "key", arg.key)
}

// Invalidate forgets every archive registered for path, which may be a file
// path or an http(s) URL. Archives already handed out stay usable; their
// files are closed once they are no longer referenced.
func (r *Registry) Invalidate(path string) int {
	prefixes := []string{"url:" + path + "@", "url:" + path + ":"}
	if !isRemote(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		prefixes = []string{"file:" + abs + ":"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remote, path)
	n := 0
	for key := range r.entries {
		if slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(key, p) }) {
			delete(r.entries, key)
			n++
		}
	}
	if n > 0 {
		r.log().Debug("registry invalidated", "path", path, "entries", n)
	}
	return n
}

// Purge forgets every registered archive.
func (r *Registry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	clear(r.remote)
}

// Len returns the number of registered archives that are still alive.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, wp := range r.entries {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Parses:    r.parses.Load(),
		Hits:      r.hits.Load(),
		Misses:    r.misses.Load(),
		Reclaimed: r.reclaimed.Load(),
	}
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
