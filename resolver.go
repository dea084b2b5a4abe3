package nestzip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/meigma/nestzip/internal/ziptype"
)

// Resolver resolves addresses to entries and archives, walking nested
// archives left to right.
//
// When an address does not resolve, the resolver first retries it with
// alternate separators rewritten to "!/", then tries each configured
// Fallback in order. Format errors and compressed nesting stop resolution
// immediately. An I/O error seen along the way is returned if nothing
// succeeds, so that it is never reported as a plain "not found".
//
// A Resolver is safe for concurrent use.
type Resolver struct {
	registry   *Registry
	mode       ResolutionMode
	fallbacks  []Fallback
	alternates []string
	baseDir    string
	logger     *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{alternates: DefaultAlternateSeparators}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = DefaultRegistry()
	}
	return r
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

func (r *Resolver) lazy() bool {
	switch r.mode {
	case ModeLazy:
		return true
	case ModeFailFast:
		return false
	default:
		return LazyResolution()
	}
}

// Capture returns a snapshot of r for use as a Fallback. The snapshot keeps
// r's registry and base directory, always fails fast, and has no fallbacks
// of its own.
func (r *Resolver) Capture() *Resolver {
	return &Resolver{
		registry: r.registry,
		mode:     ModeFailFast,
		baseDir:  r.baseDir,
		logger:   r.logger,
	}
}

// Resolve resolves the address s to a Resource.
//
// In lazy mode an address that is not found yields a placeholder Resource
// and a nil error.
func (r *Resolver) Resolve(ctx context.Context, s string) (*Resource, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return nil, err
	}
	res, err := r.resolve(ctx, addr)
	if err != nil {
		res, err = r.fallback(ctx, s, err)
	}
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrNotFound) && r.lazy() {
		r.log().Debug("address not found, deferring", "address", s)
		return &Resource{addr: addr, err: err}, nil
	}
	return nil, err
}

// OpenArchive resolves s as the address of an archive, treating every
// segment as a nested archive.
func (r *Resolver) OpenArchive(ctx context.Context, s string) (*Archive, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return r.archive(ctx, addr.AsArchive())
}

func (r *Resolver) resolve(ctx context.Context, addr *Address) (*Resource, error) {
	if addr.IsArchive() {
		a, err := r.archive(ctx, addr)
		if err != nil {
			return nil, err
		}
		return &Resource{addr: addr, archive: a}, nil
	}

	parent := &Address{Root: addr.Root, Entries: addr.Entries[:len(addr.Entries)-1], archive: true}
	a, err := r.archive(ctx, parent)
	if err != nil {
		return nil, err
	}
	e, err := a.Lookup(addr.Entries[len(addr.Entries)-1])
	if err != nil {
		return nil, err
	}
	return &Resource{addr: addr, archive: a, entry: e}, nil
}

// archive opens the root of addr and walks every segment as a nested
// archive.
func (r *Resolver) archive(ctx context.Context, addr *Address) (*Archive, error) {
	a, err := r.root(ctx, addr)
	if err != nil {
		return nil, err
	}
	for _, name := range addr.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := a.Lookup(name)
		if err != nil {
			return nil, err
		}
		if a, err = a.Nested(e); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (r *Resolver) root(ctx context.Context, addr *Address) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addr.Remote() {
		return r.registry.OpenURL(ctx, addr.Root)
	}
	path := addr.Root
	if r.baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(r.baseDir, path)
	}
	return r.registry.Open(path)
}

// fallback runs the fallback chain after cause. The first success wins.
func (r *Resolver) fallback(ctx context.Context, s string, cause error) (*Resource, error) {
	if Fatal(cause) || ctx.Err() != nil {
		return nil, cause
	}
	var ioErr error
	if errors.Is(cause, ErrIO) {
		ioErr = cause
	}

	stages := r.fallbacks
	if alt := r.rewrite(s); alt != s {
		stages = append([]Fallback{alternate{r: r, address: alt}}, stages...)
	}
	for i, stage := range stages {
		r.log().Debug("trying fallback", "address", s, "stage", i, "cause", cause)
		res, err := stage.Resolve(ctx, s)
		if err == nil {
			return res, nil
		}
		if Fatal(err) {
			return nil, err
		}
		if ioErr == nil && errors.Is(err, ErrIO) {
			ioErr = err
		}
	}
	if ioErr != nil {
		return nil, ioErr
	}
	return nil, cause
}

// rewrite replaces alternate separators in s with "!/".
func (r *Resolver) rewrite(s string) string {
	for _, sep := range r.alternates {
		if sep != "" && sep != Separator {
			s = strings.ReplaceAll(s, sep, Separator)
		}
	}
	return s
}

// Fatal reports whether err stops resolution instead of falling back:
// malformed archives and compressed nested archives.
func Fatal(err error) bool {
	return ziptype.Fatal(err)
}

// Fallback resolves addresses the primary walk could not.
type Fallback interface {
	Resolve(ctx context.Context, address string) (*Resource, error)
}

// FallbackFunc adapts a function to Fallback.
type FallbackFunc func(ctx context.Context, address string) (*Resource, error)

// Resolve calls f.
func (f FallbackFunc) Resolve(ctx context.Context, address string) (*Resource, error) {
	return f(ctx, address)
}

// alternate resolves the address rewritten with "!/" separators.
type alternate struct {
	r       *Resolver
	address string
}

func (a alternate) Resolve(ctx context.Context, _ string) (*Resource, error) {
	addr, err := ParseAddress(a.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return a.r.resolve(ctx, addr)
}

var (
	_ Fallback = (*Resolver)(nil)
	_ Fallback = FallbackFunc(nil)
)
