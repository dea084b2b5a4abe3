package nestzip

import (
	"log/slog"
	"sync/atomic"
)

// ResolutionMode selects how a Resolver reports addresses that do not
// resolve.
type ResolutionMode int

const (
	// ModeDefault follows the process-wide setting of SetLazyResolution.
	ModeDefault ResolutionMode = iota

	// ModeFailFast returns an error for every address that does not resolve.
	ModeFailFast

	// ModeLazy returns a placeholder Resource for addresses that are not
	// found. The placeholder fails when read. Other errors are still
	// returned immediately.
	ModeLazy
)

func (m ResolutionMode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeFailFast:
		return "fail-fast"
	case ModeLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

var lazyResolution atomic.Bool

// SetLazyResolution sets the mode used by resolvers created with
// ModeDefault. It may be changed at any time and applies to resolutions
// that start afterwards.
func SetLazyResolution(enabled bool) {
	lazyResolution.Store(enabled)
}

// LazyResolution reports the process-wide resolution mode.
func LazyResolution() bool {
	return lazyResolution.Load()
}

// DefaultAlternateSeparators are the nesting separators some deployment
// tools write in place of "!/".
var DefaultAlternateSeparators = []string{"*/", "^/"}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRegistry sets the registry root archives are opened through.
// Defaults to DefaultRegistry().
func WithRegistry(r *Registry) ResolverOption {
	return func(res *Resolver) {
		res.registry = r
	}
}

// WithResolutionMode sets how unresolved addresses are reported.
func WithResolutionMode(mode ResolutionMode) ResolverOption {
	return func(res *Resolver) {
		res.mode = mode
	}
}

// WithFallbacks sets the fallbacks tried, in order, after an address fails
// to resolve with ErrNotFound or ErrIO.
func WithFallbacks(fallbacks ...Fallback) ResolverOption {
	return func(res *Resolver) {
		res.fallbacks = fallbacks
	}
}

// WithAlternateSeparators sets the separators rewritten to "!/" when an
// address does not resolve as written. Pass none to disable the rewrite.
func WithAlternateSeparators(seps ...string) ResolverOption {
	return func(res *Resolver) {
		res.alternates = seps
	}
}

// WithBaseDir resolves relative root paths against dir instead of the
// working directory.
func WithBaseDir(dir string) ResolverOption {
	return func(res *Resolver) {
		res.baseDir = dir
	}
}

// WithResolverLogger sets the logger for resolution events.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(res *Resolver) {
		res.logger = logger
	}
}
