package nestzip

import (
	"log/slog"
	"time"

	"github.com/meigma/nestzip/http"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger for registry events.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithArchiveOptions sets the options used for every archive the registry
// opens.
func WithArchiveOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.archiveOpts = append(r.archiveOpts, opts...)
	}
}

// WithHTTPOptions sets the options used for remote sources.
func WithHTTPOptions(opts ...http.Option) RegistryOption {
	return func(r *Registry) {
		r.httpOpts = append(r.httpOpts, opts...)
	}
}

// WithRevalidateAfter sets how long a probe of a remote root is trusted.
// Zero probes on every OpenURL.
func WithRevalidateAfter(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.revalidate = d
	}
}
