package nestzip

import (
	"log/slog"
	"math"

	"github.com/meigma/nestzip/internal/file"
	"github.com/meigma/nestzip/internal/index"
)

// Option configures an Archive.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	mmap            bool
	runtimeVersion  int
	headerCacheSize int
	verifyCRC       bool
	maxEntrySize    uint64
	pool            *file.DecompressPool
}

func newConfig(opts []Option) *config {
	cfg := &config{
		runtimeVersion:  math.MaxInt,
		headerCacheSize: index.DefaultCacheSize,
		verifyCRC:       true,
		maxEntrySize:    file.DefaultMaxEntrySize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pool == nil {
		cfg.pool = file.NewDecompressPool()
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// WithLogger sets the logger for archive events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMmap maps root files into memory instead of reading them with pread.
// Has no effect on archives created from a ByteSource.
func WithMmap(enabled bool) Option {
	return func(c *config) {
		c.mmap = enabled
	}
}

// WithRuntimeVersion sets the highest versioned override a multi-release
// archive serves. Versions at or below 8 disable overrides. By default every
// version present in the archive is eligible.
func WithRuntimeVersion(v int) Option {
	return func(c *config) {
		c.runtimeVersion = v
	}
}

// WithHeaderCacheSize sets how many decoded central directory headers each
// archive keeps. Zero disables the cache.
func WithHeaderCacheSize(n int) Option {
	return func(c *config) {
		c.headerCacheSize = n
	}
}

// WithVerifyCRC controls whether entry streams check the CRC-32 at EOF.
// Enabled by default.
func WithVerifyCRC(enabled bool) Option {
	return func(c *config) {
		c.verifyCRC = enabled
	}
}

// WithMaxEntrySize limits the size of a single entry, compressed and
// uncompressed. Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(c *config) {
		c.maxEntrySize = limit
	}
}
