package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/nestzip"
	ziphttp "github.com/meigma/nestzip/http"
)

// Configuration keys. Each is a persistent flag and a NESTZIP_ variable.
const (
	keyVerbose        = "verbose"
	keyLazy           = "lazy"
	keyMmap           = "mmap"
	keyRuntimeVersion = "runtime-version"
	keyBaseDir        = "base-dir"
	keyNative         = "native-fallback"
	keyAlternates     = "alternate-separators"
	keyHTTPTimeout    = "http-timeout"
	keyHTTPHeaders    = "http-header"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v        *viper.Viper
	logger   *slog.Logger
	resolver *nestzip.Resolver
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "nestzip",
		Short:         "Read entries of nested zip archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.BoolP(keyVerbose, "v", false, "enable debug logging")
	flags.Bool(keyLazy, false, "report missing entries when read instead of when resolved")
	flags.Bool(keyMmap, false, "map local root archives into memory")
	flags.Int(keyRuntimeVersion, 0, "highest multi-release version to serve (0 serves every version)")
	flags.String(keyBaseDir, "", "directory relative root paths are resolved against")
	flags.Bool(keyNative, false, "retry unresolved addresses with a reader that extracts nested archives into memory")
	flags.StringSlice(keyAlternates, nestzip.DefaultAlternateSeparators, "separators rewritten to !/ when an address does not resolve")
	flags.Duration(keyHTTPTimeout, 30*time.Second, "timeout of each request to a remote root archive")
	flags.StringArray(keyHTTPHeaders, nil, "header sent with every remote request, as 'Name: value'")

	if err := a.v.BindPFlags(flags); err != nil {
		panic(err)
	}
	a.v.SetEnvPrefix("NESTZIP")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newLsCmd(a),
		newCatCmd(a),
		newStatCmd(a),
		newVerifyCmd(a),
	)
	return root
}

// setup builds the logger and resolver from flags and environment.
func (a *app) setup(stderr io.Writer) error {
	level := charmlog.InfoLevel
	if a.v.GetBool(keyVerbose) {
		level = charmlog.DebugLevel
	}
	a.logger = slog.New(charmlog.NewWithOptions(stderr, charmlog.Options{
		Prefix:          "nestzip",
		Level:           level,
		ReportTimestamp: level == charmlog.DebugLevel,
	}))

	httpOpts, err := a.httpOptions()
	if err != nil {
		return err
	}

	archiveOpts := []nestzip.Option{
		nestzip.WithLogger(a.logger),
		nestzip.WithMmap(a.v.GetBool(keyMmap)),
	}
	if v := a.v.GetInt(keyRuntimeVersion); v > 0 {
		archiveOpts = append(archiveOpts, nestzip.WithRuntimeVersion(v))
	}
	registry := nestzip.NewRegistry(
		nestzip.WithRegistryLogger(a.logger),
		nestzip.WithArchiveOptions(archiveOpts...),
		nestzip.WithHTTPOptions(httpOpts...),
	)

	mode := nestzip.ModeFailFast
	if a.v.GetBool(keyLazy) {
		mode = nestzip.ModeLazy
	}
	baseDir := a.v.GetString(keyBaseDir)
	opts := []nestzip.ResolverOption{
		nestzip.WithRegistry(registry),
		nestzip.WithResolutionMode(mode),
		nestzip.WithBaseDir(baseDir),
		nestzip.WithAlternateSeparators(a.v.GetStringSlice(keyAlternates)...),
		nestzip.WithResolverLogger(a.logger),
	}
	if a.v.GetBool(keyNative) {
		opts = append(opts, nestzip.WithFallbacks(nestzip.NativeFallback{BaseDir: baseDir}))
	}
	a.resolver = nestzip.NewResolver(opts...)
	return nil
}

func (a *app) httpOptions() ([]ziphttp.Option, error) {
	opts := []ziphttp.Option{ziphttp.WithClient(newHTTPClient(a.v.GetDuration(keyHTTPTimeout)))}
	for _, h := range a.v.GetStringSlice(keyHTTPHeaders) {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q: want 'Name: value'", h)
		}
		opts = append(opts, ziphttp.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}
	return opts, nil
}
