package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/nestzip"
)

const timeLayout = "2006-01-02 15:04:05"

func newLsCmd(a *app) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls ADDRESS",
		Short: "List the entries of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.resolver.OpenArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for e, err := range archive.Entries() {
				if err != nil {
					return err
				}
				if !long {
					fmt.Fprintln(w, e.Name)
					continue
				}
				fmt.Fprintf(w, "%-8s %12d %12d %s %s\n",
					e.Method, e.CompressedSize, e.Size, e.Modified.Format(timeLayout), e.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show method, sizes and modification time")
	return cmd
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat ADDRESS...",
		Short: "Write the content of entries to standard output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, address := range args {
				res, err := a.resolver.Resolve(cmd.Context(), address)
				if err != nil {
					return err
				}
				if err := copyResource(cmd.OutOrStdout(), res); err != nil {
					return fmt.Errorf("%s: %w", address, err)
				}
			}
			return nil
		},
	}
}

func copyResource(w io.Writer, res *nestzip.Resource) error {
	rc, err := res.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat ADDRESS",
		Short: "Describe an entry or archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			field(w, "address", res.Address().String())
			if !res.Exists() {
				field(w, "exists", false)
				field(w, "error", res.Err())
				return nil
			}
			if e := res.Entry(); e != nil {
				statEntry(w, e)
			}
			if archive := res.Archive(); archive != nil && res.Entry() == nil {
				return statArchive(w, archive)
			}
			return nil
		},
	}
}

func field(w io.Writer, name string, value any) {
	fmt.Fprintf(w, "%-14s %v\n", name+":", value)
}

func statEntry(w io.Writer, e *nestzip.Entry) {
	field(w, "name", e.Name)
	if e.RealName != "" && e.RealName != e.Name {
		field(w, "real name", e.RealName)
	}
	field(w, "directory", e.IsDir())
	field(w, "method", e.Method)
	field(w, "size", e.Size)
	field(w, "compressed", e.CompressedSize)
	field(w, "crc32", fmt.Sprintf("%08x", e.CRC32))
	field(w, "modified", e.Modified.Format(timeLayout))
	if e.Comment != "" {
		field(w, "comment", e.Comment)
	}
}

func statArchive(w io.Writer, archive *nestzip.Archive) error {
	field(w, "path", archive.Path())
	field(w, "kind", archive.Kind())
	field(w, "entries", archive.Len())
	field(w, "size", archive.Size())
	field(w, "prefix", archive.Prefix())
	field(w, "zip64", archive.Zip64())
	field(w, "signed", archive.Signed())

	m, err := archive.Manifest()
	switch {
	case errors.Is(err, nestzip.ErrNotFound):
		field(w, "manifest", false)
	case err != nil:
		return err
	default:
		field(w, "manifest", true)
		field(w, "multi-release", m.MultiRelease())
		if versions := archive.Versions(); len(versions) > 0 && m.MultiRelease() {
			field(w, "versions", joinInts(versions))
		}
	}
	if c := archive.Comment(); c != "" {
		field(w, "comment", c)
	}
	return nil
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " ")
}

type verification struct {
	name     string
	verified bool
	err      error
}

func newVerifyCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "verify ADDRESS",
		Short: "Check every entry of an archive against its manifest digests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.resolver.OpenArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			results, err := verifyArchive(cmd, archive)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			var verified, unlisted, failed int
			for _, r := range results {
				switch {
				case r.err != nil:
					failed++
					fmt.Fprintf(w, "FAILED    %s: %v\n", r.name, r.err)
				case r.verified:
					verified++
					if !quiet {
						fmt.Fprintf(w, "ok        %s\n", r.name)
					}
				default:
					unlisted++
					if !quiet {
						fmt.Fprintf(w, "unlisted  %s\n", r.name)
					}
				}
			}
			fmt.Fprintf(w, "%d verified, %d without digests, %d failed\n", verified, unlisted, failed)
			if failed > 0 {
				return fmt.Errorf("%d entries failed verification", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report failures")
	return cmd
}

// verifyArchive checks every file entry in parallel. Results keep archive
// order.
func verifyArchive(cmd *cobra.Command, archive *nestzip.Archive) ([]verification, error) {
	var entries []*nestzip.Entry
	for e, err := range archive.Entries() {
		if err != nil {
			return nil, err
		}
		if !e.IsDir() {
			entries = append(entries, e)
		}
	}

	results := make([]verification, len(entries))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ok, err := archive.VerifyEntry(e)
			if err != nil && !errors.Is(err, nestzip.ErrDigestMismatch) && !errors.Is(err, nestzip.ErrChecksum) {
				return fmt.Errorf("%s: %w", e.Name, err)
			}
			results[i] = verification{name: e.Name, verified: ok, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
