// Package nestzip reads ZIP archives, including archives stored inside other
// archives, without extracting anything to disk.
//
// An [Archive] indexes the central directory once and then serves lookups in
// O(log n) over tens of thousands of entries. Entries that are themselves
// stored (uncompressed) archives, or directories, can be opened as nested
// archives that share the root's backing file.
//
// # Quick Start
//
// Open an archive and read an entry:
//
//	a, err := nestzip.Open("app.jar")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	data, err := a.ReadFile("META-INF/MANIFEST.MF")
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS and fs.ReadDirFS.
//
// # Addresses
//
// Nested content is addressed with "!/" separating each level:
//
//	jar:file:/srv/app.jar!/BOOT-INF/lib/dep.jar!/com/example/Dep.class
//
// A [Resolver] walks such addresses through a process-wide [Registry] so the
// root file is parsed once no matter how many addresses point into it:
//
//	r := nestzip.NewResolver()
//	res, err := r.Resolve(ctx, "/srv/app.jar!/BOOT-INF/lib/dep.jar!/com/example/Dep.class")
//	if err != nil {
//	    return err
//	}
//	rc, err := res.Open()
//
// When resolution fails with ErrNotFound the resolver tries its fallback
// chain. In lazy mode (see [SetLazyResolution]) a missing address yields a
// placeholder [Resource] that only fails when read.
//
// # Multi-release archives
//
// Archives whose manifest sets "Multi-Release: true" serve entries from
// META-INF/versions/{n}/ in preference to the base entry, for the highest n
// not above the runtime version configured with [WithRuntimeVersion].
package nestzip
