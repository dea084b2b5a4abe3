package nestzip

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/nestzip/internal/file"
	"github.com/meigma/nestzip/internal/index"
	"github.com/meigma/nestzip/internal/manifest"
	"github.com/meigma/nestzip/internal/region"
	"github.com/meigma/nestzip/internal/zipfmt"
)

// Separator joins the segments of a nested path.
const Separator = "!/"

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// Archive provides random access to the entries of a zip archive.
//
// An Archive is either a root archive that owns its backing file, a
// directory of another archive, or a stored archive entry of another
// archive. Nested archives share the backing file of their root and are
// never responsible for closing it.
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS.
// It is safe for concurrent use.
type Archive struct {
	cfg    *config
	root   *Archive // nil for a root archive
	closer io.Closer

	region *region.Region
	path   string
	kind   Kind
	filter index.Filter
	idx    *index.Index
	reader *file.Reader
	end    *zipfmt.EndRecord

	shared atomic.Bool
	closed atomic.Bool

	manifestMu   sync.Mutex
	manifestDone bool
	manifest     *Manifest
	manifestErr  error

	certOnce sync.Once
	certs    map[int]*Certification
	certErr  error

	treeOnce sync.Once
	tree     *dirTree

	nestedGroup singleflight.Group
	nestedMu    sync.Mutex
	nested      map[string]*Archive
}

// Open opens the archive at path. Any bytes preceding the archive, such as
// a launcher script, are skipped.
//
// The returned Archive owns the file and must be closed.
func Open(path string, opts ...Option) (*Archive, error) {
	cfg := newConfig(opts)
	src, err := openSource(path, cfg.mmap)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, region.New(src), path, KindDirect, nil, true)
	if err != nil {
		src.Close()
		return nil, err
	}
	a.closer = src
	return a, nil
}

// New reads the archive held in src. The caller keeps ownership of src;
// Close does not close it.
func New(src ByteSource, opts ...Option) (*Archive, error) {
	if src == nil {
		return nil, errors.New("nestzip: nil source")
	}
	return build(newConfig(opts), region.New(src), src.SourceID(), KindDirect, nil, true)
}

// OpenBytes reads the archive held in data. data must not be modified while
// the Archive is in use.
func OpenBytes(data []byte, opts ...Option) (*Archive, error) {
	src := region.NewBytes(data, "")
	a, err := build(newConfig(opts), region.New(src), src.SourceID(), KindDirect, nil, true)
	if err != nil {
		return nil, err
	}
	a.closer = src
	return a, nil
}

type sourceCloser interface {
	region.Source
	io.Closer
}

func openSource(path string, mmap bool) (sourceCloser, error) {
	var (
		src sourceCloser
		err error
	)
	if mmap {
		src, err = region.MapFile(path)
	} else {
		src, err = region.OpenFile(path)
	}
	switch {
	case err == nil:
		return src, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
	default:
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
}

// build parses the directory of r and assembles an Archive over it.
func build(cfg *config, r *region.Region, path string, kind Kind, filter index.Filter, stripPrefix bool) (*Archive, error) {
	idx := index.New(index.WithFilter(filter), index.WithCacheSize(cfg.headerCacheSize))
	archive, end, err := zipfmt.Parse(r, stripPrefix, idx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	a := &Archive{
		cfg:    cfg,
		region: archive,
		path:   path,
		kind:   kind,
		filter: filter,
		idx:    idx,
		end:    end,
	}
	// Streams pin a so a Registry keeps the backing file open under them.
	a.reader = file.NewReader(archive,
		file.WithMaxEntrySize(cfg.maxEntrySize),
		file.WithVerifyCRC(cfg.verifyCRC),
		file.WithPool(cfg.pool),
		file.WithOwner(a),
	)
	cfg.log().Debug("archive opened",
		"path", path,
		"kind", kind,
		"entries", idx.Len(),
		"zip64", end.Zip64,
		"prefix", end.Prefix)
	return a, nil
}

// Path returns the path of the archive from its root, with nested segments
// joined by Separator.
func (a *Archive) Path() string {
	return a.path
}

// Kind reports how the archive relates to its backing file.
func (a *Archive) Kind() Kind {
	return a.kind
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return a.idx.Len()
}

// Size returns the size of the archive in bytes, excluding any prefix.
func (a *Archive) Size() int64 {
	return a.region.Size()
}

// Prefix returns the number of bytes preceding a root archive.
func (a *Archive) Prefix() int64 {
	return a.end.Prefix
}

// Zip64 reports whether the archive uses a Zip64 end record.
func (a *Archive) Zip64() bool {
	return a.end.Zip64
}

// Comment returns the archive comment.
func (a *Archive) Comment() string {
	return zipfmt.DecodeText(a.end.Comment, 0)
}

// Signed reports whether the archive carries a signature file under
// META-INF/.
func (a *Archive) Signed() bool {
	return a.idx.Signed()
}

// Versions returns the versions of the overrides present under
// META-INF/versions/, highest first.
func (a *Archive) Versions() []int {
	return a.idx.Versions()
}

// Stream returns a reader over the raw archive bytes.
func (a *Archive) Stream() io.Reader {
	return &archiveStream{Reader: a.region.Open(), owner: a}
}

// archiveStream keeps its archive reachable while the raw bytes are read.
type archiveStream struct {
	io.Reader
	owner *Archive
}

// Lookup returns the entry named name. A directory recorded with a trailing
// slash is also found without it.
//
// When the archive is multi-release, entries under META-INF/versions/ up to
// the configured runtime version take precedence. The returned entry then
// carries the requested name and the override's data, with RealName naming
// the override.
func (a *Archive) Lookup(name string) (*Entry, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	var (
		slot    int
		matched = name
		ok      bool
	)
	if a.MultiRelease() {
		slot, matched, ok = a.idx.LookupVersioned(name, a.cfg.runtimeVersion)
	} else {
		slot, ok = a.idx.Lookup(name)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, a.path)
	}
	e, err := a.entryAt(slot, -1)
	if err != nil {
		return nil, err
	}
	if matched != name {
		e.Name = e.Name[len(matched)-len(name):]
	}
	return e, nil
}

// entryAt decodes the entry in slot. A negative position is computed.
func (a *Archive) entryAt(slot, position int) (*Entry, error) {
	rec, err := a.idx.Record(slot)
	if err != nil {
		return nil, fmt.Errorf("entry %d of %s: %w", slot, a.path, err)
	}
	e := rec.Entry()
	if position < 0 {
		position = a.idx.Position(slot)
	}
	e.Position = position
	return e, nil
}

// Entries returns an iterator over every entry in central directory order.
// Versioned overrides are listed under their own names.
//
// The sequence can be ranged over any number of times.
func (a *Archive) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		if err := a.checkOpen(); err != nil {
			yield(nil, err)
			return
		}
		for p, slot := range a.idx.All() {
			e, err := a.entryAt(slot, p)
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// OpenEntry returns a stream of the entry's uncompressed content.
//
// The stream yields exactly e.Size bytes. A stream that ends early, or whose
// content does not match the recorded CRC-32, fails at EOF.
func (a *Archive) OpenEntry(e *Entry) (io.ReadCloser, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	return a.reader.Open(e)
}

// ReadEntry reads the entry's entire uncompressed content.
func (a *Archive) ReadEntry(e *Entry) ([]byte, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	return a.reader.ReadAll(e)
}

// Nested returns the entry e viewed as an archive of its own.
//
// A directory entry yields a KindNestedDirectory archive whose entries are
// the directory's descendants with the directory prefix removed. A file
// entry yields a KindNestedArchive archive over the entry's payload, which
// must be stored uncompressed; a compressed entry fails with
// ErrUnsupportedNesting.
//
// Nested archives are memoized per entry and never need closing.
func (a *Archive) Nested(e *Entry) (*Archive, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	key := e.RealName
	if key == "" {
		key = e.Name
	}
	if n, ok := a.cachedNested(key); ok {
		return n, nil
	}

	v, err, _ := a.nestedGroup.Do(key, func() (any, error) {
		if n, ok := a.cachedNested(key); ok {
			return n, nil
		}
		n, err := a.materialize(e, key)
		if err != nil {
			return nil, err
		}
		a.nestedMu.Lock()
		if a.nested == nil {
			a.nested = make(map[string]*Archive)
		}
		a.nested[key] = n
		a.nestedMu.Unlock()
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Archive), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (a *Archive) cachedNested(key string) (*Archive, bool) {
	a.nestedMu.Lock()
	defer a.nestedMu.Unlock()
	n, ok := a.nested[key]
	return n, ok
}

func (a *Archive) materialize(e *Entry, key string) (*Archive, error) {
	path := a.path + Separator + strings.TrimSuffix(e.Name, "/")

	var (
		n   *Archive
		err error
	)
	if e.IsDir() {
		filter := index.Chain(a.filter, index.PrefixFilter(key))
		n, err = build(a.cfg, a.region, path, KindNestedDirectory, filter, false)
	} else {
		if e.Method != MethodStored {
			return nil, fmt.Errorf("open %s: %w: entry is %s", path, ErrUnsupportedNesting, e.Method)
		}
		var payload *region.Region
		payload, err = zipfmt.Payload(a.region, e.LocalHeaderOffset, e.CompressedSize)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		n, err = build(a.cfg, payload, path, KindNestedArchive, nil, false)
	}
	if err != nil {
		return nil, err
	}
	n.root = a.rootArchive()
	a.cfg.log().Debug("nested archive materialized", "path", path, "kind", n.kind)
	return n, nil
}

// Manifest returns the parsed META-INF/MANIFEST.MF. It fails with
// ErrNotFound when the archive has none.
func (a *Archive) Manifest() (*Manifest, error) {
	a.manifestMu.Lock()
	defer a.manifestMu.Unlock()
	if a.manifestDone {
		return a.manifest, a.manifestErr
	}
	m, err := a.loadManifest()
	if err != nil && errors.Is(err, ErrIO) {
		return nil, err
	}
	a.manifest, a.manifestErr, a.manifestDone = m, err, true
	return m, err
}

func (a *Archive) loadManifest() (*Manifest, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	slot, ok := a.idx.Lookup(manifest.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, manifest.Path, a.path)
	}
	e, err := a.entryAt(slot, -1)
	if err != nil {
		return nil, err
	}
	data, err := a.reader.ReadAll(e)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", manifest.Path, a.path, err)
	}
	return m, nil
}

// MultiRelease reports whether lookups consult versioned overrides: the
// archive holds overrides and its manifest declares Multi-Release: true.
func (a *Archive) MultiRelease() bool {
	if len(a.idx.Versions()) == 0 {
		return false
	}
	m, err := a.Manifest()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.cfg.log().Debug("manifest unreadable", "path", a.path, "error", err)
		}
		return false
	}
	return m.MultiRelease()
}

// Close releases the backing file of a root archive opened by Open or
// OpenBytes. It is a no-op for nested archives and for archives owned by a
// Registry.
func (a *Archive) Close() error {
	if a.kind != KindDirect || a.shared.Load() {
		return nil
	}
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.cfg.log().Debug("archive closed", "path", a.path)
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *Archive) rootArchive() *Archive {
	if a.root != nil {
		return a.root
	}
	return a
}

func (a *Archive) checkOpen() error {
	if a.rootArchive().closed.Load() {
		return fmt.Errorf("%s: %w", a.path, ErrClosed)
	}
	return nil
}
