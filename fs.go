package nestzip

import (
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/meigma/nestzip/internal/file"
)

// dirTree records which valid fs paths are directories and which are files.
// Directories are taken from explicit directory entries and from the parents
// of every other name.
type dirTree struct {
	dirs     map[string]bool
	known    map[string]bool
	children map[string][]string
}

func (a *Archive) dirs() *dirTree {
	a.treeOnce.Do(func() {
		t := &dirTree{
			dirs:     map[string]bool{".": true},
			known:    map[string]bool{".": true},
			children: make(map[string][]string),
		}
		for e, err := range a.Entries() {
			if err != nil {
				a.cfg.log().Debug("directory listing incomplete", "path", a.path, "error", err)
				break
			}
			name := strings.TrimSuffix(e.Name, "/")
			if name == "" || !fs.ValidPath(name) {
				continue
			}
			t.add(name, e.IsDir())
		}
		for _, c := range t.children {
			slices.Sort(c)
		}
		a.tree = t
	})
	return a.tree
}

func (t *dirTree) add(name string, dir bool) {
	if dir {
		t.dirs[name] = true
	}
	for name != "." {
		if t.known[name] {
			return
		}
		t.known[name] = true
		parent := path.Dir(name)
		t.dirs[parent] = true
		t.children[parent] = append(t.children[parent], path.Base(name))
		name = parent
	}
}

func (t *dirTree) exists(name string) bool {
	return t.known[name]
}

// Open implements fs.FS.
//
// Names are resolved the way Lookup resolves them, so multi-release
// overrides apply. Directories are synthesized from entry names.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	t := a.dirs()
	if t.dirs[name] {
		return &openDir{a: a, name: name}, nil
	}
	if !t.exists(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	e, err := a.Lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return a.reader.OpenFile(e, file.Base(name)), nil
}

// Stat implements fs.StatFS.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	info, err := a.stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return info, nil
}

func (a *Archive) stat(name string) (fs.FileInfo, error) {
	t := a.dirs()
	if t.dirs[name] {
		return file.NewDirInfo(file.Base(name)), nil
	}
	if !t.exists(name) {
		return nil, fs.ErrNotExist
	}
	e, err := a.Lookup(name)
	if err != nil {
		return nil, err
	}
	return file.NewInfo(e, file.Base(name)), nil
}

// ReadFile implements fs.ReadFileFS.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	t := a.dirs()
	if t.dirs[name] {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	if !t.exists(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	e, err := a.Lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	data, err := a.ReadEntry(e)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns the entries of the named directory sorted by name.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	entries, err := a.readDir(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	return entries, nil
}

func (a *Archive) readDir(name string) ([]fs.DirEntry, error) {
	t := a.dirs()
	if !t.dirs[name] {
		return nil, fs.ErrNotExist
	}
	children := t.children[name]
	entries := make([]fs.DirEntry, 0, len(children))
	for _, child := range children {
		info, err := a.stat(path.Join(name, child))
		if err != nil {
			return nil, err
		}
		entries = append(entries, file.NewDirEntry(info))
	}
	return entries, nil
}

// openDir implements fs.ReadDirFile for directories.
type openDir struct {
	a       *Archive
	name    string
	entries []fs.DirEntry
	offset  int
	loaded  bool
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return file.NewDirInfo(file.Base(d.name)), nil
}

func (d *openDir) Close() error {
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		entries, err := d.a.readDir(d.name)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: err}
		}
		d.entries, d.loaded = entries, true
	}

	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return rest[:n], nil
}
