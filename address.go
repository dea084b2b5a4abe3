package nestzip

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

// Address schemes.
const (
	SchemeJar  = "jar:"
	SchemeFile = "file:"
)

// Address names a root archive and a path of entries inside it.
//
// The textual form is
//
//	[jar:]root!/segment1!/segment2...
//
// where root is a file path, a file: URL or an http(s) URL. Every segment
// but the last names a nested archive; the last names an entry, unless the
// address ends in "!/", in which case it names the archive itself. An
// address with no segments names the root archive.
type Address struct {
	// Root is the local path or URL of the root archive.
	Root string

	// Entries are the decoded entry names, outermost first.
	Entries []string

	archive bool
}

// NewAddress returns the address of the entry reached by following entries
// from root. With no entries it addresses the root archive.
func NewAddress(root string, entries ...string) *Address {
	return &Address{Root: root, Entries: slices.Clone(entries)}
}

// ParseAddress parses the textual form of an address. Segments are
// percent-decoded.
func ParseAddress(s string) (*Address, error) {
	rest := strings.TrimPrefix(s, SchemeJar)
	parts := strings.Split(rest, Separator)

	root, err := parseRoot(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	addr := &Address{Root: root}

	segments := parts[1:]
	if n := len(segments); n > 0 && segments[n-1] == "" {
		addr.archive = true
		segments = segments[:n-1]
	}
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q: empty segment %d", ErrInvalidAddress, s, i+1)
		}
		name, err := url.PathUnescape(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
		}
		addr.Entries = append(addr.Entries, name)
	}
	return addr, nil
}

func parseRoot(root string) (string, error) {
	switch {
	case root == "":
		return "", errors.New("missing root")
	case isRemote(root):
		return root, nil
	case strings.HasPrefix(root, SchemeFile):
		u, err := url.Parse(root)
		if err != nil {
			return "", err
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("file URL with host %q", u.Host)
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return "", errors.New("missing file path")
		}
		return filepath.FromSlash(path), nil
	default:
		return root, nil
	}
}

// IsArchive reports whether the address names an archive rather than an
// entry.
func (a *Address) IsArchive() bool {
	return a.archive || len(a.Entries) == 0
}

// Remote reports whether the root archive is served over HTTP.
func (a *Address) Remote() bool {
	return isRemote(a.Root)
}

// Child returns the address of name inside the archive a addresses. If a
// addresses an entry, that entry becomes a nested archive.
func (a *Address) Child(name string) *Address {
	entries := append(slices.Clone(a.Entries), name)
	return &Address{Root: a.Root, Entries: entries}
}

// AsArchive returns the address of the same path viewed as an archive.
func (a *Address) AsArchive() *Address {
	return &Address{Root: a.Root, Entries: slices.Clone(a.Entries), archive: true}
}

// String returns the canonical textual form. Local roots are written as
// absolute file: URLs, and segments are percent-encoded so that they never
// contain the separator.
func (a *Address) String() string {
	var b strings.Builder
	b.WriteString(SchemeJar)
	if a.Remote() {
		b.WriteString(a.Root)
	} else {
		abs, err := filepath.Abs(a.Root)
		if err != nil {
			abs = a.Root
		}
		abs = filepath.ToSlash(abs)
		if !strings.HasPrefix(abs, "/") {
			abs = "/" + abs
		}
		b.WriteString(SchemeFile)
		b.WriteString(escape(abs))
	}
	for _, e := range a.Entries {
		b.WriteString(Separator)
		b.WriteString(escape(e))
	}
	if a.archive && len(a.Entries) > 0 {
		b.WriteString(Separator)
	}
	return b.String()
}

// escape percent-encodes every byte outside the unreserved set and the
// slash.
func escape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}
