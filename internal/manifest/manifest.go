// Package manifest parses archive manifests: a main attribute section
// followed by per-entry sections, each a block of "Name: value" lines.
package manifest

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/nestzip/internal/ziptype"
)

// Path is the location of the manifest within an archive.
const Path = "META-INF/MANIFEST.MF"

// Well-known attribute names.
const (
	AttrName         = "Name"
	AttrMultiRelease = "Multi-Release"
	AttrVersion      = "Manifest-Version"
)

// Attributes is an ordered set of attributes with case-insensitive names.
type Attributes struct {
	names  []string
	values map[string]string
}

func newAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

func (a *Attributes) set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := a.values[key]; !ok {
		a.names = append(a.names, name)
	}
	a.values[key] = value
}

// Get returns the value of the named attribute.
func (a *Attributes) Get(name string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[strings.ToLower(name)]
	return v, ok
}

// Names returns attribute names in the order they first appeared.
func (a *Attributes) Names() []string {
	if a == nil {
		return nil
	}
	return slices.Clone(a.names)
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.names)
}

// Manifest is a parsed manifest.
type Manifest struct {
	Main     *Attributes
	sections map[string]*Attributes
	order    []string
}

// Section returns the attributes of the section for the named entry.
func (m *Manifest) Section(name string) (*Attributes, bool) {
	s, ok := m.sections[name]
	return s, ok
}

// Sections returns the entry names that have a section, in file order.
func (m *Manifest) Sections() []string {
	return slices.Clone(m.order)
}

// MultiRelease reports whether the archive declares versioned overrides.
func (m *Manifest) MultiRelease() bool {
	v, _ := m.Main.Get(AttrMultiRelease)
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// Parse decodes a manifest. Lines may end in CRLF, LF or CR; a line starting
// with a single space continues the previous one. Blank lines separate
// sections, and every section after the first must begin with a Name
// attribute.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{Main: newAttributes(), sections: make(map[string]*Attributes)}

	var (
		current = m.Main
		pending string
		have    bool
		lineNo  int
	)
	flush := func() error {
		if !have {
			return nil
		}
		have = false
		name, value, ok := strings.Cut(pending, ": ")
		if !ok {
			name, value, ok = strings.Cut(pending, ":")
		}
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return fmt.Errorf("%w: manifest line %d: malformed attribute %q", ziptype.ErrFormat, lineNo, pending)
		}
		if current == nil {
			if !strings.EqualFold(name, AttrName) {
				return fmt.Errorf("%w: manifest line %d: section must start with Name", ziptype.ErrFormat, lineNo)
			}
			current = newAttributes()
			if _, dup := m.sections[value]; !dup {
				m.order = append(m.order, value)
			}
			m.sections[value] = current
		}
		current.set(name, value)
		return nil
	}

	for _, line := range splitLines(data) {
		lineNo++
		switch {
		case len(line) == 0:
			if err := flush(); err != nil {
				return nil, err
			}
			current = nil
		case line[0] == ' ':
			if !have {
				return nil, fmt.Errorf("%w: manifest line %d: continuation without attribute", ziptype.ErrFormat, lineNo)
			}
			pending += string(line[1:])
		default:
			if err := flush(); err != nil {
				return nil, err
			}
			pending = string(line)
			have = true
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return m, nil
}

// splitLines splits on CRLF, LF or CR.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for len(data) > 0 {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			lines = append(lines, data)
			break
		}
		lines = append(lines, data[:i])
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			i++
		}
		data = data[i+1:]
	}
	return lines
}
