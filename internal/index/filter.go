package index

import (
	"strings"

	"github.com/meigma/nestzip/internal/bytespan"
)

// Filter maps a raw record name to the name seen through the index.
// Returning false excludes the record.
type Filter func(name *bytespan.Span) (*bytespan.Span, bool)

// PrefixFilter re-roots an index at a directory. Names under prefix are kept
// with the prefix stripped; the directory entry itself and every other name
// are excluded. prefix must end in a slash.
func PrefixFilter(prefix string) Filter {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return func(name *bytespan.Span) (*bytespan.Span, bool) {
		if name.Len() <= len(prefix) || !name.HasPrefixString(prefix) {
			return nil, false
		}
		rest, err := name.SubstringFrom(len(prefix))
		if err != nil {
			return nil, false
		}
		return rest, true
	}
}

// Chain applies outer first and inner to its result. Either may be nil.
func Chain(outer, inner Filter) Filter {
	switch {
	case outer == nil:
		return inner
	case inner == nil:
		return outer
	}
	return func(name *bytespan.Span) (*bytespan.Span, bool) {
		name, ok := outer(name)
		if !ok {
			return nil, false
		}
		return inner(name)
	}
}
