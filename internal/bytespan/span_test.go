package bytespan

import (
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip/internal/ziptype"
)

func TestHashMatchesCodeUnitHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int32
	}{
		{"", 0},
		{"hello", 99162322},
		{"META-INF/MANIFEST.MF", 1539143842},
		{"é", 233},
		{"😀", 1772899},
		{"dir/", 3083586},
		{"a😀b", 57849694},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HashString(tt.text))
			assert.Equal(t, tt.want, New([]byte(tt.text)).Hash())
			assert.Equal(t, tt.want, FromString(tt.text).Hash())
		})
	}
}

func TestHashStringSuffix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HashString("dir/"), HashStringSuffix("dir", '/'))
	assert.Equal(t, HashString("dir"), HashStringSuffix("dir", NoSuffix))
	assert.Equal(t, HashString("x😀"), HashStringSuffix("x", '😀'))
}

func TestHashCachedConcurrently(t *testing.T) {
	t.Parallel()

	sp := New([]byte("com/example/App.class"))
	want := HashString("com/example/App.class")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, sp.Hash())
		}()
	}
	wg.Wait()
}

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		span   string
		probe  string
		suffix rune
		want   bool
	}{
		{"equal ascii", "a/b.txt", "a/b.txt", NoSuffix, true},
		{"different ascii", "a/b.txt", "a/c.txt", NoSuffix, false},
		{"probe shorter", "a/b.txt", "a/b", NoSuffix, false},
		{"probe longer", "a/b", "a/b.txt", NoSuffix, false},
		{"implicit separator", "dir/", "dir", '/', true},
		{"implicit separator missing", "dir", "dir", '/', false},
		{"separator not expected", "dir/", "dir", NoSuffix, false},
		{"multibyte", "résumé.txt", "résumé.txt", NoSuffix, true},
		{"multibyte mismatch", "résumé.txt", "resume.txt", NoSuffix, false},
		{"supplementary", "emoji/😀.png", "emoji/😀.png", NoSuffix, true},
		{"supplementary suffix", "x😀", "x", '😀', true},
		{"empty", "", "", NoSuffix, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New([]byte(tt.span)).Matches(tt.probe, tt.suffix))
		})
	}
}

func TestPrefixSuffix(t *testing.T) {
	t.Parallel()

	sp := New([]byte("META-INF/CERT.SF"))
	assert.True(t, sp.HasPrefix(New([]byte("META-INF/"))))
	assert.True(t, sp.HasSuffix(New([]byte(".SF"))))
	assert.False(t, sp.HasPrefix(New([]byte("BOOT-INF/"))))
	assert.True(t, sp.HasPrefixString("META-INF/"))
	assert.True(t, sp.HasSuffixString(".SF"))
	assert.False(t, New([]byte("SF")).HasSuffixString(".SF"))
}

func TestSubstringSharesBytes(t *testing.T) {
	t.Parallel()

	backing := []byte("prefix/inner.txt")
	sp := New(backing)

	sub, err := sp.SubstringFrom(len("prefix/"))
	require.NoError(t, err)
	assert.Equal(t, "inner.txt", sub.String())
	assert.Equal(t, HashString("inner.txt"), sub.Hash())
	assert.Same(t, &backing[len("prefix/")], &sub.Bytes()[0])

	mid, err := sp.Substring(0, 6)
	require.NoError(t, err)
	assert.Equal(t, "prefix", mid.String())

	_, err = sp.Substring(3, 2)
	require.ErrorIs(t, err, ziptype.ErrOutOfRange)
	_, err = sp.Substring(0, len(backing)+1)
	require.ErrorIs(t, err, ziptype.ErrOutOfRange)
	_, err = sp.Substring(-1, 2)
	require.ErrorIs(t, err, ziptype.ErrOutOfRange)
}

func TestEqualIsStructural(t *testing.T) {
	t.Parallel()

	a := New([]byte("same"))
	b := New([]byte("same"))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(New([]byte("other"))))
}

func TestStringKeepsInvalidBytes(t *testing.T) {
	t.Parallel()

	sp := New([]byte{'b', 0x82, 0x83, '.', 't', 'x', 't'})
	name := sp.String()
	assert.Equal(t, "b\x82\x83.txt", name)
	assert.Equal(t, HashString(name), sp.Hash())
	assert.True(t, sp.Matches(name, NoSuffix))

	// Each invalid byte is one replacement code unit in the hash.
	assert.Equal(t, HashString("b\uFFFD\uFFFD.txt"), sp.Hash())
}

func TestMatchesInvalidBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		span   string
		probe  string
		suffix rune
		want   bool
	}{
		{"same raw byte", "a\x82.txt", "a\x82.txt", NoSuffix, true},
		{"different raw byte", "a\x82.txt", "a\x83.txt", NoSuffix, false},
		{"replacement char does not match raw byte", "a\x82.txt", "a\uFFFD.txt", NoSuffix, false},
		{"raw byte does not match replacement char", "a\uFFFD.txt", "a\x82.txt", NoSuffix, false},
		{"truncated sequence", "a\xe2\x82", "a\xe2\x82", NoSuffix, true},
		{"truncated against full", "a\xe2\x82\xac", "a\xe2\x82", NoSuffix, false},
		{"raw byte before suffix", "d\x82/", "d\x82", '/', true},
		{"invalid byte is not a replacement suffix", "d\x82", "d", utf8.RuneError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sp := New([]byte(tt.span))
			assert.Equal(t, tt.want, sp.Matches(tt.probe, tt.suffix))
		})
	}

	// Names differing only in an invalid byte share a hash, so lookups
	// rely on Matches to tell them apart.
	assert.Equal(t, New([]byte("a\x82.txt")).Hash(), New([]byte("a\x83.txt")).Hash())
}
