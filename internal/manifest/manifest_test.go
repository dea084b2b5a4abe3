package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip/internal/ziptype"
)

func TestParse(t *testing.T) {
	t.Parallel()

	data := "Manifest-Version: 1.0\r\n" +
		"Created-By: test\r\n" +
		"Class-Path: lib/first.jar lib/sec\r\n" +
		" ond.jar\r\n" +
		"multi-release: TRUE\r\n" +
		"\r\n" +
		"Name: com/example/A.class\r\n" +
		"SHA-256-Digest: abc=\r\n" +
		"\r\n" +
		"Name: com/example/B.class\r\n" +
		"SHA-256-Digest: def=\r\n"

	m, err := Parse([]byte(data))
	require.NoError(t, err)

	v, ok := m.Main.Get("class-path")
	require.True(t, ok)
	assert.Equal(t, "lib/first.jar lib/second.jar", v)
	assert.True(t, m.MultiRelease())
	assert.Equal(t, []string{"Manifest-Version", "Created-By", "Class-Path", "multi-release"}, m.Main.Names())

	assert.Equal(t, []string{"com/example/A.class", "com/example/B.class"}, m.Sections())
	sec, ok := m.Section("com/example/B.class")
	require.True(t, ok)
	digest, ok := sec.Get("SHA-256-Digest")
	require.True(t, ok)
	assert.Equal(t, "def=", digest)

	_, ok = m.Section("missing")
	assert.False(t, ok)
}

func TestParseLineEndings(t *testing.T) {
	t.Parallel()

	for name, sep := range map[string]string{"lf": "\n", "cr": "\r", "crlf": "\r\n"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			data := "Manifest-Version: 1.0" + sep + "Multi-Release: false" + sep + sep + "Name: a" + sep + "X: y" + sep
			m, err := Parse([]byte(data))
			require.NoError(t, err)
			assert.False(t, m.MultiRelease())
			assert.Equal(t, 2, m.Main.Len())
			sec, ok := m.Section("a")
			require.True(t, ok)
			v, _ := sec.Get("x")
			assert.Equal(t, "y", v)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no separator":            "Manifest-Version 1.0\n",
		"leading continuation":    " oops\n",
		"section without name":    "Manifest-Version: 1.0\n\nX: y\n",
		"space in attribute name": "Bad Name: x\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(data))
			assert.ErrorIs(t, err, ziptype.ErrFormat)
		})
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	m, err := Parse(nil)
	require.NoError(t, err)
	assert.Zero(t, m.Main.Len())
	assert.False(t, m.MultiRelease())
	assert.Empty(t, m.Sections())
}
