package nestzip

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip/internal/testutil"
)

const multiReleaseManifest = "Manifest-Version: 1.0\r\nMulti-Release: true\r\n\r\n"

// writeArchive builds an archive from files and writes it under a fresh
// temporary directory.
func writeArchive(t *testing.T, name string, files []testutil.File, opts ...testutil.BuildOption) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), name, testutil.BuildZip(t, files, opts...))
}

// openArchive builds an archive from files and opens it from memory.
func openArchive(t *testing.T, files []testutil.File, opts ...Option) *Archive {
	t.Helper()
	a, err := OpenBytes(testutil.BuildZip(t, files), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// readEntry looks up name in a and reads its content.
func readEntry(t *testing.T, a *Archive, name string) string {
	t.Helper()
	e, err := a.Lookup(name)
	require.NoError(t, err)
	data, err := a.ReadEntry(e)
	require.NoError(t, err)
	return string(data)
}

// nestedFixture returns the files of an outer archive holding a stored
// inner archive at lib/inner.jar, a compressed copy at lib/packed.jar and a
// directory tree under classes/.
func nestedFixture(t *testing.T) []testutil.File {
	t.Helper()
	inner := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("b.txt", "inner bravo"),
		testutil.Deflated("pkg/c.txt", "inner charlie, compressed"),
	})
	return []testutil.File{
		testutil.Stored("a.txt", "outer alpha"),
		testutil.StoredBytes("lib/inner.jar", inner),
		testutil.DeflatedBytes("lib/packed.jar", inner),
		testutil.Dir("classes/"),
		testutil.Stored("classes/inner.txt", "directory child"),
		testutil.Deflated("classes/sub/deep.txt", "deep child"),
	}
}

func absPath(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}
