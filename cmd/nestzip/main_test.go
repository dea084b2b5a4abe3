package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip"
	"github.com/meigma/nestzip/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func digestOf(data string) string {
	sum := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// writeFixture writes an app.jar with a stored nested archive, a
// multi-release override and manifest digests, the one for bad.txt wrong.
func writeFixture(t *testing.T) string {
	t.Helper()
	inner := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("b.txt", "inner bravo"),
		testutil.Deflated("pkg/c.txt", "inner charlie"),
	})
	manifest := "Manifest-Version: 1.0\r\nMulti-Release: true\r\n\r\n" +
		fmt.Sprintf("Name: a.txt\r\nSHA-256-Digest: %s\r\n\r\n", digestOf("outer alpha")) +
		fmt.Sprintf("Name: bad.txt\r\nSHA-256-Digest: %s\r\n\r\n", digestOf("expected"))
	data := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("META-INF/MANIFEST.MF", manifest),
		testutil.Stored("a.txt", "outer alpha"),
		testutil.Stored("bad.txt", "actual"),
		testutil.StoredBytes("lib/inner.jar", inner),
		testutil.Stored("Foo.class", "base"),
		testutil.Stored("META-INF/versions/11/Foo.class", "eleven"),
	})
	return testutil.WriteFile(t, t.TempDir(), "app.jar", data)
}

func TestLs(t *testing.T) {
	t.Parallel()
	path := writeFixture(t)

	out, err := run(t, "ls", path+"!/lib/inner.jar")
	require.NoError(t, err)
	assert.Equal(t, "b.txt\npkg/c.txt\n", out)

	out, err = run(t, "ls", "-l", path+"!/lib/inner.jar")
	require.NoError(t, err)
	assert.Contains(t, out, "stored")
	assert.Contains(t, out, "deflated")
	assert.Contains(t, out, "pkg/c.txt")
}

func TestCat(t *testing.T) {
	t.Parallel()
	path := writeFixture(t)

	out, err := run(t, "cat", path+"!/a.txt", path+"!/lib/inner.jar!/pkg/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "outer alphainner charlie", out)

	out, err = run(t, "cat", path+"*/lib/inner.jar*/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "inner bravo", out)

	_, err = run(t, "cat", path+"!/missing.txt")
	require.ErrorIs(t, err, nestzip.ErrNotFound)

	_, err = run(t, "cat", "--alternate-separators=", path+"*/lib/inner.jar*/b.txt")
	require.ErrorIs(t, err, nestzip.ErrNotFound)
}

func TestCatRuntimeVersion(t *testing.T) {
	t.Parallel()
	path := writeFixture(t)

	out, err := run(t, "cat", path+"!/Foo.class")
	require.NoError(t, err)
	assert.Equal(t, "eleven", out)

	out, err = run(t, "cat", "--runtime-version", "10", path+"!/Foo.class")
	require.NoError(t, err)
	assert.Equal(t, "base", out)
}

func TestStat(t *testing.T) {
	t.Parallel()
	path := writeFixture(t)

	out, err := run(t, "stat", path+"!/lib/inner.jar!/pkg/c.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "name:          pkg/c.txt\n")
	assert.Contains(t, out, "method:        deflated\n")

	out, err = run(t, "stat", path+"!/lib/inner.jar!/")
	require.NoError(t, err)
	assert.Contains(t, out, "kind:          nested-archive\n")
	assert.Contains(t, out, "entries:       2\n")
	assert.Contains(t, out, "manifest:      false\n")

	out, err = run(t, "stat", path)
	require.NoError(t, err)
	assert.Contains(t, out, "multi-release: true\n")
	assert.Contains(t, out, "versions:      11\n")
}

func TestStatLazy(t *testing.T) {
	t.Parallel()
	path := writeFixture(t)

	out, err := run(t, "stat", "--lazy", path+"!/missing.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "exists:        false\n")
}

//nolint:paralleltest // sets environment variables
func TestEnvironment(t *testing.T) {
	path := writeFixture(t)

	t.Setenv("NESTZIP_RUNTIME_VERSION", "10")
	out, err := run(t, "cat", path+"!/Foo.class")
	require.NoError(t, err)
	assert.Equal(t, "base", out)

	t.Setenv("NESTZIP_LAZY", "true")
	out, err = run(t, "stat", path+"!/missing.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "exists:        false\n")
}

func TestVerify(t *testing.T) {
	t.Parallel()
	path := writeFixture(t)

	out, err := run(t, "verify", path)
	require.Error(t, err)
	assert.Contains(t, out, "ok        a.txt\n")
	assert.Contains(t, out, "FAILED    bad.txt")
	assert.Contains(t, out, "unlisted  Foo.class\n")
	assert.Contains(t, out, "1 verified, 4 without digests, 1 failed\n")

	out, err = run(t, "verify", "-q", path+"!/lib/inner.jar")
	require.NoError(t, err)
	assert.Equal(t, "0 verified, 2 without digests, 0 failed\n", out)
}

func TestInvalidHeader(t *testing.T) {
	t.Parallel()
	path := writeFixture(t)

	_, err := run(t, "cat", "--http-header", "no-colon", path+"!/a.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid header")
}
