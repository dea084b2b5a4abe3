package file

import (
	"bytes"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip/internal/index"
	"github.com/meigma/nestzip/internal/region"
	"github.com/meigma/nestzip/internal/testutil"
	"github.com/meigma/nestzip/internal/zipfmt"
	"github.com/meigma/nestzip/internal/ziptype"
)

// openArchive parses data and returns its region and entries by name.
func openArchive(tb testing.TB, src region.Source) (*region.Region, map[string]*ziptype.Entry) {
	tb.Helper()
	x := index.New()
	r, _, err := zipfmt.Parse(region.New(src), true, x)
	require.NoError(tb, err)

	entries := make(map[string]*ziptype.Entry)
	for _, slot := range x.All() {
		rec, err := x.Record(slot)
		require.NoError(tb, err)
		e := rec.Entry()
		entries[e.Name] = e
	}
	return r, entries
}

func TestReadAllRoundTrip(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("nested archives all the way down\n"), 4096)
	data := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("stored.txt", "plain bytes"),
		testutil.DeflatedBytes("deflated.txt", big),
		testutil.Stored("empty.txt", ""),
		testutil.Deflated("empty-deflated.txt", ""),
	})
	r, entries := openArchive(t, region.NewBytes(data, "test"))
	reader := NewReader(r)

	tests := map[string][]byte{
		"stored.txt":         []byte("plain bytes"),
		"deflated.txt":       big,
		"empty.txt":          {},
		"empty-deflated.txt": {},
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := reader.ReadAll(entries[name])
			require.NoError(t, err)
			assert.Equal(t, want, got)

			rc, err := reader.Open(entries[name])
			require.NoError(t, err)
			streamed, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, want, streamed)
		})
	}
	assert.Equal(t, ziptype.MethodDeflated, entries["deflated.txt"].Method)
	assert.Less(t, entries["deflated.txt"].CompressedSize, entries["deflated.txt"].Size)
}

func TestPayloadIsRawBytes(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{testutil.Stored("a.txt", "raw payload")})
	r, entries := openArchive(t, region.NewBytes(data, "test"))

	payload, err := NewReader(r).Payload(entries["a.txt"])
	require.NoError(t, err)
	got, err := payload.Read(0, payload.Size())
	require.NoError(t, err)
	assert.Equal(t, []byte("raw payload"), got)
}

func TestStreamFailures(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("stored.txt", "stored content"),
		testutil.Deflated("deflated.txt", strings.Repeat("deflate me ", 100)),
	})
	r, entries := openArchive(t, region.NewBytes(data, "test"))
	reader := NewReader(r)

	t.Run("checksum", func(t *testing.T) {
		t.Parallel()
		e := *entries["stored.txt"]
		e.CRC32++
		_, err := reader.ReadAll(&e)
		assert.ErrorIs(t, err, ziptype.ErrChecksum)

		lax := NewReader(r, WithVerifyCRC(false))
		got, err := lax.ReadAll(&e)
		require.NoError(t, err)
		assert.Equal(t, []byte("stored content"), got)
	})

	t.Run("truncated deflate stream", func(t *testing.T) {
		t.Parallel()
		e := *entries["deflated.txt"]
		e.Size += 10
		rc, err := reader.Open(&e)
		require.NoError(t, err)
		defer rc.Close()
		_, err = io.ReadAll(rc)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("surplus deflate content", func(t *testing.T) {
		t.Parallel()
		e := *entries["deflated.txt"]
		e.Size -= 10
		_, err := reader.ReadAll(&e)
		assert.ErrorIs(t, err, ziptype.ErrFormat)
	})

	t.Run("stored size mismatch", func(t *testing.T) {
		t.Parallel()
		e := *entries["stored.txt"]
		e.Size++
		_, err := reader.Open(&e)
		assert.ErrorIs(t, err, ziptype.ErrFormat)
	})

	t.Run("unsupported method", func(t *testing.T) {
		t.Parallel()
		e := *entries["deflated.txt"]
		e.Method = 12
		_, err := reader.Open(&e)
		assert.ErrorIs(t, err, ziptype.ErrUnsupportedMethod)
		assert.ErrorIs(t, err, ziptype.ErrFormat)
	})

	t.Run("size limit", func(t *testing.T) {
		t.Parallel()
		small := NewReader(r, WithMaxEntrySize(4))
		_, err := small.Open(entries["stored.txt"])
		assert.ErrorIs(t, err, ziptype.ErrSizeOverflow)
	})

	t.Run("payload beyond archive", func(t *testing.T) {
		t.Parallel()
		e := *entries["stored.txt"]
		e.LocalHeaderOffset = r.Size() + 1
		_, err := reader.Open(&e)
		assert.ErrorIs(t, err, ziptype.ErrFormat)
	})
}

func TestStreamPropagatesIOError(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("x", 4096)
	data := testutil.BuildZip(t, []testutil.File{testutil.Stored("big.txt", content)})
	src := testutil.NewFailingSource(data, "failing", int64(len(data)))
	r, entries := openArchive(t, src)

	// Fail reads reaching into the middle of the payload.
	src.FailAt = entries["big.txt"].LocalHeaderOffset + 2048
	rc, err := NewReader(r).Open(entries["big.txt"])
	require.NoError(t, err)
	defer rc.Close()
	_, err = io.ReadAll(rc)
	require.ErrorIs(t, err, ziptype.ErrIO)
	assert.ErrorIs(t, err, testutil.ErrInjected)
}

func TestDecompressPoolReuse(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{
		testutil.Deflated("a.txt", strings.Repeat("a", 1000)),
		testutil.Deflated("b.txt", strings.Repeat("b", 1000)),
	})
	r, entries := openArchive(t, region.NewBytes(data, "test"))
	reader := NewReader(r, WithPool(NewDecompressPool()))

	for range 3 {
		for _, name := range []string{"a.txt", "b.txt"} {
			got, err := reader.ReadAll(entries[name])
			require.NoError(t, err)
			assert.Equal(t, strings.Repeat(name[:1], 1000), string(got))
		}
	}
}

func TestFile(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{testutil.Deflated("dir/hello.txt", "hello")})
	r, entries := openArchive(t, region.NewBytes(data, "test"))

	f := NewReader(r).OpenFile(entries["dir/hello.txt"], "")
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", info.Name())
	assert.Equal(t, int64(5), info.Size())
	assert.False(t, info.IsDir())
	assert.Equal(t, fs.FileMode(0o444), info.Mode())
	assert.Equal(t, testutil.Modified, info.ModTime())

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.Close(), fs.ErrClosed)
	_, err = f.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fs.ErrClosed)
}

func TestBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "b.txt", Base("a/b.txt"))
	assert.Equal(t, "a", Base("a/"))
	assert.Equal(t, ".", Base(""))
}
