package http_test

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ziphttp "github.com/meigma/nestzip/http"
)

// fakeRemote serves data with range support. Its ETag can be swapped to
// simulate the resource being replaced.
type fakeRemote struct {
	data []byte
	etag atomic.Value
	gets atomic.Int64
}

func newRemote(t *testing.T, data []byte, etag string) (*fakeRemote, string) {
	t.Helper()
	r := &fakeRemote{data: data}
	r.etag.Store(etag)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return r, server.URL
}

func (f *fakeRemote) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method == nethttp.MethodGet {
		f.gets.Add(1)
	}
	if etag := f.etag.Load().(string); etag != "" {
		w.Header().Set("ETag", etag)
	}
	nethttp.ServeContent(w, r, "archive.zip", time.Time{}, bytes.NewReader(f.data))
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()
	data := []byte("hello world")
	_, url := newRemote(t, data, "")

	src, err := ziphttp.NewSource(t.Context(), url, ziphttp.WithTailSize(0))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())

	tests := []struct {
		name    string
		off     int64
		size    int
		want    string
		wantEOF bool
	}{
		{name: "middle", off: 6, size: 5, want: "world"},
		{name: "start", off: 0, size: 5, want: "hello"},
		{name: "past end", off: 8, size: 10, want: "rld", wantEOF: true},
		{name: "at end", off: 11, size: 1, want: "", wantEOF: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			n, err := src.ReadAt(buf, tt.off)
			if tt.wantEOF {
				require.ErrorIs(t, err, io.EOF)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, string(buf[:n]))
		})
	}

	_, err = src.ReadAt(make([]byte, 1), -1)
	require.Error(t, err)
}

func TestSourceTailCache(t *testing.T) {
	t.Parallel()
	data := []byte(strings.Repeat("0123456789", 100))
	remote, url := newRemote(t, data, `"v1"`)

	src, err := ziphttp.NewSource(t.Context(), url, ziphttp.WithTailSize(100))
	require.NoError(t, err)
	probes := remote.gets.Load()

	for _, off := range []int64{900, 950, 990} {
		buf := make([]byte, 10)
		_, err := src.ReadAt(buf, off)
		require.NoError(t, err)
		assert.Equal(t, "0123456789", string(buf))
	}
	assert.Equal(t, int64(1), remote.gets.Load()-probes, "tail reads share one request")

	buf := make([]byte, 10)
	_, err = src.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), remote.gets.Load()-probes)
}

func TestSourceID(t *testing.T) {
	t.Parallel()

	_, url := newRemote(t, []byte("content"), `"abc"`)
	src, err := ziphttp.NewSource(t.Context(), url)
	require.NoError(t, err)
	assert.Equal(t, "url:"+url+`@"abc"`, src.SourceID())
	assert.Equal(t, url, src.URL())

	_, bare := newRemote(t, []byte("content"), "")
	src, err = ziphttp.NewSource(t.Context(), bare)
	require.NoError(t, err)
	assert.Equal(t, "url:"+bare+":7", src.SourceID())
}

func TestSourceChanged(t *testing.T) {
	t.Parallel()
	remote, url := newRemote(t, []byte("first version"), `"v1"`)

	src, err := ziphttp.NewSource(t.Context(), url, ziphttp.WithTailSize(0))
	require.NoError(t, err)

	remote.etag.Store(`"v2"`)
	_, err = src.ReadAt(make([]byte, 5), 0)
	require.ErrorIs(t, err, ziphttp.ErrChanged)
}

func TestSourceNotFound(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(nethttp.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := ziphttp.NewSource(t.Context(), server.URL+"/missing.zip")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()
	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == nethttp.MethodHead {
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := ziphttp.NewSource(t.Context(), server.URL)
	require.ErrorIs(t, err, ziphttp.ErrRangeUnsupported)
}

func TestSourceHeaders(t *testing.T) {
	t.Parallel()
	var missing atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			missing.Add(1)
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		nethttp.ServeContent(w, r, "archive.zip", time.Time{}, strings.NewReader("secret"))
	}))
	t.Cleanup(server.Close)

	src, err := ziphttp.NewSource(t.Context(), server.URL,
		ziphttp.WithHeaders(nethttp.Header{"X-Trace": {"1"}}),
		ziphttp.WithHeader("Authorization", "Bearer token"),
	)
	require.NoError(t, err)

	buf := make([]byte, 6)
	_, err = src.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(buf))
	assert.Zero(t, missing.Load())
}

func TestSourceCanceledContext(t *testing.T) {
	t.Parallel()
	_, url := newRemote(t, []byte("data"), "")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := ziphttp.NewSource(ctx, url)
	require.ErrorIs(t, err, context.Canceled)
}
