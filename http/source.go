// Package http provides a byte source backed by HTTP range requests, so a
// remote archive can be indexed and read without downloading it.
//
// Archive reads are heavily skewed: the end of central directory record and
// the central directory sit at the end of the file and are read first, then
// entries are read in small scattered ranges. A Source therefore fetches the
// tail once and serves every other read with its own range request.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
)

// DefaultTailSize covers the largest possible end of central directory
// record, which is where every archive read starts.
const DefaultTailSize = 22 + 0xffff

var (
	// ErrRangeUnsupported is returned when the server ignores range requests.
	ErrRangeUnsupported = errors.New("http: range requests not supported")

	// ErrChanged is returned when the remote content no longer matches the
	// validator captured when the Source was created.
	ErrChanged = errors.New("http: remote content changed")
)

// Source reads a remote archive through HTTP range requests. It satisfies
// the archive byte source contract (io.ReaderAt, Size and SourceID).
//
// Every range request carries the validator seen by the initial probe, so a
// resource replaced mid-read fails with ErrChanged instead of mixing bytes
// of two versions.
type Source struct {
	ctx     context.Context
	url     string
	client  *nethttp.Client
	headers nethttp.Header
	meta    remoteInfo

	tailSize int64
	tailOnce sync.Once
	tail     []byte
	tailOff  int64
	tailErr  error
}

// remoteInfo is what the probe learns about the remote content.
type remoteInfo struct {
	size         int64
	etag         string
	lastModified string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers != nil {
			s.headers = headers.Clone()
		}
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithTailSize sets how many trailing bytes are fetched in one request and
// kept in memory. Zero disables the tail cache.
func WithTailSize(n int64) Option {
	return func(s *Source) {
		s.tailSize = max(n, 0)
	}
}

// NewSource probes url and returns a Source over its content. ctx bounds
// every request the Source makes, including later reads.
//
// A missing resource (404 or 410) fails with an error wrapping
// fs.ErrNotExist.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{
		ctx:      ctx,
		url:      url,
		tailSize: DefaultTailSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}

	meta, err := s.probe()
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	s.meta = meta
	return s, nil
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.meta.size
}

// SourceID identifies the remote content by URL and validator, so a changed
// resource gets a new identity.
func (s *Source) SourceID() string {
	switch {
	case s.meta.etag != "":
		return fmt.Sprintf("url:%s@%s", s.url, s.meta.etag)
	case s.meta.lastModified != "":
		return fmt.Sprintf("url:%s@%s", s.url, s.meta.lastModified)
	default:
		return fmt.Sprintf("url:%s:%d", s.url, s.meta.size)
	}
}

// URL returns the remote location.
func (s *Source) URL() string {
	return s.url
}

// ReadAt reads len(p) bytes at off. Reads reaching past the end return the
// available bytes and io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	switch {
	case len(p) == 0:
		return 0, nil
	case off < 0:
		return 0, fmt.Errorf("read at %d: negative offset", off)
	case off >= s.meta.size:
		return 0, io.EOF
	}

	if s.inTail(off) {
		s.tailOnce.Do(s.loadTail)
		if s.tailErr != nil {
			return 0, s.tailErr
		}
		if off >= s.tailOff {
			n := copy(p, s.tail[off-s.tailOff:])
			if n < len(p) {
				return n, io.EOF
			}
			return n, nil
		}
	}
	return s.fetchRange(p, off)
}

func (s *Source) inTail(off int64) bool {
	return s.tailSize > 0 && off >= s.meta.size-s.tailSize
}

func (s *Source) loadTail() {
	n := min(s.tailSize, s.meta.size)
	buf := make([]byte, n)
	got, err := s.fetchRange(buf, s.meta.size-n)
	if err != nil && (!errors.Is(err, io.EOF) || int64(got) != n) {
		s.tailErr = err
		return
	}
	s.tail = buf
	s.tailOff = s.meta.size - n
}

// fetchRange fills p from off with one range request, clipped to the end
// of the content.
func (s *Source) fetchRange(p []byte, off int64) (int, error) {
	want := min(int64(len(p)), s.meta.size-off)
	resp, err := s.get(fmt.Sprintf("bytes=%d-%d", off, off+want-1), true)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case nethttp.StatusPreconditionFailed:
		return 0, fmt.Errorf("%w: %s", ErrChanged, s.url)
	case nethttp.StatusOK:
		return 0, ErrRangeUnsupported
	default:
		return 0, fmt.Errorf("range request failed: %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, err
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// probe learns the size and validators of the remote. HEAD is advisory:
// some servers reject it, so the one-byte range request is authoritative.
func (s *Source) probe() (remoteInfo, error) {
	var head remoteInfo
	head.size = -1
	if req, err := s.newRequest(nethttp.MethodHead); err == nil {
		if resp, err := s.client.Do(req); err == nil {
			if resp.StatusCode == nethttp.StatusOK {
				head = infoFrom(resp, resp.ContentLength)
			}
			drain(resp)
		}
	}

	resp, err := s.get("bytes=0-0", false)
	if err != nil {
		return remoteInfo{}, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return remoteInfo{}, ErrRangeUnsupported
	case nethttp.StatusNotFound, nethttp.StatusGone:
		return remoteInfo{}, fmt.Errorf("range probe failed: %s: %w", resp.Status, fs.ErrNotExist)
	default:
		return remoteInfo{}, fmt.Errorf("range probe failed: %s", resp.Status)
	}

	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return remoteInfo{}, err
	}
	if head.size > 0 && head.size != size {
		return remoteInfo{}, fmt.Errorf("content size mismatch: head=%d range=%d", head.size, size)
	}
	info := infoFrom(resp, size)
	if head.etag != "" {
		info.etag = head.etag
	}
	if head.lastModified != "" {
		info.lastModified = head.lastModified
	}
	return info, nil
}

func infoFrom(resp *nethttp.Response, size int64) remoteInfo {
	return remoteInfo{
		size:         size,
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
}

// get issues a range request. When conditional is set the request is
// pinned to the validators captured by the probe.
func (s *Source) get(byteRange string, conditional bool) (*nethttp.Response, error) {
	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", byteRange)
	if conditional {
		if s.meta.etag != "" && req.Header.Get("If-Match") == "" {
			req.Header.Set("If-Match", s.meta.etag)
		}
		if s.meta.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
			req.Header.Set("If-Unmodified-Since", s.meta.lastModified)
		}
	}
	return s.client.Do(req)
}

func (s *Source) newRequest(method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, method, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	// Transparent compression would make byte offsets meaningless.
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

// drain consumes and closes a response body so the connection is reused.
func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best effort
	_ = resp.Body.Close()
}

// parseContentRange extracts the complete length from "bytes a-b/size".
func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("range probe missing Content-Range")
	}
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
