package zipfmt

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestzip/internal/region"
	"github.com/meigma/nestzip/internal/testutil"
	"github.com/meigma/nestzip/internal/ziptype"
)

type recorder struct {
	end     *EndRecord
	dirLen  int
	names   []string
	offsets []int
	ended   bool
	failOn  string
}

func (r *recorder) VisitStart(end *EndRecord, directory []byte) error {
	r.end = end
	r.dirLen = len(directory)
	return nil
}

func (r *recorder) VisitRecord(rec *CentralRecord, offset int) error {
	if rec.Name.String() == r.failOn {
		return ziptype.ErrFormat
	}
	r.names = append(r.names, rec.Name.String())
	r.offsets = append(r.offsets, offset)
	return nil
}

func (r *recorder) VisitEnd() error {
	r.ended = true
	return nil
}

func regionOf(data []byte) *region.Region {
	return region.New(region.NewBytes(data, "test"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("a.txt", "alpha"),
		testutil.Deflated("dir/b.txt", "bravo bravo bravo"),
		testutil.Dir("dir/"),
	}, testutil.WithComment("archive comment"))

	var rec recorder
	r, end, err := Parse(regionOf(data), true, &rec)
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), r.Size())
	assert.Equal(t, uint64(3), end.Count)
	assert.Equal(t, []byte("archive comment"), end.Comment)
	assert.False(t, end.Zip64)
	assert.Zero(t, end.Prefix)
	assert.Same(t, end, rec.end)
	assert.Equal(t, int(end.DirectorySize), rec.dirLen)
	assert.Equal(t, []string{"a.txt", "dir/b.txt", "dir/"}, rec.names)
	assert.Equal(t, 0, rec.offsets[0])
	assert.True(t, rec.ended)
}

func TestParseRecordIncrement(t *testing.T) {
	t.Parallel()

	// Entries with empty comments, with entry comments and with extra
	// fields: every record must advance by exactly its own length.
	data := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("one", "1"),
		{Name: "two", Data: []byte("2"), Comment: "second entry"},
		testutil.Stored("three", "3"),
		{Name: "four", Data: []byte("4"), Comment: "x"},
		testutil.Stored("five", "5"),
	})

	var rec recorder
	_, end, err := Parse(regionOf(data), false, &rec)
	require.NoError(t, err)
	require.Len(t, rec.offsets, 5)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, rec.names)

	dir, err := regionOf(data).Read(int64(end.DirectoryOffset), int64(end.DirectorySize))
	require.NoError(t, err)
	for i, off := range rec.offsets {
		n, err := RecordLen(dir, off)
		require.NoError(t, err)
		if i+1 < len(rec.offsets) {
			assert.Equal(t, rec.offsets[i+1], off+n)
		} else {
			assert.Equal(t, len(dir), off+n)
		}
	}

	two, err := ReadCentralRecord(dir, rec.offsets[1])
	require.NoError(t, err)
	assert.Equal(t, []byte("second entry"), two.Comment)
	three, err := ReadCentralRecord(dir, rec.offsets[2])
	require.NoError(t, err)
	assert.Empty(t, three.Comment)
}

func TestParseStripsPrefix(t *testing.T) {
	t.Parallel()

	stub := bytes.Repeat([]byte("#!/bin/sh\nexec java -jar \"$0\"\n"), 4)
	data := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("hello.txt", "hello"),
	}, testutil.WithPrefix(stub))

	var rec recorder
	r, end, err := Parse(regionOf(data), true, &rec)
	require.NoError(t, err)
	assert.Equal(t, int64(len(stub)), end.Prefix)
	assert.Equal(t, int64(len(stub)), r.Base())
	assert.Equal(t, int64(len(data)-len(stub)), r.Size())

	head, err := r.Read(0, 4)
	require.NoError(t, err)
	assert.Equal(t, LocalSignature, binary.LittleEndian.Uint32(head))

	// Without stripping the directory offset points into the stub.
	_, _, err = Parse(regionOf(data), false, &recorder{})
	assert.ErrorIs(t, err, ziptype.ErrFormat)
}

func TestParseZip64(t *testing.T) {
	t.Parallel()

	files := []testutil.File{
		testutil.Stored("first.txt", "first"),
		testutil.Stored("second.txt", "second entry"),
	}
	data := testutil.BuildZip64(t, files)

	for _, stub := range [][]byte{nil, []byte("PREFIX-BYTES")} {
		var rec recorder
		buf := append(append([]byte{}, stub...), data...)
		r, end, err := Parse(regionOf(buf), true, &rec)
		require.NoError(t, err)
		assert.True(t, end.Zip64)
		assert.Equal(t, uint64(2), end.Count)
		assert.Equal(t, int64(len(stub)), end.Prefix)
		assert.Equal(t, []string{"first.txt", "second.txt"}, rec.names)

		dir, err := r.Read(int64(end.DirectoryOffset), int64(end.DirectorySize))
		require.NoError(t, err)
		second, err := ReadCentralRecord(dir, rec.offsets[1])
		require.NoError(t, err)
		assert.True(t, second.Zip64)
		assert.Equal(t, uint64(len("second entry")), second.Size)

		payload, err := Payload(r, second.LocalHeaderOffset, second.CompressedSize)
		require.NoError(t, err)
		got, err := payload.Read(0, payload.Size())
		require.NoError(t, err)
		assert.Equal(t, []byte("second entry"), got)
	}
}

func TestParseFailures(t *testing.T) {
	t.Parallel()

	valid := testutil.BuildZip(t, []testutil.File{testutil.Stored("a", "a")})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "no end record", data: bytes.Repeat([]byte{0}, 100)},
		{name: "truncated directory", data: append(append([]byte{}, valid[:len(valid)-EndLen-10]...), valid[len(valid)-EndLen:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &recorder{}
			_, _, err := Parse(regionOf(tt.data), true, rec)
			require.ErrorIs(t, err, ziptype.ErrFormat)
			assert.False(t, rec.ended)
		})
	}
}

func TestParseVisitorErrorStopsWalk(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{
		testutil.Stored("a", "a"),
		testutil.Stored("b", "b"),
		testutil.Stored("c", "c"),
	})
	rec := &recorder{failOn: "b"}
	_, _, err := Parse(regionOf(data), true, rec)
	require.ErrorIs(t, err, ziptype.ErrFormat)
	assert.Equal(t, []string{"a"}, rec.names)
	assert.False(t, rec.ended)
}

func TestParseIOError(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{testutil.Stored("a", "a")})
	src := testutil.NewFailingSource(data, "failing", 1)
	_, _, err := Parse(region.New(src), true, &recorder{})
	require.ErrorIs(t, err, ziptype.ErrIO)
	assert.ErrorIs(t, err, testutil.ErrInjected)
}

func TestZip64ExtraMissing(t *testing.T) {
	t.Parallel()

	hdr := make([]byte, CentralLen+1)
	binary.LittleEndian.PutUint32(hdr, CentralSignature)
	binary.LittleEndian.PutUint16(hdr[28:], 1)
	binary.LittleEndian.PutUint32(hdr[42:], 0xffffffff)
	hdr[CentralLen] = 'x'

	_, err := ReadCentralRecord(hdr, 0)
	assert.ErrorIs(t, err, ziptype.ErrFormat)
}

func TestDOSTime(t *testing.T) {
	t.Parallel()

	assert.True(t, DOSTime(0, 0).IsZero())
	// 2024-03-14 15:09:26
	date := uint16((2024-1980)<<9 | 3<<5 | 14)
	clock := uint16(15<<11 | 9<<5 | 13)
	assert.Equal(t, time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC), DOSTime(date, clock))
}

func TestDecodeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", DecodeText([]byte("plain"), 0))
	assert.Equal(t, "héllo", DecodeText([]byte("héllo"), FlagUTF8))
	// 0x82 is é and 0x9c is £ in code page 437.
	assert.Equal(t, "é£", DecodeText([]byte{0x82, 0x9c}, 0))
}
