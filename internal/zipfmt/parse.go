package zipfmt

import (
	"fmt"

	"github.com/meigma/nestzip/internal/region"
	"github.com/meigma/nestzip/internal/ziptype"
)

// Visitor receives the central directory as Parse walks it.
//
// VisitStart is called once with the end record and the raw directory bytes,
// VisitRecord once per record in directory order with the record's offset
// within the directory, and VisitEnd after the last record. A visitor error
// aborts the walk; VisitEnd is then never called.
type Visitor interface {
	VisitStart(end *EndRecord, directory []byte) error
	VisitRecord(rec *CentralRecord, offset int) error
	VisitEnd() error
}

// Parse walks the central directory of the archive held in r.
//
// When stripPrefix is set, any bytes preceding the archive are excluded and
// the returned region starts at the first archive byte; otherwise r is
// returned unchanged and the directory offsets must already be relative to
// it. All offsets handed to visitors are relative to the returned region.
func Parse(r *region.Region, stripPrefix bool, visitors ...Visitor) (*region.Region, *EndRecord, error) {
	end, err := FindEnd(r)
	if err != nil {
		return nil, nil, err
	}

	if stripPrefix {
		start, err := end.archiveStart()
		if err != nil {
			return nil, nil, err
		}
		if start > 0 {
			if r, err = r.Subsection(start, r.Size()-start); err != nil {
				return nil, nil, err
			}
			end.Prefix = start
			end.Offset -= start
			if end.Zip64Offset >= 0 {
				end.Zip64Offset -= start
			}
		}
	}

	if end.DirectoryOffset > uint64(r.Size()) || end.DirectorySize > uint64(r.Size())-end.DirectoryOffset {
		return nil, nil, fmt.Errorf("%w: central directory [%d,+%d) outside archive of %d bytes",
			ziptype.ErrFormat, end.DirectoryOffset, end.DirectorySize, r.Size())
	}
	if end.Count > end.DirectorySize/CentralLen {
		return nil, nil, fmt.Errorf("%w: %d records cannot fit in a %d byte directory",
			ziptype.ErrFormat, end.Count, end.DirectorySize)
	}
	dir, err := r.Read(int64(end.DirectoryOffset), int64(end.DirectorySize))
	if err != nil {
		return nil, nil, err
	}

	for _, v := range visitors {
		if err := v.VisitStart(end, dir); err != nil {
			return nil, nil, err
		}
	}
	off := 0
	for i := uint64(0); i < end.Count; i++ {
		rec, err := ReadCentralRecord(dir, off)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, v := range visitors {
			if err := v.VisitRecord(rec, off); err != nil {
				return nil, nil, err
			}
		}
		n, _ := RecordLen(dir, off)
		off += n
	}
	for _, v := range visitors {
		if err := v.VisitEnd(); err != nil {
			return nil, nil, err
		}
	}
	return r, end, nil
}
