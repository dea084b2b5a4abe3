// Package region provides bounded, sub-sectionable views over random-access
// byte sources.
//
// A Region is a (source, base, length) window. Narrower regions are created by
// offset arithmetic alone; no bytes are copied and no I/O happens until a read.
// Many regions may share one source concurrently because sources are read-only.
package region
