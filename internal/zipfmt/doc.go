// Package zipfmt decodes the on-disk records of a ZIP archive and drives the
// central directory walk.
//
// Parse locates the end of central directory record (and its Zip64 variant),
// optionally strips bytes preceding the archive, reads the central directory
// in one contiguous read and hands every record to the registered visitors.
// Entry payloads are never touched here; see ReadLocalHeader for locating
// them.
package zipfmt
