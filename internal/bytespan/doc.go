// Package bytespan provides immutable views over raw, UTF-8 encoded bytes.
//
// A Span compares and hashes its content the same way a decoded string of the
// same text is compared and hashed, so entry names read from an archive can be
// probed with plain Go strings without decoding every stored name.
package bytespan
