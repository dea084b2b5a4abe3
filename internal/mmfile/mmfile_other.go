//go:build !unix

package mmfile

import "os"

// Map reads the entire file when memory mapping is not available.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
