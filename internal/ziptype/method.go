package ziptype

import "fmt"

// Method identifies how an entry's payload is stored.
type Method uint16

const (
	MethodStored   Method = 0
	MethodDeflated Method = 8
)

// String returns the human-readable name of the method.
func (m Method) String() string {
	switch m {
	case MethodStored:
		return "stored"
	case MethodDeflated:
		return "deflated"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Supported reports whether payloads of this method can be read.
func (m Method) Supported() bool {
	return m == MethodStored || m == MethodDeflated
}
