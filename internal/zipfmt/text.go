package zipfmt

import (
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeText decodes a name or comment. Bytes that are not flagged as UTF-8
// and are not valid UTF-8 are decoded as code page 437, the legacy default.
func DecodeText(b []byte, flags uint16) string {
	if flags&FlagUTF8 != 0 || utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// DOSTime converts an MS-DOS date and time to a time.Time in UTC.
// The resolution is two seconds.
func DOSTime(date, clock uint16) time.Time {
	if date == 0 && clock == 0 {
		return time.Time{}
	}
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(clock>>11),
		int(clock>>5&0x3f),
		int(clock&0x1f)*2,
		0,
		time.UTC,
	)
}
