package protocol

import (
	"fmt"
	"strings"
)

// HexDump renders buf as a hex/ASCII dump for parse-error log lines.
func HexDump(buf []byte) string {
	var b strings.Builder
	const width = 16

	for i := 0; i < len(buf); i += width {
		end := min(i+width, len(buf))
		row := buf[i:end]

		fmt.Fprintf(&b, "%04x  ", i)
		for j := range width {
			if j < len(row) {
				fmt.Fprintf(&b, "%02x ", row[j])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteString(" |")
		for _, c := range row {
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}

	return b.String()
}
