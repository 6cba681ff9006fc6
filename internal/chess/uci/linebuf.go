package uci

import (
	"bytes"
	"fmt"
	"strings"
)

const maxLineBytes = 64 * 1024

// lineBuffer turns an arbitrarily chunked byte stream into complete lines.
// Bytes after the last newline are kept until the next Write or Flush.
type lineBuffer struct {
	pending []byte
}

func (b *lineBuffer) Write(p []byte) ([]string, error) {
	b.pending = append(b.pending, p...)

	var lines []string
	for {
		idx := bytes.IndexByte(b.pending, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, decodeLine(b.pending[:idx]))
		b.pending = b.pending[idx+1:]
	}

	if len(b.pending) > maxLineBytes {
		n := len(b.pending)
		b.pending = nil
		return lines, fmt.Errorf("%w: unterminated line of %d bytes", ErrMalformedOutput, n)
	}
	if len(b.pending) == 0 {
		b.pending = nil
	}
	return lines, nil
}

// Flush returns the unterminated remainder, if any.
func (b *lineBuffer) Flush() (string, bool) {
	if len(b.pending) == 0 {
		return "", false
	}
	line := decodeLine(b.pending)
	b.pending = nil
	return line, true
}

func decodeLine(raw []byte) string {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	return strings.ToValidUTF8(string(raw), "�")
}
