package transport

import "bytes"

// lineBuffer assembles complete lines from arbitrary byte chunks.
// CR, LF and CRLF all terminate a line: the HAT ends its output with
// CRLF while host commands end with a bare CR. Trailing whitespace is
// stripped, leading whitespace preserved.
type lineBuffer struct {
	pending bytes.Buffer
	skipLF  bool
}

// Feed appends raw received bytes.
func (b *lineBuffer) Feed(p []byte) {
	b.pending.Write(p)
}

// Next returns the next complete line, or (nil, false) when no full
// line has been assembled yet.
func (b *lineBuffer) Next() ([]byte, bool) {
	data := b.pending.Bytes()

	// Swallow the LF of a CRLF pair split across chunks.
	if b.skipLF {
		if len(data) == 0 {
			return nil, false
		}
		if data[0] == '\n' {
			b.pending.Next(1)
			data = b.pending.Bytes()
		}
		b.skipLF = false
	}

	idx := bytes.IndexAny(data, "\r\n")
	if idx < 0 {
		return nil, false
	}

	line := bytes.TrimRight(data[:idx], "\t ")
	out := make([]byte, len(line))
	copy(out, line)

	consume := idx + 1
	if data[idx] == '\r' {
		if consume < len(data) {
			if data[consume] == '\n' {
				consume++
			}
		} else {
			b.skipLF = true
		}
	}
	b.pending.Next(consume)
	return out, true
}

// Len returns the number of buffered bytes not yet part of a line.
func (b *lineBuffer) Len() int {
	return b.pending.Len()
}
