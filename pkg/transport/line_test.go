package transport

import (
	"bytes"
	"testing"
)

func TestLineBufferSplitsOnLF(t *testing.T) {
	var b lineBuffer
	b.Feed([]byte("vin\r\n7.5 V\r\n"))

	line, ok := b.Next()
	if !ok || string(line) != "vin" {
		t.Fatalf("first line = %q ok=%v, want %q", line, ok, "vin")
	}
	line, ok = b.Next()
	if !ok || string(line) != "7.5 V" {
		t.Fatalf("second line = %q ok=%v, want %q", line, ok, "7.5 V")
	}
	if _, ok = b.Next(); ok {
		t.Error("Next returned a line from an empty buffer")
	}
}

func TestLineBufferPartialFeed(t *testing.T) {
	var b lineBuffer
	b.Feed([]byte("Done initia"))
	if _, ok := b.Next(); ok {
		t.Fatal("line reported complete before terminator")
	}
	b.Feed([]byte("lising ports\r\n"))
	line, ok := b.Next()
	if !ok || string(line) != "Done initialising ports" {
		t.Errorf("line = %q ok=%v", line, ok)
	}
}

func TestLineBufferStripsTrailingWhitespaceOnly(t *testing.T) {
	var b lineBuffer
	b.Feed([]byte("  indented detail line \t\r\n"))
	line, ok := b.Next()
	if !ok {
		t.Fatal("no line")
	}
	if string(line) != "  indented detail line" {
		t.Errorf("line = %q, want leading spaces kept and trailing stripped", line)
	}
}

func TestLineBufferBareCRCommands(t *testing.T) {
	var b lineBuffer
	b.Feed([]byte("version\rvin\r"))

	line, ok := b.Next()
	if !ok || string(line) != "version" {
		t.Fatalf("first line = %q ok=%v", line, ok)
	}
	line, ok = b.Next()
	if !ok || string(line) != "vin" {
		t.Fatalf("second line = %q ok=%v", line, ok)
	}
}

func TestLineBufferCRLFSplitAcrossFeeds(t *testing.T) {
	var b lineBuffer
	b.Feed([]byte("BHBL>\r"))
	line, ok := b.Next()
	if !ok || string(line) != "BHBL>" {
		t.Fatalf("line = %q ok=%v", line, ok)
	}
	// The LF half of the pair arrives later and must not become an
	// empty line.
	b.Feed([]byte("\nP0: pulse done\r\n"))
	line, ok = b.Next()
	if !ok || string(line) != "P0: pulse done" {
		t.Errorf("line = %q ok=%v", line, ok)
	}
}

func TestLineBufferEmptyLine(t *testing.T) {
	var b lineBuffer
	b.Feed([]byte("\r\nnext\r\n"))
	line, ok := b.Next()
	if !ok || len(line) != 0 {
		t.Errorf("line = %q ok=%v, want empty line", line, ok)
	}
	line, ok = b.Next()
	if !ok || !bytes.Equal(line, []byte("next")) {
		t.Errorf("line = %q ok=%v, want %q", line, ok, "next")
	}
}
