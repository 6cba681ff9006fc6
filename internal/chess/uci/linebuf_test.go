package uci

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLineBufferSplitsAcrossChunks(t *testing.T) {
	var buf lineBuffer
	var got []string

	chunks := []string{"info sco", "re cp 35\ninfo score", " cp 42\r\nbest", "move e2e4", "\n"}
	for _, c := range chunks {
		lines, err := buf.Write([]byte(c))
		if err != nil {
			t.Fatalf("write %q: %v", c, err)
		}
		got = append(got, lines...)
	}

	want := []string{"info score cp 35", "info score cp 42", "bestmove e2e4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if rest, ok := buf.Flush(); ok {
		t.Fatalf("unexpected remainder %q", rest)
	}
}

func TestLineBufferManyLinesInOneChunk(t *testing.T) {
	var buf lineBuffer
	lines, err := buf.Write([]byte("a\n\nb\nc"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if want := []string{"a", "", "b"}; !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	rest, ok := buf.Flush()
	if !ok || rest != "c" {
		t.Fatalf("flush = %q,%v want c,true", rest, ok)
	}
	if _, ok := buf.Flush(); ok {
		t.Fatalf("second flush should be empty")
	}
}

func TestLineBufferRejectsUnterminatedFlood(t *testing.T) {
	var buf lineBuffer
	_, err := buf.Write([]byte(strings.Repeat("x", maxLineBytes+1)))
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
	lines, err := buf.Write([]byte("bestmove e2e4\n"))
	if err != nil || len(lines) != 1 || lines[0] != "bestmove e2e4" {
		t.Fatalf("buffer did not recover: lines=%q err=%v", lines, err)
	}
}

func TestLineBufferReplacesInvalidUTF8(t *testing.T) {
	var buf lineBuffer
	lines, err := buf.Write([]byte("info string \xff\xfe\n"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "info string ") {
		t.Fatalf("lines = %q", lines)
	}
}
