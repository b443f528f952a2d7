package util

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
)

func TestLineReader_Terminators(t *testing.T) {
	lr := NewLineReader(strings.NewReader("hello\r\nworld\n\nlast"), 0)

	want := []string{"hello", "world", "", "last"}
	for i, w := range want {
		got, err := lr.ReadLine()
		if err != nil {
			t.Fatalf("line %d: unexpected error %v", i, err)
		}
		if got != w {
			t.Errorf("line %d: got %q, want %q", i, got, w)
		}
	}
	if _, err := lr.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after last line, got %v", err)
	}
}

func TestLineReader_LongerThanBuffer(t *testing.T) {
	long := strings.Repeat("x", DefaultBufSize*3)
	lr := NewLineReader(strings.NewReader(long+"\n"), 0)

	got, err := lr.ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	if got != long {
		t.Errorf("got %d bytes, want %d", len(got), len(long))
	}
}

func TestLineReader_MaxLength(t *testing.T) {
	lr := NewLineReader(strings.NewReader("12345\n123456\n"), 5)

	got, err := lr.ReadLine()
	if err != nil || got != "12345" {
		t.Fatalf("got (%q, %v), want (\"12345\", nil)", got, err)
	}
	if _, err := lr.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Errorf("expected ErrLineTooLong, got %v", err)
	}
}

func TestLineReader_UTF8Verbatim(t *testing.T) {
	lr := NewLineReader(strings.NewReader("héllo 世界\n"), 0)
	got, err := lr.ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	if got != "héllo 世界" {
		t.Errorf("got %q", got)
	}
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLine(&buf, "ping"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "ping\n" {
		t.Errorf("got %q, want %q", got, "ping\n")
	}
}

func TestIsClosed(t *testing.T) {
	if !IsClosed(nil) {
		t.Error("nil should count as closed")
	}
	if !IsClosed(io.EOF) {
		t.Error("io.EOF should count as closed")
	}
	if !IsClosed(net.ErrClosed) {
		t.Error("net.ErrClosed should count as closed")
	}
	if IsClosed(io.ErrUnexpectedEOF) {
		t.Error("ErrUnexpectedEOF should NOT count as closed")
	}
}
