package util

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
)

// DefaultBufSize is the read buffer size used for line-oriented streams.
const DefaultBufSize = 4 * 1024

// ErrLineTooLong is returned by [LineReader.ReadLine] when a peer sends a
// line longer than the configured maximum.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// LineReader reads newline-delimited text from a stream.  Lines may end
// in "\n" or "\r\n"; a final unterminated line is returned before EOF.
type LineReader struct {
	r   *bufio.Reader
	max int // 0 = unlimited
}

// NewLineReader wraps r.  max limits the length of a single line in
// bytes, excluding the terminator; 0 disables the limit.
func NewLineReader(r io.Reader, max int) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, DefaultBufSize), max: max}
}

// ReadLine returns the next line without its terminator.
func (lr *LineReader) ReadLine() (string, error) {
	var buf []byte
	for {
		frag, err := lr.r.ReadSlice('\n')
		buf = append(buf, frag...)
		if lr.max > 0 && len(trimEOL(buf)) > lr.max {
			return "", ErrLineTooLong
		}
		switch {
		case err == nil:
			return string(trimEOL(buf)), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return string(trimEOL(buf)), nil
		default:
			return "", err
		}
	}
}

// WriteLine writes line followed by a single "\n".
func WriteLine(w io.Writer, line string) error {
	var sb strings.Builder
	sb.Grow(len(line) + 1)
	sb.WriteString(line)
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

// IsClosed reports whether err is one of the errors produced when a
// stream ends or is closed underneath a pending read or write.  Such
// errors are the normal way a connection terminates.
func IsClosed(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
