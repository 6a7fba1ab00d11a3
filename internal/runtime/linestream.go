// ABOUTME: Line splitting over a raw engine log byte stream
// ABOUTME: Yields newline-delimited text capped at MaxLineBytes with invalid UTF-8 replaced

package runtime

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// MaxLineBytes caps one yielded line. Longer output, such as carriage-return
// progress bars that never print a newline, is split into continuation lines.
const MaxLineBytes = 64 * 1024

// readerLogStream adapts a byte stream into a LogStream of lines.
type readerLogStream struct {
	r       *bufio.Reader
	closers []io.Closer

	// carry holds bytes read past a MaxLineBytes cut. carryDone means they
	// end a line, so the next call returns them without reading.
	carry     []byte
	carryDone bool

	once     sync.Once
	closeErr error
}

func newReaderLogStream(r io.Reader, closers ...io.Closer) *readerLogStream {
	return &readerLogStream{
		r:       bufio.NewReader(r),
		closers: closers,
	}
}

// Next returns the next line without its trailing newline. A final line with
// no newline is returned before io.EOF. Lines longer than MaxLineBytes are
// returned in pieces, cut on a UTF-8 rune boundary.
func (s *readerLogStream) Next() (string, error) {
	line := s.carry
	s.carry = nil
	if s.carryDone {
		s.carryDone = false
		if len(line) > MaxLineBytes {
			return s.cut(line, true), nil
		}
		return validUTF8(line), nil
	}

	for {
		frag, err := s.r.ReadSlice('\n')
		line = append(line, frag...)

		if errors.Is(err, bufio.ErrBufferFull) {
			if len(line) < MaxLineBytes {
				continue
			}
			return s.cut(line, false), nil
		}
		if len(line) == 0 {
			if errors.Is(err, io.ErrClosedPipe) {
				return "", io.EOF
			}
			return "", err
		}

		// The line is complete, or the stream failed after some bytes. Any
		// read error surfaces on the following call.
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > MaxLineBytes {
			return s.cut(line, true), nil
		}
		return validUTF8(line), nil
	}
}

// cut returns the first MaxLineBytes of line, ending on a rune boundary, and
// carries the rest into the next call. done marks the rest as a line end.
func (s *readerLogStream) cut(line []byte, done bool) string {
	n := runeBoundary(line, MaxLineBytes)
	if n < len(line) {
		s.carry = append([]byte(nil), line[n:]...)
		s.carryDone = done
	}
	return validUTF8(line[:n])
}

func validUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// runeBoundary returns the largest n <= limit such that b[:n] does not end
// in the middle of a multi-byte rune, including one whose remaining bytes
// have not been read yet.
func runeBoundary(b []byte, limit int) int {
	n := min(limit, len(b))
	for i := n - 1; i >= 0 && i > n-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if i == 0 || utf8.FullRune(b[i:n]) {
			return n
		}
		return i
	}
	return n
}

func (s *readerLogStream) Close() error {
	s.once.Do(func() {
		var errs []error
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
