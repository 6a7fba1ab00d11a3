package runtime

import (
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct{ n int }

func (c *countingCloser) Close() error {
	c.n++
	return nil
}

func readAll(t *testing.T, s LogStream) []string {
	t.Helper()
	var lines []string
	for {
		line, err := s.Next()
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestReaderLogStream_SplitsLines(t *testing.T) {
	s := newReaderLogStream(strings.NewReader("one\r\ntwo\n\nthree"))

	assert.Equal(t, []string{"one", "two", "", "three"}, readAll(t, s))
}

func TestReaderLogStream_ReplacesInvalidUTF8(t *testing.T) {
	s := newReaderLogStream(strings.NewReader("ok \xff\xfe end\n"))

	line, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok � end", line)
}

func TestReaderLogStream_CloseOnce(t *testing.T) {
	c := &countingCloser{}
	s := newReaderLogStream(strings.NewReader(""), c)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, c.n)
}

func TestReaderLogStream_ClosedPipeIsEOF(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newReaderLogStream(pr, pr)

	require.NoError(t, s.Close())
	_, err := s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderLogStream_CapsLineWithoutNewline(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pr.Close() })
	go func() {
		chunk := []byte(strings.Repeat("progress 42%\r", 1024))
		for {
			if _, err := pw.Write(chunk); err != nil {
				return
			}
		}
	}()
	s := newReaderLogStream(pr, pr)
	defer s.Close()

	// The writer never sends a newline; lines must still arrive.
	for i := 0; i < 3; i++ {
		line, err := s.Next()
		require.NoError(t, err)
		assert.Len(t, line, MaxLineBytes)
	}
}

func TestReaderLogStream_LongLinePiecesRejoin(t *testing.T) {
	long := strings.Repeat("0123456789", MaxLineBytes/4)
	s := newReaderLogStream(strings.NewReader(long + "\r\nnext\n"))

	lines := readAll(t, s)
	require.Len(t, lines, 4)
	for _, l := range lines[:3] {
		assert.LessOrEqual(t, len(l), MaxLineBytes)
	}
	assert.Equal(t, long, strings.Join(lines[:3], ""))
	assert.Equal(t, "next", lines[3])
}

func TestReaderLogStream_OneByteOverCapHasNoEmptyTail(t *testing.T) {
	long := strings.Repeat("x", MaxLineBytes+1)
	s := newReaderLogStream(strings.NewReader(long + "\nafter\n"))

	assert.Equal(t, []string{strings.Repeat("x", MaxLineBytes), "x", "after"}, readAll(t, s))
}

func TestReaderLogStream_CutKeepsRunesWhole(t *testing.T) {
	// "a" shifts every two-byte rune so one straddles the cap.
	long := "a" + strings.Repeat("é", MaxLineBytes)
	s := newReaderLogStream(strings.NewReader(long + "\n"))

	lines := readAll(t, s)
	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), MaxLineBytes)
		assert.True(t, utf8.ValidString(l))
		assert.NotContains(t, l, "�")
	}
	assert.Equal(t, long, strings.Join(lines, ""))
}

func TestRuneBoundary(t *testing.T) {
	b := []byte("aé") // 'a', 0xC3, 0xA9
	assert.Equal(t, 1, runeBoundary(b, 2))
	assert.Equal(t, 1, runeBoundary(b[:2], 10), "lead byte without its tail")
	assert.Equal(t, 1, runeBoundary(b, 1))
	assert.Equal(t, 3, runeBoundary(b, 10))
	assert.Equal(t, 2, runeBoundary([]byte{0x80, 0x80, 0x80, 0x80, 0x80}, 2))
}
