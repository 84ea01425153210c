package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong is returned when a reply exceeds the configured bound.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// LineReader reads newline-terminated reply lines from a control connection.
// Partial lines are never returned: a stream that ends mid-line yields
// io.ErrUnexpectedEOF.
type LineReader struct {
	r       *bufio.Reader
	maxLine int
}

// NewLineReader wraps r. A maxLine of zero or less uses DefaultMaxLineLength.
func NewLineReader(r io.Reader, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &LineReader{
		r:       bufio.NewReader(r),
		maxLine: maxLine,
	}
}

// ReadLine returns the next complete line without its terminator.
func (l *LineReader) ReadLine() (string, error) {
	var buf bytes.Buffer
	for {
		frag, err := l.r.ReadSlice('\n')
		if buf.Len()+len(frag) > l.maxLine+1 {
			return "", ErrLineTooLong
		}
		buf.Write(frag)

		switch {
		case err == nil:
			line := bytes.TrimRight(buf.Bytes(), "\r\n")
			return string(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && buf.Len() > 0:
			return "", io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

// ReadToken reads and decodes the next reply line.
func (l *LineReader) ReadToken() (Token, error) {
	line, err := l.ReadLine()
	if err != nil {
		return nil, err
	}
	return Decode(line)
}
