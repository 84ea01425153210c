package protocol

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_ReadLine(t *testing.T) {
	src := "SESSION STATUS RESULT=OK\r\nNAMING REPLY RESULT=OK NAME=ME VALUE=x\n"
	lr := NewLineReader(iotest.OneByteReader(strings.NewReader(src)), 0)

	want := []string{
		"SESSION STATUS RESULT=OK",
		"NAMING REPLY RESULT=OK NAME=ME VALUE=x",
	}
	for i, w := range want {
		got, err := lr.ReadLine()
		require.NoError(t, err, "line %d", i)
		assert.Equal(t, w, got, "line %d", i)
	}

	_, err := lr.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_PartialLineNotDispatched(t *testing.T) {
	lr := NewLineReader(strings.NewReader("SESSION STATUS RESULT=OK"), 0)
	line, err := lr.ReadLine()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, line, "partial line leaked")
}

func TestLineReader_TooLong(t *testing.T) {
	long := strings.Repeat("A", 100) + "\n"
	lr := NewLineReader(strings.NewReader(long), 32)
	_, err := lr.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestLineReader_LongerThanBuffer(t *testing.T) {
	// bufio's default buffer is 4096 bytes; the line spans several fills.
	value := strings.Repeat("B", 10000)
	lr := NewLineReader(strings.NewReader("SESSION STATUS RESULT=OK DESTINATION="+value+"\n"), 0)
	tok, err := lr.ReadToken()
	require.NoError(t, err)
	st, ok := tok.(*SessionStatus)
	require.True(t, ok, "token = %T", tok)
	assert.Len(t, st.Destination, len(value))
}
