package wire

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTripSizes(t *testing.T) {
	t.Parallel()

	sizes := []int{0, 1, DefaultBufferSize - 1, DefaultBufferSize, DefaultBufferSize + 1, 3*1024*1024 + 7}
	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i * 31)
		}

		var buf bytes.Buffer
		require.NoError(t, SendFile(&buf, "log_file.txt", payload))

		got, err := RecvFile(&buf, DefaultLimits())
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, "log_file.txt", got.Name)
		assert.Len(t, got.Payload, size)
		assert.True(t, bytes.Equal(payload, got.Payload), "payload mismatch for size %d", size)
		assert.Zero(t, buf.Len(), "trailing bytes for size %d", size)
	}
}

func TestFileFrameLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, SendFile(&buf, "a.json", []byte("[]")))

	want := []byte{0, 0, 0, 6, 'a', '.', 'j', 's', 'o', 'n', 0, 0, 0, 0, 0, 0, 0, 2, '[', ']'}
	assert.Equal(t, want, buf.Bytes())
}

func TestFileRoundTripOverPipe(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	files := []File{
		{Name: "log_file.json", Payload: []byte(`[{"ip_address":"10.0.0.1"}]`)},
		{Name: "empty.txt", Payload: nil},
		{Name: "big.txt", Payload: bytes.Repeat([]byte("x"), 5*DefaultBufferSize+3)},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- SendFileList(client, files) }()

	got, err := RecvFileList(server, DefaultLimits())
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Len(t, got, len(files))
	for i := range files {
		assert.Equal(t, files[i].Name, got[i].Name)
		assert.Equal(t, len(files[i].Payload), len(got[i].Payload))
	}
}

func TestSendFileFromStreamsChunks(t *testing.T) {
	t.Parallel()

	data := strings.Repeat("0123456789", 1000)
	var buf bytes.Buffer
	require.NoError(t, SendFileFrom(&buf, "x.txt", uint64(len(data)), strings.NewReader(data), 7))

	got, err := RecvFile(&buf, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, data, string(got.Payload))
}

func TestSendFileFromShortSource(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := SendFileFrom(&buf, "x.txt", 10, strings.NewReader("abc"), 0)
	assert.ErrorIs(t, err, ErrShortSource)
}

func TestRecvFileTruncatedPayload(t *testing.T) {
	t.Parallel()

	var full bytes.Buffer
	require.NoError(t, SendFile(&full, "t.txt", []byte("0123456789")))
	truncated := full.Bytes()[:full.Len()-7] // only 3 of 10 payload bytes

	_, err := RecvFile(bytes.NewReader(truncated), DefaultLimits())
	assert.ErrorIs(t, err, ErrShortRead)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRecvFileCleanEOF(t *testing.T) {
	t.Parallel()

	_, err := RecvFile(bytes.NewReader(nil), DefaultLimits())
	assert.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, ErrShortRead)
}

func TestRecvFileEnforcesLimits(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, SendFile(&buf, "name-that-is-long", []byte("x")))
	_, err := RecvFile(bytes.NewReader(buf.Bytes()), Limits{MaxNameBytes: 4, MaxPayloadBytes: 10})
	assert.ErrorIs(t, err, ErrNameTooLarge)

	_, err = RecvFile(bytes.NewReader(buf.Bytes()), Limits{MaxNameBytes: 64, MaxPayloadBytes: 0})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	var list bytes.Buffer
	require.NoError(t, SendUint32(&list, 5000))
	_, err = RecvFileList(&list, DefaultLimits())
	assert.ErrorIs(t, err, ErrTooManyFiles)
}

func TestStringFrames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, SendString(&buf, "ip"))
	require.NoError(t, SendString(&buf, ""))
	require.NoError(t, SendString(&buf, "2024-01-01 00:00:00"))

	for _, want := range []string{"ip", "", "2024-01-01 00:00:00"} {
		got, err := RecvString(&buf, 64)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	require.NoError(t, SendString(&buf, "too long"))
	_, err := RecvString(&buf, 3)
	assert.ErrorIs(t, err, ErrStringTooLarge)
}

type flakyWriter struct {
	interrupts int
	zeroWrite  bool
	buf        bytes.Buffer
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.interrupts > 0 {
		w.interrupts--
		return 0, syscall.EINTR
	}
	if w.zeroWrite {
		return 0, nil
	}
	// Partial writes: at most 3 bytes per call.
	if len(p) > 3 {
		p = p[:3]
	}
	return w.buf.Write(p)
}

func TestSendExactRetriesAndPartialWrites(t *testing.T) {
	t.Parallel()

	w := &flakyWriter{interrupts: 2}
	require.NoError(t, SendExact(w, []byte("hello world")))
	assert.Equal(t, "hello world", w.buf.String())
}

func TestSendExactZeroWriteIsPeerClosed(t *testing.T) {
	t.Parallel()

	err := SendExact(&flakyWriter{zeroWrite: true}, []byte("x"))
	assert.ErrorIs(t, err, ErrPeerClosed)
}

type flakyReader struct {
	r          io.Reader
	interrupts int
}

func (r *flakyReader) Read(p []byte) (int, error) {
	if r.interrupts > 0 {
		r.interrupts--
		return 0, syscall.EINTR
	}
	if len(p) > 2 {
		p = p[:2]
	}
	return r.r.Read(p)
}

func TestRecvExactRetriesAndPartialReads(t *testing.T) {
	t.Parallel()

	r := &flakyReader{r: strings.NewReader("abcdefg"), interrupts: 3}
	got, err := RecvExact(r, 7)
	require.NoError(t, err)
	assert.Equal(t, "abcdefg", string(got))
}

type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, nil }

func TestRecvExactZeroReadIsClose(t *testing.T) {
	t.Parallel()

	_, err := RecvExact(zeroReader{}, 4)
	assert.ErrorIs(t, err, io.EOF)
}

func TestConnReadDeadline(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(server, 20*time.Millisecond, 0)
	_, err := RecvUint32(c)
	require.Error(t, err)

	var ne net.Error
	assert.True(t, errors.As(err, &ne) && ne.Timeout(), "want timeout error, got %v", err)
}
