// Package wire implements the length-prefixed framing used in both directions
// of a logtally session. All integers are network byte order.
//
//	string frame: [u32 len][bytes]
//	file frame:   [u32 name_len][name][u64 size][payload]
//	file list:    [u32 count] file frame * count
package wire

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/tinytelemetry/logtally/internal/byteorder"
)

const (
	// DefaultBufferSize is the chunk size used when streaming payloads.
	DefaultBufferSize = 4096

	// maxRetries bounds consecutive EINTR/EAGAIN retries on one call.
	maxRetries = 64
)

var (
	ErrPeerClosed      = errors.New("wire: peer closed connection")
	ErrShortRead       = errors.New("wire: short read")
	ErrShortSource     = errors.New("wire: source shorter than declared size")
	ErrNameTooLarge    = errors.New("wire: name too large")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	ErrStringTooLarge  = errors.New("wire: string too large")
	ErrTooManyFiles    = errors.New("wire: too many files")
)

// Limits constrains what a receiver is willing to allocate for one frame.
type Limits struct {
	MaxNameBytes    uint32
	MaxStringBytes  uint32
	MaxPayloadBytes uint64
	MaxFiles        uint32
	// MaxSummaryBytes bounds the response summary, which grows with the
	// number of group keys and is therefore sized like a payload.
	MaxSummaryBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxNameBytes:    4096,
		MaxStringBytes:  64 * 1024,
		MaxPayloadBytes: 256 * 1024 * 1024,
		MaxFiles:        1024,
		MaxSummaryBytes: 256 * 1024 * 1024,
	}
}

// File is one named payload carried by a file frame.
type File struct {
	Name    string
	Payload []byte
}

func retryable(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

// SendExact writes all of b to w. Interrupted writes are retried; a write that
// makes no progress without an error is treated as a closed peer.
func SendExact(w io.Writer, b []byte) error {
	retries := 0
	for len(b) > 0 {
		n, err := w.Write(b)
		b = b[n:]
		if err != nil {
			if retryable(err) && retries < maxRetries {
				retries++
				continue
			}
			return err
		}
		if n == 0 {
			return ErrPeerClosed
		}
		retries = 0
	}
	return nil
}

// RecvExact reads exactly n bytes from r. A clean close before the first byte
// returns io.EOF; a close part way through returns ErrShortRead.
func RecvExact(r io.Reader, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	if err := recvInto(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func recvInto(r io.Reader, buf []byte) error {
	var got, retries int
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if err != nil {
			if retryable(err) && retries < maxRetries {
				retries++
				continue
			}
			if errors.Is(err, io.EOF) {
				if got == len(buf) {
					return nil
				}
				return closedAt(got, len(buf))
			}
			return err
		}
		if n == 0 {
			return closedAt(got, len(buf))
		}
		retries = 0
	}
	return nil
}

func closedAt(got, want int) error {
	if got == 0 {
		return io.EOF
	}
	return fmt.Errorf("%w: got %d of %d bytes: %w", ErrShortRead, got, want, io.ErrUnexpectedEOF)
}

// SendUint32 writes x as a 4-byte network-order integer.
func SendUint32(w io.Writer, x uint32) error {
	var b [4]byte
	byteorder.PutUint32(b[:], x)
	return SendExact(w, b[:])
}

// RecvUint32 reads a 4-byte network-order integer.
func RecvUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := recvInto(r, b[:]); err != nil {
		return 0, err
	}
	return byteorder.Uint32(b[:]), nil
}

// RecvUint64 reads an 8-byte network-order integer.
func RecvUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if err := recvInto(r, b[:]); err != nil {
		return 0, err
	}
	return byteorder.Uint64(b[:]), nil
}

// SendString writes a string frame.
func SendString(w io.Writer, s string) error {
	buf := make([]byte, 4+len(s))
	byteorder.PutUint32(buf[:4], uint32(len(s)))
	copy(buf[4:], s)
	return SendExact(w, buf)
}

// RecvString reads a string frame no longer than max bytes.
func RecvString(r io.Reader, max uint32) (string, error) {
	n, err := RecvUint32(r)
	if err != nil {
		return "", err
	}
	if n > max {
		return "", fmt.Errorf("%w: %d > %d", ErrStringTooLarge, n, max)
	}
	b, err := RecvExact(r, uint64(n))
	if err != nil {
		return "", eofIsShort(err)
	}
	return string(b), nil
}

func fileHeader(name string, size uint64) []byte {
	buf := make([]byte, 4+len(name)+8)
	byteorder.PutUint32(buf[:4], uint32(len(name)))
	copy(buf[4:], name)
	byteorder.PutUint64(buf[4+len(name):], size)
	return buf
}

// SendFile writes one file frame.
func SendFile(w io.Writer, name string, payload []byte) error {
	if err := SendExact(w, fileHeader(name, uint64(len(payload)))); err != nil {
		return err
	}
	return SendExact(w, payload)
}

// SendFileFrom writes a file frame whose payload is streamed from src in
// bufSize chunks. src must yield at least size bytes.
func SendFileFrom(w io.Writer, name string, size uint64, src io.Reader, bufSize int) error {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if err := SendExact(w, fileHeader(name, size)); err != nil {
		return err
	}
	buf := make([]byte, bufSize)
	remaining := size
	for remaining > 0 {
		chunk := buf
		if uint64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			if werr := SendExact(w, chunk[:n]); werr != nil {
				return werr
			}
			remaining -= uint64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %d bytes missing", ErrShortSource, remaining)
			}
			return err
		}
	}
	return nil
}

// RecvFile reads one file frame.
func RecvFile(r io.Reader, limits Limits) (File, error) {
	nameLen, err := RecvUint32(r)
	if err != nil {
		return File{}, err
	}
	if nameLen > limits.MaxNameBytes {
		return File{}, fmt.Errorf("%w: %d > %d", ErrNameTooLarge, nameLen, limits.MaxNameBytes)
	}
	name, err := RecvExact(r, uint64(nameLen))
	if err != nil {
		return File{}, eofIsShort(err)
	}
	size, err := RecvUint64(r)
	if err != nil {
		return File{}, eofIsShort(err)
	}
	if size > limits.MaxPayloadBytes {
		return File{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, size, limits.MaxPayloadBytes)
	}
	payload, err := RecvExact(r, size)
	if err != nil {
		return File{}, eofIsShort(err)
	}
	return File{Name: string(name), Payload: payload}, nil
}

// RecvCount reads a file-list count prefix.
func RecvCount(r io.Reader, limits Limits) (uint32, error) {
	n, err := RecvUint32(r)
	if err != nil {
		return 0, err
	}
	if n > limits.MaxFiles {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyFiles, n, limits.MaxFiles)
	}
	return n, nil
}

// SendFileList writes the count prefix followed by each file frame.
func SendFileList(w io.Writer, files []File) error {
	if err := SendUint32(w, uint32(len(files))); err != nil {
		return err
	}
	for _, f := range files {
		if err := SendFile(w, f.Name, f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// RecvFileList reads a count prefix and that many file frames.
func RecvFileList(r io.Reader, limits Limits) ([]File, error) {
	n, err := RecvCount(r, limits)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, n)
	for i := uint32(0); i < n; i++ {
		f, err := RecvFile(r, limits)
		if err != nil {
			return nil, eofIsShort(err)
		}
		files = append(files, f)
	}
	return files, nil
}

// eofIsShort converts a clean EOF into ErrShortRead for reads that happen
// after the first field of a frame has already arrived.
func eofIsShort(err error) error {
	if errors.Is(err, io.EOF) && !errors.Is(err, ErrShortRead) {
		return fmt.Errorf("%w: connection closed mid-frame: %w", ErrShortRead, io.ErrUnexpectedEOF)
	}
	return err
}
