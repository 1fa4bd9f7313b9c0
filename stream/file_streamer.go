// Package stream copies file bytes to a connection through a bounded
// buffer. Three backends exist: a portable read/write loop and two that
// submit the file reads through io_uring.
package stream

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nczempin/httpd-go-uring/errors"
)

// DefaultChunkSize is the size of the intermediate buffer
const DefaultChunkSize = 128 * 1024

// Backend names accepted by New
const (
	BackendCopy    = "copy"
	BackendIoUring = "iouring"
	BackendUring   = "uring"
)

// ringEntries is the submission queue depth of per-stream rings
const ringEntries = 32

// Streamer copies exactly size bytes of src to dst. It never holds more
// than one chunk of the file in memory.
type Streamer interface {
	Stream(dst io.Writer, src *os.File, size int64) (int64, error)
	Name() string
}

// New returns the streamer for backend. The io_uring backends probe the
// kernel once and fail here if rings cannot be created.
func New(backend string, chunkSize int) (Streamer, error) {
	switch backend {
	case "", BackendCopy:
		return NewCopyStreamer(chunkSize), nil
	case BackendIoUring:
		s, err := NewIoUringStreamer(chunkSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendUring:
		s, err := NewUringStreamer(chunkSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.NewInvalidArgumentError("unknown stream backend: " + backend)
	}
}

var bufferPools sync.Map // chunk size -> *sync.Pool

func getBuffer(size int) *[]byte {
	p, _ := bufferPools.LoadOrStore(size, &sync.Pool{
		New: func() any {
			b := make([]byte, size)
			return &b
		},
	})
	return p.(*sync.Pool).Get().(*[]byte)
}

func putBuffer(b *[]byte) {
	if p, ok := bufferPools.Load(len(*b)); ok {
		p.(*sync.Pool).Put(b)
	}
}

func normalizeChunkSize(chunkSize int) int {
	if chunkSize <= 0 {
		return DefaultChunkSize
	}
	return chunkSize
}

// readFunc reads into p from file offset off. It returns io.EOF (and
// n == 0) at end of file.
type readFunc func(p []byte, off int64) (int, error)

// pump drives the chunk loop shared by all backends
func pump(dst io.Writer, size int64, buf []byte, read readFunc) (int64, error) {
	var written int64
	for written < size {
		chunk := buf
		if rem := size - written; rem < int64(len(chunk)) {
			chunk = chunk[:rem]
		}

		n, err := read(chunk, written)
		if n > 0 {
			wn, werr := dst.Write(chunk[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
		}

		if err != nil && err != io.EOF {
			if _, ok := errors.As(err); ok {
				return written, err
			}
			return written, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, "file read failed", err)
		}
		if n == 0 {
			return written, errors.NewFilesystemError(
				errors.FilesystemErrorShortRead,
				fmt.Sprintf("file ended after %d of %d bytes", written, size),
				err,
			)
		}
	}
	return written, nil
}

// CopyStreamer reads with plain read(2) calls
type CopyStreamer struct {
	chunkSize int
}

// NewCopyStreamer returns the portable streamer. chunkSize <= 0 selects
// DefaultChunkSize.
func NewCopyStreamer(chunkSize int) *CopyStreamer {
	return &CopyStreamer{chunkSize: normalizeChunkSize(chunkSize)}
}

// Stream copies size bytes of src to dst
func (s *CopyStreamer) Stream(dst io.Writer, src *os.File, size int64) (int64, error) {
	buf := getBuffer(s.chunkSize)
	defer putBuffer(buf)

	return pump(dst, size, *buf, func(p []byte, _ int64) (int, error) {
		return src.Read(p)
	})
}

// Name identifies the backend
func (s *CopyStreamer) Name() string {
	return BackendCopy
}
