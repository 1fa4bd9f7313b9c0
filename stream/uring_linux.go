//go:build linux

package stream

import (
	stderrors "errors"
	"io"
	"os"
	"runtime"
	"syscall"

	"github.com/godzie44/go-uring/uring"
	"github.com/iceber/iouring-go"

	"github.com/nczempin/httpd-go-uring/errors"
)

// IoUringStreamer submits file reads through iceber/iouring-go.
// Each Stream call owns its ring, the way each connection owns one.
type IoUringStreamer struct {
	chunkSize int
}

// NewIoUringStreamer probes io_uring support and returns the streamer
func NewIoUringStreamer(chunkSize int) (*IoUringStreamer, error) {
	iour, err := iouring.New(ringEntries)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}
	iour.Close()

	return &IoUringStreamer{chunkSize: normalizeChunkSize(chunkSize)}, nil
}

// Stream copies size bytes of src to dst using positioned reads
func (s *IoUringStreamer) Stream(dst io.Writer, src *os.File, size int64) (int64, error) {
	iour, err := iouring.New(ringEntries)
	if err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}
	defer iour.Close()

	buf := getBuffer(s.chunkSize)
	defer putBuffer(buf)

	fd := int(src.Fd())
	defer runtime.KeepAlive(src)

	return pump(dst, size, *buf, func(p []byte, off int64) (int, error) {
		ch := make(chan iouring.Result, 1)
		prepReq := iouring.Pread(fd, p, uint64(off))
		if _, err := iour.SubmitRequest(prepReq, ch); err != nil {
			return 0, errors.NewTransportError(
				errors.TransportErrorIoUringSubmit,
				"failed to submit read request",
				err,
			)
		}

		result := <-ch
		n, err := result.ReturnInt()
		if err != nil {
			return 0, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, "read failed", err)
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	})
}

// Name identifies the backend
func (s *IoUringStreamer) Name() string {
	return BackendIoUring
}

// UringStreamer submits file reads through godzie44/go-uring
type UringStreamer struct {
	chunkSize int
}

// NewUringStreamer probes io_uring support and returns the streamer
func NewUringStreamer(chunkSize int) (*UringStreamer, error) {
	ring, err := uring.New(ringEntries)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}
	ring.Close()

	return &UringStreamer{chunkSize: normalizeChunkSize(chunkSize)}, nil
}

// Stream copies size bytes of src to dst using positioned reads
func (s *UringStreamer) Stream(dst io.Writer, src *os.File, size int64) (int64, error) {
	ring, err := uring.New(ringEntries)
	if err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}
	defer ring.Close()

	buf := getBuffer(s.chunkSize)
	defer putBuffer(buf)

	fd := src.Fd()
	defer runtime.KeepAlive(src)

	return pump(dst, size, *buf, func(p []byte, off int64) (int, error) {
		// Queue read operation
		sqe := uring.Read(fd, p, uint64(off))
		if err := ring.QueueSQE(sqe, 0, 0); err != nil {
			return 0, errors.NewTransportError(
				errors.TransportErrorIoUringSubmit,
				"failed to queue read request",
				err,
			)
		}

		if _, err := ring.Submit(); err != nil {
			return 0, errors.NewTransportError(
				errors.TransportErrorIoUringSubmit,
				"failed to submit read request",
				err,
			)
		}

		cqe, err := ring.WaitCQEvents(1)
		for stderrors.Is(err, syscall.EINTR) {
			cqe, err = ring.WaitCQEvents(1)
		}
		if err != nil {
			return 0, errors.NewFilesystemError(
				errors.FilesystemErrorReadFailure,
				"failed to wait for read completion",
				err,
			)
		}

		if err := cqe.Error(); err != nil {
			ring.SeenCQE(cqe)
			return 0, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, "read operation failed", err)
		}

		n := int(cqe.Res)
		ring.SeenCQE(cqe)

		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	})
}

// Name identifies the backend
func (s *UringStreamer) Name() string {
	return BackendUring
}
