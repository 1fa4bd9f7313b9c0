//go:build !linux

package stream

import (
	"io"
	"os"

	"github.com/nczempin/httpd-go-uring/errors"
)

func errNoUring() error {
	return errors.NewTransportError(errors.TransportErrorIoUringInit, "io_uring is only available on linux", nil)
}

// IoUringStreamer is unavailable on this platform
type IoUringStreamer struct{}

// NewIoUringStreamer always fails on this platform
func NewIoUringStreamer(int) (*IoUringStreamer, error) { return nil, errNoUring() }

// Stream always fails on this platform
func (s *IoUringStreamer) Stream(io.Writer, *os.File, int64) (int64, error) { return 0, errNoUring() }

// Name identifies the backend
func (s *IoUringStreamer) Name() string { return BackendIoUring }

// UringStreamer is unavailable on this platform
type UringStreamer struct{}

// NewUringStreamer always fails on this platform
func NewUringStreamer(int) (*UringStreamer, error) { return nil, errNoUring() }

// Stream always fails on this platform
func (s *UringStreamer) Stream(io.Writer, *os.File, int64) (int64, error) { return 0, errNoUring() }

// Name identifies the backend
func (s *UringStreamer) Name() string { return BackendUring }
