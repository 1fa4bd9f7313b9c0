package transport

import (
	stderrors "errors"
	"io/fs"
	"net"
	"os"

	"github.com/nczempin/httpd-go-uring/errors"
)

// UnixListener accepts Unix domain socket connections
type UnixListener struct {
	ln   *net.UnixListener
	path string
	opts Options
}

// ListenUnix binds a socket at path, replacing a stale socket file left by
// a previous run. Any other kind of file at path is an error.
func ListenUnix(path string, opts Options) (*UnixListener, error) {
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&fs.ModeSocket == 0 {
			return nil, errors.NewTransportError(
				errors.TransportErrorListenFailure,
				path+" exists and is not a socket",
				nil,
			)
		}
		if err := os.Remove(path); err != nil {
			return nil, errors.NewTransportError(errors.TransportErrorListenFailure, "failed to remove stale socket", err)
		}
	} else if !stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewTransportError(errors.TransportErrorListenFailure, "failed to stat "+path, err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorListenFailure, "failed to listen on "+path, err)
	}
	// Close removes the socket file
	ln.SetUnlinkOnClose(true)

	return &UnixListener{ln: ln, path: path, opts: opts}, nil
}

// Accept waits for the next Unix connection
func (l *UnixListener) Accept() (Transport, error) {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorAcceptFailure, "accept failed", err)
	}
	return NewConnTransport(conn, l.opts), nil
}

// Close stops listening and unlinks the socket
func (l *UnixListener) Close() error {
	if err := l.ln.Close(); err != nil {
		return errors.NewTransportError(errors.TransportErrorSocketCloseFailure, "failed to close listener", err)
	}
	return nil
}

// Addr returns the socket path
func (l *UnixListener) Addr() string {
	return l.path
}
