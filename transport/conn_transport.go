package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/nczempin/httpd-go-uring/errors"
)

// ConnTransport implements Transport on top of a net.Conn
type ConnTransport struct {
	conn         net.Conn
	writeTimeout time.Duration
}

// NewConnTransport wraps an established connection
func NewConnTransport(conn net.Conn, opts Options) *ConnTransport {
	return &ConnTransport{
		conn:         conn,
		writeTimeout: opts.WriteTimeout,
	}
}

// Dial connects to address on network ("tcp" or "unix")
func Dial(ctx context.Context, network, address string, opts Options) (*ConnTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorDialFailure,
			"failed to connect to "+address,
			err,
		)
	}

	// Set TCP_NODELAY to disable Nagle's algorithm for lower latency
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, errors.NewTransportError(errors.TransportErrorDialFailure, "failed to set TCP_NODELAY", err)
		}
	}

	return NewConnTransport(conn, opts), nil
}

// Read receives data from the connection
func (t *ConnTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		return n, classify(errors.TransportErrorSocketReadFailure, "read failed", err)
	}

	return n, nil
}

// Write sends data over the connection
func (t *ConnTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return 0, classify(errors.TransportErrorSocketWriteFailure, "failed to set write deadline", err)
		}
	}

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, classify(errors.TransportErrorSocketWriteFailure, "write failed", err)
	}

	return n, nil
}

// SetReadDeadline bounds subsequent reads
func (t *ConnTransport) SetReadDeadline(deadline time.Time) error {
	if t.conn == nil {
		return errors.NewTransportError(errors.TransportErrorSocketReadFailure, "not connected", nil)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return classify(errors.TransportErrorSocketReadFailure, "failed to set read deadline", err)
	}
	return nil
}

// CloseWrite half-closes the connection when the socket type supports it
func (t *ConnTransport) CloseWrite() error {
	if t.conn == nil {
		return nil
	}

	cw, ok := t.conn.(interface{ CloseWrite() error })
	if !ok {
		return nil
	}
	if err := cw.CloseWrite(); err != nil {
		return classify(errors.TransportErrorSocketCloseFailure, "failed to shut down write side", err)
	}
	return nil
}

// Close closes the connection
func (t *ConnTransport) Close() error {
	if t.conn == nil {
		return nil // Idempotent close
	}

	err := t.conn.Close()
	t.conn = nil

	if err != nil {
		return errors.NewTransportError(errors.TransportErrorSocketCloseFailure, "failed to close socket", err)
	}

	return nil
}

// RemoteAddr returns the peer address, or "" once closed
func (t *ConnTransport) RemoteAddr() string {
	if t.conn == nil || t.conn.RemoteAddr() == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}

// classify maps socket errors onto transport error codes
func classify(fallback errors.TransportError, message string, err error) error {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return errors.NewTransportError(errors.TransportErrorTimeout, message, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewTransportError(errors.TransportErrorTimeout, message, err)
	}

	// Peer went away: EOF, broken pipe or connection reset
	if stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, syscall.ECONNRESET) {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, message, err)
	}

	return errors.NewTransportError(fallback, message, err)
}
