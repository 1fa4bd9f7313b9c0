package transport

import (
	"net"
	"strconv"

	"github.com/nczempin/httpd-go-uring/errors"
)

// TcpListener accepts TCP connections and wraps them as transports
type TcpListener struct {
	ln   *net.TCPListener
	opts Options
}

// ListenTcp binds host:port. Port 0 picks a free port.
func ListenTcp(host string, port int, opts Options) (*TcpListener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorListenFailure, "failed to resolve "+addr, err)
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorListenFailure, "failed to listen on "+addr, err)
	}

	return &TcpListener{ln: ln, opts: opts}, nil
}

// Accept waits for the next TCP connection
func (l *TcpListener) Accept() (Transport, error) {
	conn, err := l.ln.AcceptTCP()
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorAcceptFailure, "accept failed", err)
	}

	// Responses are written as a header block followed by large chunks
	if err := conn.SetNoDelay(true); err != nil {
		conn.Close()
		return nil, errors.NewTransportError(errors.TransportErrorAcceptFailure, "failed to set TCP_NODELAY", err)
	}

	return NewConnTransport(conn, l.opts), nil
}

// Close stops listening
func (l *TcpListener) Close() error {
	if err := l.ln.Close(); err != nil {
		return errors.NewTransportError(errors.TransportErrorSocketCloseFailure, "failed to close listener", err)
	}
	return nil
}

// Addr returns the bound host:port
func (l *TcpListener) Addr() string {
	return l.ln.Addr().String()
}

// Port returns the bound port, useful after listening on port 0
func (l *TcpListener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}
