package transport

import (
	"context"
	"io"
	"net"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/nczempin/httpd-go-uring/errors"
)

func setupTcpTestServer(t *testing.T, serverLogic func(net.Conn)) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		serverLogic(conn)
		conn.Close()
	}()

	cleanup := func() {
		listener.Close()
		<-done
	}

	return listener.Addr().String(), cleanup
}

func dialTest(t *testing.T, addr string, opts Options) *ConnTransport {
	t.Helper()
	transport, err := Dial(context.Background(), "tcp", addr, opts)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return transport
}

func transportCode(t *testing.T, err error) errors.TransportError {
	t.Helper()
	se, ok := errors.As(err)
	if !ok {
		t.Fatalf("Expected *errors.ServerError, got %T", err)
	}
	if se.Type != errors.ErrorTransport {
		t.Fatalf("Expected transport error, got %v", se.Type)
	}
	return se.TransportErr
}

func TestConnTransport_Read_Success(t *testing.T) {
	messageFromServer := "hello client"

	addr, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		conn.Write([]byte(messageFromServer))
	})
	defer cleanup()

	transport := dialTest(t, addr, Options{})
	defer transport.Close()

	buf := make([]byte, 1024)
	n, err := transport.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got := string(buf[:n]); got != messageFromServer {
		t.Errorf("Expected %q, got %q", messageFromServer, got)
	}
}

func TestConnTransport_Write_Success(t *testing.T) {
	messageToSend := "GET / HTTP/1.0\r\n"
	received := make(chan string, 1)

	addr, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	})
	defer cleanup()

	transport := dialTest(t, addr, Options{WriteTimeout: time.Second})
	defer transport.Close()

	n, err := transport.Write([]byte(messageToSend))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(messageToSend) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(messageToSend), n)
	}

	select {
	case msg := <-received:
		if msg != messageToSend {
			t.Errorf("Expected %q, got %q", messageToSend, msg)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestConnTransport_Read_Failure_ConnectionClosed(t *testing.T) {
	addr, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		// Server immediately closes
	})
	defer cleanup()

	transport := dialTest(t, addr, Options{})
	defer transport.Close()

	buf := make([]byte, 1024)
	_, err := transport.Read(buf)
	if err == nil {
		t.Fatal("Expected error on closed connection")
	}

	if code := transportCode(t, err); code != errors.TransportErrorConnectionClosed {
		t.Errorf("Expected ConnectionClosed, got %v", code)
	}
	if !errors.IsConnectionClosed(err) {
		t.Error("IsConnectionClosed should report true")
	}
}

func TestConnTransport_Read_Failure_Timeout(t *testing.T) {
	release := make(chan struct{})
	addr, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		<-release
	})
	defer cleanup()
	defer close(release)

	transport := dialTest(t, addr, Options{})
	defer transport.Close()

	if err := transport.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}

	buf := make([]byte, 16)
	_, err := transport.Read(buf)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !errors.IsTimeout(err) {
		t.Errorf("Expected Timeout, got %v", err)
	}
}

func TestConnTransport_Write_Failure_ClosedConnection(t *testing.T) {
	addr, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		// Wait until the client is connected and has written, then reset
		conn.Read(make([]byte, 1))

		// Set SO_LINGER to force RST on close
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			raw, err := tcpConn.SyscallConn()
			if err == nil {
				raw.Control(func(fd uintptr) {
					linger := syscall.Linger{Onoff: 1, Linger: 0}
					syscall.SetsockoptLinger(int(fd), syscall.SOL_SOCKET, syscall.SO_LINGER, &linger)
				})
			}
		}
	})
	defer cleanup()

	transport := dialTest(t, addr, Options{})
	defer transport.Close()

	if _, err := transport.Write([]byte("x")); err != nil {
		t.Fatalf("First write failed: %v", err)
	}

	// Wait for server to close with RST
	time.Sleep(50 * time.Millisecond)

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = transport.Write([]byte("this should fail"))
		time.Sleep(10 * time.Millisecond)
	}
	if err == nil {
		t.Fatal("Expected error on write to closed connection")
	}

	if code := transportCode(t, err); code != errors.TransportErrorConnectionClosed {
		t.Errorf("Expected ConnectionClosed, got %v", code)
	}
}

func TestConnTransport_NoConnection(t *testing.T) {
	transport := &ConnTransport{}

	_, err := transport.Write([]byte("test"))
	if code := transportCode(t, err); code != errors.TransportErrorSocketWriteFailure {
		t.Errorf("Expected SocketWriteFailure, got %v", code)
	}

	_, err = transport.Read(make([]byte, 8))
	if code := transportCode(t, err); code != errors.TransportErrorSocketReadFailure {
		t.Errorf("Expected SocketReadFailure, got %v", code)
	}

	if err := transport.CloseWrite(); err != nil {
		t.Errorf("CloseWrite without connection should be a no-op, got %v", err)
	}
	if addr := transport.RemoteAddr(); addr != "" {
		t.Errorf("Expected empty remote address, got %q", addr)
	}
}

func TestConnTransport_CloseWrite_SignalsEOF(t *testing.T) {
	gotEOF := make(chan bool, 1)
	addr, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		_, err := io.ReadAll(conn)
		gotEOF <- err == nil
	})
	defer cleanup()

	transport := dialTest(t, addr, Options{})
	defer transport.Close()

	if _, err := transport.Write([]byte("bye")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := transport.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite failed: %v", err)
	}

	select {
	case ok := <-gotEOF:
		if !ok {
			t.Error("Server read ended with an error instead of EOF")
		}
	case <-time.After(time.Second):
		t.Error("Server never observed EOF")
	}
}

func TestConnTransport_Close_Idempotent(t *testing.T) {
	addr, cleanup := setupTcpTestServer(t, func(conn net.Conn) {})
	defer cleanup()

	transport := dialTest(t, addr, Options{})

	if err := transport.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if transport.conn != nil {
		t.Error("Connection should be nil after close")
	}
	if err := transport.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestDial_Failure_ConnectionRefused(t *testing.T) {
	// Grab a free port, then release it so nothing listens there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Dial(context.Background(), "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), Options{})
	if err == nil {
		t.Fatal("Expected error on connection refused")
	}
	if code := transportCode(t, err); code != errors.TransportErrorDialFailure {
		t.Errorf("Expected DialFailure, got %v", code)
	}
}

func TestTcpListener_AcceptAndClose(t *testing.T) {
	ln, err := ListenTcp("127.0.0.1", 0, Options{})
	if err != nil {
		t.Fatalf("ListenTcp failed: %v", err)
	}

	if ln.Port() == 0 {
		t.Fatal("Expected a concrete port after listening on port 0")
	}

	go func() {
		conn, err := net.Dial("tcp", ln.Addr())
		if err != nil {
			return
		}
		conn.Write([]byte("ping"))
		conn.Close()
	}()

	accepted, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	defer accepted.Close()

	if accepted.RemoteAddr() == "" {
		t.Error("Accepted transport should know its peer")
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(accepted, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("Expected ping, got %q", buf)
	}

	if err := ln.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := ln.Accept(); err == nil {
		t.Error("Accept after Close should fail")
	}
}
