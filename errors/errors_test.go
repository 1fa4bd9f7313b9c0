package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerError_Error(t *testing.T) {
	cases := []struct {
		name string
		err  *ServerError
		want string
	}{
		{
			name: "transport with cause",
			err:  NewTransportError(TransportErrorSocketReadFailure, "read failed", io.ErrUnexpectedEOF),
			want: "Transport error (4): read failed (caused by: unexpected EOF)",
		},
		{
			name: "protocol",
			err:  NewProtocolError(ProtocolErrorMalformedRequestLine, "expected three tokens"),
			want: "Protocol error (1): expected three tokens",
		},
		{
			name: "filesystem without message",
			err:  NewFilesystemError(FilesystemErrorOpenFailure, "", nil),
			want: "Filesystem error (3)",
		},
		{
			name: "invalid argument",
			err:  NewInvalidArgumentError("port out of range"),
			want: "Invalid argument: port out of range",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.err.Error())
		})
	}
}

func TestServerError_NilReceiver(t *testing.T) {
	var err *ServerError
	assert.Equal(t, "no error", err.Error())
}

func TestServerError_Unwrap(t *testing.T) {
	err := NewTransportError(TransportErrorSocketWriteFailure, "write failed", io.ErrClosedPipe)
	assert.True(t, stderrors.Is(err, io.ErrClosedPipe))
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	closed := fmt.Errorf("serving: %w", NewTransportError(TransportErrorConnectionClosed, "peer closed", io.EOF))
	timeout := fmt.Errorf("serving: %w", NewTransportError(TransportErrorTimeout, "deadline", nil))
	proto := fmt.Errorf("serving: %w", NewProtocolError(ProtocolErrorRequestLineTooLarge, "too long"))
	fs := fmt.Errorf("serving: %w", NewFilesystemError(FilesystemErrorShortRead, "short", nil))

	assert.True(t, IsConnectionClosed(closed))
	assert.False(t, IsConnectionClosed(timeout))
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsProtocol(proto))
	assert.False(t, IsProtocol(fs))
	assert.True(t, IsFilesystem(fs))
	assert.False(t, IsFilesystem(io.EOF))
}
