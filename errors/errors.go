package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorFilesystem
	ErrorInvalidArgument
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTransport:
		return "Transport error"
	case ErrorProtocol:
		return "Protocol error"
	case ErrorFilesystem:
		return "Filesystem error"
	case ErrorInvalidArgument:
		return "Invalid argument"
	default:
		return "Unknown error"
	}
}

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorListenFailure
	TransportErrorAcceptFailure
	TransportErrorDialFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorSocketCloseFailure
	TransportErrorConnectionClosed
	TransportErrorTimeout
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
)

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorMalformedRequestLine
	ProtocolErrorRequestLineTooLarge
	ProtocolErrorInvalidPercentEncoding
	ProtocolErrorInvalidStatusLine
	ProtocolErrorIncompleteResponse
)

// FilesystemError represents errors raised while resolving or reading served files
type FilesystemError int

const (
	FilesystemErrorNone FilesystemError = iota
	FilesystemErrorStatFailure
	FilesystemErrorCanonicalizeFailure
	FilesystemErrorOpenFailure
	FilesystemErrorReadFailure
	FilesystemErrorShortRead
)

// ServerError is the main error type of the server
type ServerError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	FilesystemErr FilesystemError
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *ServerError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("%s (%d)", e.Type, e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("%s (%d)", e.Type, e.ProtocolErr)
	case ErrorFilesystem:
		typeStr = fmt.Sprintf("%s (%d)", e.Type, e.FilesystemErr)
	default:
		typeStr = e.Type.String()
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *ServerError) Unwrap() error {
	return e.UnderlyingErr
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *ServerError {
	return &ServerError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *ServerError {
	return &ServerError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
	}
}

// NewFilesystemError creates a new filesystem error
func NewFilesystemError(err FilesystemError, message string, underlying error) *ServerError {
	return &ServerError{
		Type:          ErrorFilesystem,
		FilesystemErr: err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *ServerError {
	return &ServerError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// As returns the first *ServerError in err's chain.
func As(err error) (*ServerError, bool) {
	var se *ServerError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsProtocol reports whether err carries a protocol error.
func IsProtocol(err error) bool {
	se, ok := As(err)
	return ok && se.Type == ErrorProtocol
}

// IsFilesystem reports whether err carries a filesystem error.
func IsFilesystem(err error) bool {
	se, ok := As(err)
	return ok && se.Type == ErrorFilesystem
}

// IsConnectionClosed reports whether the peer went away.
func IsConnectionClosed(err error) bool {
	se, ok := As(err)
	return ok && se.Type == ErrorTransport && se.TransportErr == TransportErrorConnectionClosed
}

// IsTimeout reports whether err is a read or write deadline expiry.
func IsTimeout(err error) bool {
	se, ok := As(err)
	return ok && se.Type == ErrorTransport && se.TransportErr == TransportErrorTimeout
}
