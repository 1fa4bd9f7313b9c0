package protocol

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/nczempin/httpd-go-uring/errors"
)

const (
	// DefaultMaxRequestLineSize bounds the request line, terminator excluded
	DefaultMaxRequestLineSize = 8192

	readChunkSize = 1024
)

// ReadRequestLine reads from r until the first '\n' and returns the line
// without its terminator. Header lines that arrive in the same read are
// discarded. If the peer closes after sending a partial line, that partial
// line is returned.
func ReadRequestLine(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestLineSize
	}

	buffer := make([]byte, 0, readChunkSize)
	readBuf := make([]byte, readChunkSize)

	for {
		n, err := r.Read(readBuf)
		if n > 0 {
			start := len(buffer)
			buffer = append(buffer, readBuf[:n]...)

			if idx := bytes.IndexByte(buffer[start:], '\n'); idx >= 0 {
				line := trimLineEnd(buffer[:start+idx])
				if len(line) > maxSize {
					return nil, tooLarge(maxSize)
				}
				return line, nil
			}

			if len(buffer) > maxSize {
				return nil, tooLarge(maxSize)
			}
		}

		if err != nil {
			if peerClosed(err) {
				if len(buffer) > 0 {
					return trimLineEnd(buffer), nil
				}
				if stderrors.Is(err, io.EOF) && !errors.IsConnectionClosed(err) {
					return nil, errors.NewTransportError(
						errors.TransportErrorConnectionClosed,
						"connection closed before request line",
						err,
					)
				}
			}
			return nil, err
		}
	}
}

// ParseRequestLine splits "METHOD TARGET REST" and decodes the target.
// Fewer than three space separated tokens is a malformed request.
func ParseRequestLine(line []byte) (Request, error) {
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 3 {
		return Request{}, errors.NewProtocolError(
			errors.ProtocolErrorMalformedRequestLine,
			fmt.Sprintf("expected 3 tokens in request line, got %d", len(parts)),
		)
	}

	path, err := decodeTarget(parts[1])
	if err != nil {
		return Request{}, err
	}

	return Request{Method: parts[0], Path: path}, nil
}

// ReadRequest reads and parses one request line
func ReadRequest(r io.Reader, maxSize int) (Request, error) {
	line, err := ReadRequestLine(r, maxSize)
	if err != nil {
		return Request{}, err
	}
	return ParseRequestLine(line)
}

// decodeTarget strips leading slashes and the query, then percent-decodes.
// A '%' that does not start a valid escape is kept as is.
func decodeTarget(target string) (string, error) {
	target = strings.TrimLeft(target, "/")
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}

	decoded := unescape(target)
	if strings.IndexByte(decoded, 0) >= 0 {
		return "", errors.NewProtocolError(
			errors.ProtocolErrorInvalidPercentEncoding,
			"NUL byte in request path",
		)
	}

	return decoded, nil
}

func unescape(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		buf = append(buf, s[i])
	}
	return string(buf)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c <= '9':
		return c - '0'
	case c <= 'F':
		return c - 'A' + 10
	default:
		return c - 'a' + 10
	}
}

func trimLineEnd(line []byte) []byte {
	return bytes.TrimSuffix(line, []byte("\r"))
}

func tooLarge(maxSize int) error {
	return errors.NewProtocolError(
		errors.ProtocolErrorRequestLineTooLarge,
		fmt.Sprintf("request line exceeds %d bytes", maxSize),
	)
}

func peerClosed(err error) bool {
	return stderrors.Is(err, io.EOF) || errors.IsConnectionClosed(err)
}
