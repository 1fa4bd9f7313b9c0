// Package client is a one-shot HTTP/1.0 client for probing the server.
package client

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nczempin/httpd-go-uring/errors"
	"github.com/nczempin/httpd-go-uring/protocol"
	"github.com/nczempin/httpd-go-uring/transport"
)

var headerSeparator = []byte("\r\n\r\n")

// Header is one response header
type Header struct {
	Key   string
	Value string
}

// Response is a parsed HTTP/1.0 response
type Response struct {
	StatusCode    int
	StatusMessage string
	Headers       []Header
	Body          []byte
	// ContentLength is -1 when the header is absent
	ContentLength int
}

// Header returns the first value for key, compared case-insensitively
func (r *Response) Header(key string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// HttpClient sends one request per connection
type HttpClient struct {
	network string
	address string
	timeout time.Duration
}

// NewHttpClient targets address on network ("tcp" or "unix").
// timeout bounds each exchange; zero means no deadline.
func NewHttpClient(network, address string, timeout time.Duration) *HttpClient {
	return &HttpClient{
		network: network,
		address: address,
		timeout: timeout,
	}
}

// Do sends "METHOD target HTTP/1.0" and parses the reply
func (c *HttpClient) Do(ctx context.Context, method, target string) (*Response, error) {
	if method == "" || strings.ContainsAny(method, " \r\n") {
		return nil, errors.NewInvalidArgumentError("invalid method: " + strconv.Quote(method))
	}
	if !strings.HasPrefix(target, "/") || strings.ContainsAny(target, " \r\n") {
		return nil, errors.NewInvalidArgumentError("target must be an origin-form path: " + strconv.Quote(target))
	}

	raw, err := c.RoundTrip(ctx, []byte(fmt.Sprintf("%s %s HTTP/1.0\r\n\r\n", method, target)))
	if err != nil {
		return nil, err
	}
	return parseResponse(raw, method == protocol.MethodHead)
}

// RoundTrip writes request verbatim and returns everything the server
// sends until it closes the connection
func (c *HttpClient) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	t, err := transport.Dial(ctx, c.network, c.address, transport.Options{WriteTimeout: c.timeout})
	if err != nil {
		return nil, err
	}
	defer t.Close()

	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		if d := time.Now().Add(c.timeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if ok {
		if err := t.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}

	if _, err := t.Write(request); err != nil {
		return nil, err
	}

	return readUntilClose(t)
}

// readUntilClose reads the complete response; HTTP/1.0 responses end when
// the server closes the connection
func readUntilClose(t transport.Transport) ([]byte, error) {
	var buffer []byte
	readBuf := make([]byte, 4096)

	for {
		n, err := t.Read(readBuf)
		buffer = append(buffer, readBuf[:n]...)
		if err != nil {
			if errors.IsConnectionClosed(err) {
				return buffer, nil
			}
			return buffer, err
		}
	}
}

// ParseResponse parses a complete response to a GET request
func ParseResponse(raw []byte) (*Response, error) {
	return parseResponse(raw, false)
}

func parseResponse(raw []byte, bodyless bool) (*Response, error) {
	if len(raw) == 0 {
		return nil, errors.NewProtocolError(errors.ProtocolErrorIncompleteResponse, "empty response")
	}

	headerEnd := bytes.Index(raw, headerSeparator)
	if headerEnd < 0 {
		return nil, errors.NewProtocolError(errors.ProtocolErrorIncompleteResponse, "no end of headers")
	}

	// Split into status line and rest of headers
	parts := bytes.SplitN(raw[:headerEnd], []byte("\r\n"), 2)

	// Parse status line: "HTTP/1.0 200 OK"
	statusParts := bytes.SplitN(parts[0], []byte(" "), 3)
	if len(statusParts) < 2 || !bytes.HasPrefix(statusParts[0], []byte("HTTP/")) {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status line: %q", parts[0]),
		)
	}

	statusCode, err := strconv.Atoi(string(statusParts[1]))
	if err != nil {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status code: %s", statusParts[1]),
		)
	}

	resp := &Response{StatusCode: statusCode, ContentLength: -1}
	if len(statusParts) == 3 {
		resp.StatusMessage = string(statusParts[2])
	}

	if len(parts) > 1 {
		for _, line := range bytes.Split(parts[1], []byte("\r\n")) {
			key, value, ok := bytes.Cut(line, []byte(":"))
			if !ok {
				continue
			}
			h := Header{Key: string(key), Value: strings.TrimSpace(string(value))}
			resp.Headers = append(resp.Headers, h)

			if strings.EqualFold(h.Key, "Content-Length") {
				if length, err := strconv.Atoi(h.Value); err == nil && length >= 0 {
					resp.ContentLength = length
				}
			}
		}
	}

	body := raw[headerEnd+len(headerSeparator):]
	if bodyless {
		body = body[:0]
	} else if resp.ContentLength >= 0 {
		if len(body) < resp.ContentLength {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorIncompleteResponse,
				fmt.Sprintf("connection closed after %d of %d body bytes", len(body), resp.ContentLength),
			)
		}
		body = body[:resp.ContentLength]
	}

	// Copy so the response does not pin the read buffer
	resp.Body = append([]byte(nil), body...)
	return resp, nil
}
