package protocol

import (
	"io"
	"strconv"
	"time"

	"github.com/nczempin/httpd-go-uring/errors"
)

// DefaultServerName is sent in the Server header
const DefaultServerName = "httpd-go-uring"

// httpDateLayout is the RFC 1123 form required for HTTP dates; always GMT
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// NewResponseHeaders fills in the reason phrase for status
func NewResponseHeaders(status int, now time.Time, server string) ResponseHeaders {
	if server == "" {
		server = DefaultServerName
	}
	return ResponseHeaders{
		StatusCode: status,
		Reason:     ReasonPhrase(status),
		Date:       now,
		Server:     server,
	}
}

// FormatDate renders t as an HTTP-date
func FormatDate(t time.Time) string {
	return t.UTC().Format(httpDateLayout)
}

// AppendTo appends the status line and header block, blank line included.
// Order: status, Date, Connection, Server, then Content-Type and
// Content-Length for 200 responses.
func (h ResponseHeaders) AppendTo(buf []byte) []byte {
	buf = append(buf, "HTTP/1.0 "...)
	buf = strconv.AppendInt(buf, int64(h.StatusCode), 10)
	buf = append(buf, ' ')
	buf = append(buf, h.Reason...)
	buf = append(buf, "\r\n"...)

	buf = append(buf, "Date: "...)
	buf = append(buf, FormatDate(h.Date)...)
	buf = append(buf, "\r\n"...)

	buf = append(buf, "Connection: close\r\n"...)

	buf = append(buf, "Server: "...)
	buf = append(buf, h.Server...)
	buf = append(buf, "\r\n"...)

	if h.StatusCode == StatusOK {
		if h.ContentType != "" {
			buf = append(buf, "Content-Type: "...)
			buf = append(buf, h.ContentType...)
			buf = append(buf, "\r\n"...)
		}
		buf = append(buf, "Content-Length: "...)
		buf = strconv.AppendInt(buf, h.ContentLength, 10)
		buf = append(buf, "\r\n"...)
	}

	return append(buf, "\r\n"...)
}

// WriteHeaders writes the header block to w in a single Write
func WriteHeaders(w io.Writer, h ResponseHeaders) (int, error) {
	if h.StatusCode < 100 || h.StatusCode > 999 {
		return 0, errors.NewInvalidArgumentError("status code out of range: " + strconv.Itoa(h.StatusCode))
	}
	if h.ContentLength < 0 {
		return 0, errors.NewInvalidArgumentError("negative content length")
	}

	return w.Write(h.AppendTo(make([]byte, 0, 256)))
}
