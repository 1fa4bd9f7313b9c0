package protocol

import "time"

// Methods the server serves. Anything else is answered with 405.
const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
)

// Status codes the server produces
const (
	StatusOK               = 200
	StatusForbidden        = 403
	StatusNotFound         = 404
	StatusMethodNotAllowed = 405
)

// Request is the decoded request line: method plus a root-relative path
// with the query removed and percent-escapes decoded
type Request struct {
	Method string
	Path   string
}

// ResponseHeaders is everything written ahead of the body.
// ContentType and ContentLength are only emitted for StatusOK.
type ResponseHeaders struct {
	StatusCode    int
	Reason        string
	Date          time.Time
	Server        string
	ContentType   string
	ContentLength int64
}

// ReasonPhrase returns the status line text for code
func ReasonPhrase(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	default:
		return "Unknown Code"
	}
}

// ApplyMethodPolicy overrides a successful resolution with 405 when the
// method is neither GET nor HEAD. Failed resolutions keep their status.
func ApplyMethodPolicy(method string, status int) int {
	if status == StatusOK && method != MethodGet && method != MethodHead {
		return StatusMethodNotAllowed
	}
	return status
}

// WantsBody reports whether file bytes follow the headers
func WantsBody(method string, status int) bool {
	return method == MethodGet && status == StatusOK
}
