package server

import (
	"os"
	"time"

	"github.com/nczempin/httpd-go-uring/errors"
	"github.com/nczempin/httpd-go-uring/protocol"
	"github.com/nczempin/httpd-go-uring/resolver"
	"github.com/nczempin/httpd-go-uring/stream"
	"github.com/nczempin/httpd-go-uring/transport"
)

// HandlerOptions tunes per-connection behaviour
type HandlerOptions struct {
	// ServerName goes into the Server header
	ServerName string
	// MaxRequestLineSize bounds the request line
	MaxRequestLineSize int
	// ReadTimeout bounds the time to receive the whole request line
	ReadTimeout time.Duration
	// Now is the clock used for Date headers and deadlines
	Now func() time.Time
}

// Exchange summarizes one connection for the access log
type Exchange struct {
	Request   protocol.Request
	Status    int
	BodyBytes int64
	// Responded is set once the header block has been written
	Responded bool
}

// Handler serves exactly one request per connection
type Handler struct {
	root     *resolver.Root
	streamer stream.Streamer
	opts     HandlerOptions
}

// NewHandler builds a handler serving files beneath root
func NewHandler(root *resolver.Root, streamer stream.Streamer, opts HandlerOptions) *Handler {
	if opts.ServerName == "" {
		opts.ServerName = protocol.DefaultServerName
	}
	if opts.MaxRequestLineSize <= 0 {
		opts.MaxRequestLineSize = protocol.DefaultMaxRequestLineSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if streamer == nil {
		streamer = stream.NewCopyStreamer(0)
	}
	return &Handler{root: root, streamer: streamer, opts: opts}
}

// ServeConn runs the request pipeline on t. It does not close t.
//
// Every classification happens before the first byte is written: a
// malformed request, or a failure to open the resolved file, returns an
// error with nothing sent. Once headers are out only streaming can fail.
func (h *Handler) ServeConn(t transport.Transport) (Exchange, error) {
	var ex Exchange

	if h.opts.ReadTimeout > 0 {
		if err := t.SetReadDeadline(h.opts.Now().Add(h.opts.ReadTimeout)); err != nil {
			return ex, err
		}
	}

	req, err := protocol.ReadRequest(t, h.opts.MaxRequestLineSize)
	if err != nil {
		return ex, err
	}
	ex.Request = req

	res, err := h.root.Resolve(req.Path)
	if err != nil {
		return ex, err
	}
	status := protocol.ApplyMethodPolicy(req.Method, res.Status)
	ex.Status = status

	headers := protocol.NewResponseHeaders(status, h.opts.Now(), h.opts.ServerName)

	var file *os.File
	if status == protocol.StatusOK {
		file, err = os.Open(res.Path)
		if err != nil {
			return ex, errors.NewFilesystemError(errors.FilesystemErrorOpenFailure, "failed to open "+res.Path, err)
		}
		defer file.Close()

		fi, err := file.Stat()
		if err != nil {
			return ex, errors.NewFilesystemError(errors.FilesystemErrorStatFailure, "failed to stat "+res.Path, err)
		}
		if !fi.Mode().IsRegular() {
			return ex, errors.NewFilesystemError(errors.FilesystemErrorOpenFailure, res.Path+" is no longer a regular file", nil)
		}

		headers.ContentType = protocol.ContentTypeFor(res.Path)
		headers.ContentLength = fi.Size()
	}

	if _, err := protocol.WriteHeaders(t, headers); err != nil {
		return ex, err
	}
	ex.Responded = true

	if protocol.WantsBody(req.Method, status) {
		n, err := h.streamer.Stream(t, file, headers.ContentLength)
		ex.BodyBytes = n
		if err != nil {
			return ex, err
		}
	}

	return ex, nil
}
