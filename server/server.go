package server

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/nczempin/httpd-go-uring/errors"
	"github.com/nczempin/httpd-go-uring/transport"
)

const (
	// DefaultMaxConns caps concurrently served connections
	DefaultMaxConns = 1024
	// DefaultLingerTimeout bounds draining unread input after a response
	DefaultLingerTimeout = 500 * time.Millisecond

	maxDrainBytes = 64 * 1024
	maxBackoff    = time.Second
)

// Options configures the accept loop
type Options struct {
	// MaxConns is the admission limit; the loop stops accepting while
	// this many connections are being served
	MaxConns int64
	// LingerTimeout bounds the post-response drain
	LingerTimeout time.Duration
	Logger        zerolog.Logger
}

// Server accepts connections and hands each to the Handler on its own goroutine
type Server struct {
	listener transport.Listener
	handler  *Handler
	sem      *semaphore.Weighted
	linger   time.Duration
	log      zerolog.Logger

	wg     sync.WaitGroup
	active atomic.Int64
	served atomic.Int64
}

// New wires a listener to a handler
func New(ln transport.Listener, h *Handler, opts Options) *Server {
	if opts.MaxConns <= 0 {
		opts.MaxConns = DefaultMaxConns
	}
	if opts.LingerTimeout <= 0 {
		opts.LingerTimeout = DefaultLingerTimeout
	}
	return &Server{
		listener: ln,
		handler:  h,
		sem:      semaphore.NewWeighted(opts.MaxConns),
		linger:   opts.LingerTimeout,
		log:      opts.Logger,
	}
}

// Addr is the listening address
func (s *Server) Addr() string {
	return s.listener.Addr()
}

// Active is the number of connections currently being served
func (s *Server) Active() int64 {
	return s.active.Load()
}

// Served is the number of connections finished so far
func (s *Server) Served() int64 {
	return s.served.Load()
}

// Serve accepts until ctx is cancelled, then closes the listener and waits
// for in-flight connections. It returns nil after a cancellation and the
// accept error otherwise.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	var backoff time.Duration
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}

		t, err := s.listener.Accept()
		if err != nil {
			s.sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			if isTemporary(err) {
				backoff = nextBackoff(backoff)
				s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
				if !sleepCtx(ctx, backoff) {
					break
				}
				continue
			}
			s.wg.Wait()
			return err
		}
		backoff = 0

		s.active.Add(1)
		s.wg.Add(1)
		go s.serveConn(t)
	}

	s.wg.Wait()
	return nil
}

func (s *Server) serveConn(t transport.Transport) {
	defer s.wg.Done()
	defer s.sem.Release(1)
	defer s.active.Add(-1)
	defer s.served.Add(1)

	log := s.log.With().
		Str("conn", uuid.NewString()).
		Str("remote", t.RemoteAddr()).
		Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			t.Close()
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("connection handler panicked")
		}
	}()

	ex, err := s.handler.ServeConn(t)
	s.closeConn(t, ex.Responded)
	logExchange(log, ex, err, time.Since(start))
}

// closeConn half-closes after a response and drains what the client is
// still sending, so the final close does not reset the connection before
// the client has read the response.
func (s *Server) closeConn(t transport.Transport, responded bool) {
	if responded {
		if err := t.CloseWrite(); err == nil {
			if err := t.SetReadDeadline(time.Now().Add(s.linger)); err == nil {
				io.CopyN(io.Discard, t, maxDrainBytes)
			}
		}
	}
	t.Close()
}

func logExchange(log zerolog.Logger, ex Exchange, err error, elapsed time.Duration) {
	var ev *zerolog.Event
	switch {
	case err == nil:
		ev = log.Info()
	case !ex.Responded && ex.Request.Method == "" && errors.IsConnectionClosed(err):
		log.Debug().Err(err).Msg("connection closed before request line")
		return
	case errors.IsFilesystem(err):
		ev = log.Warn().Err(err)
	default:
		// malformed requests, timeouts and clients that went away mid-body
		ev = log.Debug().Err(err)
	}

	ev.Str("method", ex.Request.Method).
		Str("path", ex.Request.Path).
		Int("status", ex.Status).
		Bool("responded", ex.Responded).
		Int64("bytes", ex.BodyBytes).
		Dur("duration", elapsed).
		Msg("request")
}

func isTemporary(err error) bool {
	if stderrors.Is(err, net.ErrClosed) {
		return false
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return stderrors.Is(err, syscall.ECONNABORTED) ||
		stderrors.Is(err, syscall.EMFILE) ||
		stderrors.Is(err, syscall.ENFILE) ||
		stderrors.Is(err, syscall.ENOBUFS) ||
		stderrors.Is(err, syscall.ENOMEM)
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
