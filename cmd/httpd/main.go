// Command httpd serves the files beneath a document root over HTTP/1.0,
// one request per connection.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/nczempin/httpd-go-uring/config"
	"github.com/nczempin/httpd-go-uring/resolver"
	"github.com/nczempin/httpd-go-uring/server"
	"github.com/nczempin/httpd-go-uring/stream"
	"github.com/nczempin/httpd-go-uring/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "httpd: %v\n", err)
		return 2
	}

	log := newLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server failed")
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	root, err := resolver.NewRoot(cfg.Root)
	if err != nil {
		return err
	}

	streamer := newStreamer(cfg.StreamBackend, log)

	ln, err := listen(cfg)
	if err != nil {
		return err
	}

	handler := server.NewHandler(root, streamer, server.HandlerOptions{
		ServerName:         cfg.ServerName,
		MaxRequestLineSize: cfg.MaxRequestLineSize,
		ReadTimeout:        cfg.ReadTimeout,
	})
	srv := server.New(ln, handler, server.Options{
		MaxConns: cfg.MaxConns,
		Logger:   log,
	})

	log.Info().
		Str("network", cfg.Network).
		Str("addr", srv.Addr()).
		Str("root", root.Dir()).
		Str("stream", streamer.Name()).
		Int64("max_conns", cfg.MaxConns).
		Msg("listening")

	start := time.Now()
	err = srv.Serve(ctx)
	log.Info().
		Int64("served", srv.Served()).
		Dur("uptime", time.Since(start)).
		Msg("shut down")
	return err
}

func listen(cfg config.Config) (transport.Listener, error) {
	opts := transport.Options{WriteTimeout: cfg.WriteTimeout}
	if cfg.Network == "unix" {
		ln, err := transport.ListenUnix(cfg.SocketPath, opts)
		if err != nil {
			return nil, err
		}
		return ln, nil
	}
	ln, err := transport.ListenTcp(cfg.Host, cfg.Port, opts)
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// newStreamer falls back to the portable copy loop when an io_uring
// backend cannot be set up on this kernel
func newStreamer(backend string, log zerolog.Logger) stream.Streamer {
	s, err := stream.New(backend, 0)
	if err == nil {
		return s
	}
	log.Warn().Err(err).Str("backend", backend).Msg("stream backend unavailable, using copy")
	return stream.NewCopyStreamer(0)
}

func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	console := cfg.LogFormat == config.LogFormatConsole
	if cfg.LogFormat == config.LogFormatAuto {
		if f, ok := w.(*os.File); ok {
			console = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
