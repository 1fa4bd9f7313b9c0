// Package config assembles server settings from defaults, an optional .env
// file, HTTPD_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nczempin/httpd-go-uring/errors"
	"github.com/nczempin/httpd-go-uring/protocol"
	"github.com/nczempin/httpd-go-uring/stream"
)

const (
	envPrefix      = "HTTPD_"
	envFileVar     = "HTTPD_ENV_FILE"
	defaultEnvFile = ".env"
)

// Log formats
const (
	LogFormatAuto    = "auto"
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config is the complete server configuration
type Config struct {
	// Network is "tcp" or "unix"
	Network string
	Host    string
	Port    int
	// SocketPath is the listening path when Network is "unix"
	SocketPath string

	Root               string
	ServerName         string
	MaxConns           int64
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxRequestLineSize int
	StreamBackend      string

	LogLevel  string
	LogFormat string
}

// Default returns the built-in configuration. Root is left empty and
// filled with the working directory by Load.
func Default() Config {
	return Config{
		Network:            "tcp",
		Host:               "0.0.0.0",
		Port:               7878,
		ServerName:         protocol.DefaultServerName,
		MaxConns:           1024,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       30 * time.Second,
		MaxRequestLineSize: protocol.DefaultMaxRequestLineSize,
		StreamBackend:      stream.BackendCopy,
		LogLevel:           "info",
		LogFormat:          LogFormatAuto,
	}
}

// Address is what the listener binds, for logging
func (c Config) Address() string {
	if c.Network == "unix" {
		return c.SocketPath
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads the .env file named by HTTPD_ENV_FILE (which must then exist)
// or ./.env (optional), overlays the process environment and parses args.
// The process environment is never modified.
func Load(args []string) (Config, error) {
	fileEnv, err := readEnvFile()
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}

	cfg, err := LoadFrom(args, lookup)
	if err != nil {
		return cfg, err
	}

	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, errors.NewInvalidArgumentError("cannot determine working directory: " + err.Error())
		}
		cfg.Root = wd
	}

	return cfg, cfg.Validate()
}

func readEnvFile() (map[string]string, error) {
	path, explicit := os.LookupEnv(envFileVar)
	if !explicit {
		path = defaultEnvFile
	}

	env, err := godotenv.Read(path)
	if err == nil {
		return env, nil
	}
	if !explicit && stderrors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return nil, errors.NewInvalidArgumentError(fmt.Sprintf("cannot read env file %s: %v", path, err))
}

// LoadFrom applies the variables visible through lookup and then the flags
// in args on top of Default. It does not validate.
func LoadFrom(args []string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	str("NETWORK", &c.Network)
	str("HOST", &c.Host)
	str("SOCKET", &c.SocketPath)
	str("ROOT", &c.Root)
	str("SERVER_NAME", &c.ServerName)
	str("STREAM_BACKEND", &c.StreamBackend)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup(envPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return envError("PORT", v, err)
		}
		c.Port = port
	}
	if v, ok := lookup(envPrefix + "MAX_CONNS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError("MAX_CONNS", v, err)
		}
		c.MaxConns = n
	}
	if v, ok := lookup(envPrefix + "MAX_REQUEST_LINE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAX_REQUEST_LINE", v, err)
		}
		c.MaxRequestLineSize = n
	}
	if v, ok := lookup(envPrefix + "READ_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("READ_TIMEOUT", v, err)
		}
		c.ReadTimeout = d
	}
	if v, ok := lookup(envPrefix + "WRITE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("WRITE_TIMEOUT", v, err)
		}
		c.WriteTimeout = d
	}

	return nil
}

func envError(name, value string, err error) error {
	return errors.NewInvalidArgumentError(fmt.Sprintf("%s%s=%q: %v", envPrefix, name, value, err))
}

func (c *Config) applyFlags(args []string) error {
	fset := flag.NewFlagSet("httpd", flag.ContinueOnError)
	fset.SetOutput(io.Discard)

	fset.StringVar(&c.Network, "network", c.Network, "listener network: tcp or unix")
	fset.StringVar(&c.Host, "host", c.Host, "TCP listen host")
	fset.IntVar(&c.Port, "port", c.Port, "TCP listen port")
	fset.StringVar(&c.SocketPath, "socket", c.SocketPath, "Unix socket path")
	fset.StringVar(&c.Root, "root", c.Root, "document root (default: working directory)")
	fset.StringVar(&c.ServerName, "server-name", c.ServerName, "value of the Server header")
	fset.Int64Var(&c.MaxConns, "max-conns", c.MaxConns, "maximum concurrently served connections")
	fset.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "time allowed to receive the request line")
	fset.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "time allowed for each write")
	fset.IntVar(&c.MaxRequestLineSize, "max-request-line", c.MaxRequestLineSize, "maximum request line length in bytes")
	fset.StringVar(&c.StreamBackend, "stream-backend", c.StreamBackend, "file streaming backend: copy, iouring or uring")
	fset.StringVar(&c.LogLevel, "log-level", c.LogLevel, "trace, debug, info, warn or error")
	fset.StringVar(&c.LogFormat, "log-format", c.LogFormat, "auto, json or console")

	if err := fset.Parse(args); err != nil {
		return errors.NewInvalidArgumentError(err.Error())
	}
	if fset.NArg() > 0 {
		return errors.NewInvalidArgumentError("unexpected arguments: " + strings.Join(fset.Args(), " "))
	}
	return nil
}

// Validate rejects configurations the server cannot start with
func (c Config) Validate() error {
	var problems []string

	switch c.Network {
	case "tcp":
		if c.Port < 0 || c.Port > 65535 {
			problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
		}
	case "unix":
		if c.SocketPath == "" {
			problems = append(problems, "unix network needs a socket path")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown network %q", c.Network))
	}

	if c.Root == "" {
		problems = append(problems, "root must not be empty")
	}
	if c.ServerName == "" || strings.ContainsAny(c.ServerName, "\r\n") {
		problems = append(problems, fmt.Sprintf("invalid server name %q", c.ServerName))
	}
	if c.MaxConns <= 0 {
		problems = append(problems, "max-conns must be positive")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if c.MaxRequestLineSize <= 0 {
		problems = append(problems, "max-request-line must be positive")
	}

	switch c.StreamBackend {
	case stream.BackendCopy, stream.BackendIoUring, stream.BackendUring:
	default:
		problems = append(problems, fmt.Sprintf("unknown stream backend %q", c.StreamBackend))
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case LogFormatAuto, LogFormatJSON, LogFormatConsole:
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return errors.NewInvalidArgumentError("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
