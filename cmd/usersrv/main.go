// Command usersrv serves the in-memory /users resource over the httpx
// engine.
//
//	usersrv [flags] <host> <port> <server_name>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"dqx0.com/go/userhttp/httpx"
	"dqx0.com/go/userhttp/internal/obs"
	"dqx0.com/go/userhttp/internal/users"
)

type config struct {
	host         string
	port         int
	name         string
	logLevel     obs.Level
	logFormat    string
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxBody      int64
}

func parseArgs(args []string, stderr io.Writer) (config, error) {
	fs := flag.NewFlagSet("usersrv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: usersrv [flags] <host> <port> <server_name>")
		fs.PrintDefaults()
	}
	level := fs.String("log-level", "info", "log level: debug, info, warn or error")
	format := fs.String("log-format", "console", "log format: console, json or plain")
	readTimeout := fs.Duration("read-timeout", 0, "read deadline per connection (0 = none)")
	writeTimeout := fs.Duration("write-timeout", 0, "write deadline per connection (0 = none)")
	maxBody := fs.Int64("max-body", 1<<20, "largest request body accepted, in bytes")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if fs.NArg() != 3 {
		fs.Usage()
		return config{}, fmt.Errorf("expected 3 arguments, got %d", fs.NArg())
	}
	port, err := strconv.Atoi(fs.Arg(1))
	if err != nil || port < 0 || port > 65535 {
		return config{}, fmt.Errorf("invalid port %q", fs.Arg(1))
	}
	lvl, err := obs.ParseLevel(*level)
	if err != nil {
		return config{}, err
	}
	switch *format {
	case "console", "json", "plain":
	default:
		return config{}, fmt.Errorf("invalid log format %q", *format)
	}
	if *maxBody <= 0 {
		return config{}, fmt.Errorf("invalid max body %d", *maxBody)
	}
	return config{
		host:         fs.Arg(0),
		port:         port,
		name:         fs.Arg(2),
		logLevel:     lvl,
		logFormat:    *format,
		readTimeout:  *readTimeout,
		writeTimeout: *writeTimeout,
		maxBody:      *maxBody,
	}, nil
}

func newLogger(cfg config, w io.Writer) obs.Logger {
	switch cfg.logFormat {
	case "plain":
		return obs.StdLogger{L: log.New(w, "", log.LstdFlags), Min: cfg.logLevel, Pref: "usersrv "}
	case "json":
		return obs.NewZerologLogger(w, cfg.logLevel, false)
	default:
		return obs.NewZerologLogger(w, cfg.logLevel, true)
	}
}

func newServer(cfg config, lg obs.Logger, m obs.Meter) *httpx.Server {
	rt := httpx.NewRouter()
	users.Register(rt, users.NewStore(), lg)
	return &httpx.Server{
		Addr:         net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port)),
		Name:         cfg.name,
		Port:         cfg.port,
		Handler:      rt,
		Logger:       lg,
		Meter:        m,
		MaxBodyBytes: cfg.maxBody,
		ReadTimeout:  cfg.readTimeout,
		WriteTimeout: cfg.writeTimeout,
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config, lg obs.Logger) error {
	meter := &obs.MemMeter{}
	srv := newServer(cfg, lg, meter)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	lg.Logf(obs.Info, "shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Logf(obs.Warn, "shutdown: %v", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, httpx.ErrServerClosed) {
		return err
	}
	logMetrics(lg, meter)
	return nil
}

func logMetrics(lg obs.Logger, m *obs.MemMeter) {
	snap := m.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lg.Logf(obs.Info, "metric %s %g", k, snap[k])
	}
}

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "usersrv:", err)
		os.Exit(2)
	}
	lg := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, lg); err != nil {
		lg.Logf(obs.Error, "%v", err)
		stop()
		os.Exit(1)
	}
}
