package httpx

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"dqx0.com/go/userhttp/httpx/internal/http1"
	"dqx0.com/go/userhttp/internal/obs"
)

// Server accepts connections and answers exactly one request on each
// before closing it. Connections are served concurrently, one goroutine
// each; handlers that share state must synchronize it.
type Server struct {
	Addr    string
	Handler Handler

	// Name is the virtual host this server answers for. A request's Host
	// header must equal Name or Name:Port. When Name is empty any Host is
	// accepted, but the header is still required.
	Name string
	// Port used by the host check. Zero means the listener's port.
	Port int

	// Limits on the request head and body. Zero selects
	// http1.MaxLine, http1.MaxHeaders and 1 MiB.
	MaxLine      int
	MaxHeaders   int
	MaxBodyBytes int64

	// Optional deadlines. A connection that times out is closed without
	// a response.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger obs.Logger
	Meter  obs.Meter

	listenPort atomic.Int64
	inShutdown atomic.Bool
	wg         sync.WaitGroup

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
}

func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on l until l fails permanently or Shutdown
// is called, in which case it returns ErrServerClosed. A failure while
// serving one connection never stops the loop.
func (s *Server) Serve(l net.Listener) error {
	if !s.trackListener(l, true) {
		l.Close()
		return ErrServerClosed
	}
	defer s.trackListener(l, false)
	defer l.Close()

	if ta, ok := l.Addr().(*net.TCPAddr); ok {
		s.listenPort.Store(int64(ta.Port))
	}
	s.logf(obs.Info, "listening on %s (name %q)", l.Addr(), s.Name)

	var delay time.Duration
	for {
		c, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			s.logf(obs.Warn, "accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

// Shutdown closes every listener and waits for in-flight connections to
// finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	for l := range s.listeners {
		l.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) trackListener(l net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.inShutdown.Load() {
			return false
		}
		if s.listeners == nil {
			s.listeners = make(map[net.Listener]struct{})
		}
		s.listeners[l] = struct{}{}
	} else {
		delete(s.listeners, l)
	}
	return true
}

// checkHost is the virtual host guard applied before routing.
func (s *Server) checkHost(host string) error {
	if host == "" {
		return NewError(KindMissingHost, "")
	}
	if s.Name == "" || host == s.Name || host == s.Name+":"+strconv.Itoa(s.port()) {
		return nil
	}
	return NewError(KindUnknownHost, "")
}

func (s *Server) port() int {
	if s.Port > 0 {
		return s.Port
	}
	return int(s.listenPort.Load())
}

func (s *Server) lineLimit() int {
	if s.MaxLine <= 0 {
		return http1.MaxLine
	}
	return s.MaxLine
}

func (s *Server) headerLimit() int {
	if s.MaxHeaders <= 0 {
		return http1.MaxHeaders
	}
	return s.MaxHeaders
}

func (s *Server) bodyLimit() int64 {
	if s.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return s.MaxBodyBytes
}

func (s *Server) logf(level obs.Level, format string, args ...interface{}) {
	lg := s.Logger
	if lg == nil {
		lg = obs.NopLogger{}
	}
	lg.Logf(level, format, args...)
}

func (s *Server) metricCounter(name string, value float64, labels ...obs.Label) {
	s.getMeter().Counter(name, value, labels...)
}

func (s *Server) metricHistogram(name string, value float64, labels ...obs.Label) {
	s.getMeter().Histogram(name, value, labels...)
}

func (s *Server) getMeter() obs.Meter {
	if s.Meter != nil {
		return s.Meter
	}
	return obs.NopMeter{}
}
