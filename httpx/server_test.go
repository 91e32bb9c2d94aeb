package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"dqx0.com/go/userhttp/internal/obs"
)

func startServer(t *testing.T, h Handler, cfg func(*Server)) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{Handler: h, Name: "example.test"}
	if cfg != nil {
		cfg(s)
	}
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, ln.Addr().String()
}

// exchange sends raw on a fresh connection, half-closes it and returns
// everything the server writes before closing it.
func exchange(t *testing.T, addr, raw string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	go func() {
		_, _ = io.WriteString(c, raw)
		_ = c.(*net.TCPConn).CloseWrite()
	}()
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func statusOf(t *testing.T, resp string) int {
	t.Helper()
	var code int
	if _, err := fmt.Sscanf(resp, "HTTP/1.1 %d", &code); err != nil {
		t.Fatalf("bad status line in %q", resp)
	}
	return code
}

func bodyOf(resp string) string {
	_, body, _ := strings.Cut(resp, "\r\n\r\n")
	return body
}

var hello = HandlerFunc(func(r *Request) (*Response, error) {
	res := NewResponse(200, "OK")
	res.SetBody(contentTypeText, []byte("hello"))
	return res, nil
})

func TestServer_Response(t *testing.T) {
	_, addr := startServer(t, hello, nil)
	got := exchange(t, addr, "GET / HTTP/1.1\r\nHost: example.test\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Length: 5\r\n" +
		"\r\nhello"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestServer_HostGuard(t *testing.T) {
	_, addr := startServer(t, hello, nil)
	port := addr[strings.LastIndexByte(addr, ':')+1:]
	cases := []struct {
		hostLine string
		status   int
	}{
		{"Host: example.test\r\n", 200},
		{"Host: example.test:" + port + "\r\n", 200},
		{"host: example.test\r\n", 200},
		{"", 400},
		{"Host: \r\n", 400},
		{"Host: other.test\r\n", 404},
		{"Host: example.test:1\r\n", 404},
	}
	for _, tc := range cases {
		resp := exchange(t, addr, "GET / HTTP/1.1\r\n"+tc.hostLine+"\r\n")
		if got := statusOf(t, resp); got != tc.status {
			t.Fatalf("%q: status=%d, want %d", tc.hostLine, got, tc.status)
		}
	}
}

func TestServer_ConfiguredPort(t *testing.T) {
	_, addr := startServer(t, hello, func(s *Server) { s.Port = 8080 })
	if got := statusOf(t, exchange(t, addr, "GET / HTTP/1.1\r\nHost: example.test:8080\r\n\r\n")); got != 200 {
		t.Fatalf("status=%d", got)
	}
}

func headers(n int) string {
	var sb strings.Builder
	sb.WriteString("Host: example.test\r\n")
	for i := 1; i < n; i++ {
		fmt.Fprintf(&sb, "X-Filler-%d: %d\r\n", i, i)
	}
	return sb.String()
}

func TestServer_Limits(t *testing.T) {
	_, addr := startServer(t, hello, nil)
	cases := []struct {
		name   string
		raw    string
		status int
		body   string
	}{
		{"exactly max headers", "GET / HTTP/1.1\r\n" + headers(100) + "\r\n", 200, "hello"},
		{"too many headers", "GET / HTTP/1.1\r\n" + headers(101) + "\r\n", 494, "Too many headers"},
		{"header line too long", "GET / HTTP/1.1\r\nHost: example.test\r\nX-Big: " + strings.Repeat("b", 70<<10) + "\r\n\r\n", 494, "Header line is too long"},
		{"request line too long", "GET /" + strings.Repeat("a", 70<<10) + " HTTP/1.1\r\n\r\n", 400, "Request line is too long"},
		{"malformed request line", "GET / HTTP/1.1 extra\r\nHost: example.test\r\n\r\n", 400, "Malformed request line"},
		{"unsupported version", "GET / HTTP/2.0\r\nHost: example.test\r\n\r\n", 505, "HTTP Version Not Supported"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := exchange(t, addr, tc.raw)
			if got := statusOf(t, resp); got != tc.status {
				t.Fatalf("status=%d, want %d", got, tc.status)
			}
			if got := bodyOf(resp); got != tc.body {
				t.Fatalf("body=%q, want %q", got, tc.body)
			}
		})
	}
}

func TestServer_HandlerFailures(t *testing.T) {
	rt := NewRouter()
	rt.HandleFunc("GET", "/panic", func(r *Request) (*Response, error) {
		panic("boom")
	})
	rt.HandleFunc("GET", "/error", func(r *Request) (*Response, error) {
		return nil, errors.New("connection string leaked")
	})
	rt.HandleFunc("GET", "/nil", func(r *Request) (*Response, error) {
		return nil, nil
	})
	rt.HandleFunc("GET", "/status", func(r *Request) (*Response, error) {
		return &Response{StatusCode: 42}, nil
	})
	rt.Handle("GET", "/ok", hello)
	_, addr := startServer(t, rt, nil)

	for _, path := range []string{"/panic", "/error", "/nil", "/status"} {
		resp := exchange(t, addr, "GET "+path+" HTTP/1.1\r\nHost: example.test\r\n\r\n")
		if got := statusOf(t, resp); got != 500 {
			t.Fatalf("%s: status=%d", path, got)
		}
		if got := bodyOf(resp); got != "Internal Server Error" {
			t.Fatalf("%s: body=%q", path, got)
		}
	}
	// The accept loop survives all of the above.
	if got := statusOf(t, exchange(t, addr, "GET /ok HTTP/1.1\r\nHost: example.test\r\n\r\n")); got != 200 {
		t.Fatalf("after failures: status=%d", got)
	}
}

func TestServer_BadErrorFallsBack(t *testing.T) {
	h := HandlerFunc(func(r *Request) (*Response, error) {
		return nil, &ProtocolError{StatusCode: 1000, Reason: "Nope"}
	})
	_, addr := startServer(t, h, nil)
	resp := exchange(t, addr, "GET / HTTP/1.1\r\nHost: example.test\r\n\r\n")
	if resp != string(internalErrorResponse) {
		t.Fatalf("got %q", resp)
	}
}

func TestServer_RequestBody(t *testing.T) {
	echo := HandlerFunc(func(r *Request) (*Response, error) {
		b, err := r.ReadBody()
		if err != nil {
			return nil, err
		}
		res := NewResponse(200, "")
		res.SetBody(contentTypeText, b)
		return res, nil
	})
	_, addr := startServer(t, echo, func(s *Server) { s.MaxBodyBytes = 16 })

	resp := exchange(t, addr, "POST / HTTP/1.1\r\nHost: example.test\r\nContent-Length: 5\r\n\r\nhello")
	if statusOf(t, resp) != 200 || bodyOf(resp) != "hello" {
		t.Fatalf("got %q", resp)
	}
	resp = exchange(t, addr, "POST / HTTP/1.1\r\nHost: example.test\r\nContent-Length: 17\r\n\r\n"+strings.Repeat("x", 17))
	if got := statusOf(t, resp); got != 413 {
		t.Fatalf("oversized body: status=%d", got)
	}
}

func TestServer_UnreadBodyDoesNotBreakResponse(t *testing.T) {
	_, addr := startServer(t, hello, nil)
	resp := exchange(t, addr, "POST / HTTP/1.1\r\nHost: example.test\r\nContent-Length: 20000\r\n\r\n"+strings.Repeat("z", 20000))
	if statusOf(t, resp) != 200 || bodyOf(resp) != "hello" {
		t.Fatalf("got %q", resp)
	}
}

func TestServer_RequestContext(t *testing.T) {
	var (
		mu   sync.Mutex
		info RequestInfo
	)
	h := HandlerFunc(func(r *Request) (*Response, error) {
		mu.Lock()
		info, _ = RequestInfoFrom(r.Context())
		mu.Unlock()
		return NewResponse(204, ""), nil
	})
	_, addr := startServer(t, h, nil)
	exchange(t, addr, "GET / HTTP/1.1\r\nHost: example.test\r\nX-Request-ID: abc-123\r\n\r\n")

	mu.Lock()
	defer mu.Unlock()
	if len(info.ID) != 16 || info.CorrelationID != "abc-123" || info.RemoteAddr == "" {
		t.Fatalf("info=%+v", info)
	}
}

func TestServer_Metrics(t *testing.T) {
	m := &obs.MemMeter{}
	s, addr := startServer(t, hello, func(s *Server) { s.Meter = m })

	exchange(t, addr, "GET / HTTP/1.1\r\nHost: example.test\r\n\r\n")
	exchange(t, addr, "GET / HTTP/1.1\r\n\r\n")
	exchange(t, addr, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := m.Value("httpx_server_connections_total"); got != 3 {
		t.Fatalf("connections=%v", got)
	}
	if got := m.Value("httpx_server_responses_total", obs.Label{Key: "status", Value: "200"}); got != 1 {
		t.Fatalf("200 responses=%v", got)
	}
	if got := m.Value("httpx_server_errors_total", obs.Label{Key: "kind", Value: "missing_host"}); got != 1 {
		t.Fatalf("missing_host errors=%v", got)
	}
	if got := m.Value("httpx_server_requests_total", obs.Label{Key: "method", Value: "GET"}); got != 1 {
		t.Fatalf("requests=%v", got)
	}
}

func TestServer_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{Handler: hello}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	// Make sure the loop is up before shutting it down.
	if got := statusOf(t, exchange(t, ln.Addr().String(), "GET / HTTP/1.1\r\nHost: any\r\n\r\n")); got != 200 {
		t.Fatalf("status=%d", got)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrServerClosed) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if err := s.Serve(ln); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("Serve after Shutdown returned %v", err)
	}
}

func TestServer_ReadTimeout(t *testing.T) {
	_, addr := startServer(t, hello, func(s *Server) { s.ReadTimeout = 50 * time.Millisecond })
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	_, _ = io.WriteString(c, "GET / HTTP/1.1\r\n")
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("expected no response on timeout, got %q", b)
	}
}

// net.Pipe has no CloseWrite, so the connection is closed without
// lingering.
func TestServeConn_Pipe(t *testing.T) {
	s := &Server{Handler: hello, Name: "example.test", Port: 80}
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.serveConn(server)
		close(done)
	}()
	go func() { _, _ = io.WriteString(client, "GET / HTTP/1.1\r\nHost: example.test:80\r\n\r\n") }()
	b, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	<-done
	if statusOf(t, string(b)) != 200 {
		t.Fatalf("got %q", b)
	}
	if !strings.HasSuffix(string(b), "Content-Length: 5\r\n\r\nhello") {
		t.Fatalf("got %q", b)
	}
}
