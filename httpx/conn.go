package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"dqx0.com/go/userhttp/httpx/internal/http1"
	"dqx0.com/go/userhttp/internal/obs"
)

type connState int

const (
	stateAccepted connState = iota
	stateParsingRequest
	stateRouting
	stateHandling
	stateWritingResponse
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateParsingRequest:
		return "parsing"
	case stateRouting:
		return "routing"
	case stateHandling:
		return "handling"
	case stateWritingResponse:
		return "writing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// conn drives a single request through the server. Each state function
// does one step and returns the next; nil ends the connection.
type conn struct {
	srv   *Server
	nc    net.Conn
	br    *bufio.Reader
	bw    *bufio.Writer
	id    string
	start time.Time

	state   connState
	req     *Request
	handler Handler
	res     *Response
	raw     []byte // preformatted response used when res cannot be sent
	err     error
}

type stateFunc func(*conn) stateFunc

func (s *Server) serveConn(nc net.Conn) {
	c := &conn{
		srv:   s,
		nc:    nc,
		br:    bufio.NewReader(nc),
		bw:    bufio.NewWriter(nc),
		id:    newRequestID(),
		start: time.Now(),
	}
	defer func() {
		if p := recover(); p != nil {
			s.logf(obs.Error, "conn %s: panic in %s state: %v\n%s", c.id, c.state, p, debug.Stack())
			nc.Close()
		}
	}()
	for state := accepted; state != nil; {
		state = state(c)
	}
}

func accepted(c *conn) stateFunc {
	c.state = stateAccepted
	c.srv.metricCounter("httpx_server_connections_total", 1)
	c.srv.logf(obs.Debug, "conn %s: accepted from %s", c.id, c.nc.RemoteAddr())
	if c.srv.ReadTimeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.srv.ReadTimeout))
	}
	return parsingRequest
}

func parsingRequest(c *conn) stateFunc {
	c.state = stateParsingRequest
	rr := &http1.Reader{BR: c.br, MaxLine: c.srv.lineLimit(), MaxHeaders: c.srv.headerLimit()}

	method, target, proto, err := rr.ReadRequestLine()
	if err != nil {
		if errors.Is(err, http1.ErrNoRequest) {
			c.srv.logf(obs.Debug, "conn %s: peer closed before sending a request", c.id)
			return closed
		}
		return c.fail(err)
	}
	fields, err := rr.ReadHeaders()
	if err != nil {
		return c.fail(err)
	}
	hdr := Header(fields)
	if err := c.srv.checkHost(hdr.Get("Host")); err != nil {
		return c.fail(err)
	}

	r := NewRequest(method, target, proto, hdr, c.br)
	r.maxBody = c.srv.bodyLimit()
	r.RemoteAddr = c.nc.RemoteAddr().String()
	r.RequestID = c.id
	r.CorrelationID = hdr.Get("X-Request-Id")
	r.ctx = WithRequestInfo(context.Background(), RequestInfo{
		ID:            r.RequestID,
		CorrelationID: r.CorrelationID,
		RemoteAddr:    r.RemoteAddr,
	})
	c.req = r
	c.srv.metricCounter("httpx_server_requests_total", 1, obs.Label{Key: "method", Value: method})
	return routing
}

func routing(c *conn) stateFunc {
	c.state = stateRouting
	h := c.srv.Handler
	if rt, ok := h.(*Router); ok {
		found, err := rt.Lookup(c.req)
		if err != nil {
			return c.fail(err)
		}
		h = found
	}
	if h == nil {
		return c.fail(NewError(KindNotFound, ""))
	}
	c.handler = h
	return handling
}

func handling(c *conn) stateFunc {
	c.state = stateHandling
	res, err := c.runHandler()
	if err != nil {
		return c.fail(err)
	}
	if err := res.Validate(); err != nil {
		return c.fail(err)
	}
	c.res = res
	return writingResponse
}

func (c *conn) runHandler() (res *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			c.srv.logf(obs.Error, "conn %s: handler panic: %v\n%s", c.id, p, debug.Stack())
			res, err = nil, fmt.Errorf("httpx: handler panic: %v", p)
		}
	}()
	return c.handler.Serve(c.req)
}

// fail records err and moves to the error path. Peer disconnects and
// timeouts skip the response entirely.
func (c *conn) fail(err error) stateFunc {
	c.err = err
	if isDisconnect(err) {
		c.srv.logf(obs.Debug, "conn %s: %s: peer went away: %v", c.id, c.state, err)
		return closed
	}
	if isTimeout(err) {
		c.srv.logf(obs.Warn, "conn %s: %s: timed out: %v", c.id, c.state, err)
		return closed
	}
	return failed
}

func failed(c *conn) stateFunc {
	pe := AsProtocolError(c.err)
	if pe.Kind == KindInternal {
		c.srv.logf(obs.Error, "conn %s: %s: %v", c.id, c.state, c.err)
	} else {
		c.srv.logf(obs.Warn, "conn %s: %s: %v", c.id, c.state, pe)
	}
	c.srv.metricCounter("httpx_server_errors_total", 1, obs.Label{Key: "kind", Value: pe.Kind.String()})

	c.res = pe.Response()
	if err := c.res.Validate(); err != nil {
		c.srv.logf(obs.Error, "conn %s: cannot build error response: %v", c.id, err)
		c.res = &Response{StatusCode: 500, Reason: "Internal Server Error"}
		c.raw = internalErrorResponse
	}
	return writingResponse
}

func writingResponse(c *conn) stateFunc {
	c.state = stateWritingResponse
	if c.srv.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.srv.WriteTimeout))
	}
	var err error
	if c.raw != nil {
		_, err = c.bw.Write(c.raw)
		if err == nil {
			err = c.bw.Flush()
		}
	} else {
		err = http1.WriteResponse(c.bw, c.res.StatusCode, c.res.Reason, c.res.Header, c.res.Body)
	}
	if err != nil {
		level := obs.Error
		if isDisconnect(err) {
			level = obs.Debug
		}
		c.srv.logf(level, "conn %s: write response: %v", c.id, err)
		c.err = err
		return closed
	}
	if cw, ok := c.nc.(interface{ CloseWrite() error }); ok {
		if cw.CloseWrite() == nil {
			c.linger()
		}
	}
	return closed
}

// lingerTimeout bounds how long a half-closed connection is drained.
const lingerTimeout = 250 * time.Millisecond

// linger discards request bytes the handler did not consume, so that
// closing the socket does not reset it before the peer has read the
// response.
func (c *conn) linger() {
	_ = c.nc.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(c.br, c.srv.bodyLimit()))
}

func closed(c *conn) stateFunc {
	c.state = stateClosed
	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.srv.logf(obs.Debug, "conn %s: close: %v", c.id, err)
	}
	if c.res == nil {
		return nil
	}

	dur := time.Since(c.start)
	status := strconv.Itoa(c.res.StatusCode)
	method, target := "-", "-"
	if c.req != nil {
		method, target = c.req.Method, c.req.Target
	}
	c.srv.logf(obs.Info, "%s %s %s %s %d %v id=%s", c.nc.RemoteAddr(), method, target, status, len(c.res.Body), dur, c.id)
	c.srv.metricCounter("httpx_server_responses_total", 1, obs.Label{Key: "status", Value: status})
	c.srv.metricHistogram("httpx_server_request_duration_ms", float64(dur.Milliseconds()), obs.Label{Key: "status", Value: status})
	return nil
}

func isDisconnect(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
