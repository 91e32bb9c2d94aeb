package httpx

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Request represents one parsed HTTP/1.1 request.
//
// Path, RawQuery and Query are derived from Target once, when the
// request is built. Body reads the declared Content-Length bytes
// directly from the connection; ContentLength is -1 when the header is
// absent or invalid.
type Request struct {
	Method   string
	Target   string
	Proto    string
	Header   Header
	Host     string
	Path     string
	RawQuery string
	// Query holds the decoded query parameters. Keys with only empty
	// values are left out.
	Query         url.Values
	Body          io.Reader
	ContentLength int64
	RemoteAddr    string
	// RequestID is the server generated identifier for this request.
	RequestID string
	// CorrelationID is a propagated ID from the peer (X-Request-ID).
	CorrelationID string

	ctx     context.Context
	bodyErr error
	maxBody int64
}

// NewRequest builds a Request from the parsed request head. body is the
// connection reader positioned after the header block; it may be nil.
func NewRequest(method, target, proto string, hdr Header, body io.Reader) *Request {
	if hdr == nil {
		hdr = Header{}
	}
	r := &Request{
		Method:        method,
		Target:        target,
		Proto:         proto,
		Header:        hdr,
		Host:          hdr.Get("Host"),
		ContentLength: -1,
	}
	r.Path, r.RawQuery = splitTarget(target)
	r.Query = parseQuery(r.RawQuery)

	if v := hdr.Get("Content-Length"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			r.bodyErr = Errorf(KindBadContentLength, "Invalid Content-Length %q", v)
		} else {
			r.ContentLength = n
		}
	}
	if body != nil && r.ContentLength > 0 {
		r.Body = io.LimitReader(body, r.ContentLength)
	} else {
		r.Body = strings.NewReader("")
	}
	return r
}

// QueryValue returns the first value of the query parameter key.
func (r *Request) QueryValue(key string) (string, bool) {
	vs := r.Query[key]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// ReadBody reads the whole declared body. It fails with a 400 when
// Content-Length is invalid or the peer sends fewer bytes, and with a
// 413 when the body exceeds the server limit.
func (r *Request) ReadBody() ([]byte, error) {
	if r.bodyErr != nil {
		return nil, r.bodyErr
	}
	if r.ContentLength <= 0 {
		return nil, nil
	}
	if r.maxBody > 0 && r.ContentLength > r.maxBody {
		return nil, NewError(KindBodyTooLarge, "")
	}
	b := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, b); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, NewError(KindBadContentLength, "Request body shorter than Content-Length")
		}
		return nil, err
	}
	return b, nil
}

// Context returns the request's context. If nil, returns Background.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed to ctx.
func WithContext(r *Request, ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// splitTarget separates the path from the query of a request-target in
// origin form ("/p?q") or absolute form ("http://h/p?q"). The path is
// returned as sent, without unescaping.
func splitTarget(target string) (path, rawQuery string) {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	path, rawQuery, _ = strings.Cut(target, "?")
	if i := strings.Index(path, "://"); i > 0 && !strings.Contains(path[:i], "/") {
		rest := path[i+len("://"):]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			path = rest[j:]
		} else {
			path = "/"
		}
	}
	return path, rawQuery
}

func parseQuery(rawQuery string) url.Values {
	// ParseQuery keeps every well-formed pair even when it reports an
	// error for another one.
	q, _ := url.ParseQuery(rawQuery)
	for k, vs := range q {
		kept := vs[:0]
		for _, v := range vs {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(q, k)
			continue
		}
		q[k] = kept
	}
	return q
}
