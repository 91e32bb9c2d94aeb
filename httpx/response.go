package httpx

import (
	"fmt"
	"strconv"

	"dqx0.com/go/userhttp/httpx/internal/http1"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// Response is a complete response produced by a handler. Header is
// written in order. A response with a body must carry a matching
// Content-Length; SetBody takes care of that.
type Response struct {
	StatusCode int
	Reason     string
	Header     []Field
	Body       []byte
}

// NewResponse returns a response without headers or body. An empty
// reason selects the standard phrase for status.
func NewResponse(status int, reason string) *Response {
	if reason == "" {
		reason = http1.DefaultReason(status)
	}
	return &Response{StatusCode: status, Reason: reason}
}

// AddHeader appends a header line.
func (r *Response) AddHeader(name, value string) {
	r.Header = append(r.Header, Field{Name: name, Value: value})
}

// HeaderValue returns the value of the first header line named name.
func (r *Response) HeaderValue(name string) string {
	name = http1.CanonicalHeaderKey(name)
	for _, f := range r.Header {
		if http1.CanonicalHeaderKey(f.Name) == name {
			return f.Value
		}
	}
	return ""
}

// SetBody sets the body and appends Content-Type and Content-Length.
func (r *Response) SetBody(contentType string, body []byte) {
	r.Body = body
	r.AddHeader("Content-Type", contentType)
	r.AddHeader("Content-Length", strconv.Itoa(len(body)))
}

func (r *Response) Validate() error {
	if r == nil {
		return fmt.Errorf("httpx: nil response")
	}
	if r.StatusCode < 100 || r.StatusCode > 599 {
		return fmt.Errorf("httpx: invalid status code %d", r.StatusCode)
	}
	return nil
}
