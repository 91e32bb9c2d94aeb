package httpx

import (
	"errors"
	"fmt"
	"strconv"

	"dqx0.com/go/userhttp/httpx/internal/http1"
)

var (
	ErrServerClosed = errors.New("httpx: server closed")
	ErrBodyTooLarge = errors.New("httpx: body too large")
)

// Kind classifies a ProtocolError.
type Kind int

const (
	KindInternal Kind = iota
	KindLineTooLong
	KindMalformedRequestLine
	KindUnsupportedVersion
	KindHeaderLineTooLong
	KindTooManyHeaders
	KindMissingHost
	KindUnknownHost
	KindNotFound
	KindUserNotFound
	KindNotAcceptable
	KindMissingParameter
	KindBadContentLength
	KindBodyTooLarge
)

type kindInfo struct {
	name   string
	status int
	body   string
}

var kinds = [...]kindInfo{
	KindInternal:             {"internal", 500, ""},
	KindLineTooLong:          {"line_too_long", 400, "Request line is too long"},
	KindMalformedRequestLine: {"malformed_request_line", 400, "Malformed request line"},
	KindUnsupportedVersion:   {"unsupported_version", 505, ""},
	KindHeaderLineTooLong:    {"header_line_too_long", 494, "Header line is too long"},
	KindTooManyHeaders:       {"too_many_headers", 494, "Too many headers"},
	KindMissingHost:          {"missing_host", 400, "Host header is required"},
	KindUnknownHost:          {"unknown_host", 404, ""},
	KindNotFound:             {"not_found", 404, ""},
	KindUserNotFound:         {"user_not_found", 404, "User not found"},
	KindNotAcceptable:        {"not_acceptable", 406, ""},
	KindMissingParameter:     {"missing_parameter", 400, ""},
	KindBadContentLength:     {"bad_content_length", 400, "Invalid Content-Length"},
	KindBodyTooLarge:         {"body_too_large", 413, ""},
}

func (k Kind) info() kindInfo {
	if k < 0 || int(k) >= len(kinds) {
		return kinds[KindInternal]
	}
	return kinds[k]
}

func (k Kind) String() string { return k.info().name }

// Status returns the response status code for k.
func (k Kind) Status() int { return k.info().status }

// ProtocolError carries everything needed to answer the client: status,
// reason phrase and an optional plain-text body. Err is the cause, if
// any; it is logged but never sent.
type ProtocolError struct {
	Kind       Kind
	StatusCode int
	Reason     string
	Body       string
	Err        error
}

// NewError returns a ProtocolError of kind k. An empty body selects the
// kind's default text.
func NewError(k Kind, body string) *ProtocolError {
	info := k.info()
	if body == "" {
		body = info.body
	}
	return &ProtocolError{
		Kind:       k,
		StatusCode: info.status,
		Reason:     http1.DefaultReason(info.status),
		Body:       body,
	}
}

// Errorf is like NewError with a formatted body.
func Errorf(k Kind, format string, args ...interface{}) *ProtocolError {
	return NewError(k, fmt.Sprintf(format, args...))
}

func (e *ProtocolError) Error() string {
	msg := "httpx: " + strconv.Itoa(e.StatusCode) + " " + e.Reason
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Response renders e as a complete response. The body is Body, or the
// reason phrase when Body is empty.
func (e *ProtocolError) Response() *Response {
	res := NewResponse(e.StatusCode, e.Reason)
	body := e.Body
	if body == "" {
		body = e.Reason
	}
	res.SetBody(contentTypeText, []byte(body))
	return res
}

// AsProtocolError maps any error raised while reading or handling a
// request to a ProtocolError. Errors that are not already typed become
// a generic 500 whose body does not reveal err.
func AsProtocolError(err error) *ProtocolError {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	var k Kind
	switch {
	case errors.Is(err, http1.ErrLineTooLong):
		k = KindLineTooLong
	case errors.Is(err, http1.ErrMalformedRequestLine), errors.Is(err, http1.ErrNoRequest):
		k = KindMalformedRequestLine
	case errors.Is(err, http1.ErrUnsupportedVersion):
		k = KindUnsupportedVersion
	case errors.Is(err, http1.ErrHeaderLineTooLong):
		k = KindHeaderLineTooLong
	case errors.Is(err, http1.ErrTooManyHeaders):
		k = KindTooManyHeaders
	case errors.Is(err, ErrBodyTooLarge):
		k = KindBodyTooLarge
	default:
		k = KindInternal
	}
	pe = NewError(k, "")
	pe.Err = err
	return pe
}

// internalErrorResponse is written when even the mapped error response
// could not be produced.
var internalErrorResponse = []byte("HTTP/1.1 500 Internal Server Error\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Length: 21\r\n" +
	"\r\n" +
	"Internal Server Error")
