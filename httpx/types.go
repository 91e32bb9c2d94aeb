package httpx

import "dqx0.com/go/userhttp/httpx/internal/http1"

// Header maps a canonical header name to its value. Unlike net/http
// each name holds a single value: the last one received wins.
type Header map[string]string

func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[http1.CanonicalHeaderKey(key)]
}

func (h Header) Has(key string) bool {
	if h == nil {
		return false
	}
	_, ok := h[http1.CanonicalHeaderKey(key)]
	return ok
}

func (h Header) Set(key, value string) {
	if h == nil {
		return
	}
	h[http1.CanonicalHeaderKey(key)] = value
}

func (h Header) Del(key string) {
	if h == nil {
		return
	}
	delete(h, http1.CanonicalHeaderKey(key))
}

// Field is one response header line. Response headers keep the order
// the handler added them in.
type Field = http1.Field
