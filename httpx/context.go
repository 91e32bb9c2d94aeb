package httpx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync/atomic"
)

type ctxKey int

const ctxKeyRequestInfo ctxKey = iota

// RequestInfo identifies the request a handler is serving. It travels
// in the request context so that handlers can tag their own log lines.
type RequestInfo struct {
	ID            string
	CorrelationID string
	RemoteAddr    string
}

// WithRequestInfo returns a new context that carries info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKeyRequestInfo, info)
}

// RequestInfoFrom extracts the request info from ctx.
func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(ctxKeyRequestInfo).(RequestInfo)
	return info, ok && info.ID != ""
}

var fallbackID atomic.Uint64

// newRequestID returns 16 hex characters of randomness.
func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return "seq-" + strconv.FormatUint(fallbackID.Add(1), 10)
}
