package httpx

import "strings"

// Handler produces the response for a request, or an error that the
// connection loop turns into one.
type Handler interface {
	Serve(*Request) (*Response, error)
}

type HandlerFunc func(*Request) (*Response, error)

func (f HandlerFunc) Serve(r *Request) (*Response, error) {
	return f(r)
}

// NumericHandlerFunc handles a path of the form prefix+digits. id is
// the digit suffix as sent.
type NumericHandlerFunc func(r *Request, id string) (*Response, error)

type routeKey struct {
	method string
	path   string
}

type numericRoute struct {
	method string
	prefix string
	h      NumericHandlerFunc
}

// Router dispatches on exact (method, path) pairs and on numeric
// suffix rules such as GET /users/{id}. Exact routes are tried first.
// Anything else is a 404.
type Router struct {
	exact   map[routeKey]Handler
	numeric []numericRoute
}

func NewRouter() *Router {
	return &Router{exact: make(map[routeKey]Handler)}
}

// Handle registers h for method and path. Method is matched case
// sensitively, as sent on the request line.
func (rt *Router) Handle(method, path string, h Handler) {
	if rt.exact == nil {
		rt.exact = make(map[routeKey]Handler)
	}
	rt.exact[routeKey{method, path}] = h
}

func (rt *Router) HandleFunc(method, path string, f func(*Request) (*Response, error)) {
	rt.Handle(method, path, HandlerFunc(f))
}

// HandleNumeric registers h for paths made of prefix followed by one or
// more ASCII digits.
func (rt *Router) HandleNumeric(method, prefix string, h NumericHandlerFunc) {
	rt.numeric = append(rt.numeric, numericRoute{method: method, prefix: prefix, h: h})
}

func (rt *Router) Serve(r *Request) (*Response, error) {
	h, err := rt.Lookup(r)
	if err != nil {
		return nil, err
	}
	return h.Serve(r)
}

// Lookup returns the handler for r without running it.
func (rt *Router) Lookup(r *Request) (Handler, error) {
	if h, ok := rt.exact[routeKey{r.Method, r.Path}]; ok {
		return h, nil
	}
	for _, nr := range rt.numeric {
		if nr.method != r.Method || !strings.HasPrefix(r.Path, nr.prefix) {
			continue
		}
		if id := r.Path[len(nr.prefix):]; isDigits(id) {
			h := nr.h
			return HandlerFunc(func(r *Request) (*Response, error) { return h(r, id) }), nil
		}
	}
	return nil, NewError(KindNotFound, "")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
