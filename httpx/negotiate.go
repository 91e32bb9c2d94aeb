package httpx

import "strings"

// Renderer is a value that can be shown either as an HTML page or as a
// JSON document.
type Renderer interface {
	RenderHTML() []byte
	RenderJSON() ([]byte, error)
}

// Negotiate picks a representation of v from the Accept header and
// returns it as a 200 response. Matching is a plain substring test:
// text/html wins over application/json, and q-values are ignored. A
// request accepting neither (or without Accept) fails with 406.
func Negotiate(r *Request, v Renderer) (*Response, error) {
	accept := r.Header.Get("Accept")
	var (
		ct   string
		body []byte
	)
	switch {
	case strings.Contains(accept, "text/html"):
		ct, body = contentTypeHTML, v.RenderHTML()
	case strings.Contains(accept, "application/json"):
		b, err := v.RenderJSON()
		if err != nil {
			return nil, err
		}
		ct, body = contentTypeJSON, b
	default:
		return nil, NewError(KindNotAcceptable, "")
	}
	res := NewResponse(200, "OK")
	res.SetBody(ct, body)
	return res, nil
}
