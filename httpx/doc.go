// Package httpx is a small HTTP/1.1 server engine written directly on
// net.Conn, without net/http.
//
// Each accepted connection carries exactly one request. The request
// head is read byte by byte under explicit limits (64 KiB per line, 100
// header lines), the Host header is checked against the server's name,
// and the request is dispatched through a Router to a Handler that
// returns a complete Response or an error. Errors are mapped to a
// ProtocolError and written back like any other response; the
// connection is then closed.
//
// Not supported: keep-alive, pipelining, chunked transfer encoding,
// TLS, HTTP/2 and client requests.
//
// Quick start:
//
//	rt := httpx.NewRouter()
//	rt.HandleFunc("GET", "/hello", func(r *httpx.Request) (*httpx.Response, error) {
//	    res := httpx.NewResponse(200, "OK")
//	    res.SetBody("text/plain; charset=utf-8", []byte("hello"))
//	    return res, nil
//	})
//	s := &httpx.Server{Addr: "127.0.0.1:8080", Name: "localhost", Handler: rt}
//	if err := s.ListenAndServe(); err != nil { log.Fatal(err) }
package httpx
