package users

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"dqx0.com/go/userhttp/httpx"
)

func startServer(t *testing.T) (addr string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	rt := httpx.NewRouter()
	Register(rt, NewStore(), nil)
	s := &httpx.Server{Name: "users.test", Handler: rt}
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return ln.Addr().String(), ln.Addr().(*net.TCPAddr).Port
}

type rawResponse struct {
	status int
	header map[string]string
	body   string
}

func do(t *testing.T, addr, req string) rawResponse {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(c, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	head, body, ok := strings.Cut(string(raw), "\r\n\r\n")
	if !ok {
		t.Fatalf("no header terminator in %q", raw)
	}
	lines := strings.Split(head, "\r\n")
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 || parts[0] != "HTTP/1.1" {
		t.Fatalf("status line %q", lines[0])
	}
	status, _ := strconv.Atoi(parts[1])
	hdr := make(map[string]string)
	for _, l := range lines[1:] {
		k, v, _ := strings.Cut(l, ": ")
		hdr[k] = v
	}
	if cl, ok := hdr["Content-Length"]; ok && cl != strconv.Itoa(len(body)) {
		t.Fatalf("Content-Length %s, body has %d bytes", cl, len(body))
	}
	return rawResponse{status: status, header: hdr, body: body}
}

func get(path, host, accept string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: " + host + "\r\nAccept: " + accept + "\r\n\r\n"
}

func TestServer_CreateThenList(t *testing.T) {
	addr, _ := startServer(t)

	res := do(t, addr, "POST /users?name=Ann&age=30 HTTP/1.1\r\nHost: users.test\r\n\r\n")
	if res.status != 204 || res.body != "" {
		t.Fatalf("create: %d %q", res.status, res.body)
	}

	res = do(t, addr, get("/users", "users.test", "application/json"))
	if res.status != 200 {
		t.Fatalf("list: %d %q", res.status, res.body)
	}
	var got []User
	if err := json.Unmarshal([]byte(res.body), &got); err != nil {
		t.Fatalf("decode %q: %v", res.body, err)
	}
	if len(got) != 1 || got[0] != (User{ID: 1, Name: "Ann", Age: "30"}) {
		t.Fatalf("users=%+v", got)
	}
}

func TestServer_GetBeforeAndAfterCreate(t *testing.T) {
	addr, port := startServer(t)
	host := "users.test:" + strconv.Itoa(port)

	if res := do(t, addr, get("/users/1", host, "application/json")); res.status != 404 {
		t.Fatalf("before create: %d", res.status)
	}
	do(t, addr, "POST /users?name=Ann&age=30 HTTP/1.1\r\nHost: "+host+"\r\n\r\n")
	res := do(t, addr, get("/users/1", host, "text/html"))
	if res.status != 200 || !strings.Contains(res.body, "User #1 Ann, 30") {
		t.Fatalf("after create: %d %q", res.status, res.body)
	}
	if ct := res.header["Content-Type"]; ct != "text/html; charset=utf-8" {
		t.Fatalf("Content-Type=%q", ct)
	}
}

func TestServer_IDsIncrease(t *testing.T) {
	addr, _ := startServer(t)
	for i := 0; i < 3; i++ {
		do(t, addr, "POST /users?name=u"+strconv.Itoa(i)+"&age=1 HTTP/1.1\r\nHost: users.test\r\n\r\n")
	}
	var got []User
	res := do(t, addr, get("/users", "users.test", "application/json"))
	if err := json.Unmarshal([]byte(res.body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, u := range got {
		if u.ID != i+1 {
			t.Fatalf("users=%+v", got)
		}
	}
}

func TestServer_Errors(t *testing.T) {
	addr, _ := startServer(t)
	cases := []struct {
		name   string
		req    string
		status int
	}{
		{"missing host", "GET /users HTTP/1.1\r\nAccept: application/json\r\n\r\n", 400},
		{"unknown host", get("/users", "other.test", "application/json"), 404},
		{"unknown path", get("/nope", "users.test", "application/json"), 404},
		{"not acceptable", get("/users", "users.test", "text/plain"), 406},
		{"missing params", "POST /users?name=Ann HTTP/1.1\r\nHost: users.test\r\n\r\n", 400},
		{"bad version", "GET /users HTTP/1.0\r\nHost: users.test\r\n\r\n", 505},
		{"malformed", "GET /users\r\nHost: users.test\r\n\r\n", 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if res := do(t, addr, tc.req); res.status != tc.status {
				t.Fatalf("status=%d, want %d (%q)", res.status, tc.status, res.body)
			}
		})
	}
}
