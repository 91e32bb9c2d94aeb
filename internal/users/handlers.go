package users

import (
	"net/url"
	"strconv"
	"strings"

	"dqx0.com/go/userhttp/httpx"
	"dqx0.com/go/userhttp/internal/obs"
)

// Handlers serves the /users resource from Store.
type Handlers struct {
	Store  *Store
	Logger obs.Logger
}

// Register installs:
//
//	POST /users        create from ?name=&age= (or a form body)
//	GET  /users        list
//	GET  /users/{id}   fetch one
func Register(rt *httpx.Router, store *Store, lg obs.Logger) *Handlers {
	h := &Handlers{Store: store, Logger: lg}
	rt.HandleFunc("POST", "/users", h.Create)
	rt.HandleFunc("GET", "/users", h.List)
	rt.HandleNumeric("GET", "/users/", h.Get)
	return h
}

// Create adds a user. name and age come from the query string; a
// urlencoded form body may supply whichever of them the query lacks.
func (h *Handlers) Create(r *httpx.Request) (*httpx.Response, error) {
	name, hasName := r.QueryValue("name")
	age, hasAge := r.QueryValue("age")
	if (!hasName || !hasAge) && isForm(r) {
		form, err := readForm(r)
		if err != nil {
			return nil, err
		}
		if !hasName {
			name, hasName = first(form, "name")
		}
		if !hasAge {
			age, hasAge = first(form, "age")
		}
	}
	switch {
	case !hasName:
		return nil, httpx.NewError(httpx.KindMissingParameter, "missing parameter: name")
	case !hasAge:
		return nil, httpx.NewError(httpx.KindMissingParameter, "missing parameter: age")
	}

	u := h.Store.Create(name, age)
	h.logf(r, obs.Info, "created user %d", u.ID)
	return httpx.NewResponse(204, "Created"), nil
}

func (h *Handlers) List(r *httpx.Request) (*httpx.Response, error) {
	return httpx.Negotiate(r, userList(h.Store.List()))
}

func (h *Handlers) Get(r *httpx.Request, id string) (*httpx.Response, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		// Only digits reach here, so this is an overflow: no such user.
		return nil, httpx.Errorf(httpx.KindUserNotFound, "User %s not found", id)
	}
	u, ok := h.Store.Get(n)
	if !ok {
		return nil, httpx.Errorf(httpx.KindUserNotFound, "User %d not found", n)
	}
	return httpx.Negotiate(r, userView(u))
}

func (h *Handlers) logf(r *httpx.Request, level obs.Level, format string, args ...interface{}) {
	if h.Logger == nil {
		return
	}
	if info, ok := httpx.RequestInfoFrom(r.Context()); ok {
		format = "req %s: " + format
		args = append([]interface{}{info.ID}, args...)
	}
	h.Logger.Logf(level, format, args...)
}

func isForm(r *httpx.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

func readForm(r *httpx.Request) (url.Values, error) {
	body, err := r.ReadBody()
	if err != nil {
		return nil, err
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, httpx.Errorf(httpx.KindMissingParameter, "malformed form body")
	}
	return form, nil
}

func first(v url.Values, key string) (string, bool) {
	for _, s := range v[key] {
		if s != "" {
			return s, true
		}
	}
	return "", false
}
