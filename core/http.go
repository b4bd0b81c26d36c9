package core

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/najoast/gproc/future"
)

// Request is an HTTP request addressed to one route of a process.
type Request struct {
	ID     string
	Method string

	// Path is the route inside the process, without the process id
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is what a route handler produces.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a response with the given status and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// HTTPHandler serves one route of a process. It runs on the process's own
// turn and must not block; long work returns a pending future.
type HTTPHandler func(*Request) future.Future[*Response]

// HTTP delivers req to pid as an HTTPEvent. The result is Discarded if pid
// is not alive, and carries 404 if pid has no route for req.Path.
func (rt *Runtime) HTTP(pid PID, req *Request) future.Future[*Response] {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	promise := future.NewPromise[*Response]()
	rt.deliver(pid, &HTTPEvent{Request: req, Response: promise}, false)
	return promise.Future()
}

// serveHTTPEvent runs the route handler for ev on b.
func (rt *Runtime) serveHTTPEvent(b *ProcessBase, ev *HTTPEvent) {
	route := strings.Trim(ev.Request.Path, "/")
	handler, ok := b.httpHandlers[route]
	if !ok {
		rt.logger.Debugf("process %s has no route '%s'", b.pid, route)
		ev.Response.Set(NewResponse(http.StatusNotFound, nil))
		return
	}

	defer failOnPanic(ev.Response, b.pid)
	ev.Response.Associate(handler(ev.Request))
}

// ServeHTTP routes /{processID}/{route} to the named process. It lets a
// net/http server front the runtime:
//
//	http.ListenAndServe(":8080", rt)
func (rt *Runtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, route, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	b, ok := rt.table.lookup(PID{ID: id})
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, errors.Wrap(err, "failed to read request body").Error(), http.StatusBadRequest)
		return
	}

	response := rt.HTTP(b.pid, &Request{
		ID:     r.Header.Get("X-Request-Id"),
		Method: r.Method,
		Path:   route,
		Query:  r.URL.Query(),
		Header: r.Header,
		Body:   body,
	})

	if err := response.Wait(r.Context()); err != nil {
		response.Discard()
		return
	}

	switch response.State() {
	case future.StateReady:
		resp, _ := response.Result()
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if _, err := w.Write(resp.Body); err != nil {
			rt.logger.Debugf("failed to write response for %s: %v", b.pid, err)
		}
	case future.StateFailed:
		http.Error(w, response.Failure().Error(), http.StatusInternalServerError)
	default:
		http.Error(w, "request discarded", http.StatusServiceUnavailable)
	}
}
