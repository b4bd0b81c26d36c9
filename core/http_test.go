package core

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/najoast/gproc/future"
)

// greeter serves a few routes.
type greeter struct {
	ProcessBase
	slow *future.Promise[*Response]
}

func (g *greeter) Initialize() {
	g.Route("/hello", func(req *Request) future.Future[*Response] {
		return future.Ready(NewResponse(http.StatusOK, []byte("hello "+req.Query.Get("name"))))
	})
	g.Route("echo/", func(req *Request) future.Future[*Response] {
		resp := NewResponse(http.StatusCreated, req.Body)
		resp.Header.Set("X-Method", req.Method)
		return future.Ready(resp)
	})
	g.Route("fail", func(*Request) future.Future[*Response] {
		return future.Failed[*Response](errors.New("broken"))
	})
	g.Route("slow", func(*Request) future.Future[*Response] {
		return g.slow.Future()
	})
}

func TestServeHTTP(t *testing.T) {
	rt := newTestRuntime(t)
	g := &greeter{slow: future.NewPromise[*Response]()}
	pid := spawn(t, rt, g, WithID("greeter"))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		expect string
	}{
		{"Route", http.MethodGet, "/greeter/hello?name=gproc", "", http.StatusOK, "hello gproc"},
		{"Body", http.MethodPost, "/greeter/echo", "payload", http.StatusCreated, "payload"},
		{"UnknownRoute", http.MethodGet, "/greeter/missing", "", http.StatusNotFound, ""},
		{"UnknownProcess", http.MethodGet, "/nobody/hello", "", http.StatusNotFound, ""},
		{"NoProcess", http.MethodGet, "/", "", http.StatusNotFound, ""},
		{"Failed", http.MethodGet, "/greeter/fail", "", http.StatusInternalServerError, "broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			rt.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.expect != "" && !strings.Contains(rec.Body.String(), tt.expect) {
				t.Errorf("Expected body to contain '%s', got '%s'", tt.expect, rec.Body.String())
			}
		})
	}

	t.Run("Pending", func(t *testing.T) {
		f := rt.HTTP(pid, &Request{Method: http.MethodGet, Path: "slow"})
		if f.Await(10 * time.Millisecond) {
			t.Fatalf("Expected response to be pending, got %s", f.State())
		}

		g.slow.Set(NewResponse(http.StatusAccepted, nil))
		resp := await(t, f)
		if resp.Status != http.StatusAccepted {
			t.Errorf("Expected status %d, got %d", http.StatusAccepted, resp.Status)
		}
	})

	t.Run("Discarded", func(t *testing.T) {
		rt.Terminate(pid, false)
		rt.Wait(pid, 5*time.Second)

		f := rt.HTTP(pid, &Request{Method: http.MethodGet, Path: "hello"})
		if !f.IsDiscarded() {
			t.Errorf("Expected request to a dead process to be discarded, got %s", f.State())
		}
	})
}

func TestHTTPRequestID(t *testing.T) {
	rt := newTestRuntime(t)
	pid := spawn(t, rt, &greeter{slow: future.NewPromise[*Response]()})

	req := &Request{Method: http.MethodGet, Path: "hello"}
	await(t, rt.HTTP(pid, req))

	if req.ID == "" {
		t.Error("Expected a request id to be assigned")
	}
}
