// Package protocoltest is a wire-level test harness. A stub HTTP server
// records what the pipeline sends and plays back scripted responses, and a
// given/when/then driver runs real operations through a full pipeline
// against it. Generated clients use it for protocol conformance tests.
package protocoltest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acksell/vogels/sdk/endpoints"
	"github.com/acksell/vogels/sdk/pipeline"
	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/retry"
)

// Reply is one scripted response. The last scripted reply repeats, so
// retry scenarios only enumerate the replies that differ.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// RecordedRequest is one request as the server saw it.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Server is the wire stub.
type Server struct {
	http *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	replies  []Reply
}

// NewServer starts a stub server that shuts down with the test.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{}
	r := chi.NewRouter()
	r.HandleFunc("/*", s.handle)
	s.http = httptest.NewServer(r)
	t.Cleanup(s.http.Close)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.http.URL }

// Script queues replies in order.
func (s *Server) Script(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request, or nil.
func (s *Server) LastRequest() *RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	last := s.requests[len(s.requests)-1]
	return &last
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	reply := Reply{Status: http.StatusOK, Body: []byte("{}")}
	switch {
	case len(s.replies) == 1:
		reply = s.replies[0]
	case len(s.replies) > 1:
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	s.mu.Unlock()

	for k, vs := range reply.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(reply.Status)
	w.Write(reply.Body)
}

// Harness drives one operation through a real pipeline against the stub.
type Harness struct {
	T      *testing.T
	Server *Server

	exec *pipeline.Executor
	op   *protocol.OperationSchema

	output protocol.Document
	err    error
}

// New builds a harness for op. Pipeline defaults suit conformance tests:
// the stub endpoint, no retries, no signing. Mutators adjust the options
// before the pipeline is built.
func New(t *testing.T, op *protocol.OperationSchema, mutate ...func(*pipeline.Options)) *Harness {
	t.Helper()
	server := NewServer(t)
	opts := pipeline.Options{
		Service:  op.Service,
		Region:   "us-east-1",
		Endpoint: endpoints.Static(server.URL()),
		Retry:    retry.None(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	exec, err := pipeline.New(opts)
	require.NoError(t, err)
	return &Harness{T: t, Server: server, exec: exec, op: op}
}

// GivenResponse scripts the next response.
func (h *Harness) GivenResponse(status int, header http.Header, body string) *Harness {
	h.Server.Script(Reply{Status: status, Header: header, Body: []byte(body)})
	return h
}

// WhenOperationCalled executes the operation through the pipeline.
func (h *Harness) WhenOperationCalled(input protocol.Document) *Harness {
	h.T.Helper()
	h.output, h.err = h.exec.Execute(context.Background(), h.op, input)
	return h
}

// ThenRequest returns the request the server received, failing the test
// when none arrived.
func (h *Harness) ThenRequest() *RecordedRequest {
	h.T.Helper()
	last := h.Server.LastRequest()
	require.NotNil(h.T, last, "no request reached the server")
	return last
}

// ThenOutput asserts success and returns the decoded output fields.
func (h *Harness) ThenOutput() map[string]protocol.Document {
	h.T.Helper()
	require.NoError(h.T, h.err)
	fields, ok := protocol.Fields(h.output)
	require.True(h.T, ok, "output is not a structure")
	return fields
}

// ThenError asserts failure and returns the error.
func (h *Harness) ThenError() error {
	h.T.Helper()
	require.Error(h.T, h.err)
	return h.err
}

// ThenErrorCode asserts the call failed with a service error carrying the
// given code and returns it.
func (h *Harness) ThenErrorCode(code string) *protocol.ServiceError {
	h.T.Helper()
	require.Error(h.T, h.err)
	var serr *protocol.ServiceError
	require.True(h.T, errors.As(h.err, &serr), "error %v is not a service error", h.err)
	require.Equal(h.T, code, serr.Code)
	return serr
}
