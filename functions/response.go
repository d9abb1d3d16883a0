package functions

import (
	"encoding/json"
	"net/http"
)

// ResponseSink is the handler's view of the response writer. It remembers
// whether the handler produced a response itself.
type ResponseSink struct {
	w       http.ResponseWriter
	status  int
	written bool
}

func newResponseSink(w http.ResponseWriter) *ResponseSink {
	return &ResponseSink{w: w}
}

// Header returns the response headers
func (s *ResponseSink) Header() http.Header {
	return s.w.Header()
}

// Status sets the status code used by the next write or by the result
func (s *ResponseSink) Status(code int) {
	s.status = code
}

// StatusCode returns the status set by the handler, or 0
func (s *ResponseSink) StatusCode() int {
	return s.status
}

// Write sends the body, writing the pending status first
func (s *ResponseSink) Write(b []byte) (int, error) {
	s.writeHeader()
	return s.w.Write(b)
}

// JSON sends v encoded as JSON with the given status
func (s *ResponseSink) JSON(status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.Header().Get("Content-Type") == "" {
		s.Header().Set("Content-Type", "application/json")
	}
	s.status = status
	_, err = s.Write(body)
	return err
}

// Written reports whether the handler sent a response
func (s *ResponseSink) Written() bool {
	return s.written
}

func (s *ResponseSink) writeHeader() {
	if s.written {
		return
	}
	s.written = true
	if s.status == 0 {
		s.status = http.StatusOK
	}
	s.w.WriteHeader(s.status)
}

// statusOr returns the handler's status, or fallback when none was set
func (s *ResponseSink) statusOr(fallback int) int {
	if s.status != 0 {
		return s.status
	}
	return fallback
}
