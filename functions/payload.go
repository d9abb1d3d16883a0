package functions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// requestPayload is the request as seen by script handlers
type requestPayload struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Route   string            `json:"route"`
	ID      string            `json:"id"`
	Headers map[string]string `json:"headers"`
	Query   map[string]string `json:"query"`
	Body    any               `json:"body"`
}

// buildPayload reads the request body once. JSON bodies are decoded; any
// other body is passed through as a string.
func buildPayload(inv *Invocation) (*requestPayload, error) {
	r := inv.Request

	payload := &requestPayload{
		Method:  r.Method,
		Path:    r.URL.Path,
		Route:   inv.Route,
		ID:      inv.ID,
		Headers: make(map[string]string, len(r.Header)),
		Query:   make(map[string]string),
	}
	for name, values := range r.Header {
		if len(values) > 0 {
			payload.Headers[strings.ToLower(name)] = values[0]
		}
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			payload.Query[name] = values[0]
		}
	}

	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return payload, nil
	}

	if isJSON(r.Header.Get("Content-Type")) {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
		payload.Body = decoded
		return payload, nil
	}

	payload.Body = string(body)
	return payload, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
