package lookup

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/byline-enricher/pkg/pipeline/redact"
)

// errorEnvelope is the error body shape returned by the lookup service.
// Unknown fields are ignored.
type errorEnvelope struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// HTTPError is a sanitized summary of a non-2xx lookup response.
//
// Raw bodies are never kept: they can echo the API key or personal data.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Detail     string

	// Snippet is a redacted, truncated hint for bodies without a detail field.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "lookup http error"
	}
	parts := []string{
		fmt.Sprintf("lookup api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if d := strings.TrimSpace(e.Detail); d != "" {
		parts = append(parts, "detail="+d)
	}
	if s := strings.TrimSpace(e.Snippet); s != "" {
		parts = append(parts, "body="+s)
	}
	return strings.Join(parts, " ")
}

const snippetMax = 256

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		d := strings.TrimSpace(env.Detail)
		if d == "" {
			d = strings.TrimSpace(env.Message)
		}
		if d != "" {
			h.Detail = redact.Truncate(d, snippetMax)
			return h
		}
	}

	h.Snippet = redact.Truncate(string(body), snippetMax)
	return h
}
