// Package mocklookup is a minimal fake of the people-lookup API, used by
// tests and the mock-lookup command.
package mocklookup

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// LookupPath is the endpoint served relative to the API root.
const LookupPath = "/api/v2/profile-company/lookup"

// Call records a request made to the mock service.
type Call struct {
	Method   string
	Path     string
	Name     string
	Employer string
	APIKey   string
}

// Person is a profile the server answers with.
type Person struct {
	Name            string  `json:"name"`
	CurrentTitle    string  `json:"current_title,omitempty"`
	CurrentEmployer string  `json:"current_employer,omitempty"`
	CurrentCompany  string  `json:"current_company,omitempty"`
	Emails          []Email `json:"emails"`
}

type Email struct {
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
}

// Response is a scripted reply consumed by the next matching request.
type Response struct {
	Status     int
	RetryAfter string
	Body       string
}

// Server implements the lookup endpoint over an in-memory people directory.
type Server struct {
	mu     sync.Mutex
	calls  []Call
	apiKey string
	people map[string]Person
	// script holds queued replies that take precedence over the directory.
	script []Response
}

func New() *Server {
	return &Server{people: make(map[string]Person)}
}

// RequireAPIKey enforces the Api-Key header. An empty key disables the check.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = strings.TrimSpace(key)
}

// AddPerson registers p under (name, employer).
func (s *Server) AddPerson(name, employer string, p Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[directoryKey(name, employer)] = p
}

// Enqueue appends scripted replies served in order before any directory lookup.
func (s *Server) Enqueue(rs ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, rs...)
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(LookupPath, s.handleLookup)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	employer := strings.TrimSpace(q.Get("current_employer"))

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:   r.Method,
		Path:     r.URL.Path,
		Name:     name,
		Employer: employer,
		APIKey:   r.Header.Get("Api-Key"),
	})
	expected := s.apiKey
	var scripted *Response
	if len(s.script) > 0 {
		next := s.script[0]
		s.script = s.script[1:]
		scripted = &next
	}
	p, found := s.people[directoryKey(name, employer)]
	s.mu.Unlock()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if expected != "" && r.Header.Get("Api-Key") != expected {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Invalid API key"}`)
		return
	}
	if scripted != nil {
		if scripted.RetryAfter != "" {
			w.Header().Set("Retry-After", scripted.RetryAfter)
		}
		status := scripted.Status
		if status == 0 {
			status = http.StatusOK
		}
		writeJSON(w, status, scripted.Body)
		return
	}
	if name == "" || employer == "" {
		writeJSON(w, http.StatusBadRequest, `{"detail":"name and current_employer are required"}`)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, `{"status":"complete"}`)
		return
	}

	b, err := json.Marshal(struct {
		Person Person `json:"person"`
	}{p})
	if err != nil {
		http.Error(w, "encode person", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, string(b))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func directoryKey(name, employer string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(employer))
}
