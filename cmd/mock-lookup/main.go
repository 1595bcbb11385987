package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/byline-enricher/pkg/mocklookup"
)

// seed is one entry of the optional people file.
type seed struct {
	Name     string             `json:"name"`
	Employer string             `json:"employer"`
	Person   mocklookup.Person `json:"person"`
}

func main() {
	addr := defaultString("MOCK_LOOKUP_ADDR", ":8081")
	apiKey := defaultString("MOCK_LOOKUP_API_KEY", "")
	peoplePath := defaultString("MOCK_LOOKUP_PEOPLE", "")

	fs := flag.NewFlagSet("mock-lookup", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&apiKey, "api-key", apiKey, "Required Api-Key header value; empty accepts any key")
	fs.StringVar(&peoplePath, "people", peoplePath, "JSON file of [{name, employer, person}] entries to serve")
	_ = fs.Parse(os.Args[1:])

	srv := mocklookup.New()
	srv.RequireAPIKey(apiKey)
	n, err := loadPeople(srv, peoplePath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "people file error: %v\n", err)
		os.Exit(2)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-lookup listening on %s%s (people=%d)\n", addr, mocklookup.LookupPath, n)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func loadPeople(srv *mocklookup.Server, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var seeds []seed
	if err := json.Unmarshal(b, &seeds); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, s := range seeds {
		srv.AddPerson(s.Name, s.Employer, s.Person)
	}
	return len(seeds), nil
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
