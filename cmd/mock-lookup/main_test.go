package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/byline-enricher/pkg/mocklookup"
)

func TestLoadPeople(t *testing.T) {
	p := filepath.Join(t.TempDir(), "people.json")
	require.NoError(t, os.WriteFile(p, []byte(`[
  {"name": "Jane Doe", "employer": "nyt.com",
   "person": {"name": "Jane Doe", "emails": [{"email": "jane.doe@nyt.com", "confidence": 0.9}]}}
]`), 0o644))

	srv := mocklookup.New()
	n, err := loadPeople(srv, p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	q := url.Values{"name": {"Jane Doe"}, "current_employer": {"nyt.com"}}
	resp, err := http.Get(ts.URL + mocklookup.LookupPath + "?" + q.Encode())
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = loadPeople(srv, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
