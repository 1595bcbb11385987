package local

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
)

// ReadURLsCSV reads a CSV file and returns the values from the "url" column.
func ReadURLsCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	urlIdx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "url") {
			urlIdx = i
			break
		}
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "url")
	}

	var urls []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if urlIdx >= len(rec) {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), urlIdx+1)
		}
		if v := strings.TrimSpace(rec[urlIdx]); v != "" {
			urls = append(urls, v)
		}
	}
	return urls, nil
}

// ReadURLLines reads one URL per line, skipping blank lines and "#" comments.
func ReadURLLines(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url lines: %w", err)
	}
	return urls, nil
}

// SplitURLList splits a comma separated URL list.
func SplitURLList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// URLFile loads URLs from a file: CSV files need a "url" column, anything else
// is read one URL per line.
type URLFile string

var _ core.Source[string] = URLFile("")

func (p URLFile) Load(_ context.Context) ([]string, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	if strings.EqualFold(filepath.Ext(string(p)), ".csv") {
		return ReadURLsCSV(f)
	}
	return ReadURLLines(f)
}

// WriteFileAtomic replaces path with the bytes produced by write. Data goes to
// a temporary file in the same directory which is renamed over path only after
// write succeeded and the file was synced; parent directories are created.
func WriteFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
