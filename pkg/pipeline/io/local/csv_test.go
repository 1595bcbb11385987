package local_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/byline-enricher/pkg/pipeline/io/local"
)

func TestReadURLsCSV(t *testing.T) {
	t.Run("reads url column", func(t *testing.T) {
		in := "url,other\nhttps://a.test/1,x\nhttps://b.test/2,y\n"
		got, err := local.ReadURLsCSV(strings.NewReader(in))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.test/1", "https://b.test/2"}, got)
	})

	t.Run("header is case-insensitive", func(t *testing.T) {
		got, err := local.ReadURLsCSV(strings.NewReader("URL\nhttps://a.test/1\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.test/1"}, got)
	})

	t.Run("missing header column errors", func(t *testing.T) {
		_, err := local.ReadURLsCSV(strings.NewReader("link\nx\n"))
		assert.Error(t, err)
	})
}

func TestReadURLLines(t *testing.T) {
	got, err := local.ReadURLLines(strings.NewReader("https://a.test/1\n\n# skipped\n  https://b.test/2  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/1", "https://b.test/2"}, got)
}

func TestSplitURLList(t *testing.T) {
	assert.Equal(t, []string{"a.test", "b.test"}, local.SplitURLList(" a.test, ,b.test,"))
}

func TestURLFile(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(txt, []byte("https://a.test/1\n"), 0o644))
	csvPath := filepath.Join(dir, "urls.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("url\nhttps://b.test/2\n"), 0o644))

	got, err := local.URLFile(txt).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/1"}, got)

	got, err = local.URLFile(csvPath).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.test/2"}, got)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.csv")

	require.NoError(t, local.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "first\n")
		return err
	}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(b))

	boom := errors.New("boom")
	err = local.WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(b), "failed write must not touch the existing file")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be cleaned up")
}
