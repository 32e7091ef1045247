package storage

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAndOpen(t *testing.T) {
	s := New(t.TempDir(), "/static/uploads")

	relPath, url, err := s.Save("site plan (v2).pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, relPath)
	require.True(t, strings.HasPrefix(url, "/static/uploads/"))
	require.True(t, strings.HasSuffix(relPath, ".pdf"))
	require.NotContains(t, relPath, "(")

	f, err := s.Open(relPath)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "pdf-bytes", string(data))
}

func TestSaveGeneratesUniquePaths(t *testing.T) {
	s := New(t.TempDir(), "/static/uploads")

	p1, _, err := s.Save("a.txt", strings.NewReader("one"))
	require.NoError(t, err)
	p2, _, err := s.Save("a.txt", strings.NewReader("two"))
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)
}

func TestRemove(t *testing.T) {
	s := New(t.TempDir(), "/static/uploads")

	relPath, _, err := s.Save("a.txt", strings.NewReader("one"))
	require.NoError(t, err)

	s.Remove(relPath)
	_, err = os.Stat(s.Abs(relPath))
	require.True(t, os.IsNotExist(err))

	// removing again (or removing nothing) must not panic
	s.Remove(relPath)
	s.Remove("")
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "file", sanitizeName(""))
	require.Equal(t, "file", sanitizeName(".txt"))
	require.Equal(t, "my_report_2024", sanitizeName("my report 2024.pdf"))
	require.Equal(t, "passwd", sanitizeName("../../etc/passwd"))
	require.Len(t, sanitizeName(strings.Repeat("a", 80)+".txt"), 40)
}
