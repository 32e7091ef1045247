package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store saves uploaded files to local disk under baseDir and exposes them
// through urlBase. Layout: baseDir/YYYY/MM/DD/<uuid>_<sanitized-name><ext>.
type Store struct {
	baseDir string
	urlBase string
}

func New(baseDir, urlBase string) *Store {
	return &Store{baseDir: baseDir, urlBase: urlBase}
}

// Save writes the file and returns its relative disk path and public URL.
func (s *Store) Save(originalName string, src io.Reader) (relPath string, url string, err error) {
	now := time.Now()
	relDir := fmt.Sprintf("%d/%02d/%02d", now.Year(), now.Month(), now.Day())
	absDir := filepath.Join(s.baseDir, relDir)
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	ext := filepath.Ext(originalName)
	filename := fmt.Sprintf("%s_%s%s", uuid.New().String(), sanitizeName(originalName), ext)

	absPath := filepath.Join(absDir, filename)
	dst, err := os.Create(absPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(absPath)
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}

	relPath = filepath.Join(relDir, filename)
	url = s.urlBase + "/" + strings.ReplaceAll(relPath, "\\", "/")
	return relPath, url, nil
}

// Remove deletes the file; a missing file is not an error.
func (s *Store) Remove(relPath string) {
	if relPath == "" {
		return
	}
	_ = os.Remove(filepath.Join(s.baseDir, relPath))
}

func (s *Store) Open(relPath string) (*os.File, error) {
	return os.Open(filepath.Join(s.baseDir, relPath))
}

func (s *Store) Abs(relPath string) string {
	return filepath.Join(s.baseDir, relPath)
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name)) // extension is added separately
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		return "file"
	}
	return name
}
