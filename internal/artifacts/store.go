// Package artifacts persists uploaded log files and derived result files on
// local disk. Directories are created lazily on first write.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

var ErrInvalidName = errors.New("artifacts: invalid file name")

// SanitizeName reduces a client-supplied name to its base name so directory
// components can never escape the target directory. Both separators are
// honoured regardless of the host OS.
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}
	return name, nil
}

// Store writes uploads and results under two directories. An empty uploads
// directory disables persisting uploads.
type Store struct {
	uploadsDir string
	resultsDir string
}

// NewStore creates a store. Nothing is created on disk until the first write.
func NewStore(uploadsDir, resultsDir string) *Store {
	return &Store{uploadsDir: uploadsDir, resultsDir: resultsDir}
}

func (s *Store) UploadsDir() string { return s.uploadsDir }
func (s *Store) ResultsDir() string { return s.resultsDir }

// SaveUpload persists an uploaded payload and returns its path. It returns ""
// without error when uploads are disabled.
func (s *Store) SaveUpload(name string, data []byte) (string, error) {
	if s.uploadsDir == "" {
		return "", nil
	}
	return writeFile(s.uploadsDir, name, data)
}

// SaveResult persists a result artifact and returns its path.
func (s *Store) SaveResult(name string, data []byte) (string, error) {
	if s.resultsDir == "" {
		return "", errors.New("artifacts: results directory is not configured")
	}
	return writeFile(s.resultsDir, name, data)
}

// writeFile replaces dir/name atomically so concurrent sessions writing the
// same name never observe a torn file.
func writeFile(dir, name string, data []byte) (string, error) {
	base, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return "", fmt.Errorf("artifacts: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("artifacts: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifacts: write: %w", err)
	}
	if err := tmp.Chmod(defaultFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifacts: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifacts: close: %w", err)
	}

	path := filepath.Join(dir, base)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifacts: rename: %w", err)
	}
	return path, nil
}

// RemoveOlderThan deletes regular files in both directories whose
// modification time is before cutoff. Missing directories are not an error.
func (s *Store) RemoveOlderThan(cutoff time.Time) (int, error) {
	removed := 0
	var errs []error
	for _, dir := range []string{s.uploadsDir, s.resultsDir} {
		if dir == "" {
			continue
		}
		n, err := removeOlderThan(dir, cutoff)
		removed += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

func removeOlderThan(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("artifacts: read dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
