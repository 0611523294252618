package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"consolidador/internal/domain"
)

// FileStore keeps generated results and uploaded master files in a flat
// directory on the local filesystem.
type FileStore struct {
	basePath string
}

// FileInfo describes one stored file.
type FileInfo struct {
	Name       string    `json:"nombre"`
	Size       int64     `json:"tamaño"`
	HumanSize  string    `json:"tamaño_formateado"`
	ModifiedAt time.Time `json:"fecha_modificacion"`
	Path       string    `json:"ruta"`
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if !filepath.IsAbs(basePath) {
		if abs, err := filepath.Abs(basePath); err == nil {
			basePath = abs
		}
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Path resolves a key to its absolute location.
func (s *FileStore) Path(key string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

// Write persists r at the given key and returns the canonical key.
func (s *FileStore) Write(ctx context.Context, key string, r io.Reader) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: move file: %w", err)
	}
	return cleanKey, nil
}

// Open returns a reader for key together with its metadata.
func (s *FileStore) Open(key string) (*os.File, FileInfo, error) {
	info, err := s.Stat(key)
	if err != nil {
		return nil, FileInfo{}, err
	}
	full, _ := s.Path(key)
	f, err := os.Open(full)
	if err != nil {
		return nil, FileInfo{}, fmt.Errorf("storage: open file: %w", err)
	}
	return f, info, nil
}

// Stat returns metadata for key or domain.ErrNotFound.
func (s *FileStore) Stat(key string) (FileInfo, error) {
	full, err := s.Path(key)
	if err != nil {
		return FileInfo{}, err
	}
	st, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, domain.ErrNotFound
		}
		return FileInfo{}, fmt.Errorf("storage: stat file: %w", err)
	}
	if st.IsDir() {
		return FileInfo{}, domain.ErrNotFound
	}
	return toInfo(st), nil
}

// List returns the regular files of the root directory, newest first.
func (s *FileStore) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: list directory: %w", err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		st, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, toInfo(st))
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
	return files, nil
}

// ModifiedSince lists the names of files changed at or after t, newest first.
func (s *FileStore) ModifiedSince(t time.Time) ([]string, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		if !f.ModifiedAt.Before(t) {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// Delete removes key.
func (s *FileStore) Delete(key string) error {
	if _, err := s.Stat(key); err != nil {
		return err
	}
	full, _ := s.Path(key)
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

// Clear removes every regular file of the root directory and returns how many
// were deleted.
func (s *FileStore) Clear() (int, error) {
	files, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(filepath.Join(s.basePath, f.Name)); err != nil {
			return removed, fmt.Errorf("storage: delete %s: %w", f.Name, err)
		}
		removed++
	}
	return removed, nil
}

func toInfo(st fs.FileInfo) FileInfo {
	return FileInfo{
		Name:       st.Name(),
		Size:       st.Size(),
		HumanSize:  HumanSize(st.Size()),
		ModifiedAt: st.ModTime(),
		Path:       "/outputs/" + st.Name(),
	}
}

// HumanSize formats a byte count with one decimal, e.g. "1.5 KB".
func HumanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f TB", size)
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: key is required", domain.ErrInvalidKey)
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", domain.ErrInvalidKey
	}
	return cleaned, nil
}
