package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileContents is the on-disk YAML document.
type fileContents struct {
	APIKey string `yaml:"api_key"`
}

// FileStore keeps the key in a YAML file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore at path. A leading "~/" is expanded to the
// user's home directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credential: file store path is empty")
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("credential: expand %q: %w", path, err)
		}
		path = filepath.Join(home, rest)
	}
	return &FileStore{path: path}, nil
}

// Path returns the resolved file path.
func (s *FileStore) Path() string { return s.path }

// Save writes key atomically with mode 0600, creating parent directories with
// mode 0700.
func (s *FileStore) Save(_ context.Context, key string) error {
	if !Validate(key) {
		return ErrInvalid
	}
	data, err := yaml.Marshal(fileContents{APIKey: key})
	if err != nil {
		return fmt.Errorf("credential: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credential: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("credential: save: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: save: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("credential: save: %w", err)
	}
	return nil
}

// Get reads the key from disk.
func (s *FileStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credential: read %s: %w", s.path, err)
	}
	var c fileContents
	if err := yaml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("credential: parse %s: %w", s.path, err)
	}
	if c.APIKey == "" {
		return "", ErrNotFound
	}
	return c.APIKey, nil
}

// Remove deletes the file.
func (s *FileStore) Remove(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credential: remove %s: %w", s.path, err)
	}
	return nil
}
