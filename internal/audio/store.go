// Package audio stores synthesized sentence audio keyed by problem set and sentence number.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// ErrAssetNotFound is returned when no asset exists for a key.
var ErrAssetNotFound = errors.New("audio asset not found")

// Key addresses one asset.
type Key struct {
	ProblemSetID uint
	Number       int
}

// Store is the Audio Asset Store. Existence of an asset is the only signal that synthesis completed for a sentence.
type Store interface {
	Put(ctx context.Context, key Key, data []byte) error
	Get(ctx context.Context, key Key) ([]byte, error)
	Exists(ctx context.Context, key Key) (bool, error)
	DeleteProblemSet(ctx context.Context, problemSetID uint) error
	ProblemSetExists(ctx context.Context, problemSetID uint) (bool, error)
}

// FileStore keeps assets under <root>/problem_<id>/sentence_<n>.<ext> on an afero filesystem.
type FileStore struct {
	fs   afero.Fs
	root string
	ext  string
}

// NewFileStore creates the root directory on the host filesystem if needed.
func NewFileStore(root, ext string) (*FileStore, error) {
	return NewFileStoreOn(afero.NewOsFs(), root, ext)
}

// NewFileStoreOn is NewFileStore over an arbitrary afero filesystem.
func NewFileStoreOn(fsys afero.Fs, root, ext string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("audio root must not be empty")
	}
	if ext == "" {
		ext = "mp3"
	}

	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create audio root: %w", err)
	}

	return &FileStore{fs: fsys, root: root, ext: strings.TrimPrefix(ext, ".")}, nil
}

// Dir returns the directory holding a problem set's assets.
func (s *FileStore) Dir(problemSetID uint) string {
	return filepath.Join(s.root, "problem_"+strconv.FormatUint(uint64(problemSetID), 10))
}

// Path returns the file path for an asset.
func (s *FileStore) Path(key Key) string {
	return filepath.Join(s.Dir(key.ProblemSetID), fmt.Sprintf("sentence_%d.%s", key.Number, s.ext))
}

// Put writes to a temp file in the target directory and renames it over the final path,
// so readers see either the previous asset or the new one, never a partial write.
func (s *FileStore) Put(_ context.Context, key Key, data []byte) error {
	if key.Number <= 0 {
		return fmt.Errorf("invalid sentence number %d", key.Number)
	}

	dir := s.Dir(key.ProblemSetID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create problem set dir: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".sentence-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp asset: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = s.fs.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp asset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp asset: %w", err)
	}

	if err := s.fs.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("publish asset: %w", err)
	}

	return nil
}

func (s *FileStore) Get(_ context.Context, key Key) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}

	return data, nil
}

func (s *FileStore) Exists(_ context.Context, key Key) (bool, error) {
	return s.exists(s.Path(key))
}

// DeleteProblemSet removes the whole problem set directory. Missing directories are not an error.
func (s *FileStore) DeleteProblemSet(_ context.Context, problemSetID uint) error {
	if err := s.fs.RemoveAll(s.Dir(problemSetID)); err != nil {
		return fmt.Errorf("remove audio dir: %w", err)
	}

	return nil
}

func (s *FileStore) ProblemSetExists(_ context.Context, problemSetID uint) (bool, error) {
	return s.exists(s.Dir(problemSetID))
}

func (s *FileStore) exists(path string) (bool, error) {
	_, err := s.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}
