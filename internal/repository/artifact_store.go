package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	domrepo "FinCast/internal/domain/repository"

	"github.com/google/uuid"
)

var _ domrepo.ArtifactStore = (*FileArtifactStore)(nil)

// FileArtifactStore keeps one file per model version under dir. Every write
// gets a fresh name, so a file is never overwritten.
type FileArtifactStore struct {
	dir string
}

func NewFileArtifactStore(dir string) *FileArtifactStore {
	return &FileArtifactStore{dir: dir}
}

// ArtifactName returns the file name for a new artifact.
func ArtifactName(externalID string, version int) string {
	return fmt.Sprintf("%s_model_v%d_%s.json", externalID, version, uuid.NewString())
}

func (s *FileArtifactStore) Write(ctx context.Context, externalID string, version int, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if externalID == "" || strings.ContainsAny(externalID, `/\`) || strings.Contains(externalID, "..") {
		return "", fmt.Errorf("invalid artifact asset id %q", externalID)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	path := filepath.Join(s.dir, ArtifactName(externalID, version))
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return path, nil
}

func (s *FileArtifactStore) Read(_ context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", filepath.Base(path), domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return b, nil
}

// Remove deletes an artifact. Missing files are not an error.
func (s *FileArtifactStore) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}
