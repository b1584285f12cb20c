package repository

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	domrepo "FinCast/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactNamesAreUnique(t *testing.T) {
	a := ArtifactName("bitcoin", 3)
	b := ArtifactName("bitcoin", 3)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^bitcoin_model_v3_[0-9a-f-]{36}\.json$`), a)
}

func TestFileArtifactStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	s := NewFileArtifactStore(dir)
	ctx := context.Background()

	p1, err := s.Write(ctx, "bitcoin", 1, []byte("one"))
	require.NoError(t, err)
	p2, err := s.Write(ctx, "bitcoin", 1, []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2, "a write never reuses a name")

	got, err := s.Read(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")

	require.NoError(t, s.Remove(ctx, p1))
	require.NoError(t, s.Remove(ctx, p1))
	_, err = s.Read(ctx, p1)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	_, err = s.Write(ctx, "../escape", 1, nil)
	assert.Error(t, err)
}
