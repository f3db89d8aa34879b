package service

import (
	"courseforge_backend/internal/config"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageSaveAndRead(t *testing.T) {
	root := t.TempDir()
	s := NewStorageService(&config.StorageConfig{Type: "local", ContentRoot: root})

	rel, err := s.SaveArtifact("go-basics/01.md", "# Lesson One\n\nbody text")
	require.NoError(t, err)
	assert.Equal(t, "go-basics/01.md", rel)

	got, err := s.ReadArtifact(rel)
	require.NoError(t, err)
	assert.Equal(t, "# Lesson One\n\nbody text", got)

	_, err = os.Stat(filepath.Join(root, "go-basics", "01.md"))
	assert.NoError(t, err)
}

func TestStorageOverwrite(t *testing.T) {
	s := NewStorageService(&config.StorageConfig{Type: "local", ContentRoot: t.TempDir()})

	_, err := s.SaveArtifact("m/01.md", "first version")
	require.NoError(t, err)
	_, err = s.SaveArtifact("m/01.md", "second version")
	require.NoError(t, err)

	got, err := s.ReadArtifact("m/01.md")
	require.NoError(t, err)
	assert.Equal(t, "second version", got)
}

func TestStorageRemoveDir(t *testing.T) {
	root := t.TempDir()
	s := NewStorageService(&config.StorageConfig{Type: "local", ContentRoot: root})

	_, err := s.SaveArtifact("doomed/01.md", "x")
	require.NoError(t, err)
	_, err = s.SaveArtifact("survivor/01.md", "y")
	require.NoError(t, err)

	require.NoError(t, s.RemoveDir("doomed"))

	_, err = os.Stat(filepath.Join(root, "doomed"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "survivor", "01.md"))
	assert.NoError(t, err)
}

func TestStorageRemoveDirGuardsRoot(t *testing.T) {
	root := t.TempDir()
	s := NewStorageService(&config.StorageConfig{Type: "local", ContentRoot: root})

	_, err := s.SaveArtifact("keep/01.md", "x")
	require.NoError(t, err)

	require.NoError(t, s.RemoveDir(""))
	require.NoError(t, s.RemoveDir("."))
	require.NoError(t, s.RemoveDir("../outside"))

	_, err = os.Stat(filepath.Join(root, "keep", "01.md"))
	assert.NoError(t, err, "guard paths must not delete anything")
}
