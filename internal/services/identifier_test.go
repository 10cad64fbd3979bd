package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticList(names ...string) ListFunc {
	return func() ([]string, error) { return names, nil }
}

func TestNextID(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"empty store", nil, "A0001"},
		{"single", []string{"A0001"}, "A0002"},
		{"gaps are not filled", []string{"A0001", "A0003"}, "A0004"},
		{"foreign names ignored", []string{"notes", "A12", "Axxxx", "B0099", "A0002"}, "A0003"},
		{"suffix after digits", []string{"A0041-old"}, "A0042"},
		{"wider than four digits", []string{"A9999", "A10000"}, "A10001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewIdentifierAllocatorWithList(staticList(tt.names...)).NextID()
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestNextIDListError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := NewIdentifierAllocatorWithList(func() ([]string, error) { return nil, boom }).NextID()
	assert.ErrorIs(t, err, boom)
}

func TestNextIDScansMediaDirectories(t *testing.T) {
	root := t.TempDir()
	alloc := NewIdentifierAllocator(root)

	id, err := alloc.NextID()
	require.NoError(t, err)
	assert.Equal(t, "A0001", id, "missing artworks dir counts as empty")

	require.NoError(t, os.MkdirAll(filepath.Join(root, ArtworksDir, "A0005"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ArtworksDir, "A0009"), []byte("a file, not a dir"), 0o644))

	id, err = alloc.NextID()
	require.NoError(t, err)
	assert.Equal(t, "A0006", id)
}

// Without a lock and without reserving the directory, two allocations on the
// same snapshot return the same identifier.
func TestNextIDRacesWithoutReservation(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ArtworksDir, "A0001"), 0o755))

	first, err := NewIdentifierAllocator(root).NextID()
	require.NoError(t, err)
	second, err := NewIdentifierAllocator(root).NextID()
	require.NoError(t, err)

	assert.Equal(t, "A0002", first)
	assert.Equal(t, first, second)
}

func TestParseArtworkNumber(t *testing.T) {
	n, ok := ParseArtworkNumber("A0042")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	for _, name := range []string{"", "A", "A001", "a0001", "X0001", "A00x1"} {
		_, ok := ParseArtworkNumber(name)
		assert.False(t, ok, name)
	}
}

func TestFormatArtworkID(t *testing.T) {
	assert.Equal(t, "A0001", FormatArtworkID(1))
	assert.Equal(t, "A0123", FormatArtworkID(123))
	assert.Equal(t, "A12345", FormatArtworkID(12345))
}
