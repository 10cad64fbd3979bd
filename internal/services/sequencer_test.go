package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDetailIndex(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  int
	}{
		{"no files", nil, 1},
		{"front only", []string{"A0007_front.jpg"}, 1},
		{"max plus one", []string{"A0007_detail1.jpg", "A0007_detail3.jpg", "A0007_detail2.jpg"}, 4},
		{"other artworks ignored", []string{"A0008_detail9.jpg", "A0007_detail1.jpg"}, 2},
		{"non matching names ignored", []string{"A0007_detailX.jpg", "A0007_detail5.png", "A0007_detail6_thumb.jpg"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := NewImageSequencerWithList(func(string) ([]string, error) { return tt.files, nil })
			n, err := seq.NextDetailIndex("unused", "A0007")
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNextDetailIndexOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "A0002")
	seq := NewImageSequencer()

	n, err := seq.NextDetailIndex(dir, "A0002")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "missing directory counts as empty")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ThumbsDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "A0002_detail2.jpg"), []byte("x"), 0o644))

	n, err = seq.NextDetailIndex(dir, "A0002")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNextDetailIndexListError(t *testing.T) {
	seq := NewImageSequencerWithList(func(string) ([]string, error) { return nil, errors.New("denied") })
	_, err := seq.NextDetailIndex("dir", "A0001")
	assert.Error(t, err)
}

func TestBaseNames(t *testing.T) {
	assert.Equal(t, "A0007_detail3", DetailBaseName("A0007", 3))
	assert.Equal(t, "A0007_front", FrontBaseName("A0007"))
}
