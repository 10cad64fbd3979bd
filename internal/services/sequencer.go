package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileListFunc lists file names inside dir.
type FileListFunc func(dir string) ([]string, error)

// ImageSequencer computes ordinal positions for detail images.
// The on-disk suffix and Image.OrderIndex come from the same number.
type ImageSequencer struct {
	list FileListFunc
}

func NewImageSequencer() *ImageSequencer {
	return &ImageSequencer{list: listFiles}
}

func NewImageSequencerWithList(list FileListFunc) *ImageSequencer {
	return &ImageSequencer{list: list}
}

// NextDetailIndex returns max(N)+1 over files named {artworkID}_detail{N}.jpg in
// dir, or 1 when there are none.
func (s *ImageSequencer) NextDetailIndex(dir, artworkID string) (int, error) {
	names, err := s.list(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	prefix := artworkID + "_detail"
	highest := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".jpg")
		if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
			continue
		}
		if n, err := strconv.Atoi(digits); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// DetailBaseName is the file base name of the n-th detail image.
func DetailBaseName(artworkID string, n int) string {
	return fmt.Sprintf("%s_detail%d", artworkID, n)
}

// FrontBaseName is the file base name of the cover image supplied at creation.
func FrontBaseName(artworkID string) string {
	return artworkID + "_front"
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
