package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ArtworksDir is the media subdirectory holding one directory per artwork.
const ArtworksDir = "artworks"

// ListFunc enumerates names already in use.
type ListFunc func() ([]string, error)

// IdentifierAllocator derives the next artwork identifier from the names of the
// per-artwork media directories.
//
// NextID is not safe against concurrent callers: two calls that scan the same
// snapshot return the same identifier. ArtworkService serializes allocation
// together with directory reservation through a Locker.
type IdentifierAllocator struct {
	list ListFunc
}

// NewIdentifierAllocator scans mediaRoot/artworks.
func NewIdentifierAllocator(mediaRoot string) *IdentifierAllocator {
	return NewIdentifierAllocatorWithList(DirList(filepath.Join(mediaRoot, ArtworksDir)))
}

func NewIdentifierAllocatorWithList(list ListFunc) *IdentifierAllocator {
	return &IdentifierAllocator{list: list}
}

// NextID returns max(used)+1 formatted as an artwork identifier, or A0001 when
// nothing is in use. Freed numbers below the maximum are never reused.
func (a *IdentifierAllocator) NextID() (string, error) {
	names, err := a.list()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate artwork ids: %w", err)
	}
	highest := 0
	for _, name := range names {
		if n, ok := ParseArtworkNumber(name); ok && n > highest {
			highest = n
		}
	}
	return FormatArtworkID(highest + 1), nil
}

// FormatArtworkID renders n as "A" followed by at least four digits.
func FormatArtworkID(n int) string {
	return fmt.Sprintf("A%04d", n)
}

// ParseArtworkNumber extracts the sequence number from an allocated identifier.
// A name qualifies when it starts with "A" followed by at least four digits;
// the whole digit run is the number.
func ParseArtworkNumber(name string) (int, bool) {
	if len(name) < 5 || name[0] != 'A' {
		return 0, false
	}
	end := 1
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end < 5 {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// DirList lists the subdirectory names of dir. A missing directory is empty.
func DirList(dir string) ListFunc {
	return func() ([]string, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		return names, nil
	}
}
