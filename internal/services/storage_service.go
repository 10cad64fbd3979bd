package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/artcatalog/backend/internal/config"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	// registers the WebP decoder with image.Decode
	_ "golang.org/x/image/webp"
)

const (
	// MediaURLPrefix roots every web-facing media reference.
	MediaURLPrefix = "/media"
	ThumbsDir      = "thumbs"
	imageExt       = ".jpg"
	thumbSuffix    = "_thumb"
)

// StoredImage holds the web references of a stored image and its thumbnail.
type StoredImage struct {
	Path  string
	Thumb string
}

// MediaOptions bounds and encodes derived images.
type MediaOptions struct {
	MaxFullSize  int
	ThumbSize    int
	FullQuality  int
	ThumbQuality int
}

// DefaultMediaOptions matches the catalog's historical output.
func DefaultMediaOptions() MediaOptions {
	return MediaOptions{MaxFullSize: 1600, ThumbSize: 400, FullQuality: 90, ThumbQuality: 85}
}

// MediaMirror receives copies of stored media. Mirror failures never fail a store.
type MediaMirror interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// MediaStore persists images under the media root as a normalized full-size
// JPEG plus a thumbnail.
type MediaStore struct {
	root   string
	opts   MediaOptions
	mirror MediaMirror
}

func NewMediaStore(cfg *config.Config, mirror MediaMirror) (*MediaStore, error) {
	return NewMediaStoreWithOptions(cfg.MediaRoot, MediaOptions{
		MaxFullSize:  cfg.MediaMaxFullSize,
		ThumbSize:    cfg.MediaThumbSize,
		FullQuality:  cfg.MediaFullQuality,
		ThumbQuality: cfg.MediaThumbQuality,
	}, mirror)
}

func NewMediaStoreWithOptions(root string, opts MediaOptions, mirror MediaMirror) (*MediaStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	defaults := DefaultMediaOptions()
	if opts.MaxFullSize <= 0 {
		opts.MaxFullSize = defaults.MaxFullSize
	}
	if opts.ThumbSize <= 0 {
		opts.ThumbSize = defaults.ThumbSize
	}
	if opts.FullQuality <= 0 || opts.FullQuality > 100 {
		opts.FullQuality = defaults.FullQuality
	}
	if opts.ThumbQuality <= 0 || opts.ThumbQuality > 100 {
		opts.ThumbQuality = defaults.ThumbQuality
	}
	return &MediaStore{root: root, opts: opts, mirror: mirror}, nil
}

func (s *MediaStore) Root() string { return s.root }

// ArtworkDir is the media directory of an artwork, relative to the root.
func ArtworkDir(artworkID string) string {
	return path.Join(ArtworksDir, artworkID)
}

// Store writes data as {relDir}/{baseName}.jpg, then re-encodes it bounded by
// MaxFullSize and derives {relDir}/thumbs/{baseName}_thumb.jpg.
//
// Only a failure to write the original bytes is returned. When the bytes cannot
// be decoded or re-encoded the original stays in place and no thumbnail exists;
// the returned references are the same either way.
func (s *MediaStore) Store(ctx context.Context, data []byte, relDir, baseName string) (StoredImage, error) {
	relDir, err := cleanRel(relDir)
	if err != nil {
		return StoredImage{}, err
	}
	if baseName == "" || strings.ContainsAny(baseName, `/\`) {
		return StoredImage{}, fmt.Errorf("invalid media base name %q", baseName)
	}

	fullRel := path.Join(relDir, baseName+imageExt)
	thumbRel := path.Join(relDir, ThumbsDir, baseName+thumbSuffix+imageExt)

	if _, err := s.SaveStream(ctx, fullRel, bytes.NewReader(data)); err != nil {
		return StoredImage{}, fmt.Errorf("failed to write %s: %w", fullRel, err)
	}

	derived := true
	if err := s.derive(ctx, data, fullRel, thumbRel); err != nil {
		derived = false
		log.Warn().Err(err).Str("file", fullRel).Msg("image not processed, keeping original bytes without thumbnail")
		// a thumbnail left over from an earlier file of the same name would no longer match
		_ = os.Remove(s.abs(thumbRel))
	}

	s.mirrorFiles(ctx, fullRel, thumbRel, derived)

	return StoredImage{Path: Ref(fullRel), Thumb: Ref(thumbRel)}, nil
}

func (s *MediaStore) derive(ctx context.Context, data []byte, fullRel, thumbRel string) error {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	full := imaging.Fit(flatten(img), s.opts.MaxFullSize, s.opts.MaxFullSize, imaging.Lanczos)
	if err := s.saveJPEG(ctx, full, fullRel, s.opts.FullQuality); err != nil {
		return err
	}

	thumb := imaging.Fit(full, s.opts.ThumbSize, s.opts.ThumbSize, imaging.Lanczos)
	return s.saveJPEG(ctx, thumb, thumbRel, s.opts.ThumbQuality)
}

func (s *MediaStore) saveJPEG(ctx context.Context, img image.Image, rel string, quality int) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	if _, err := s.SaveStream(ctx, rel, &buf); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// flatten composes img over white so the result is opaque RGB.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// SaveStream writes r to rel under the media root through a temporary file and
// a rename, so readers never see a partial file. Returns the absolute path.
func (s *MediaStore) SaveStream(ctx context.Context, rel string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	absPath := s.abs(rel)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", err
	}

	tmp := absPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return absPath, nil
}

// EnsureDir creates relDir under the media root.
func (s *MediaStore) EnsureDir(relDir string) error {
	relDir, err := cleanRel(relDir)
	if err != nil {
		return err
	}
	return os.MkdirAll(s.abs(relDir), 0o755)
}

// Resolve maps a /media reference to a path under the root.
func (s *MediaStore) Resolve(ref string) (string, bool) {
	if !strings.HasPrefix(ref, MediaURLPrefix+"/") {
		return "", false
	}
	rel, err := cleanRel(strings.TrimPrefix(ref, MediaURLPrefix+"/"))
	if err != nil || rel == "." {
		return "", false
	}
	return s.abs(rel), true
}

// Exists reports whether ref resolves to an existing regular file.
func (s *MediaStore) Exists(ref string) bool {
	p, ok := s.Resolve(ref)
	if !ok {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes the file behind ref. A missing file is not an error.
func (s *MediaStore) Remove(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	p, ok := s.Resolve(ref)
	if !ok {
		return fmt.Errorf("media reference %q is outside the media root", ref)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if s.mirror != nil {
		key := strings.TrimPrefix(ref, MediaURLPrefix+"/")
		if err := s.mirror.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("media mirror delete failed")
		}
	}
	return nil
}

// PurgeDir removes everything inside relDir but keeps the directory itself, so
// the name stays reserved for the identifier allocator.
func (s *MediaStore) PurgeDir(ctx context.Context, relDir string) error {
	relDir, err := cleanRel(relDir)
	if err != nil {
		return err
	}
	dir := s.abs(relDir)

	if s.mirror != nil {
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel, rerr := filepath.Rel(s.root, p)
			if rerr != nil {
				return nil
			}
			key := filepath.ToSlash(rel)
			if derr := s.mirror.Delete(ctx, key); derr != nil {
				log.Warn().Err(derr).Str("key", key).Msg("media mirror delete failed")
			}
			return nil
		})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MediaStore) mirrorFiles(ctx context.Context, fullRel, thumbRel string, withThumb bool) {
	if s.mirror == nil {
		return
	}
	rels := []string{fullRel}
	if withThumb {
		rels = append(rels, thumbRel)
	}
	for _, rel := range rels {
		data, err := os.ReadFile(s.abs(rel))
		if err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("media mirror read failed")
			continue
		}
		if err := s.mirror.Put(ctx, rel, data, "image/jpeg"); err != nil {
			log.Warn().Err(err).Str("key", rel).Msg("media mirror upload failed")
		}
	}
}

func (s *MediaStore) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Ref builds the web reference for a path relative to the media root.
func Ref(rel string) string {
	return MediaURLPrefix + "/" + strings.TrimPrefix(rel, "/")
}

// ThumbRef returns the thumbnail reference Store derives for a full-size reference.
func ThumbRef(ref string) string {
	dir, file := path.Split(ref)
	base := strings.TrimSuffix(file, path.Ext(file))
	return dir + ThumbsDir + "/" + base + thumbSuffix + imageExt
}

func cleanRel(rel string) (string, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("media path %q escapes the media root", rel)
	}
	return rel, nil
}
