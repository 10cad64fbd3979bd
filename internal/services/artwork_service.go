package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/artcatalog/backend/internal/models"
	"github.com/artcatalog/backend/pkg/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 24
	maxPageSize     = 100
)

// ArtworkFields are the descriptive fields shared by create and full updates.
type ArtworkFields struct {
	Title           string
	ArtistName      string
	Year            string
	Medium          string
	Surface         string
	Series          string
	Style           string
	Edition         string
	SubjectKeywords string
	Provenance      string
	Location        string
	InventoryCode   string
	Description     string

	WidthMM        int
	HeightMM       int
	DepthMM        int
	FramedWidthMM  int
	FramedHeightMM int
	FramedDepthMM  int
}

type CreateArtworkInput struct {
	// ArtworkID is optional; an identifier is allocated when empty.
	ArtworkID string
	ArtworkFields
	PrimaryImage *ImagePayload
}

// ArtworkPatch replaces only the non-nil fields.
type ArtworkPatch struct {
	Title           *string
	ArtistName      *string
	Year            *string
	Medium          *string
	Surface         *string
	Series          *string
	Style           *string
	Edition         *string
	SubjectKeywords *string
	Provenance      *string
	Location        *string
	InventoryCode   *string
	Description     *string

	WidthMM        *int
	HeightMM       *int
	DepthMM        *int
	FramedWidthMM  *int
	FramedHeightMM *int
	FramedDepthMM  *int
}

// ArtworkFilter narrows List. Text filters other than Q match exactly; Q is a
// case-insensitive substring match over the descriptive fields.
type ArtworkFilter struct {
	Q        string
	Medium   string
	Series   string
	Style    string
	Location string
	Artist   string
	YearFrom string
	YearTo   string

	MinWidthMM  *int
	MaxWidthMM  *int
	MinHeightMM *int
	MaxHeightMM *int
	MinDepthMM  *int
	MaxDepthMM  *int

	Page  int
	Limit int
}

type ArtworkServiceOptions struct {
	Allocator     *IdentifierAllocator
	Sequencer     *ImageSequencer
	Locker        Locker
	Payloads      *PayloadResolver
	DefaultArtist string
}

// ArtworkService owns the artwork lifecycle and the artwork's image collection.
type ArtworkService struct {
	db            *gorm.DB
	store         *MediaStore
	alloc         *IdentifierAllocator
	seq           *ImageSequencer
	locker        Locker
	payloads      *PayloadResolver
	defaultArtist string
}

func NewArtworkService(db *gorm.DB, store *MediaStore, opts ArtworkServiceOptions) *ArtworkService {
	s := &ArtworkService{
		db:            db,
		store:         store,
		alloc:         opts.Allocator,
		seq:           opts.Sequencer,
		locker:        opts.Locker,
		payloads:      opts.Payloads,
		defaultArtist: strings.TrimSpace(opts.DefaultArtist),
	}
	if s.alloc == nil {
		s.alloc = NewIdentifierAllocator(store.Root())
	}
	if s.seq == nil {
		s.seq = NewImageSequencer()
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.payloads == nil {
		s.payloads = NewPayloadResolverWithClient(nil, 0)
	}
	return s
}

// Create validates input, assigns an identifier, reserves the media directory,
// stores the optional cover image and inserts the artwork row.
func (s *ArtworkService) Create(ctx context.Context, in CreateArtworkInput) (*models.Artwork, error) {
	fields := sanitizeFields(in.ArtworkFields)
	if fields.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "is required"}
	}
	if fields.ArtistName == "" {
		fields.ArtistName = s.defaultArtist
	}

	explicitID := strings.TrimSpace(in.ArtworkID)
	if explicitID != "" && !validation.ValidateArtworkID(explicitID) {
		return nil, &ValidationError{Field: "artwork_id", Reason: "may only contain letters, digits, '.', '_' and '-'"}
	}

	var primary []byte
	if in.PrimaryImage != nil && !in.PrimaryImage.Empty() {
		data, err := s.payloads.Bytes(ctx, *in.PrimaryImage)
		if err != nil {
			return nil, err
		}
		primary = data
	}

	unlock, err := s.locker.Lock(ctx, allocLockKey(s.store.Root()))
	if err != nil {
		return nil, fmt.Errorf("failed to lock identifier allocation: %w", err)
	}
	defer unlock()

	id := explicitID
	if id == "" {
		if id, err = s.allocate(ctx); err != nil {
			return nil, err
		}
	} else {
		exists, err := s.exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &ConflictError{ID: id}
		}
	}

	dir := ArtworkDir(id)
	if err := s.store.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create media directory for %s: %w", id, err)
	}

	artwork := newArtwork(id, fields)

	var cover *models.Image
	if primary != nil {
		stored, err := s.store.Store(ctx, primary, dir, FrontBaseName(id))
		if err != nil {
			return nil, err
		}
		artwork.PrimaryImage = stored.Path
		cover = &models.Image{
			ArtworkID:  id,
			Path:       stored.Path,
			Thumb:      stored.Thumb,
			View:       models.ImageViewPrimary,
			OrderIndex: 0,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(artwork).Error; err != nil {
			return err
		}
		if cover != nil {
			return tx.Create(cover).Error
		}
		return nil
	})
	if err != nil {
		return nil, wrapDBError(err, "create artwork", "artwork", id)
	}

	log.Info().Str("artwork_id", id).Str("title", artwork.Title).Msg("artwork created")
	return s.Get(ctx, id)
}

// allocate returns the next free identifier. Numbers still held by catalog rows
// whose media directory went missing are skipped.
func (s *ArtworkService) allocate(ctx context.Context) (string, error) {
	id, err := s.alloc.NextID()
	if err != nil {
		return "", err
	}
	n, _ := ParseArtworkNumber(id)
	for {
		exists, err := s.exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		n++
		id = FormatArtworkID(n)
	}
}

func (s *ArtworkService) exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Artwork{}).Where("artwork_id = ?", id).Count(&count).Error; err != nil {
		return false, wrapDBError(err, "lookup artwork", "artwork", id)
	}
	return count > 0, nil
}

// Get returns the artwork with its images in stored order.
func (s *ArtworkService) Get(ctx context.Context, id string) (*models.Artwork, error) {
	var artwork models.Artwork
	err := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, created_at ASC")
		}).
		Where("artwork_id = ?", id).
		First(&artwork).Error
	if err != nil {
		return nil, wrapDBError(err, "get artwork", "artwork", id)
	}
	return &artwork, nil
}

func (s *ArtworkService) find(ctx context.Context, tx *gorm.DB, id string) (*models.Artwork, error) {
	var artwork models.Artwork
	if err := tx.WithContext(ctx).Where("artwork_id = ?", id).First(&artwork).Error; err != nil {
		return nil, wrapDBError(err, "get artwork", "artwork", id)
	}
	return &artwork, nil
}

// List returns one page of artworks, newest first, and the total match count.
func (s *ArtworkService) List(ctx context.Context, f ArtworkFilter) ([]models.Artwork, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Artwork{})

	if q := strings.ToLower(strings.TrimSpace(f.Q)); q != "" {
		like := "%" + q + "%"
		cols := []string{
			"title", "artist_name", "medium", "surface", "series", "style",
			"subject_keywords", "description", "provenance", "location", "inventory_code",
		}
		conds := make([]string, len(cols))
		args := make([]interface{}, len(cols))
		for i, c := range cols {
			conds[i] = "LOWER(" + c + ") LIKE ?"
			args[i] = like
		}
		query = query.Where("("+strings.Join(conds, " OR ")+")", args...)
	}

	exact := map[string]string{
		"medium":      f.Medium,
		"series":      f.Series,
		"style":       f.Style,
		"location":    f.Location,
		"artist_name": f.Artist,
	}
	for _, col := range []string{"medium", "series", "style", "location", "artist_name"} {
		if v := strings.TrimSpace(exact[col]); v != "" {
			query = query.Where(col+" = ?", v)
		}
	}

	if v := strings.TrimSpace(f.YearFrom); v != "" {
		query = query.Where("year >= ?", v)
	}
	if v := strings.TrimSpace(f.YearTo); v != "" {
		query = query.Where("year <= ?", v)
	}

	bounds := []struct {
		col string
		op  string
		v   *int
	}{
		{"width_mm", ">=", f.MinWidthMM},
		{"width_mm", "<=", f.MaxWidthMM},
		{"height_mm", ">=", f.MinHeightMM},
		{"height_mm", "<=", f.MaxHeightMM},
		{"depth_mm", ">=", f.MinDepthMM},
		{"depth_mm", "<=", f.MaxDepthMM},
	}
	for _, b := range bounds {
		if b.v != nil {
			query = query.Where(b.col+" "+b.op+" ?", *b.v)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError(err, "count artworks", "artwork", "")
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var artworks []models.Artwork
	if err := query.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&artworks).Error; err != nil {
		return nil, 0, wrapDBError(err, "list artworks", "artwork", "")
	}
	return artworks, total, nil
}

// Update applies patch to the artwork's descriptive fields. The identifier,
// creation time and images are never touched.
func (s *ArtworkService) Update(ctx context.Context, id string, patch ArtworkPatch) (*models.Artwork, error) {
	artwork, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	oldTitle, oldArtist := artwork.Title, artwork.ArtistName

	if patch.Title != nil {
		title := validation.SanitizeText(*patch.Title)
		if title == "" {
			return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
		}
		artwork.Title = title
	}

	texts := []struct {
		src *string
		dst *string
	}{
		{patch.ArtistName, &artwork.ArtistName},
		{patch.Year, &artwork.Year},
		{patch.Medium, &artwork.Medium},
		{patch.Surface, &artwork.Surface},
		{patch.Series, &artwork.Series},
		{patch.Style, &artwork.Style},
		{patch.Edition, &artwork.Edition},
		{patch.SubjectKeywords, &artwork.SubjectKeywords},
		{patch.Provenance, &artwork.Provenance},
		{patch.Location, &artwork.Location},
		{patch.InventoryCode, &artwork.InventoryCode},
		{patch.Description, &artwork.Description},
	}
	for _, t := range texts {
		if t.src != nil {
			*t.dst = validation.SanitizeText(*t.src)
		}
	}

	nums := []struct {
		src *int
		dst *int
	}{
		{patch.WidthMM, &artwork.WidthMM},
		{patch.HeightMM, &artwork.HeightMM},
		{patch.DepthMM, &artwork.DepthMM},
		{patch.FramedWidthMM, &artwork.FramedWidthMM},
		{patch.FramedHeightMM, &artwork.FramedHeightMM},
		{patch.FramedDepthMM, &artwork.FramedDepthMM},
	}
	for _, n := range nums {
		if n.src != nil {
			*n.dst = nonNegative(*n.src)
		}
	}

	if artwork.Title != oldTitle || artwork.ArtistName != oldArtist {
		artwork.WebSlug = MakeSlug(artwork.Title, artwork.ArtistName)
	}

	if err := s.db.WithContext(ctx).Save(artwork).Error; err != nil {
		return nil, wrapDBError(err, "update artwork", "artwork", id)
	}
	return s.Get(ctx, id)
}

// AttachImages stores each payload as the next detail image of the artwork.
// Indices come from a single directory scan and increase by one per payload.
// When the artwork has no cover yet, the first attached image becomes it.
func (s *ArtworkService) AttachImages(ctx context.Context, id string, payloads []ImagePayload, view string) ([]models.Image, error) {
	if len(payloads) == 0 {
		return nil, &ValidationError{Field: "images", Reason: "at least one image is required"}
	}
	if _, err := s.find(ctx, s.db, id); err != nil {
		return nil, err
	}

	blobs := make([][]byte, 0, len(payloads))
	for _, p := range payloads {
		data, err := s.payloads.Bytes(ctx, p)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, data)
	}

	unlock, err := s.locker.Lock(ctx, artworkLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock artwork %s: %w", id, err)
	}
	defer unlock()

	// re-read under the lock; the cover may have been set meanwhile
	artwork, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	dir := ArtworkDir(id)
	if err := s.store.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create media directory for %s: %w", id, err)
	}
	next, err := s.seq.NextDetailIndex(filepath.Join(s.store.Root(), filepath.FromSlash(dir)), id)
	if err != nil {
		return nil, err
	}

	view = strings.TrimSpace(view)
	newCover := ""
	images := make([]models.Image, 0, len(blobs))
	for i, data := range blobs {
		idx := next + i
		stored, err := s.store.Store(ctx, data, dir, DetailBaseName(id, idx))
		if err != nil {
			return nil, err
		}

		img := models.Image{
			ArtworkID:  id,
			Path:       stored.Path,
			Thumb:      stored.Thumb,
			View:       view,
			OrderIndex: idx,
		}
		if i == 0 && artwork.PrimaryImage == "" {
			newCover = stored.Path
			if img.View == "" {
				img.View = models.ImageViewPrimary
			}
		}
		if img.View == "" {
			img.View = models.ImageViewDetail
		}
		images = append(images, img)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&images).Error; err != nil {
			return err
		}
		if newCover != "" {
			return tx.Model(&models.Artwork{}).Where("artwork_id = ?", id).Update("primary_image", newCover).Error
		}
		return nil
	})
	if err != nil {
		return nil, wrapDBError(err, "attach images", "artwork", id)
	}

	log.Info().Str("artwork_id", id).Int("count", len(images)).Int("first_index", next).Msg("images attached")
	return images, nil
}

// Images lists the artwork's images in stored order.
func (s *ArtworkService) Images(ctx context.Context, id string) ([]models.Image, error) {
	if _, err := s.find(ctx, s.db, id); err != nil {
		return nil, err
	}
	var images []models.Image
	if err := s.db.WithContext(ctx).
		Where("artwork_id = ?", id).
		Order("order_index ASC, created_at ASC").
		Find(&images).Error; err != nil {
		return nil, wrapDBError(err, "list images", "artwork", id)
	}
	return images, nil
}

func (s *ArtworkService) findImage(ctx context.Context, artworkID, imageID string) (*models.Image, error) {
	uid, err := uuid.Parse(imageID)
	if err != nil {
		return nil, &NotFoundError{Kind: "image", ID: imageID}
	}
	var img models.Image
	if err := s.db.WithContext(ctx).Where("id = ? AND artwork_id = ?", uid, artworkID).First(&img).Error; err != nil {
		return nil, wrapDBError(err, "get image", "image", imageID)
	}
	return &img, nil
}

// MakePrimary points the artwork's cover at the image. Image rows are left as
// they are, so an older row may still carry view "primary".
func (s *ArtworkService) MakePrimary(ctx context.Context, id, imageID string) (*models.Artwork, error) {
	artwork, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	img, err := s.findImage(ctx, id, imageID)
	if err != nil {
		return nil, err
	}

	if artwork.PrimaryImage != img.Path {
		if err := s.db.WithContext(ctx).Model(&models.Artwork{}).
			Where("artwork_id = ?", id).
			Update("primary_image", img.Path).Error; err != nil {
			return nil, wrapDBError(err, "make primary", "artwork", id)
		}
	}
	return s.Get(ctx, id)
}

// DeleteImage removes the image row and then its files. Missing files are fine.
func (s *ArtworkService) DeleteImage(ctx context.Context, id, imageID string) error {
	if _, err := s.find(ctx, s.db, id); err != nil {
		return err
	}
	img, err := s.findImage(ctx, id, imageID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Image{}, "id = ?", img.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Artwork{}).
			Where("artwork_id = ? AND primary_image = ?", id, img.Path).
			Update("primary_image", "").Error
	})
	if err != nil {
		return wrapDBError(err, "delete image", "image", imageID)
	}

	for _, ref := range []string{img.Path, img.Thumb} {
		if err := s.store.Remove(ctx, ref); err != nil {
			log.Warn().Err(err).Str("artwork_id", id).Str("ref", ref).Msg("failed to remove image file")
		}
	}
	return nil
}

// Delete removes the artwork and its image rows in one transaction, then clears
// the media directory. Disk cleanup failures are logged and otherwise ignored.
func (s *ArtworkService) Delete(ctx context.Context, id string) error {
	unlock, err := s.locker.Lock(ctx, artworkLockKey(id))
	if err != nil {
		return fmt.Errorf("failed to lock artwork %s: %w", id, err)
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.find(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.Where("artwork_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return err
		}
		return tx.Where("artwork_id = ?", id).Delete(&models.Artwork{}).Error
	})
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return err
		}
		return wrapDBError(err, "delete artwork", "artwork", id)
	}

	if err := s.store.PurgeDir(ctx, ArtworkDir(id)); err != nil {
		log.Warn().Err(err).Str("artwork_id", id).Msg("failed to purge media directory")
	}
	log.Info().Str("artwork_id", id).Msg("artwork deleted")
	return nil
}

func newArtwork(id string, f ArtworkFields) *models.Artwork {
	edition := f.Edition
	if edition == "" {
		edition = "Unique"
	}
	return &models.Artwork{
		ArtworkID:       id,
		Title:           f.Title,
		ArtistName:      f.ArtistName,
		Year:            f.Year,
		Medium:          f.Medium,
		Surface:         f.Surface,
		Series:          f.Series,
		Style:           f.Style,
		Edition:         edition,
		SubjectKeywords: f.SubjectKeywords,
		Provenance:      f.Provenance,
		Location:        f.Location,
		InventoryCode:   f.InventoryCode,
		Description:     f.Description,
		WidthMM:         nonNegative(f.WidthMM),
		HeightMM:        nonNegative(f.HeightMM),
		DepthMM:         nonNegative(f.DepthMM),
		FramedWidthMM:   nonNegative(f.FramedWidthMM),
		FramedHeightMM:  nonNegative(f.FramedHeightMM),
		FramedDepthMM:   nonNegative(f.FramedDepthMM),
		WebSlug:         MakeSlug(f.Title, f.ArtistName),
	}
}

func sanitizeFields(f ArtworkFields) ArtworkFields {
	for _, p := range []*string{
		&f.Title, &f.ArtistName, &f.Year, &f.Medium, &f.Surface, &f.Series, &f.Style,
		&f.Edition, &f.SubjectKeywords, &f.Provenance, &f.Location, &f.InventoryCode, &f.Description,
	} {
		*p = validation.SanitizeText(*p)
	}
	return f
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
