package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artcatalog/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createArtwork(t *testing.T, svc *ArtworkService, title string) *models.Artwork {
	t.Helper()
	a, err := svc.Create(context.Background(), CreateArtworkInput{ArtworkFields: ArtworkFields{Title: title}})
	require.NoError(t, err)
	return a
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestCreateAllocatesSequentialIDs(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)

	a := createArtwork(t, svc, "First")
	b := createArtwork(t, svc, "Second")

	assert.Equal(t, "A0001", a.ArtworkID)
	assert.Equal(t, "A0002", b.ArtworkID)
	assert.DirExists(t, filepath.Join(store.Root(), "artworks", "A0001"))
	assert.DirExists(t, filepath.Join(store.Root(), "artworks", "A0002"))
}

func TestCreateDefaults(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t)
	svc := NewArtworkService(db, store, ArtworkServiceOptions{DefaultArtist: "Studio"})

	a, err := svc.Create(context.Background(), CreateArtworkInput{
		ArtworkFields: ArtworkFields{
			Title:       "  Blue Horizon\x00 ",
			Description: "Oil & sand\r\nsecond line",
			WidthMM:     -5,
			HeightMM:    800,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Blue Horizon", a.Title)
	assert.Equal(t, "Studio", a.ArtistName)
	assert.Equal(t, "Unique", a.Edition)
	assert.Equal(t, "Oil & sand\nsecond line", a.Description)
	assert.Equal(t, 0, a.WidthMM)
	assert.Equal(t, 800, a.HeightMM)
	assert.Equal(t, "blue-horizon-studio", a.WebSlug)
	assert.Empty(t, a.PrimaryImage)
	assert.Empty(t, a.Images)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestTextIsStoredAsTyped(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateArtworkInput{ArtworkFields: ArtworkFields{
		Title:       "Study <untitled>",
		Description: "keep <this> text",
		Provenance:  "<b>Gift</b> of the artist",
	}})
	require.NoError(t, err)

	got, err := svc.Get(ctx, a.ArtworkID)
	require.NoError(t, err)
	assert.Equal(t, "Study <untitled>", got.Title)
	assert.Equal(t, "keep <this> text", got.Description)
	assert.Equal(t, "<b>Gift</b> of the artist", got.Provenance)

	updated, err := svc.Update(ctx, a.ArtworkID, ArtworkPatch{Title: strPtr(" a<b ")})
	require.NoError(t, err)
	assert.Equal(t, "a<b", updated.Title)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateArtworkInput
		field string
	}{
		{"missing title", CreateArtworkInput{}, "title"},
		{"blank title", CreateArtworkInput{ArtworkFields: ArtworkFields{Title: " \x00\t "}}, "title"},
		{"path in id", CreateArtworkInput{ArtworkID: "../etc", ArtworkFields: ArtworkFields{Title: "x"}}, "artwork_id"},
		{"slash in id", CreateArtworkInput{ArtworkID: "a/b", ArtworkFields: ArtworkFields{Title: "x"}}, "artwork_id"},
		{"bad base64", CreateArtworkInput{ArtworkFields: ArtworkFields{Title: "x"}, PrimaryImage: &ImagePayload{Base64: "%%%"}}, "image_base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, total, err := svc.List(ctx, ArtworkFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "nothing is persisted for invalid input")
}

func TestCreateExplicitID(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateArtworkInput{ArtworkID: "LEGACY-17", ArtworkFields: ArtworkFields{Title: "Old"}})
	require.NoError(t, err)
	assert.Equal(t, "LEGACY-17", a.ArtworkID)
	assert.DirExists(t, filepath.Join(store.Root(), "artworks", "LEGACY-17"))

	_, err = svc.Create(ctx, CreateArtworkInput{ArtworkID: "LEGACY-17", ArtworkFields: ArtworkFields{Title: "Again"}})
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	b := createArtwork(t, svc, "Allocated")
	assert.Equal(t, "A0001", b.ArtworkID, "non-matching directories are ignored by allocation")
}

func TestCreateSkipsIDsStillInCatalog(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)

	a := createArtwork(t, svc, "First")
	require.NoError(t, os.RemoveAll(filepath.Join(store.Root(), "artworks", a.ArtworkID)))

	b := createArtwork(t, svc, "Second")
	assert.Equal(t, "A0002", b.ArtworkID)
}

func TestCreateWithPrimaryImage(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)

	a, err := svc.Create(context.Background(), CreateArtworkInput{
		ArtworkFields: ArtworkFields{Title: "Cover"},
		PrimaryImage:  &ImagePayload{Data: jpegBytes(t, 640, 480)},
	})
	require.NoError(t, err)

	assert.Equal(t, "/media/artworks/A0001/A0001_front.jpg", a.PrimaryImage)
	assert.True(t, store.Exists(a.PrimaryImage))
	require.Len(t, a.Images, 1)
	assert.Equal(t, models.ImageViewPrimary, a.Images[0].View)
	assert.Equal(t, 0, a.Images[0].OrderIndex)
	assert.Equal(t, "/media/artworks/A0001/thumbs/A0001_front_thumb.jpg", a.Images[0].Thumb)

	imgs, err := svc.AttachImages(context.Background(), a.ArtworkID, []ImagePayload{{Data: jpegBytes(t, 50, 50)}}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, imgs[0].OrderIndex, "the front image does not count as a detail index")
	assert.Equal(t, models.ImageViewDetail, imgs[0].View)
}

func TestCreateIsMonotonicAfterDelete(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()

	createArtwork(t, svc, "One")
	b := createArtwork(t, svc, "Two")
	require.NoError(t, svc.Delete(ctx, b.ArtworkID))

	c := createArtwork(t, svc, "Three")
	assert.Equal(t, "A0003", c.ArtworkID)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)

	const n = 6
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := svc.Create(context.Background(), CreateArtworkInput{ArtworkFields: ArtworkFields{Title: "Parallel"}})
			errs[i] = err
			if err == nil {
				ids[i] = a.ArtworkID
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"A0001", "A0002", "A0003", "A0004", "A0005", "A0006"}, ids)
}

func TestGetNotFound(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)

	_, err := svc.Get(context.Background(), "A9999")
	assert.True(t, IsNotFound(err))
}

func TestUpdate(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()
	a := createArtwork(t, svc, "Draft")
	createdAt := a.CreatedAt

	time.Sleep(5 * time.Millisecond)
	updated, err := svc.Update(ctx, a.ArtworkID, ArtworkPatch{
		Title:      strPtr("  Final Title "),
		ArtistName: strPtr("Ana Ruiz"),
		Year:       strPtr("2021"),
		WidthMM:    intPtr(420),
		DepthMM:    intPtr(-3),
	})
	require.NoError(t, err)

	assert.Equal(t, a.ArtworkID, updated.ArtworkID)
	assert.Equal(t, "Final Title", updated.Title)
	assert.Equal(t, "Ana Ruiz", updated.ArtistName)
	assert.Equal(t, "2021", updated.Year)
	assert.Equal(t, 420, updated.WidthMM)
	assert.Equal(t, 0, updated.DepthMM)
	assert.Equal(t, "Unique", updated.Edition, "absent fields are kept")
	assert.Equal(t, "final-title-ana-ruiz", updated.WebSlug)
	assert.True(t, createdAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(createdAt))

	_, err = svc.Update(ctx, a.ArtworkID, ArtworkPatch{Title: strPtr("   ")})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Update(ctx, "A0404", ArtworkPatch{Title: strPtr("x")})
	assert.True(t, IsNotFound(err))
}

func TestList(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()

	inputs := []ArtworkFields{
		{Title: "Blue Horizon", Year: "2019", Medium: "Oil", Series: "Coast", WidthMM: 800, HeightMM: 600},
		{Title: "Red Field", Year: "2020", Medium: "Acrylic", Description: "horizon at dusk", WidthMM: 300, HeightMM: 300},
		{Title: "Quiet Room", Year: "2022", Medium: "Oil", Location: "Studio", WidthMM: 1200, HeightMM: 900},
	}
	for _, f := range inputs {
		_, err := svc.Create(ctx, CreateArtworkInput{ArtworkFields: f})
		require.NoError(t, err)
	}

	ids := func(list []models.Artwork) []string {
		out := make([]string, len(list))
		for i, a := range list {
			out[i] = a.ArtworkID
		}
		return out
	}

	tests := []struct {
		name   string
		filter ArtworkFilter
		want   []string
	}{
		{"all newest first", ArtworkFilter{}, []string{"A0003", "A0002", "A0001"}},
		{"q matches title and description case-insensitively", ArtworkFilter{Q: "HORIZON"}, []string{"A0002", "A0001"}},
		{"exact medium", ArtworkFilter{Medium: "Oil"}, []string{"A0003", "A0001"}},
		{"exact medium is not a substring match", ArtworkFilter{Medium: "Oi"}, []string{}},
		{"year range", ArtworkFilter{YearFrom: "2020", YearTo: "2021"}, []string{"A0002"}},
		{"location", ArtworkFilter{Location: "Studio"}, []string{"A0003"}},
		{"width bounds", ArtworkFilter{MinWidthMM: intPtr(500), MaxWidthMM: intPtr(1000)}, []string{"A0001"}},
		{"page size", ArtworkFilter{Limit: 2, Page: 2}, []string{"A0001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, _, err := svc.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list))
		})
	}

	_, total, err := svc.List(ctx, ArtworkFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestAttachImagesSequencesAndPromotes(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)
	ctx := context.Background()
	a := createArtwork(t, svc, "Detailed")

	first, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{
		{Data: jpegBytes(t, 100, 80)},
		{Data: pngBytes(t, 90, 60)},
	}, "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, first[0].OrderIndex)
	assert.Equal(t, 2, first[1].OrderIndex)
	assert.Equal(t, "/media/artworks/A0001/A0001_detail1.jpg", first[0].Path)
	assert.Equal(t, "/media/artworks/A0001/A0001_detail2.jpg", first[1].Path)
	assert.Equal(t, models.ImageViewPrimary, first[0].View)
	assert.Equal(t, models.ImageViewDetail, first[1].View)

	got, err := svc.Get(ctx, a.ArtworkID)
	require.NoError(t, err)
	assert.Equal(t, first[0].Path, got.PrimaryImage, "first attached image becomes the cover")

	second, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{{Data: jpegBytes(t, 40, 40)}}, "back")
	require.NoError(t, err)
	assert.Equal(t, 3, second[0].OrderIndex)
	assert.Equal(t, "back", second[0].View)
	assert.True(t, store.Exists(second[0].Path))

	got, err = svc.Get(ctx, a.ArtworkID)
	require.NoError(t, err)
	assert.Equal(t, first[0].Path, got.PrimaryImage, "existing cover is kept")

	images, err := svc.Images(ctx, a.ArtworkID)
	require.NoError(t, err)
	require.Len(t, images, 3)
	for i, img := range images {
		assert.Equal(t, i+1, img.OrderIndex)
	}
}

func TestAttachImagesIndexFollowsDisk(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)
	ctx := context.Background()
	a := createArtwork(t, svc, "Gap")

	stray := filepath.Join(store.Root(), "artworks", a.ArtworkID, a.ArtworkID+"_detail7.jpg")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))

	imgs, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{{Data: jpegBytes(t, 10, 10)}}, "")
	require.NoError(t, err)
	assert.Equal(t, 8, imgs[0].OrderIndex)
}

func TestAttachImagesErrors(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()
	a := createArtwork(t, svc, "Empty")

	_, err := svc.AttachImages(ctx, "A0404", []ImagePayload{{Data: []byte("x")}}, "")
	assert.True(t, IsNotFound(err))

	_, err = svc.AttachImages(ctx, a.ArtworkID, nil, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{{Data: jpegBytes(t, 10, 10)}, {Base64: "***"}}, "")
	assert.ErrorAs(t, err, &verr)

	images, err := svc.Images(ctx, a.ArtworkID)
	require.NoError(t, err)
	assert.Empty(t, images, "a bad payload stores nothing")
}

func TestConcurrentAttachesGetDistinctIndices(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()
	a := createArtwork(t, svc, "Busy")

	const workers = 5
	payloads := make([][]ImagePayload, workers)
	for i := range payloads {
		payloads[i] = []ImagePayload{{Data: jpegBytes(t, 20, 20)}, {Data: jpegBytes(t, 30, 20)}}
	}

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AttachImages(ctx, a.ArtworkID, payloads[i], "")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	images, err := svc.Images(ctx, a.ArtworkID)
	require.NoError(t, err)
	require.Len(t, images, 2*workers)
	paths := make(map[string]bool)
	for i, img := range images {
		assert.Equal(t, i+1, img.OrderIndex)
		paths[img.Path] = true
	}
	assert.Len(t, paths, 2*workers)
}

// Without a lock two attaches that scan the same directory snapshot pick the
// same index; the later one overwrites the earlier file.
func TestAttachImagesRaceWithoutLock(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t)

	scanned := make(chan struct{})
	firstDone := make(chan struct{})
	var calls int32
	seq := NewImageSequencerWithList(func(dir string) ([]string, error) {
		names, err := listFiles(dir)
		if atomic.AddInt32(&calls, 1) == 1 {
			<-scanned
		} else {
			close(scanned)
			<-firstDone
		}
		return names, err
	})
	svc := NewArtworkService(db, store, ArtworkServiceOptions{Locker: NoopLocker{}, Sequencer: seq})
	ctx := context.Background()
	a := createArtwork(t, svc, "Racy")

	type result struct {
		images []models.Image
		err    error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		data := jpegBytes(t, 20+i, 20)
		go func() {
			imgs, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{{Data: data}}, "")
			results <- result{imgs, err}
		}()
	}

	first := <-results
	close(firstDone)
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)

	assert.Equal(t, 1, first.images[0].OrderIndex)
	assert.Equal(t, 1, second.images[0].OrderIndex)
	assert.Equal(t, first.images[0].Path, second.images[0].Path)

	images, err := svc.Images(ctx, a.ArtworkID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, images[0].Path, images[1].Path, "both rows point at one file")
	assert.True(t, store.Exists(images[0].Path))
}

func TestMakePrimary(t *testing.T) {
	svc, _, _ := newTestArtworkService(t)
	ctx := context.Background()
	a := createArtwork(t, svc, "Choices")

	imgs, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{
		{Data: jpegBytes(t, 20, 20)},
		{Data: jpegBytes(t, 20, 20)},
	}, "")
	require.NoError(t, err)

	got, err := svc.MakePrimary(ctx, a.ArtworkID, imgs[1].ID.String())
	require.NoError(t, err)
	assert.Equal(t, imgs[1].Path, got.PrimaryImage)

	again, err := svc.MakePrimary(ctx, a.ArtworkID, imgs[1].ID.String())
	require.NoError(t, err)
	assert.Equal(t, imgs[1].Path, again.PrimaryImage)
	assert.Len(t, again.Images, 2, "no image rows are added")

	// pointer only: the previous cover keeps its view tag
	for _, img := range again.Images {
		if img.ID == imgs[0].ID {
			assert.Equal(t, models.ImageViewPrimary, img.View)
		}
	}

	other := createArtwork(t, svc, "Other")
	_, err = svc.MakePrimary(ctx, other.ArtworkID, imgs[0].ID.String())
	assert.True(t, IsNotFound(err), "images of another artwork do not resolve")

	_, err = svc.MakePrimary(ctx, a.ArtworkID, "not-a-uuid")
	assert.True(t, IsNotFound(err))

	_, err = svc.MakePrimary(ctx, "A0404", imgs[0].ID.String())
	assert.True(t, IsNotFound(err))
}

func TestDeleteImage(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)
	ctx := context.Background()
	a := createArtwork(t, svc, "Pruned")

	imgs, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{
		{Data: jpegBytes(t, 20, 20)},
		{Data: jpegBytes(t, 20, 20)},
	}, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteImage(ctx, a.ArtworkID, imgs[1].ID.String()))
	assert.False(t, store.Exists(imgs[1].Path))
	assert.False(t, store.Exists(imgs[1].Thumb))

	got, err := svc.Get(ctx, a.ArtworkID)
	require.NoError(t, err)
	assert.Equal(t, imgs[0].Path, got.PrimaryImage)
	require.Len(t, got.Images, 1)

	// the cover pointer is cleared when its image goes away
	p, _ := store.Resolve(imgs[0].Path)
	require.NoError(t, os.Remove(p))
	require.NoError(t, svc.DeleteImage(ctx, a.ArtworkID, imgs[0].ID.String()), "missing files are tolerated")

	got, err = svc.Get(ctx, a.ArtworkID)
	require.NoError(t, err)
	assert.Empty(t, got.PrimaryImage)
	assert.Empty(t, got.Images)

	err = svc.DeleteImage(ctx, a.ArtworkID, imgs[0].ID.String())
	assert.True(t, IsNotFound(err))
}

func TestDeleteCascades(t *testing.T) {
	svc, store, db := newTestArtworkService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateArtworkInput{
		ArtworkFields: ArtworkFields{Title: "Gone"},
		PrimaryImage:  &ImagePayload{Data: jpegBytes(t, 30, 30)},
	})
	require.NoError(t, err)
	imgs, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{{Data: jpegBytes(t, 30, 30)}}, "")
	require.NoError(t, err)

	// one file already gone before the delete
	p, _ := store.Resolve(imgs[0].Path)
	require.NoError(t, os.Remove(p))

	require.NoError(t, svc.Delete(ctx, a.ArtworkID))

	_, err = svc.Get(ctx, a.ArtworkID)
	assert.True(t, IsNotFound(err))

	var count int64
	require.NoError(t, db.Model(&models.Image{}).Where("artwork_id = ?", a.ArtworkID).Count(&count).Error)
	assert.Zero(t, count)

	dir := filepath.Join(store.Root(), "artworks", a.ArtworkID)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.True(t, IsNotFound(svc.Delete(ctx, a.ArtworkID)))
}

func TestBlueHorizonLifecycle(t *testing.T) {
	svc, store, _ := newTestArtworkService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateArtworkInput{ArtworkFields: ArtworkFields{
		Title:  "Blue Horizon",
		Year:   "2023",
		Medium: "Oil on linen",
	}})
	require.NoError(t, err)
	require.Equal(t, "A0001", a.ArtworkID)

	imgs, err := svc.AttachImages(ctx, a.ArtworkID, []ImagePayload{
		{Data: jpegBytes(t, 300, 200)},
		{Data: jpegBytes(t, 200, 300)},
	}, "")
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, 1, imgs[0].OrderIndex)
	assert.Equal(t, 2, imgs[1].OrderIndex)
	assert.True(t, strings.HasSuffix(imgs[0].Path, "/A0001_detail1.jpg"))
	assert.True(t, strings.HasSuffix(imgs[1].Path, "/A0001_detail2.jpg"))

	full, err := svc.Get(ctx, a.ArtworkID)
	require.NoError(t, err)

	onepager := NewOnepagerServiceWithOptions(store, OnepagerOptions{})
	doc, err := onepager.Render(full, full.Images, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Pages)
	pdf := string(doc.Data)
	assert.Contains(t, pdf, "(Blue Horizon)")
	assert.Contains(t, pdf, "(2023)")
	assert.Contains(t, pdf, "(Oil on linen)")

	require.NoError(t, svc.Delete(ctx, a.ArtworkID))
	_, err = svc.Get(ctx, a.ArtworkID)
	assert.True(t, IsNotFound(err))
	for _, img := range imgs {
		assert.False(t, store.Exists(img.Path))
	}
}
