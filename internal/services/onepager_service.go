package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/artcatalog/backend/internal/config"
	"github.com/artcatalog/backend/internal/models"
	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
)

// A4 portrait layout, millimetres.
const (
	pageW  = 210.0
	pageH  = 297.0
	margin = 20.0

	imageBoxX    = 20.0
	imageBoxY    = 38.0
	imageBoxSize = 95.0

	metaX         = 125.0
	metaY         = 38.0
	metaRowHeight = 6.0
	metaValueX    = metaX + 35.0

	descHeadingY  = 145.0
	descLineH     = 5.0
	footerBaseY   = pageH - 15.0
	qrSize        = 24.0
	galleryCols   = 3
	galleryRows   = 3
	galleryTop    = 32.0
	galleryBottom = pageH - 25.0
	captionHeight = 8.0

	fontFamily = "Helvetica"
)

type RenderOptions struct {
	// Gallery appends contact-sheet pages with every image of the artwork.
	Gallery bool
	// GeneratedAt is printed in the footer and pinned as the PDF creation date.
	// Zero falls back to the artwork's UpdatedAt.
	GeneratedAt time.Time
}

type Onepager struct {
	Data  []byte
	Pages int
}

type OnepagerOptions struct {
	PublicBaseURL string
	// CacheDir receives a copy of every rendered document; empty disables it.
	CacheDir string
	Compress bool
}

// OnepagerService renders the printable summary of an artwork.
type OnepagerService struct {
	store *MediaStore
	opts  OnepagerOptions
}

func NewOnepagerService(cfg *config.Config, store *MediaStore) *OnepagerService {
	return NewOnepagerServiceWithOptions(store, OnepagerOptions{
		PublicBaseURL: cfg.PublicBaseURL,
		CacheDir:      filepath.Join(cfg.DataDir, "onepagers"),
		Compress:      cfg.OnepagerCompress,
	})
}

func NewOnepagerServiceWithOptions(store *MediaStore, opts OnepagerOptions) *OnepagerService {
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &OnepagerService{store: store, opts: opts}
}

type pdfImage struct {
	name string
	w, h float64
}

type renderer struct {
	pdf    *gofpdf.Fpdf
	tr     func(string) string
	store  *MediaStore
	images map[string]*pdfImage
}

// Render lays out the one-pager. Images that cannot be read or decoded are left
// out; they never fail the render.
func (s *OnepagerService) Render(artwork *models.Artwork, images []models.Image, opts RenderOptions) (*Onepager, error) {
	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = artwork.UpdatedAt
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(s.opts.Compress)
	pdf.SetCatalogSort(true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(artwork.Title, true)
	pdf.SetAuthor(artwork.ArtistName, true)
	pdf.SetCreator("artcatalog", false)
	if !generated.IsZero() {
		pdf.SetCreationDate(generated.UTC())
		pdf.SetModificationDate(generated.UTC())
	}

	r := &renderer{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		store:  s.store,
		images: make(map[string]*pdfImage),
	}

	footer := "Generated"
	if !generated.IsZero() {
		footer += " " + generated.UTC().Format("2006-01-02 15:04 UTC")
	}
	if artwork.WebSlug != "" {
		footer += " · " + artwork.WebSlug
	}

	pdf.AddPage()
	r.header(artwork)
	r.primaryImage(artwork.PrimaryImage)
	r.metadata(artwork)

	descBottom := footerBaseY - 8
	if s.opts.PublicBaseURL != "" && r.qr(s.opts.PublicBaseURL+"/artworks/"+artwork.ArtworkID) {
		descBottom = footerBaseY - qrSize - 4
	}
	r.description(artwork.Description, descBottom)
	r.footer(footer)

	if opts.Gallery && len(images) > 0 {
		r.gallery(artwork, images, footer)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to render one-pager for %s: %w", artwork.ArtworkID, err)
	}

	doc := &Onepager{Data: out.Bytes(), Pages: pdf.PageCount()}
	s.cache(artwork.ArtworkID, opts.Gallery, doc.Data)
	return doc, nil
}

func (s *OnepagerService) cache(id string, gallery bool, data []byte) {
	if s.opts.CacheDir == "" {
		return
	}
	name := id + ".pdf"
	if gallery {
		name = id + "_gallery.pdf"
	}
	if err := os.MkdirAll(s.opts.CacheDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", s.opts.CacheDir).Msg("failed to create one-pager cache dir")
		return
	}
	dst := filepath.Join(s.opts.CacheDir, name)
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Str("file", dst).Msg("failed to cache one-pager")
		return
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		log.Warn().Err(err).Str("file", dst).Msg("failed to cache one-pager")
	}
}

func (r *renderer) header(a *models.Artwork) {
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.SetFont(fontFamily, "B", 18)
	r.pdf.Text(margin, 20, r.fit(a.Title, pageW-2*margin))

	parts := make([]string, 0, 2)
	for _, p := range []string{a.ArtistName, a.Year} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		r.pdf.SetFont(fontFamily, "", 12)
		r.pdf.Text(margin, 28, r.fit(strings.Join(parts, " · "), pageW-2*margin))
	}
}

func (r *renderer) primaryImage(ref string) {
	r.pdf.SetDrawColor(200, 200, 200)
	r.pdf.Rect(imageBoxX, imageBoxY, imageBoxSize, imageBoxSize, "D")
	if img := r.load(ref); img != nil {
		r.place(img, imageBoxX, imageBoxY, imageBoxSize, imageBoxSize)
	}
}

func (r *renderer) metadata(a *models.Artwork) {
	rows := []struct{ label, value string }{
		{"Artist", a.ArtistName},
		{"Year", a.Year},
		{"Medium", a.Medium},
		{"Surface", a.Surface},
		{"Size (mm)", formatDims(a.WidthMM, a.HeightMM, a.DepthMM)},
		{"Framed (mm)", formatDims(a.FramedWidthMM, a.FramedHeightMM, a.FramedDepthMM)},
		{"Edition", a.Edition},
		{"Series", a.Series},
		{"Style", a.Style},
		{"Keywords", a.SubjectKeywords},
		{"Provenance", a.Provenance},
		{"Location", a.Location},
		{"Inventory", a.InventoryCode},
		{"ID", a.ArtworkID},
	}

	valueWidth := pageW - margin - metaValueX
	y := metaY + 4
	for _, row := range rows {
		r.pdf.SetFont(fontFamily, "B", 9)
		r.pdf.Text(metaX, y, r.tr(row.label))
		if v := singleLine(row.value); v != "" {
			r.pdf.SetFont(fontFamily, "", 9)
			r.pdf.Text(metaValueX, y, r.fit(v, valueWidth))
		}
		y += metaRowHeight
	}
}

// description prints one output line per source line and drops what does not
// fit above bottom.
func (r *renderer) description(text string, bottom float64) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return
	}
	r.pdf.SetFont(fontFamily, "B", 11)
	r.pdf.Text(margin, descHeadingY, r.tr("Description"))

	r.pdf.SetFont(fontFamily, "", 10)
	y := descHeadingY + 7
	for _, line := range strings.Split(text, "\n") {
		if y > bottom {
			break
		}
		if line = strings.TrimRight(line, " \t"); line != "" {
			r.pdf.Text(margin, y, r.fit(line, pageW-2*margin))
		}
		y += descLineH
	}
}

func (r *renderer) footer(text string) {
	r.pdf.SetFont(fontFamily, "", 9)
	r.pdf.SetTextColor(110, 110, 110)
	s := r.fit(text, pageW-2*margin)
	r.pdf.Text(pageW-margin-r.pdf.GetStringWidth(s), footerBaseY, s)
	r.pdf.SetTextColor(0, 0, 0)
}

func (r *renderer) qr(target string) bool {
	png, err := qrcode.Encode(target, qrcode.Medium, 256)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("failed to encode one-pager QR code")
		return false
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	r.pdf.RegisterImageOptionsReader("qr", opt, bytes.NewReader(png))
	if r.pdf.Err() {
		log.Warn().Err(r.pdf.Error()).Msg("failed to embed one-pager QR code")
		r.pdf.ClearError()
		return false
	}
	r.pdf.ImageOptions("qr", margin, footerBaseY-qrSize+2, qrSize, qrSize, false, opt, 0, "")
	return true
}

func (r *renderer) gallery(a *models.Artwork, images []models.Image, footer string) {
	perPage := galleryCols * galleryRows
	cellW := (pageW - 2*margin) / galleryCols
	cellH := (galleryBottom - galleryTop) / galleryRows

	for i, img := range images {
		if i%perPage == 0 {
			r.pdf.AddPage()
			r.pdf.SetFont(fontFamily, "B", 14)
			r.pdf.Text(margin, 20, r.fit("Gallery: "+a.Title, pageW-2*margin))
			r.footer(footer)
		}
		slot := i % perPage
		x := margin + float64(slot%galleryCols)*cellW
		y := galleryTop + float64(slot/galleryCols)*cellH

		pic := r.load(img.Thumb)
		if pic == nil {
			pic = r.load(img.Path)
		}
		if pic != nil {
			r.place(pic, x+2, y+2, cellW-4, cellH-captionHeight-4)
		}

		r.pdf.SetFont(fontFamily, "", 8)
		caption := fmt.Sprintf("%s #%d", img.View, img.OrderIndex)
		r.pdf.Text(x+2, y+cellH-captionHeight/2, r.fit(caption, cellW-4))
	}
}

// load registers the image behind ref once and returns nil when it is unusable.
func (r *renderer) load(ref string) *pdfImage {
	if ref == "" {
		return nil
	}
	if img, ok := r.images[ref]; ok {
		return img
	}
	img := r.register(ref)
	r.images[ref] = img
	return img
}

func (r *renderer) register(ref string) *pdfImage {
	path, ok := r.store.Resolve(ref)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("ref", ref).Msg("skipping undecodable image")
		return nil
	}
	if format != "jpeg" {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, flatten(decoded), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return nil
		}
		data = buf.Bytes()
	}

	name := fmt.Sprintf("img%d", len(r.images)+1)
	opt := gofpdf.ImageOptions{ImageType: "JPG"}
	r.pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(data))
	if r.pdf.Err() {
		log.Debug().Err(r.pdf.Error()).Str("ref", ref).Msg("skipping image rejected by pdf writer")
		r.pdf.ClearError()
		return nil
	}

	b := decoded.Bounds()
	return &pdfImage{name: name, w: float64(b.Dx()), h: float64(b.Dy())}
}

// place scales img to fit the box, enlarging small sources, and centers it.
func (r *renderer) place(img *pdfImage, x, y, boxW, boxH float64) {
	if img.w <= 0 || img.h <= 0 {
		return
	}
	scale := boxW / img.w
	if s := boxH / img.h; s < scale {
		scale = s
	}
	w, h := img.w*scale, img.h*scale
	r.pdf.ImageOptions(img.name, x+(boxW-w)/2, y+(boxH-h)/2, w, h, false, gofpdf.ImageOptions{ImageType: "JPG"}, 0, "")
}

// fit translates s to the core font encoding and clips it with an ellipsis to width.
// The cut point is found by binary search over the rune prefix length.
func (r *renderer) fit(s string, width float64) string {
	t := r.tr(s)
	if r.pdf.GetStringWidth(t) <= width {
		return t
	}
	ellipsis := r.tr("…")
	runes := []rune(s)
	clip := func(n int) string {
		return r.tr(strings.TrimRight(string(runes[:n]), " ")) + ellipsis
	}
	n := sort.Search(len(runes), func(n int) bool {
		return r.pdf.GetStringWidth(clip(n+1)) > width
	})
	if n == 0 {
		return ellipsis
	}
	return clip(n)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatDims(w, h, d int) string {
	if w == 0 && h == 0 && d == 0 {
		return ""
	}
	out := fmt.Sprintf("%d × %d", w, h)
	if d > 0 {
		out += fmt.Sprintf(" × %d", d)
	}
	return out
}
