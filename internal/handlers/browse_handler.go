package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/artcatalog/backend/internal/config"
	"github.com/artcatalog/backend/internal/models"
	"github.com/artcatalog/backend/internal/services"
	"github.com/artcatalog/backend/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.html
var templateFS embed.FS

const browsePageSize = 24

// BrowseHandler serves the HTML pages of the catalog.
type BrowseHandler struct {
	artworks *services.ArtworkService
	onepager *OnepagerHandler
	store    *services.MediaStore
	cfg      *config.Config
	pages    map[string]*template.Template
}

func NewBrowseHandler(artworks *services.ArtworkService, onepager *OnepagerHandler, store *services.MediaStore, cfg *config.Config) (*BrowseHandler, error) {
	h := &BrowseHandler{artworks: artworks, onepager: onepager, store: store, cfg: cfg, pages: map[string]*template.Template{}}

	funcs := template.FuncMap{
		"thumbOf": h.thumbOf,
		"dims":    dims,
		"richText": func(s string) template.HTML {
			return template.HTML(validation.SafeHTML(s))
		},
	}
	for _, page := range []string{"list.html", "detail.html", "form.html"} {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		h.pages[page] = t
	}
	return h, nil
}

func (h *BrowseHandler) html(c *gin.Context, status int, page string, data gin.H) {
	c.Render(status, render.HTML{Template: h.pages[page], Name: "layout", Data: data})
}

// thumbOf prefers the derived thumbnail and falls back to the full image when
// no thumbnail exists.
func (h *BrowseHandler) thumbOf(ref string) string {
	if ref == "" {
		return ""
	}
	if thumb := services.ThumbRef(ref); h.store.Exists(thumb) {
		return thumb
	}
	return ref
}

func dims(w, hgt, d int) string {
	if w == 0 && hgt == 0 && d == 0 {
		return ""
	}
	if d > 0 {
		return fmt.Sprintf("%d × %d × %d", w, hgt, d)
	}
	return fmt.Sprintf("%d × %d", w, hgt)
}

func redirectTo(c *gin.Context, path string) {
	c.Redirect(http.StatusSeeOther, path)
}

func artworkPath(id string) string {
	return "/artworks/" + url.PathEscape(id)
}

// Index lists artworks
// GET /?q=&year_from=&year_to=&page=
func (h *BrowseHandler) Index(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	filter := services.ArtworkFilter{
		Q:        c.Query("q"),
		YearFrom: c.Query("year_from"),
		YearTo:   c.Query("year_to"),
		Page:     page,
		Limit:    browsePageSize,
	}
	artworks, total, err := h.artworks.List(c.Request.Context(), filter)
	if err != nil {
		h.html(c, http.StatusInternalServerError, "list.html", gin.H{"Title": "Artworks", "Error": "Could not load artworks."})
		return
	}

	data := gin.H{
		"Title":    "Artworks",
		"Artworks": artworks,
		"Total":    total,
		"Query":    filter.Q,
		"YearFrom": filter.YearFrom,
		"YearTo":   filter.YearTo,
	}
	if page > 1 {
		data["PrevPage"] = page - 1
	}
	if int64(page*browsePageSize) < total {
		data["NextPage"] = page + 1
	}
	h.html(c, http.StatusOK, "list.html", data)
}

// NewArtwork shows the create form
// GET /artworks/new
func (h *BrowseHandler) NewArtwork(c *gin.Context) {
	h.html(c, http.StatusOK, "form.html", h.formData(&models.Artwork{Edition: "Unique", ArtistName: h.cfg.DefaultArtistName}, false, ""))
}

func (h *BrowseHandler) formData(a *models.Artwork, editing bool, errMsg string) gin.H {
	data := gin.H{
		"Title":   "New artwork",
		"Artwork": a,
		"Editing": editing,
		"Action":  "/artworks",
		"Cancel":  "/",
		"Error":   errMsg,
	}
	if editing {
		data["Title"] = "Edit " + a.ArtworkID
		data["Action"] = artworkPath(a.ArtworkID) + "/edit"
		data["Cancel"] = artworkPath(a.ArtworkID)
	}
	return data
}

// CreateArtwork handles the create form
// POST /artworks
func (h *BrowseHandler) CreateArtwork(c *gin.Context) {
	req, err := bindArtworkRequest(c)
	if err != nil {
		h.html(c, http.StatusBadRequest, "form.html", h.formData(&models.Artwork{}, false, err.Error()))
		return
	}
	in := req.createInput()

	if isMultipart(c) {
		if files := formFiles(c, "image"); len(files) > 0 && files[0].Size > 0 {
			payload, err := readUpload(files[0], h.cfg.UploadMaxImageSize)
			if err != nil {
				h.html(c, http.StatusBadRequest, "form.html", h.formData(draft(in), false, err.Error()))
				return
			}
			in.PrimaryImage = &payload
		}
	}

	artwork, err := h.artworks.Create(c.Request.Context(), in)
	if err != nil {
		status, _ := services.HTTPStatus(err)
		h.html(c, status, "form.html", h.formData(draft(in), false, err.Error()))
		return
	}
	redirectTo(c, artworkPath(artwork.ArtworkID))
}

// draft refills the create form after a failed submit.
func draft(in services.CreateArtworkInput) *models.Artwork {
	f := in.ArtworkFields
	return &models.Artwork{
		ArtworkID: in.ArtworkID, Title: f.Title, ArtistName: f.ArtistName, Year: f.Year,
		Medium: f.Medium, Surface: f.Surface, Series: f.Series, Style: f.Style, Edition: f.Edition,
		SubjectKeywords: f.SubjectKeywords, Provenance: f.Provenance, Location: f.Location,
		InventoryCode: f.InventoryCode, Description: f.Description,
		WidthMM: f.WidthMM, HeightMM: f.HeightMM, DepthMM: f.DepthMM,
		FramedWidthMM: f.FramedWidthMM, FramedHeightMM: f.FramedHeightMM, FramedDepthMM: f.FramedDepthMM,
	}
}

// ShowArtwork shows one artwork; unknown ids go back to the list
// GET /artworks/:id
func (h *BrowseHandler) ShowArtwork(c *gin.Context) {
	artwork, err := h.artworks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if services.IsNotFound(err) {
			c.Redirect(http.StatusFound, "/")
			return
		}
		h.html(c, http.StatusInternalServerError, "list.html", gin.H{"Title": "Error", "Error": "Could not load artwork."})
		return
	}
	h.html(c, http.StatusOK, "detail.html", gin.H{"Title": artwork.Title, "Artwork": artwork})
}

// EditArtwork shows the edit form
// GET /artworks/:id/edit
func (h *BrowseHandler) EditArtwork(c *gin.Context) {
	artwork, err := h.artworks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	h.html(c, http.StatusOK, "form.html", h.formData(artwork, true, ""))
}

// UpdateArtwork handles the edit form
// POST /artworks/:id/edit
func (h *BrowseHandler) UpdateArtwork(c *gin.Context) {
	id := c.Param("id")
	req, err := bindArtworkRequest(c)
	if err == nil {
		_, err = h.artworks.Update(c.Request.Context(), id, req.patch())
	}
	if err != nil {
		if services.IsNotFound(err) {
			c.Redirect(http.StatusFound, "/")
			return
		}
		artwork, gerr := h.artworks.Get(c.Request.Context(), id)
		if gerr != nil {
			c.Redirect(http.StatusFound, "/")
			return
		}
		status, _ := services.HTTPStatus(err)
		h.html(c, status, "form.html", h.formData(artwork, true, err.Error()))
		return
	}
	redirectTo(c, artworkPath(id))
}

// UploadImages attaches images from the detail page
// POST /artworks/:id/images
func (h *BrowseHandler) UploadImages(c *gin.Context) {
	id := c.Param("id")
	files := formFiles(c, "files", "files[]")
	if limit := h.cfg.UploadMaxFiles; limit > 0 && len(files) > limit {
		h.detailWithError(c, id, &services.ValidationError{Field: "files", Reason: fmt.Sprintf("maximum %d files per upload", limit)})
		return
	}

	payloads := make([]services.ImagePayload, 0, len(files))
	for _, fh := range files {
		if fh.Size == 0 {
			continue
		}
		p, err := readUpload(fh, h.cfg.UploadMaxImageSize)
		if err != nil {
			h.detailWithError(c, id, err)
			return
		}
		payloads = append(payloads, p)
	}
	if len(payloads) == 0 {
		redirectTo(c, artworkPath(id))
		return
	}

	if _, err := h.artworks.AttachImages(c.Request.Context(), id, payloads, c.PostForm("view")); err != nil {
		h.detailWithError(c, id, err)
		return
	}
	redirectTo(c, artworkPath(id))
}

// DeleteImage removes one image
// POST /artworks/:id/images/:image_id/delete
func (h *BrowseHandler) DeleteImage(c *gin.Context) {
	id := c.Param("id")
	if err := h.artworks.DeleteImage(c.Request.Context(), id, c.Param("image_id")); err != nil {
		h.detailWithError(c, id, err)
		return
	}
	redirectTo(c, artworkPath(id))
}

// MakePrimary sets the cover image
// POST /artworks/:id/images/:image_id/make-primary
func (h *BrowseHandler) MakePrimary(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.artworks.MakePrimary(c.Request.Context(), id, c.Param("image_id")); err != nil {
		h.detailWithError(c, id, err)
		return
	}
	redirectTo(c, artworkPath(id))
}

// Onepager serves the PDF; a missing artwork gets a JSON error, not a PDF
// GET /artworks/:id/onepager.pdf
func (h *BrowseHandler) Onepager(c *gin.Context) {
	h.onepager.GetOnepager(c)
}

// DeleteArtwork removes the artwork and returns to the list
// POST /artworks/:id/delete
func (h *BrowseHandler) DeleteArtwork(c *gin.Context) {
	if err := h.artworks.Delete(c.Request.Context(), c.Param("id")); err != nil && !services.IsNotFound(err) {
		h.detailWithError(c, c.Param("id"), err)
		return
	}
	redirectTo(c, "/")
}

func (h *BrowseHandler) detailWithError(c *gin.Context, id string, cause error) {
	artwork, err := h.artworks.Get(c.Request.Context(), id)
	if err != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	status, _ := services.HTTPStatus(cause)
	msg := cause.Error()
	if status == http.StatusInternalServerError {
		msg = "Something went wrong, please try again."
	}
	h.html(c, status, "detail.html", gin.H{"Title": artwork.Title, "Artwork": artwork, "Error": msg})
}
