package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/artcatalog/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const multipartMemory = 32 << 20

// FlexInt accepts JSON numbers and numeric strings. Anything unusable becomes 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt(parseRounded(b, 1))
	return nil
}

// FlexCM is a centimetre value read like FlexInt and converted to whole millimetres.
type FlexCM int

func (f *FlexCM) UnmarshalJSON(b []byte) error {
	*f = FlexCM(parseRounded(b, 10))
	return nil
}

func parseRounded(b []byte, factor float64) int {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return 0
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return 0
		}
		s = strings.TrimSpace(strings.ReplaceAll(str, ",", "."))
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v * factor))
}

type imageRequest struct {
	Base64 string `json:"base64"`
	URL    string `json:"url"`
}

type attachRequest struct {
	Images []imageRequest `json:"images"`
	View   string         `json:"view"`
}

// artworkRequest is the wire shape of create and update bodies, JSON or form.
// Dimensions are millimetres; *_cm fields are accepted when the *_mm field is absent.
type artworkRequest struct {
	ArtworkID       *string `json:"artwork_id"`
	Title           *string `json:"title"`
	ArtistName      *string `json:"artist_name"`
	Year            *string `json:"year"`
	Medium          *string `json:"medium"`
	Surface         *string `json:"surface"`
	Series          *string `json:"series"`
	Style           *string `json:"style"`
	Edition         *string `json:"edition"`
	SubjectKeywords *string `json:"subject_keywords"`
	Provenance      *string `json:"provenance"`
	Location        *string `json:"location"`
	InventoryCode   *string `json:"inventory_code"`
	Description     *string `json:"description"`

	WidthMM        *FlexInt `json:"width_mm"`
	HeightMM       *FlexInt `json:"height_mm"`
	DepthMM        *FlexInt `json:"depth_mm"`
	FramedWidthMM  *FlexInt `json:"framed_width_mm"`
	FramedHeightMM *FlexInt `json:"framed_height_mm"`
	FramedDepthMM  *FlexInt `json:"framed_depth_mm"`

	WidthCM        *FlexCM `json:"width_cm"`
	HeightCM       *FlexCM `json:"height_cm"`
	DepthCM        *FlexCM `json:"depth_cm"`
	FramedWidthCM  *FlexCM `json:"framed_width_cm"`
	FramedHeightCM *FlexCM `json:"framed_height_cm"`
	FramedDepthCM  *FlexCM `json:"framed_depth_cm"`

	ImageBase64 string `json:"image_base64"`
	ImageURL    string `json:"image_url"`
}

func millimetres(mm *FlexInt, cm *FlexCM) *int {
	switch {
	case mm != nil:
		v := int(*mm)
		return &v
	case cm != nil:
		v := int(*cm)
		return &v
	default:
		return nil
	}
}

func (r *artworkRequest) patch() services.ArtworkPatch {
	return services.ArtworkPatch{
		Title:           r.Title,
		ArtistName:      r.ArtistName,
		Year:            r.Year,
		Medium:          r.Medium,
		Surface:         r.Surface,
		Series:          r.Series,
		Style:           r.Style,
		Edition:         r.Edition,
		SubjectKeywords: r.SubjectKeywords,
		Provenance:      r.Provenance,
		Location:        r.Location,
		InventoryCode:   r.InventoryCode,
		Description:     r.Description,
		WidthMM:         millimetres(r.WidthMM, r.WidthCM),
		HeightMM:        millimetres(r.HeightMM, r.HeightCM),
		DepthMM:         millimetres(r.DepthMM, r.DepthCM),
		FramedWidthMM:   millimetres(r.FramedWidthMM, r.FramedWidthCM),
		FramedHeightMM:  millimetres(r.FramedHeightMM, r.FramedHeightCM),
		FramedDepthMM:   millimetres(r.FramedDepthMM, r.FramedDepthCM),
	}
}

func (r *artworkRequest) createInput() services.CreateArtworkInput {
	p := r.patch()
	in := services.CreateArtworkInput{
		ArtworkID: deref(r.ArtworkID),
		ArtworkFields: services.ArtworkFields{
			Title:           deref(p.Title),
			ArtistName:      deref(p.ArtistName),
			Year:            deref(p.Year),
			Medium:          deref(p.Medium),
			Surface:         deref(p.Surface),
			Series:          deref(p.Series),
			Style:           deref(p.Style),
			Edition:         deref(p.Edition),
			SubjectKeywords: deref(p.SubjectKeywords),
			Provenance:      deref(p.Provenance),
			Location:        deref(p.Location),
			InventoryCode:   deref(p.InventoryCode),
			Description:     deref(p.Description),
			WidthMM:         derefInt(p.WidthMM),
			HeightMM:        derefInt(p.HeightMM),
			DepthMM:         derefInt(p.DepthMM),
			FramedWidthMM:   derefInt(p.FramedWidthMM),
			FramedHeightMM:  derefInt(p.FramedHeightMM),
			FramedDepthMM:   derefInt(p.FramedDepthMM),
		},
	}
	if r.ImageBase64 != "" || r.ImageURL != "" {
		in.PrimaryImage = &services.ImagePayload{Base64: r.ImageBase64, URL: r.ImageURL}
	}
	return in
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

func isForm(c *gin.Context) bool {
	ct := c.ContentType()
	return ct == "application/x-www-form-urlencoded" || strings.HasPrefix(ct, "multipart/")
}

// bindArtworkRequest reads a JSON body or a form into an artworkRequest.
func bindArtworkRequest(c *gin.Context) (*artworkRequest, error) {
	if isForm(c) {
		if isMultipart(c) {
			if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
				return nil, &services.ValidationError{Reason: "invalid multipart form"}
			}
		} else if err := c.Request.ParseForm(); err != nil {
			return nil, &services.ValidationError{Reason: "invalid form"}
		}
		return requestFromForm(c.Request.PostForm)
	}

	var req artworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, &services.ValidationError{Reason: "invalid JSON body: " + err.Error()}
	}
	return &req, nil
}

// requestFromForm maps form fields onto the JSON shape, so forms and JSON share
// the same coercion rules.
func requestFromForm(form url.Values) (*artworkRequest, error) {
	fields := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var req artworkRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &services.ValidationError{Reason: "invalid form"}
	}
	return &req, nil
}

// formFiles returns the uploaded files under any of names, in form order.
func formFiles(c *gin.Context, names ...string) []*multipart.FileHeader {
	if c.Request.MultipartForm == nil {
		if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
			return nil
		}
	}
	var out []*multipart.FileHeader
	for _, n := range names {
		out = append(out, c.Request.MultipartForm.File[n]...)
	}
	return out
}

func readUpload(fh *multipart.FileHeader, maxSize int64) (services.ImagePayload, error) {
	f, err := fh.Open()
	if err != nil {
		return services.ImagePayload{}, &services.ValidationError{Field: "file", Reason: "failed to open upload"}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return services.ImagePayload{}, &services.ValidationError{Field: "file", Reason: "failed to read upload"}
	}
	if int64(len(data)) > maxSize {
		return services.ImagePayload{}, &services.ValidationError{Field: "file", Reason: fmt.Sprintf("%s exceeds %d bytes", fh.Filename, maxSize)}
	}
	return services.ImagePayload{Data: data, Filename: fh.Filename}, nil
}

func respondError(c *gin.Context, err error) {
	status, code := services.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": code, "message": msg})
}

func queryInt(c *gin.Context, key string) *int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}
