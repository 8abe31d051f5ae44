package campusadmin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/eringen/campusadmin/collections"
	"github.com/eringen/campusadmin/storage"
	"github.com/eringen/campusadmin/uploadlog"
)

const jpegQuality = 85

// FieldUpload is the result of uploading a file to a collection field.
type FieldUpload struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Value  string `json:"value"` // what to store in the field: URL or key
	MIME   string `json:"mime"`
	Size   int64  `json:"size"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// fieldStorage returns the storage binding of a property or of its array items.
func fieldStorage(p collections.Property) *collections.Storage {
	if p.Storage != nil {
		return p.Storage
	}
	if p.Of != nil {
		return p.Of.Storage
	}
	return nil
}

func (a *App) handleFieldUpload(c echo.Context) error {
	col, err := lookupCollection(c)
	if err != nil {
		return err
	}
	prop, ok := col.Property(c.Param("field"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown field")
	}
	st := fieldStorage(prop)
	if st == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "field does not accept uploads")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file provided")
	}
	if fh.Size > a.Config.MaxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file too large (max %dMB)", a.Config.MaxUploadSize>>20))
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, a.Config.MaxUploadSize+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > a.Config.MaxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	mt := mimetype.Detect(data)
	mime := mt.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !collections.AcceptsMIME(st, mime) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("%s files are not accepted here", mime))
	}

	out := FieldUpload{MIME: mime}
	if strings.HasPrefix(mime, "image/") {
		data, out.Width, out.Height, err = processImage(data, mime, st.MaxImageWidth)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid image: "+err.Error())
		}
	}
	out.Size = int64(len(data))
	out.Key = path.Join(strings.Trim(st.Path, "/"), uuid.NewString()+"_"+uploadName(fh.Filename, mt.Extension()))

	ctx := c.Request().Context()
	started := time.Now()
	putErr := a.Objects.Put(ctx, storage.Object{
		Key:          out.Key,
		ContentType:  mime,
		CacheControl: st.CacheControl,
		Size:         out.Size,
		Body:         bytes.NewReader(data),
	}, nil)
	a.logFieldUpload(ctx, col.ID, out, started, putErr)
	if putErr != nil {
		return fmt.Errorf("store %s: %w", out.Key, putErr)
	}
	if out.URL, err = a.Objects.URL(ctx, out.Key); err != nil {
		return err
	}
	out.Value = out.Key
	if st.StoreURL {
		out.Value = out.URL
	}
	a.metrics.fieldUploads.WithLabelValues(col.ID).Inc()
	return c.JSON(http.StatusCreated, out)
}

func (a *App) logFieldUpload(ctx context.Context, collection string, up FieldUpload, started time.Time, err error) {
	rec := uploadlog.Record{
		TaskID:     uuid.NewString(),
		Key:        up.Key,
		Source:     uploadlog.SourceField,
		Collection: collection,
		MIMEType:   up.MIME,
		Size:       up.Size,
		State:      "succeeded",
		DurationMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		rec.State = "failed"
		rec.Error = err.Error()
	}
	if err := a.Uploads.Save(context.WithoutCancel(ctx), rec); err != nil {
		a.Echo.Logger.Errorf("record upload: %v", err)
	}
}

// uploadName builds the file name part of a storage key from the client's
// name and the detected extension.
func uploadName(original, ext string) string {
	base := Slugify(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original)))
	if base == "" {
		base = "file"
	}
	return base + ext
}

// processImage reports the dimensions of an image and, for JPEG and PNG wider
// than maxWidth, scales it down keeping the format. Other formats pass
// through unchanged.
func processImage(data []byte, mime string, maxWidth int) ([]byte, int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	w, h := cfg.Width, cfg.Height
	if maxWidth <= 0 || w <= maxWidth || (mime != "image/jpeg" && mime != "image/png") {
		return data, w, h, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	newH := h * maxWidth / w
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if mime == "image/png" {
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), maxWidth, newH, nil
}
