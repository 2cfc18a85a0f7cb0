// Package imagemeta extracts the EXIF attributes that filters and path
// templates can use: pixel dimensions, capture time, camera make and model.
package imagemeta

import (
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"gitlab.com/tozd/go/errors"
)

// ErrNoMetadata is returned when a file carries EXIF data but none of the
// attributes this package reads.
var ErrNoMetadata = errors.Base("no usable image metadata")

// Dimensions is an image size in pixels.
type Dimensions struct {
	Width  uint32
	Height uint32
}

// Within reports whether both sides lie in [min, max]. A nil bound is open.
func (d Dimensions) Within(lo, hi *uint32) bool {
	if lo != nil && (d.Width < *lo || d.Height < *lo) {
		return false
	}
	if hi != nil && (d.Width > *hi || d.Height > *hi) {
		return false
	}
	return true
}

// Metadata is what a Provider could read from a file. Every field is optional.
type Metadata struct {
	Dimensions *Dimensions
	DateTime   *time.Time
	Make       string
	Model      string
}

// Provider reads image metadata for a file. An error means "absent".
type Provider interface {
	Read(absPath string) (*Metadata, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(absPath string) (*Metadata, error)

func (f ProviderFunc) Read(absPath string) (*Metadata, error) { return f(absPath) }

// ExifProvider reads metadata from EXIF blocks in JPEG, TIFF and raw EXIF files.
type ExifProvider struct{}

// NewExifProvider returns the default Provider.
func NewExifProvider() *ExifProvider { return &ExifProvider{} }

func (p *ExifProvider) Read(absPath string) (*Metadata, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, errors.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	// Sub-IFD errors are reported alongside a usable result.
	x, err := exif.Decode(f)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return nil, errors.Errorf("no exif data in %s: %w", absPath, err)
	}

	meta := &Metadata{
		Dimensions: dimensions(x),
		Make:       stringField(x, exif.Make),
		Model:      stringField(x, exif.Model),
	}
	if dt, err := x.DateTime(); err == nil {
		local := dt.In(time.Local)
		meta.DateTime = &local
	}

	if meta.Dimensions == nil && meta.DateTime == nil && meta.Make == "" && meta.Model == "" {
		return nil, errors.WithDetails(ErrNoMetadata, "path", absPath)
	}
	return meta, nil
}

// dimensions prefers the Exif sub-IFD pixel sizes and falls back to the
// primary image's TIFF width and length.
func dimensions(x *exif.Exif) *Dimensions {
	pairs := [][2]exif.FieldName{
		{exif.PixelXDimension, exif.PixelYDimension},
		{exif.ImageWidth, exif.ImageLength},
	}
	for _, pair := range pairs {
		w, okW := intField(x, pair[0])
		h, okH := intField(x, pair[1])
		if okW && okH {
			return &Dimensions{Width: w, Height: h}
		}
	}
	return nil
}

func intField(x *exif.Exif, name exif.FieldName) (uint32, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil || v < 0 {
		return 0, false
	}
	return uint32(v), true
}

func stringField(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
