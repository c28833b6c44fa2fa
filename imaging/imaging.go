// Package imaging decodes raster images, re-encodes them as JPEG and computes
// how an image is placed on a PDF page.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoders
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

const (
	// DefaultQuality is used when no JPEG quality is configured.
	DefaultQuality = 90

	ThumbnailWidth   = 200
	ThumbnailHeight  = 400
	ThumbnailQuality = 70
)

// Decode reads any registered image format: JPEG, PNG, GIF, WebP, TIFF, BMP.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, ErrEmptyImage
	}
	return img, format, nil
}

// Open decodes the image file at path.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("cannot open image: %w", err)
	}
	return img, nil
}

// ClampQuality limits q to the JPEG range 1..100. Zero selects DefaultQuality.
func ClampQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}

// Opaque returns the colour channels of img with alpha dropped, so that
// transparent pixels keep their stored colour instead of turning black.
func Opaque(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}

// EncodeJPEG encodes img as a baseline JPEG with the clamped quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Opaque(img), &jpeg.Options{Quality: ClampQuality(quality)}); err != nil {
		return nil, fmt.Errorf("JPEG encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Placement is where an image is drawn on a page, in points.
type Placement struct {
	Scale      float64
	X, Y, W, H float64
}

// Fit scales an image of imgW x imgH pixels into the page area left after
// margin on every side, keeping the aspect ratio, never enlarging it, and
// centring it in that area.
func Fit(imgW, imgH int, pageW, pageH, margin float64) Placement {
	availW := pageW - 2*margin
	availH := pageH - 2*margin
	if imgW <= 0 || imgH <= 0 {
		return Placement{}
	}
	scale := min(availW/float64(imgW), availH/float64(imgH), 1)
	if scale < 0 {
		scale = 0
	}
	w := float64(imgW) * scale
	h := float64(imgH) * scale
	return Placement{
		Scale: scale,
		W:     w,
		H:     h,
		X:     margin + (availW-w)/2,
		Y:     margin + (availH-h)/2,
	}
}

// FormatFit sizes each page after its image, one point per pixel.
const FormatFit = "fit"

var pageSizes = map[string][2]float64{
	"a3":     {841.89, 1190.55},
	"a4":     {595.28, 841.89},
	"a5":     {419.53, 595.28},
	"letter": {612, 792},
	"legal":  {612, 1008},
}

// PageSize returns the portrait or landscape size of a named page format in
// points. Unknown formats fall back to A4.
func PageSize(format, orientation string) (w, h float64) {
	size, ok := pageSizes[strings.ToLower(format)]
	if !ok {
		size = pageSizes["a4"]
	}
	w, h = size[0], size[1]
	if strings.EqualFold(orientation, "landscape") {
		return h, w
	}
	return w, h
}

// KnownFormat reports whether format names a page size or FormatFit.
func KnownFormat(format string) bool {
	_, ok := pageSizes[strings.ToLower(format)]
	return ok || strings.EqualFold(format, FormatFit)
}

// Thumbnail scales img down with Catmull-Rom resampling so that it fits in
// maxW x maxH. Smaller images are returned unchanged.
func Thumbnail(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	tw := max(1, int(float64(w)*scale+0.5))
	th := max(1, int(float64(h)*scale+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ThumbnailBase64 renders the standard thumbnail of img as a base64 JPEG.
func ThumbnailBase64(img image.Image) (string, error) {
	data, err := EncodeJPEG(Thumbnail(img, ThumbnailWidth, ThumbnailHeight), ThumbnailQuality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
