package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func solid(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFit(t *testing.T) {
	cases := []struct {
		name              string
		imgW, imgH        int
		pageW, pageH, m   float64
		scale, x, y, w, h float64
	}{
		{"downscale width bound", 1000, 500, 600, 800, 50, 0.5, 50, 275, 500, 250},
		{"never upscale", 100, 100, 600, 800, 0, 1, 250, 350, 100, 100},
		{"height bound", 400, 1600, 600, 800, 0, 0.5, 200, 0, 200, 800},
		{"fit page", 640, 480, 640, 480, 0, 1, 0, 0, 640, 480},
	}
	for _, tc := range cases {
		p := Fit(tc.imgW, tc.imgH, tc.pageW, tc.pageH, tc.m)
		if !near(p.Scale, tc.scale) || !near(p.X, tc.x) || !near(p.Y, tc.y) || !near(p.W, tc.w) || !near(p.H, tc.h) {
			t.Fatalf("%s: got %+v", tc.name, p)
		}
	}
}

func TestPageSize(t *testing.T) {
	w, h := PageSize("a4", "portrait")
	if w != 595.28 || h != 841.89 {
		t.Fatalf("a4 = %v x %v", w, h)
	}
	w, h = PageSize("Letter", "landscape")
	if w != 792 || h != 612 {
		t.Fatalf("letter landscape = %v x %v", w, h)
	}
	w, h = PageSize("tabloid", "")
	if w != 595.28 || h != 841.89 {
		t.Fatalf("unknown format should fall back to a4, got %v x %v", w, h)
	}
	if !KnownFormat("FIT") || !KnownFormat("legal") || KnownFormat("tabloid") {
		t.Fatalf("KnownFormat mismatch")
	}
}

func TestClampQuality(t *testing.T) {
	for in, want := range map[int]int{0: DefaultQuality, -5: 1, 1: 1, 55: 55, 100: 100, 250: 100} {
		if got := ClampQuality(in); got != want {
			t.Fatalf("ClampQuality(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestEncodeJPEGKeepsColourOfTransparentPixels(t *testing.T) {
	src := solid(8, 6, color.NRGBA{R: 200, G: 10, B: 10, A: 0})
	data, err := EncodeJPEG(src, 100)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Fatalf("size = %v", b)
	}
	r, _, _, _ := out.At(4, 3).RGBA()
	if r>>8 < 150 {
		t.Fatalf("transparent red pixel lost its colour: r=%d", r>>8)
	}
}

func TestDecodeFormats(t *testing.T) {
	src := solid(5, 4, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, src) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, src) },
		"tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, src, nil) },
	}
	for name, enc := range encoders {
		var buf bytes.Buffer
		if err := enc(&buf); err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		img, format, err := Decode(&buf)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if format != name || img.Bounds().Dx() != 5 || img.Bounds().Dy() != 4 {
			t.Fatalf("%s: format %q bounds %v", name, format, img.Bounds())
		}
	}
	if _, _, err := Decode(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestThumbnail(t *testing.T) {
	wide := Thumbnail(solid(1000, 500, color.White), ThumbnailWidth, ThumbnailHeight)
	if b := wide.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("wide thumbnail = %v", b)
	}
	tall := Thumbnail(solid(300, 1200, color.White), ThumbnailWidth, ThumbnailHeight)
	if b := tall.Bounds(); b.Dx() != 100 || b.Dy() != 400 {
		t.Fatalf("tall thumbnail = %v", b)
	}
	small := solid(50, 50, color.White)
	if Thumbnail(small, ThumbnailWidth, ThumbnailHeight) != small {
		t.Fatalf("small image should be returned unchanged")
	}

	b64, err := ThumbnailBase64(solid(400, 400, color.Black))
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg config: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 200 {
		t.Fatalf("thumbnail size %dx%d", cfg.Width, cfg.Height)
	}
}
