package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/ir/raw"
)

// ErrUnsupportedImage is returned by ToImage for encodings it cannot rebuild.
var ErrUnsupportedImage = errors.New("unsupported image encoding")

// ImageAsset represents an image XObject found on a page.
type ImageAsset struct {
	Page             int // 1-based
	ResourceName     string
	Ref              raw.ObjectRef
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       string
	Components       int
	Filters          []string
	// Codec names the image filter still applied to Data (DCTDecode,
	// JPXDecode, ...). It is empty when Data holds raw samples.
	Codec string
	Data  []byte
	// Err is set when the payload could not be decoded.
	Err error
}

// ExtractImages walks page resources, including nested form XObjects, and
// returns the image XObjects in page order. Within a page images are ordered
// by resource name.
func (e *Extractor) ExtractImages(ctx context.Context) ([]ImageAsset, error) {
	var assets []ImageAsset
	for idx, ref := range e.pages {
		if err := ctx.Err(); err != nil {
			return assets, err
		}
		page := e.doc.ResolveDict(raw.Ref(ref))
		if page == nil {
			continue
		}
		forms := make(map[raw.ObjectRef]bool)
		assets = e.collectImages(ctx, idx+1, e.resources(page), forms, assets)
	}
	return assets, nil
}

func (e *Extractor) collectImages(ctx context.Context, page int, res *raw.DictObj, forms map[raw.ObjectRef]bool, assets []ImageAsset) []ImageAsset {
	xobjects := e.doc.ResolveDict(res.Get("XObject"))
	if xobjects == nil {
		return assets
	}
	for _, name := range xobjects.Keys() {
		entry := xobjects.Get(name)
		stream, ok := e.doc.Resolve(entry).(*raw.StreamObj)
		if !ok || stream.Dict == nil {
			continue
		}
		var ref raw.ObjectRef
		if r, ok := entry.(raw.RefObj); ok {
			ref = r.R
		}
		switch stream.Dict.Name("Subtype") {
		case "Image":
			assets = append(assets, e.imageAsset(ctx, page, name, ref, stream))
		case "Form":
			if ref != (raw.ObjectRef{}) {
				if forms[ref] {
					continue
				}
				forms[ref] = true
			}
			if formRes := e.doc.ResolveDict(stream.Dict.Get("Resources")); formRes != nil {
				assets = e.collectImages(ctx, page, formRes, forms, assets)
			}
		}
	}
	return assets
}

func (e *Extractor) imageAsset(ctx context.Context, page int, name string, ref raw.ObjectRef, s *raw.StreamObj) ImageAsset {
	dict := s.Dict
	asset := ImageAsset{
		Page:             page,
		ResourceName:     name,
		Ref:              ref,
		Width:            intValue(e.doc, dict, "Width"),
		Height:           intValue(e.doc, dict, "Height"),
		BitsPerComponent: intValue(e.doc, dict, "BitsPerComponent"),
		ColorSpace:       colorSpaceName(e.doc, dict.Get("ColorSpace")),
	}
	asset.Components = components(asset.ColorSpace)
	if asset.ColorSpace == "ICCBased" {
		asset.Components = iccComponents(e.doc, dict.Get("ColorSpace"))
	}
	if m, ok := dict.Get("ImageMask").(raw.BoolObj); ok && m.V {
		asset.ColorSpace = "DeviceGray"
		asset.Components = 1
		asset.BitsPerComponent = 1
	}

	names, params := filters.ExtractFilters(dict)
	asset.Filters = names
	general := names
	for i, f := range names {
		if filters.IsImageFilter(f) {
			asset.Codec = filters.CanonicalName(f)
			general = names[:i]
			break
		}
	}
	if len(general) == 0 {
		asset.Data = s.Data
		return asset
	}
	if len(params) > len(general) {
		params = params[:len(general)]
	}
	data, err := filters.NewStandardPipeline(e.limits).Decode(ctx, s.Data, general, params)
	if err != nil {
		asset.Err = err
		return asset
	}
	asset.Data = data
	return asset
}

func components(colorSpace string) int {
	switch colorSpace {
	case "DeviceGray", "CalGray", "G":
		return 1
	case "DeviceRGB", "CalRGB", "Lab", "RGB":
		return 3
	case "DeviceCMYK", "CMYK":
		return 4
	}
	return 0
}

// ToImage converts the image data into a standard Go image.Image. JPEG
// payloads are decoded; raw 8-bit gray, RGB and CMYK samples and 1-bit gray
// samples are wrapped.
func (i ImageAsset) ToImage() (image.Image, error) {
	if i.Err != nil {
		return nil, i.Err
	}
	if len(i.Data) == 0 {
		return nil, errors.New("image data is empty")
	}
	switch i.Codec {
	case "":
	case "DCTDecode":
		img, err := jpeg.Decode(bytes.NewReader(i.Data))
		if err != nil {
			return nil, fmt.Errorf("decode JPEG: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, i.Codec)
	}

	if i.Width <= 0 || i.Height <= 0 {
		return nil, errors.New("invalid image dimensions")
	}
	rect := image.Rect(0, 0, i.Width, i.Height)
	switch {
	case i.Components == 1 && i.BitsPerComponent == 1:
		return expandBits(i.Data, i.Width, i.Height)
	case i.BitsPerComponent != 8:
		return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupportedImage, i.BitsPerComponent)
	}
	need := i.Width * i.Height * i.Components
	if i.Components == 0 || len(i.Data) < need {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d %s image", ErrUnsupportedImage, len(i.Data), i.Width, i.Height, i.ColorSpace)
	}
	switch i.Components {
	case 1:
		return &image.Gray{Pix: i.Data[:need], Stride: i.Width, Rect: rect}, nil
	case 3:
		return &rgbImage{Pix: i.Data[:need], Stride: i.Width * 3, Rect: rect}, nil
	case 4:
		return &image.CMYK{Pix: i.Data[:need], Stride: i.Width * 4, Rect: rect}, nil
	}
	return nil, fmt.Errorf("%w: %d components", ErrUnsupportedImage, i.Components)
}

// expandBits unpacks 1-bit gray rows, each padded to a whole byte.
func expandBits(data []byte, w, h int) (image.Image, error) {
	stride := (w + 7) / 8
	if len(data) < stride*h {
		return nil, fmt.Errorf("%w: short 1-bit image", ErrUnsupportedImage)
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := data[y*stride:]
		for x := 0; x < w; x++ {
			if row[x/8]&(0x80>>(x%8)) != 0 {
				img.Pix[y*img.Stride+x] = 0xff
			}
		}
	}
	return img, nil
}

// ToPNG encodes the image asset to PNG format.
func (i ImageAsset) ToPNG() ([]byte, error) {
	img, err := i.ToImage()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rgbImage exposes packed 8-bit RGB samples without copying them.
type rgbImage struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func (p *rgbImage) ColorModel() color.Model { return color.RGBAModel }
func (p *rgbImage) Bounds() image.Rectangle { return p.Rect }
func (p *rgbImage) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 255}
}
