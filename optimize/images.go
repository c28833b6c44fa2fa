package optimize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/imaging"
	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/observability"
)

// optimizeImages re-encodes raw 8-bit images as JPEG when the result is
// smaller than the stored payload.
func (o *Optimizer) optimizeImages(ctx context.Context, doc *raw.Document) (int, int64, error) {
	count := 0
	var saved int64
	for _, ref := range doc.Refs() {
		if err := ctx.Err(); err != nil {
			return count, saved, err
		}
		s, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok || s.Dict.Name("Subtype") != "Image" {
			continue
		}
		if b, ok := s.Dict.Get("ImageMask").(raw.BoolObj); ok && b.V {
			continue
		}
		if s.Dict.Get("Decode") != nil {
			continue
		}
		data, err := filters.DecodeStream(ctx, s, filters.DefaultLimits())
		if err != nil {
			if errors.Is(err, filters.ErrImageFilter) || errors.Is(err, filters.ErrUnknownFilter) {
				continue
			}
			o.log.Debug("skipping undecodable image", observability.Int("object", int(ref.Num)), observability.Error("error", err))
			continue
		}
		img := toImage(s.Dict, data)
		if img == nil {
			continue
		}
		encoded, colorSpace, err := encodeJPEG(img, o.config.ImageQuality)
		if err != nil || len(encoded) >= len(s.Data) {
			continue
		}
		saved += int64(len(s.Data) - len(encoded))
		s.Data = encoded
		s.Dict.Set("Filter", raw.NameLiteral("DCTDecode"))
		s.Dict.Set("ColorSpace", raw.NameLiteral(colorSpace))
		s.Dict.Set("BitsPerComponent", raw.NumberInt(8))
		s.Dict.Set("Length", raw.NumberInt(int64(len(encoded))))
		s.Dict.Delete("DecodeParms")
		count++
	}
	return count, saved, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, string, error) {
	if gray, ok := img.(*image.Gray); ok {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: imaging.ClampQuality(quality)}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "DeviceGray", nil
	}
	data, err := imaging.EncodeJPEG(img, quality)
	return data, "DeviceRGB", err
}

// toImage wraps decoded samples of an 8-bit device colour image. It returns
// nil for anything else.
func toImage(dict *raw.DictObj, data []byte) image.Image {
	w, _ := dict.Int("Width")
	h, _ := dict.Int("Height")
	width, height := int(w), int(h)
	if width <= 0 || height <= 0 {
		return nil
	}
	if bpc, ok := dict.Int("BitsPerComponent"); ok && bpc != 8 {
		return nil
	}
	switch dict.Name("ColorSpace") {
	case "DeviceGray":
		if len(data) < width*height {
			return nil
		}
		return &image.Gray{
			Pix:    data[:width*height],
			Stride: width,
			Rect:   image.Rect(0, 0, width, height),
		}
	case "DeviceRGB":
		if len(data) < width*height*3 {
			return nil
		}
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		for i, j := 0, 0; i < width*height; i, j = i+1, j+3 {
			img.Pix[i*4] = data[j]
			img.Pix[i*4+1] = data[j+1]
			img.Pix[i*4+2] = data[j+2]
			img.Pix[i*4+3] = 255
		}
		return img
	case "DeviceCMYK":
		if len(data) < width*height*4 {
			return nil
		}
		img := image.NewCMYK(image.Rect(0, 0, width, height))
		copy(img.Pix, data)
		return img
	}
	return nil
}
