package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdfforge/imaging"
	"github.com/wudi/pdfforge/ir/raw"
)

// PageSpec lays out image pages.
type PageSpec struct {
	// Format is "fit" (page sized after the image) or a named size: a3, a4,
	// a5, letter, legal. Empty means fit.
	Format string
	// Orientation is "portrait" or "landscape"; ignored for fit.
	Orientation string
	// Margin is kept free on every side, in points.
	Margin float64
	// Quality is the JPEG quality 1..100 the image is re-encoded with.
	Quality int
}

// EmbedImage decodes the image file at path, re-encodes it as JPEG and adds
// a page showing it, scaled to fit and centred, to doc under parent. Nothing
// is added when the image cannot be decoded or encoded.
func EmbedImage(doc *raw.Document, parent raw.ObjectRef, path string, spec PageSpec) (raw.ObjectRef, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	jpegData, err := imaging.EncodeJPEG(img, spec.Quality)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	imgW, imgH := img.Bounds().Dx(), img.Bounds().Dy()

	var pageW, pageH float64
	if spec.Format == "" || strings.EqualFold(spec.Format, imaging.FormatFit) {
		pageW, pageH = float64(imgW), float64(imgH)
	} else {
		pageW, pageH = imaging.PageSize(spec.Format, spec.Orientation)
	}
	place := imaging.Fit(imgW, imgH, pageW, pageH, spec.Margin)

	xobj := raw.Dict()
	xobj.Set("Type", raw.NameLiteral("XObject"))
	xobj.Set("Subtype", raw.NameLiteral("Image"))
	xobj.Set("Width", raw.NumberInt(int64(imgW)))
	xobj.Set("Height", raw.NumberInt(int64(imgH)))
	xobj.Set("ColorSpace", raw.NameLiteral("DeviceRGB"))
	xobj.Set("BitsPerComponent", raw.NumberInt(8))
	xobj.Set("Filter", raw.NameLiteral("DCTDecode"))
	imageRef := doc.Add(raw.NewStream(xobj, jpegData))

	content := fmt.Sprintf("q\n%s 0 0 %s %s %s cm\n/Img0 Do\nQ\n",
		num(place.W), num(place.H), num(place.X), num(place.Y))
	contentRef := doc.Add(raw.NewStream(raw.Dict(), []byte(content)))

	xobjects := raw.Dict()
	xobjects.Set("Img0", raw.Ref(imageRef))
	resources := raw.Dict()
	resources.Set("XObject", xobjects)

	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.Ref(parent))
	page.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberFloat(pageW), raw.NumberFloat(pageH)))
	page.Set("Resources", resources)
	page.Set("Contents", raw.Ref(contentRef))
	return doc.Add(page), nil
}

// num formats a content stream operand with at most four decimals.
func num(f float64) string {
	s := strings.TrimRight(strconv.FormatFloat(f, 'f', 4, 64), "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
