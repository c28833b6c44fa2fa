package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wudi/pdfforge/clone"
	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/writer"
)

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	path := filepath.Join(dir, fmt.Sprintf("img_%dx%d.png", w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}

// sourceDocument builds an n-page document whose pages share one font.
func sourceDocument(n int) *raw.Document {
	doc := raw.NewDocument("1.6")
	pagesRef := doc.Alloc()
	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	fontRef := doc.Add(font)
	kids := raw.NewArray()
	for i := 1; i <= n; i++ {
		contents := doc.Add(raw.NewStream(raw.Dict(), []byte(fmt.Sprintf("%% page %d", i))))
		fonts := raw.Dict()
		fonts.Set("F1", raw.Ref(fontRef))
		res := raw.Dict()
		res.Set("Font", fonts)
		page := raw.Dict()
		page.Set("Type", raw.NameLiteral("Page"))
		page.Set("Parent", raw.Ref(pagesRef))
		page.Set("Resources", res)
		page.Set("Contents", raw.Ref(contents))
		kids.Append(raw.Ref(doc.Add(page)))
	}
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(int64(n)))
	pages.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(300), raw.NumberInt(400)))
	doc.Set(pagesRef, pages)
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(pagesRef))
	doc.Trailer.Set("Root", raw.Ref(doc.Add(catalog)))
	info := raw.Dict()
	info.Set("Title", raw.Str([]byte("Source")))
	doc.Trailer.Set("Info", raw.Ref(doc.Add(info)))
	return doc
}

func contentOf(t *testing.T, doc *raw.Document, page raw.Object) string {
	t.Helper()
	d := doc.ResolveDict(page)
	s, ok := doc.Resolve(d.Get("Contents")).(*raw.StreamObj)
	if !ok {
		t.Fatalf("page has no content stream")
	}
	return string(s.Data)
}

// checkPageTree verifies Count == len(Kids), that every kid resolves to a
// page whose Parent is the root, and that the document would save.
func checkPageTree(t *testing.T, doc *raw.Document, wantPages int) {
	t.Helper()
	root, err := doc.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	pagesRef := root.Get("Pages").(raw.RefObj)
	pages := doc.ResolveDict(pagesRef)
	kids := pages.Get("Kids").(*raw.ArrayObj)
	count, _ := pages.Int("Count")
	if int(count) != kids.Len() || kids.Len() != wantPages {
		t.Fatalf("Count=%d len(Kids)=%d want %d", count, kids.Len(), wantPages)
	}
	for _, kid := range kids.Items {
		page := doc.ResolveDict(kid)
		if page == nil || page.Name("Type") != "Page" {
			t.Fatalf("kid %v is not a page", kid)
		}
		if page.Get("Parent") != pagesRef {
			t.Fatalf("kid %v has Parent %v", kid, page.Get("Parent"))
		}
	}
	if err := writer.Validate(doc); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestAddImagePage(t *testing.T) {
	path := writePNG(t, t.TempDir(), 1000, 500)
	b := NewBuilder(Config{PageSpec: PageSpec{Format: "a4", Orientation: "portrait", Margin: 50, Quality: 80}})
	ref, err := b.AddImagePage(path)
	if err != nil {
		t.Fatalf("add image: %v", err)
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	checkPageTree(t, doc, 1)
	if doc.Version != "1.7" {
		t.Fatalf("version = %q", doc.Version)
	}

	page := doc.ResolveDict(raw.Ref(ref))
	box := page.Get("MediaBox").(*raw.ArrayObj)
	if w := box.Items[2].(raw.NumberObj).Float(); w != 595.28 {
		t.Fatalf("page width = %v", w)
	}
	// 1000x500 into 495.28 x 741.89 scales to 0.49528
	want := "q\n495.28 0 0 247.64 50 297.125 cm\n/Img0 Do\nQ\n"
	if got := contentOf(t, doc, raw.Ref(ref)); got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
	res := doc.ResolveDict(page.Get("Resources"))
	xobjs := doc.ResolveDict(res.Get("XObject"))
	img := doc.Resolve(xobjs.Get("Img0")).(*raw.StreamObj)
	if img.Dict.Name("Filter") != "DCTDecode" || img.Dict.Name("ColorSpace") != "DeviceRGB" {
		t.Fatalf("unexpected image dict %v", img.Dict.KV)
	}
	if w, _ := img.Dict.Int("Width"); w != 1000 {
		t.Fatalf("Width = %d", w)
	}
	if !bytes.HasPrefix(img.Data, []byte{0xff, 0xd8}) {
		t.Fatalf("image payload is not a JPEG")
	}
}

func TestFitFormatUsesImageSize(t *testing.T) {
	path := writePNG(t, t.TempDir(), 64, 48)
	b := NewBuilder(Config{})
	ref, err := b.AddImagePage(path)
	if err != nil {
		t.Fatalf("add image: %v", err)
	}
	if got := contentOf(t, b.Document(), raw.Ref(ref)); got != "q\n64 0 0 48 0 0 cm\n/Img0 Do\nQ\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestFitFormatIgnoresCase(t *testing.T) {
	path := writePNG(t, t.TempDir(), 64, 48)
	b := NewBuilder(Config{PageSpec: PageSpec{Format: "FIT"}})
	ref, err := b.AddImagePage(path)
	if err != nil {
		t.Fatalf("add image: %v", err)
	}
	box := b.Document().ResolveDict(raw.Ref(ref)).Get("MediaBox").(*raw.ArrayObj)
	if w, h := box.Items[2].(raw.NumberObj), box.Items[3].(raw.NumberObj); w.Float() != 64 || h.Float() != 48 {
		t.Fatalf("MediaBox = %v, want image size", box.Items)
	}
}

func TestBadImageAddsNothing(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(bad, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(Config{})
	before := len(b.Document().Objects)
	if err := b.AddItem(context.Background(), ImageItem{Path: bad}); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := b.AddItem(context.Background(), ImageItem{Path: filepath.Join(dir, "missing.jpg")}); err == nil {
		t.Fatalf("expected open error")
	}
	if len(b.Document().Objects) != before || b.PageCount() != 0 {
		t.Fatalf("failed items changed the document")
	}
	if _, err := b.Build(); !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}

func TestAddPDFPageItemsFromFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.pdf")
	if err := writer.WriteFile(context.Background(), sourceDocument(3), srcPath, writer.Config{}); err != nil {
		t.Fatalf("write source: %v", err)
	}
	b := NewBuilder(Config{})
	for _, page := range []int{3, 1, 3} {
		if err := b.AddItem(context.Background(), PDFPageItem{Path: srcPath, Page: page}); err != nil {
			t.Fatalf("add page %d: %v", page, err)
		}
	}
	before := len(b.Document().Objects)
	err := b.AddItem(context.Background(), PDFPageItem{Path: srcPath, Page: 9})
	if !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
	if len(b.Document().Objects) != before {
		t.Fatalf("failed page changed the document")
	}
	if len(b.sources) != 1 {
		t.Fatalf("source parsed %d times, want once", len(b.sources))
	}

	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	checkPageTree(t, doc, 3)
	pages, _ := doc.Pages()
	var got []string
	for _, p := range pages {
		got = append(got, contentOf(t, doc, raw.Ref(p)))
	}
	if strings.Join(got, ",") != "% page 3,% page 1,% page 3" {
		t.Fatalf("page order = %v", got)
	}
	if pages[0] == pages[2] {
		t.Fatalf("repeated page must be a distinct object")
	}
	fonts := 0
	for _, obj := range doc.Objects {
		if d, ok := obj.(*raw.DictObj); ok && d.Name("Type") == "Font" {
			fonts++
		}
	}
	if fonts != 1 {
		t.Fatalf("shared font copied %d times", fonts)
	}
	// inherited MediaBox travels with the page
	if doc.ResolveDict(raw.Ref(pages[1])).Get("MediaBox") == nil {
		t.Fatalf("inherited MediaBox missing")
	}
}

func TestExtract(t *testing.T) {
	src := sourceDocument(4)
	before := len(src.Objects)
	doc, err := Extract(src, 2, 3)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	checkPageTree(t, doc, 2)
	if doc.Version != "1.6" {
		t.Fatalf("version = %q, want source version", doc.Version)
	}
	info := doc.ResolveDict(doc.Trailer.Get("Info"))
	if info == nil || string(info.Get("Title").(raw.StringObj).Bytes) != "Source" {
		t.Fatalf("Info not carried over")
	}
	if len(src.Objects) != before {
		t.Fatalf("source document was modified")
	}
	if _, err := Extract(src, 4, 5); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
	if size, _ := doc.Trailer.Int("Size"); size != int64(doc.MaxObjNum()+1) {
		t.Fatalf("trailer Size = %d, want %d", size, doc.MaxObjNum()+1)
	}
}

func TestExtractReportsBrokenInfo(t *testing.T) {
	src := sourceDocument(2)
	src.Trailer.Set("Info", raw.Ref(raw.ObjectRef{Num: 500}))
	if _, err := Extract(src, 1, 2); !errors.Is(err, clone.ErrMissingObject) {
		t.Fatalf("expected ErrMissingObject, got %v", err)
	}

	direct := raw.Dict()
	direct.Set("Author", raw.Str([]byte("Ops")))
	src.Trailer.Set("Info", direct)
	doc, err := Extract(src, 1, 1)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	info := doc.ResolveDict(doc.Trailer.Get("Info"))
	if info == nil || string(info.Get("Author").(raw.StringObj).Bytes) != "Ops" {
		t.Fatalf("direct Info not carried over: %v", doc.Trailer.Get("Info"))
	}
}

func TestParseItem(t *testing.T) {
	item, err := ParseItem("pdf", "a.pdf", 0)
	if err != nil || item != (PDFPageItem{Path: "a.pdf", Page: 1}) {
		t.Fatalf("ParseItem pdf = %v, %v", item, err)
	}
	if item, err := ParseItem("image", "a.png", 0); err != nil || item.SourcePath() != "a.png" {
		t.Fatalf("ParseItem image = %v, %v", item, err)
	}
	_, err = ParseItem("video", "a.mp4", 0)
	if !errors.Is(err, ErrUnknownSource) || err.Error() != "unknown source type: video" {
		t.Fatalf("ParseItem video = %v", err)
	}
}
