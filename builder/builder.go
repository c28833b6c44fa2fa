// Package builder assembles new documents from image files and pages of
// existing documents.
package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfforge/clone"
	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/parser"
)

var (
	// ErrNoPages is returned by Build when no page was added.
	ErrNoPages = errors.New("no pages could be added to the PDF")
	// ErrPageNotFound is returned for page numbers outside the source.
	ErrPageNotFound = errors.New("page not found")
	// ErrUnknownSource is returned by ParseItem for unsupported source types.
	ErrUnknownSource = errors.New("unknown source type")
)

// Item is one input of a build: an ImageItem or a PDFPageItem.
type Item interface {
	SourcePath() string
	isItem()
}

// ImageItem adds one page showing the image file at Path.
type ImageItem struct {
	Path string
}

// PDFPageItem copies page Page (1-based) of the PDF file at Path.
type PDFPageItem struct {
	Path string
	Page int
}

func (i ImageItem) SourcePath() string   { return i.Path }
func (i PDFPageItem) SourcePath() string { return i.Path }
func (ImageItem) isItem()                {}
func (PDFPageItem) isItem()              {}

// ParseItem builds an Item from a source type tag, "image" or "pdf". A zero
// page selects the first page.
func ParseItem(sourceType, path string, page int) (Item, error) {
	switch sourceType {
	case "image":
		return ImageItem{Path: path}, nil
	case "pdf":
		if page == 0 {
			page = 1
		}
		return PDFPageItem{Path: path, Page: page}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceType)
}

// Config controls a build.
type Config struct {
	PageSpec
	// Version is the header version of the new document, 1.7 by default.
	Version string
	// Parser loads PDF sources named by PDFPageItem.
	Parser parser.Config
	Logger observability.Logger
}

// Builder collects pages into a new document. Pages of one source document
// share a single clone.Copier, so resources they have in common are copied
// once.
type Builder struct {
	cfg      Config
	doc      *raw.Document
	pagesRef raw.ObjectRef
	kids     []raw.Object
	catalog  *raw.ObjectRef

	sources map[string]*raw.Document
	copiers map[*raw.Document]*clone.Copier
}

// NewBuilder creates an empty document and reserves the id of its page tree
// root, so pages can point at their parent before it is written.
func NewBuilder(cfg Config) *Builder {
	if cfg.Version == "" {
		cfg.Version = "1.7"
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	doc := raw.NewDocument(cfg.Version)
	return &Builder{
		cfg:      cfg,
		doc:      doc,
		pagesRef: doc.Alloc(),
		sources:  make(map[string]*raw.Document),
		copiers:  make(map[*raw.Document]*clone.Copier),
	}
}

// Document returns the document under construction.
func (b *Builder) Document() *raw.Document { return b.doc }

// PagesRef returns the id reserved for the page tree root.
func (b *Builder) PagesRef() raw.ObjectRef { return b.pagesRef }

// PageCount returns how many pages were added so far.
func (b *Builder) PageCount() int { return len(b.kids) }

// AddItem adds the page item describes. A failed item leaves the document
// unchanged.
func (b *Builder) AddItem(ctx context.Context, item Item) error {
	switch it := item.(type) {
	case ImageItem:
		_, err := b.AddImagePage(it.Path)
		return err
	case PDFPageItem:
		src, err := b.source(ctx, it.Path)
		if err != nil {
			return err
		}
		_, err = b.AddPDFPage(src, it.Page)
		return err
	}
	return fmt.Errorf("%w: %T", ErrUnknownSource, item)
}

// source loads the PDF at path once per builder.
func (b *Builder) source(ctx context.Context, path string) (*raw.Document, error) {
	if doc, ok := b.sources[path]; ok {
		return doc, nil
	}
	doc, err := parser.Open(ctx, path, b.cfg.Parser)
	if err != nil {
		return nil, fmt.Errorf("cannot load PDF: %w", err)
	}
	b.sources[path] = doc
	return doc, nil
}

// AddImagePage appends a page showing the image file at path, laid out by
// the builder's PageSpec.
func (b *Builder) AddImagePage(path string) (raw.ObjectRef, error) {
	ref, err := EmbedImage(b.doc, b.pagesRef, path, b.cfg.PageSpec)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	b.kids = append(b.kids, raw.Ref(ref))
	b.cfg.Logger.Debug("added image page", observability.String("path", path), observability.Int("page", len(b.kids)))
	return ref, nil
}

// AddPDFPage copies page pageNumber (1-based) of src into the document.
// Adding the same page twice yields two page objects that share resources.
func (b *Builder) AddPDFPage(src *raw.Document, pageNumber int) (raw.ObjectRef, error) {
	pages, err := src.Pages()
	if err != nil {
		return raw.ObjectRef{}, err
	}
	if pageNumber < 1 || pageNumber > len(pages) {
		return raw.ObjectRef{}, fmt.Errorf("%w: page %d (document has %d pages)", ErrPageNotFound, pageNumber, len(pages))
	}
	c, ok := b.copiers[src]
	if !ok {
		c = clone.NewCopier(b.doc, src)
		b.copiers[src] = c
	}
	ref, err := c.CopyPage(pages[pageNumber-1], b.pagesRef)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	b.kids = append(b.kids, raw.Ref(ref))
	b.cfg.Logger.Debug("copied page",
		observability.Int("source_page", pageNumber),
		observability.Int("page", len(b.kids)),
		observability.Int("copied_objects", c.Len()))
	return ref, nil
}

// Build writes the page tree root and the catalog and points the trailer at
// them. It fails with ErrNoPages when nothing was added.
func (b *Builder) Build() (*raw.Document, error) {
	if len(b.kids) == 0 {
		return nil, ErrNoPages
	}
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(append([]raw.Object(nil), b.kids...)...))
	pages.Set("Count", raw.NumberInt(int64(len(b.kids))))
	b.doc.Set(b.pagesRef, pages)

	if b.catalog == nil {
		catalog := raw.Dict()
		catalog.Set("Type", raw.NameLiteral("Catalog"))
		catalog.Set("Pages", raw.Ref(b.pagesRef))
		ref := b.doc.Add(catalog)
		b.catalog = &ref
	}
	b.doc.Trailer.Set("Root", raw.Ref(*b.catalog))
	b.doc.Trailer.Set("Size", raw.NumberInt(int64(b.doc.MaxObjNum()+1)))
	return b.doc, nil
}

// Extract builds a new document holding pages start..end (1-based,
// inclusive) of src. src is only read, so several extractions may run
// concurrently on one source.
func Extract(src *raw.Document, start, end int) (*raw.Document, error) {
	b := NewBuilder(Config{Version: src.Version})
	for p := start; p <= end; p++ {
		if _, err := b.AddPDFPage(src, p); err != nil {
			return nil, err
		}
	}
	if info := src.Trailer.Get("Info"); info != nil && b.copiers[src] != nil {
		copied, err := b.copiers[src].Copy(info)
		if err != nil {
			return nil, fmt.Errorf("copy document info: %w", err)
		}
		b.doc.Trailer.Set("Info", copied)
	}
	return b.Build()
}
