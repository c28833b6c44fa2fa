package ops

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/wudi/pdfforge/imaging"
	"github.com/wudi/pdfforge/observability"
)

// ErrNoRenderer is reported for PDF inputs when no Renderer is available.
var ErrNoRenderer = errors.New("no page renderer configured")

// Renderer rasterizes PDF pages. Pages are 1-based.
type Renderer interface {
	PageCount(ctx context.Context, path string) (int, error)
	RenderPage(ctx context.Context, path string, page, width, maxHeight int) (image.Image, error)
}

// Thumbnail is a base64 JPEG preview of an image file or one PDF page.
type Thumbnail struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
	// PageNumber is 1-based for PDF pages and 0 for images.
	PageNumber   int    `json:"page_number"`
	ThumbnailB64 string `json:"thumbnail_b64"`
	SourceType   string `json:"source_type"`
}

// ThumbnailBatch holds the previews of a Thumbnails call, images first.
type ThumbnailBatch struct {
	Thumbnails []Thumbnail `json:"thumbnails"`
	Errors     []string    `json:"errors"`
}

// Thumbnails previews every file of paths. Images are decoded concurrently;
// PDF pages go through renderer one file at a time. A page that fails to
// render keeps its entry with an empty thumbnail.
func (r *Runner) Thumbnails(ctx context.Context, paths []string, renderer Renderer) ThumbnailBatch {
	var images, pdfs []string
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".pdf") {
			pdfs = append(pdfs, p)
		} else {
			images = append(images, p)
		}
	}

	batch := ThumbnailBatch{Thumbnails: []Thumbnail{}, Errors: []string{}}
	thumbs := make([]*Thumbnail, len(images))
	failures := make([]error, len(images))
	parallel(ctx, len(images), r.cfg.Workers, func(i int) {
		thumbs[i], failures[i] = imageThumbnail(images[i])
	})
	for i, t := range thumbs {
		switch {
		case t != nil:
			batch.Thumbnails = append(batch.Thumbnails, *t)
		case failures[i] != nil:
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", fileName(images[i]), failures[i]))
		}
	}

	for _, path := range pdfs {
		if err := ctx.Err(); err != nil {
			batch.Errors = append(batch.Errors, err.Error())
			break
		}
		if renderer == nil {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", fileName(path), ErrNoRenderer))
			continue
		}
		pages, err := renderer.PageCount(ctx, path)
		if err != nil {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", fileName(path), err))
			continue
		}
		for page := 1; page <= pages; page++ {
			batch.Thumbnails = append(batch.Thumbnails, r.pageThumbnail(ctx, renderer, path, page))
		}
	}
	return batch
}

func imageThumbnail(path string) (*Thumbnail, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	b64, err := imaging.ThumbnailBase64(img)
	if err != nil {
		return nil, err
	}
	return &Thumbnail{
		ID:           fmt.Sprintf("img_%s_0", fileName(path)),
		SourcePath:   path,
		ThumbnailB64: b64,
		SourceType:   "image",
	}, nil
}

func (r *Runner) pageThumbnail(ctx context.Context, renderer Renderer, path string, page int) Thumbnail {
	t := Thumbnail{
		ID:         fmt.Sprintf("pdf_%s_p%d", fileName(path), page),
		SourcePath: path,
		PageNumber: page,
		SourceType: "pdf",
	}
	img, err := renderer.RenderPage(ctx, path, page, imaging.ThumbnailWidth, imaging.ThumbnailHeight)
	if err != nil {
		r.log.Warn("render failed", observability.String("path", path), observability.Int("page", page), observability.Error("error", err))
		return t
	}
	b64, err := imaging.ThumbnailBase64(img)
	if err != nil {
		r.log.Warn("thumbnail encode failed", observability.String("path", path), observability.Int("page", page), observability.Error("error", err))
		return t
	}
	t.ThumbnailB64 = b64
	return t
}
