package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfforge/builder"
	"github.com/wudi/pdfforge/imaging"
	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/writer"
)

// MergeItem is one page of a merge: an image file, or one page of a PDF.
type MergeItem struct {
	SourcePath string `json:"source_path"`
	// PageNumber is 1-based; zero selects the first page.
	PageNumber int `json:"page_number,omitempty"`
	// SourceType is "image" or "pdf".
	SourceType string `json:"source_type"`
}

// MergeOptions lays out image pages and names the output file.
type MergeOptions struct {
	// PageFormat is "fit" or a named size (a4, letter, legal, a3, a5).
	PageFormat   string  `json:"page_format"`
	Orientation  string  `json:"orientation"`
	MarginPx     float64 `json:"margin_px"`
	ImageQuality int     `json:"image_quality"`
	OutputPath   string  `json:"output_path"`
}

// MergeResult reports a merge or images-to-PDF run. PageCount is zero when
// no file was written.
type MergeResult struct {
	OutputPath string   `json:"output_path"`
	PageCount  int      `json:"page_count"`
	Errors     []string `json:"errors"`
}

// MergeToPDF builds one document from items in order. Items that fail are
// reported and skipped; the file is written only when at least one page was
// added.
func (r *Runner) MergeToPDF(ctx context.Context, items []MergeItem, opts MergeOptions) MergeResult {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanMerge)
	defer span.Finish()

	b := builder.NewBuilder(builder.Config{
		PageSpec: builder.PageSpec{
			Format:      opts.PageFormat,
			Orientation: opts.Orientation,
			Margin:      opts.MarginPx,
			Quality:     opts.ImageQuality,
		},
		Parser: r.cfg.Parser,
		Logger: r.log,
	})
	res := MergeResult{OutputPath: opts.OutputPath, Errors: []string{}}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}
		item, err := builder.ParseItem(it.SourceType, it.SourcePath, it.PageNumber)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Unknown source type: %s", it.SourceType))
			continue
		}
		if err := b.AddItem(ctx, item); err != nil {
			res.Errors = append(res.Errors, itemError(item, err))
			r.log.Warn("skipping merge item", observability.String("path", it.SourcePath), observability.Error("error", err))
		}
	}
	res.PageCount = r.save(ctx, b, opts.OutputPath, "No pages could be added to the PDF", &res.Errors)
	span.SetTag(observability.TagPageCount, res.PageCount)
	return res
}

// ImagesToPDF puts every image on its own page sized after the image.
func (r *Runner) ImagesToPDF(ctx context.Context, paths []string, outputPath string) MergeResult {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanMerge)
	defer span.Finish()

	b := builder.NewBuilder(builder.Config{
		PageSpec: builder.PageSpec{Format: imaging.FormatFit},
		Logger:   r.log,
	})
	res := MergeResult{OutputPath: outputPath, Errors: []string{}}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}
		if _, err := b.AddImagePage(path); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", fileName(path), err))
		}
	}
	res.PageCount = r.save(ctx, b, outputPath, "No images could be added to the PDF", &res.Errors)
	span.SetTag(observability.TagPageCount, res.PageCount)
	return res
}

// save builds and writes the document of b. It returns the number of pages
// written, zero on failure.
func (r *Runner) save(ctx context.Context, b *builder.Builder, path, empty string, errs *[]string) int {
	doc, err := b.Build()
	if errors.Is(err, builder.ErrNoPages) {
		*errs = append(*errs, empty)
		return 0
	}
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("Cannot build PDF: %v", err))
		return 0
	}
	if err := writer.WriteFile(ctx, doc, path, r.cfg.Writer); err != nil {
		*errs = append(*errs, fmt.Sprintf("Cannot save PDF: %v", err))
		return 0
	}
	r.log.Info("wrote PDF", observability.String("path", path), observability.Int("pages", b.PageCount()))
	return b.PageCount()
}

func itemError(item builder.Item, err error) string {
	if p, ok := item.(builder.PDFPageItem); ok {
		return fmt.Sprintf("%s (page %d): %v", fileName(p.Path), p.Page, err)
	}
	return fmt.Sprintf("%s: %v", fileName(item.SourcePath()), err)
}
