package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wudi/pdfforge/extractor"
	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/parser"
)

// ExtractResult reports ExtractImages.
type ExtractResult struct {
	PDFPath        string   `json:"pdf_path"`
	OutputDir      string   `json:"output_dir"`
	ExtractedCount int      `json:"extracted_count"`
	Errors         []string `json:"errors"`
}

// ExtractImages saves every image XObject of the PDF at path as
// <stem>_<n>.png in outDir, numbering images across all pages. An image that
// cannot be decoded is reported and keeps its number.
func (r *Runner) ExtractImages(ctx context.Context, path, outDir string) ExtractResult {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanExtract)
	defer span.Finish()

	res := ExtractResult{PDFPath: path, OutputDir: outDir, Errors: []string{}}
	if err := ensureOutputDir(outDir); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	doc, err := parser.Open(ctx, path, r.cfg.Parser)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot open PDF '%s': %v", path, err))
		return res
	}
	ext, err := extractor.New(doc)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot open PDF '%s': %v", path, err))
		return res
	}
	assets, err := ext.ExtractImages(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	stem := fileStem(path)
	for i, asset := range assets {
		n := i + 1
		data, err := asset.ToPNG()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Page %d, image %d: failed to extract: %v", asset.Page, n, err))
			continue
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s_%d.png", stem, n))
		if err := os.WriteFile(out, data, 0o644); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Page %d, image %d: failed to save: %v", asset.Page, n, err))
			continue
		}
		res.ExtractedCount++
	}
	r.log.Info("extracted images", observability.String("path", path), observability.Int("count", res.ExtractedCount))
	return res
}
