package ops

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/optimize"
	"github.com/wudi/pdfforge/parser"
	"github.com/wudi/pdfforge/writer"
)

// CompressResult reports CompressPDF. Sizes are in bytes.
type CompressResult struct {
	OutputPath     string   `json:"output_path"`
	OriginalSize   int64    `json:"original_size"`
	CompressedSize int64    `json:"compressed_size"`
	Errors         []string `json:"errors"`
}

// CompressPDF writes a smaller copy of the PDF at path to
// <stem>-compressed.pdf in outDir. A quality between 1 and 100 also
// re-encodes raw images as JPEG; zero keeps the compression lossless.
func (r *Runner) CompressPDF(ctx context.Context, path string, quality int, outDir string) CompressResult {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanCompress)
	defer span.Finish()

	res := CompressResult{OriginalSize: fileSize(path), Errors: []string{}}
	if err := ensureOutputDir(outDir); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	doc, err := parser.Open(ctx, path, r.cfg.Parser)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot load PDF '%s': %v", path, err))
		return res
	}
	cfg := optimize.DefaultConfig()
	cfg.ImageQuality = quality
	cfg.Logger = r.log
	report, err := optimize.New(cfg).Optimize(ctx, doc)
	if err != nil {
		span.SetError(err)
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot compress PDF: %v", err))
		return res
	}
	out := filepath.Join(outDir, fileStem(path)+"-compressed.pdf")
	if err := writer.WriteFile(ctx, doc, out, r.cfg.Writer); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot save PDF: %v", err))
		return res
	}
	res.OutputPath = out
	res.CompressedSize = fileSize(out)
	span.SetTag(observability.TagObjectCount, len(doc.Objects))
	r.log.Info("compressed PDF",
		observability.String("path", out),
		observability.Int64("original_size", res.OriginalSize),
		observability.Int64("compressed_size", res.CompressedSize),
		observability.Int("streams_compressed", report.Compressed),
		observability.Int("objects_removed", report.Removed))
	return res
}
