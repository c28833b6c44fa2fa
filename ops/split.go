package ops

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wudi/pdfforge/builder"
	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/pagerange"
	"github.com/wudi/pdfforge/parser"
	"github.com/wudi/pdfforge/writer"
)

// SplitResult lists the files written by SplitPDF in range order.
type SplitResult struct {
	OutputFiles []string `json:"output_files"`
	Errors      []string `json:"errors"`
}

// SplitPDF writes one file per range of ranges ("1-3, 5, 7-end") into
// outDir, named <stem>_page_<n>.pdf or <stem>_pages_<a>-<b>.pdf. The source
// is parsed once and shared read-only by the workers. A range that fails to
// build or save does not affect the others.
func (r *Runner) SplitPDF(ctx context.Context, path, ranges, outDir string) SplitResult {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanSplit)
	defer span.Finish()

	res := SplitResult{OutputFiles: []string{}, Errors: []string{}}
	if err := ensureOutputDir(outDir); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	src, err := parser.Open(ctx, path, r.cfg.Parser)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot load PDF '%s': %v", path, err))
		return res
	}
	total := src.PageCount()
	parsed, err := pagerange.Parse(ranges, total)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	stem := fileStem(path)
	outputs := make([]string, len(parsed))
	failures := make([]string, len(parsed))
	parallel(ctx, len(parsed), r.cfg.Workers, func(i int) {
		rg := parsed[i]
		if err := ctx.Err(); err != nil {
			failures[i] = fmt.Sprintf("Range %s: %v", rg, err)
			return
		}
		doc, err := builder.Extract(src, rg.Start, rg.End)
		if err != nil {
			failures[i] = fmt.Sprintf("Range %s: %v", rg, err)
			return
		}
		out := filepath.Join(outDir, rg.FileName(stem))
		if err := writer.WriteFile(ctx, doc, out, r.cfg.Writer); err != nil {
			failures[i] = fmt.Sprintf("Range %s: failed to save: %v", rg, err)
			return
		}
		outputs[i] = out
		r.log.Debug("wrote range", observability.String("range", rg.String()), observability.String("path", out))
	})

	for i := range parsed {
		switch {
		case outputs[i] != "":
			res.OutputFiles = append(res.OutputFiles, outputs[i])
		case failures[i] != "":
			res.Errors = append(res.Errors, failures[i])
		}
	}
	if err := ctx.Err(); err != nil && len(res.OutputFiles)+len(res.Errors) < len(parsed) {
		res.Errors = append(res.Errors, err.Error())
	}
	span.SetTag(observability.TagOutputFiles, len(res.OutputFiles))
	r.log.Info("split PDF", observability.String("path", path), observability.Int("pages", total), observability.Int("files", len(res.OutputFiles)))
	return res
}
