// Package ops implements the file-level PDF operations: merging images and
// PDF pages, splitting by page ranges, protecting and unlocking, compressing,
// extracting images and generating thumbnails.
//
// Operations never fail as a whole with an error value. Each returns a result
// that lists what was produced together with one message per failed item, so
// a batch keeps going past a bad input file.
package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/parser"
	"github.com/wudi/pdfforge/writer"
)

// Config is shared by all operations of a Runner.
type Config struct {
	// Workers bounds how many output files (split) or images (thumbnails)
	// are processed at once. Defaults to 1.
	Workers int
	Parser  parser.Config
	Writer  writer.Config
	// Backend opens password protected files for UnlockPDF. Defaults to the
	// native parser and writer.
	Backend Backend
	Logger  observability.Logger
	Tracer  observability.Tracer
}

// Runner executes operations with one configuration.
type Runner struct {
	cfg    Config
	log    observability.Logger
	tracer observability.Tracer
}

// NewRunner fills in defaults for cfg.
func NewRunner(cfg Config) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Parser.Logger == nil {
		cfg.Parser.Logger = cfg.Logger
	}
	if cfg.Backend == nil {
		cfg.Backend = NativeBackend{Parser: cfg.Parser, Writer: cfg.Writer}
	}
	r := &Runner{
		cfg:    cfg,
		log:    observability.OrNop(cfg.Logger),
		tracer: cfg.Tracer,
	}
	if r.tracer == nil {
		r.tracer = observability.NopTracer()
	}
	return r
}

// ensureOutputDir creates dir and its parents when missing.
func ensureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}
	return nil
}

// fileName returns the last element of path, or path itself.
func fileName(path string) string {
	if name := filepath.Base(path); name != "." && name != string(filepath.Separator) {
		return name
	}
	return path
}

// fileStem returns the file name of path without its extension.
func fileStem(path string) string {
	name := filepath.Base(path)
	if stem := strings.TrimSuffix(name, filepath.Ext(name)); stem != "" && stem != "." {
		return stem
	}
	return "pdf"
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// parallel calls fn for 0..n-1 with at most workers calls in flight. Indices
// not yet started when ctx is cancelled are skipped.
func parallel(ctx context.Context, n, workers int, fn func(i int)) {
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
