// Command pdfforge merges, splits, protects, unlocks, compresses and
// extracts images from PDF files.
//
//	pdfforge merge -o out.pdf cover.png report.pdf@1-3 appendix.pdf
//	pdfforge split -ranges "1-3, 4-end" -out parts report.pdf
//	pdfforge protect -out locked report.pdf
//
// Every command prints its result as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/ops"
	"github.com/wudi/pdfforge/pagerange"
	"github.com/wudi/pdfforge/parser"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) (any, bool, error)
}

var commands = []command{
	{"merge", "merge images and PDF pages into one PDF", runMerge},
	{"images", "put each image on its own page", runImages},
	{"split", "split a PDF into page ranges", runSplit},
	{"protect", "encrypt a PDF with a password", runProtect},
	{"unlock", "remove the password of a PDF", runUnlock},
	{"compress", "write a smaller copy of a PDF", runCompress},
	{"extract", "save the images of a PDF as PNG", runExtract},
	{"thumbnails", "print base64 thumbnails of image files", runThumbnails},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		result, produced, err := c.run(ctx, args[1:])
		if errors.Is(err, errUsage) {
			return 2
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "pdfforge %s: %v\n", c.name, err)
			return 1
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "pdfforge %s: marshal result: %v\n", c.name, err)
			return 1
		}
		fmt.Fprintf(stdout, "%s\n", data)
		if !produced {
			return 1
		}
		return 0
	}
	fmt.Fprintf(os.Stderr, "pdfforge: unknown command %q\n", args[0])
	usage()
	return 2
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pdfforge <command> [flags] <files>\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.name, c.summary)
	}
}

// common holds the flags every command accepts.
type common struct {
	verbose  bool
	workers  int
	password string
}

func newFlagSet(name, args string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &common{}
	fs.BoolVar(&c.verbose, "v", false, "Log progress to stderr")
	fs.IntVar(&c.workers, "workers", 1, "Files processed concurrently")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfforge %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs, c
}

func (c *common) runner() *ops.Runner {
	var logger observability.Logger = observability.NopLogger{}
	if c.verbose {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		logger = observability.NewSlogLogger(slog.New(h))
	}
	return ops.NewRunner(ops.Config{
		Workers: c.workers,
		Parser:  parser.Config{Password: c.password},
		Logger:  logger,
	})
}

// parse parses args and requires exactly want positional arguments, or at
// least one when want is negative.
func parse(fs *flag.FlagSet, args []string, want int) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if (want < 0 && fs.NArg() == 0) || (want >= 0 && fs.NArg() != want) {
		fs.Usage()
		return errUsage
	}
	return nil
}

// password returns value, or reads one from the terminal without echo.
func password(value string, confirm bool) (string, error) {
	if value != "" {
		return value, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password given and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Repeat password: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
	}
	return string(first), nil
}

func runMerge(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("merge", "<image | pdf[@pages]>...")
	var opts ops.MergeOptions
	fs.StringVar(&opts.OutputPath, "o", "merged.pdf", "Output file")
	fs.StringVar(&opts.PageFormat, "format", "fit", "Page format for images: fit, a4, letter, legal, a3, a5")
	fs.StringVar(&opts.Orientation, "orientation", "portrait", "portrait or landscape")
	fs.Float64Var(&opts.MarginPx, "margin", 0, "Margin around images in points")
	fs.IntVar(&opts.ImageQuality, "quality", 90, "JPEG quality for images, 1-100")
	fs.StringVar(&c.password, "password", "", "Password of encrypted source PDFs")
	if err := parse(fs, args, -1); err != nil {
		return nil, false, err
	}
	items, err := mergeItems(ctx, fs.Args(), c.password)
	if err != nil {
		return nil, false, err
	}
	res := c.runner().MergeToPDF(ctx, items, opts)
	return res, res.PageCount > 0, nil
}

// mergeItems expands the merge arguments. A PDF argument selects all of its
// pages unless a range follows "@", as in report.pdf@2-4,7.
func mergeItems(ctx context.Context, args []string, pwd string) ([]ops.MergeItem, error) {
	var items []ops.MergeItem
	for _, arg := range args {
		path, spec, hasSpec := strings.Cut(arg, "@")
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			items = append(items, ops.MergeItem{SourcePath: arg, SourceType: "image"})
			continue
		}
		if !hasSpec {
			spec = "1-end"
		}
		doc, err := parser.Open(ctx, path, parser.Config{Password: pwd})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ranges, err := pagerange.Parse(spec, doc.PageCount())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, r := range ranges {
			for _, p := range r.Pages() {
				items = append(items, ops.MergeItem{SourcePath: path, SourceType: "pdf", PageNumber: p})
			}
		}
	}
	return items, nil
}

func runImages(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("images", "<image>...")
	out := fs.String("o", "images.pdf", "Output file")
	if err := parse(fs, args, -1); err != nil {
		return nil, false, err
	}
	res := c.runner().ImagesToPDF(ctx, fs.Args(), *out)
	return res, res.PageCount > 0, nil
}

func runSplit(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("split", "<pdf>")
	ranges := fs.String("ranges", "", `Page ranges, e.g. "1-3, 5, 7-end"`)
	outDir := fs.String("out", ".", "Output directory")
	fs.StringVar(&c.password, "password", "", "Password of an encrypted source")
	if err := parse(fs, args, 1); err != nil {
		return nil, false, err
	}
	if *ranges == "" {
		fs.Usage()
		return nil, false, errUsage
	}
	res := c.runner().SplitPDF(ctx, fs.Arg(0), *ranges, *outDir)
	return res, len(res.OutputFiles) > 0, nil
}

func runProtect(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("protect", "<pdf>")
	pwd := fs.String("password", "", "Password to set; prompted for when empty")
	outDir := fs.String("out", ".", "Output directory")
	if err := parse(fs, args, 1); err != nil {
		return nil, false, err
	}
	p, err := password(*pwd, true)
	if err != nil {
		return nil, false, err
	}
	res := c.runner().ProtectPDF(ctx, fs.Arg(0), p, *outDir)
	return res, res.OutputPath != "", nil
}

func runUnlock(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("unlock", "<pdf>")
	pwd := fs.String("password", "", "Current password; prompted for when empty")
	outDir := fs.String("out", ".", "Output directory")
	if err := parse(fs, args, 1); err != nil {
		return nil, false, err
	}
	p, err := password(*pwd, false)
	if err != nil {
		return nil, false, err
	}
	res := c.runner().UnlockPDF(ctx, fs.Arg(0), p, *outDir)
	return res, res.OutputPath != "", nil
}

func runCompress(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("compress", "<pdf>")
	quality := fs.Int("quality", 0, "Re-encode raw images as JPEG with this quality; 0 keeps them")
	outDir := fs.String("out", ".", "Output directory")
	fs.StringVar(&c.password, "password", "", "Password of an encrypted source")
	if err := parse(fs, args, 1); err != nil {
		return nil, false, err
	}
	res := c.runner().CompressPDF(ctx, fs.Arg(0), *quality, *outDir)
	return res, res.OutputPath != "", nil
}

func runExtract(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("extract", "<pdf>")
	outDir := fs.String("out", "extract_output", "Directory for the PNG files")
	fs.StringVar(&c.password, "password", "", "Password of an encrypted source")
	if err := parse(fs, args, 1); err != nil {
		return nil, false, err
	}
	res := c.runner().ExtractImages(ctx, fs.Arg(0), *outDir)
	return res, res.ExtractedCount > 0 || len(res.Errors) == 0, nil
}

func runThumbnails(ctx context.Context, args []string) (any, bool, error) {
	fs, c := newFlagSet("thumbnails", "<file>...")
	if err := parse(fs, args, -1); err != nil {
		return nil, false, err
	}
	res := c.runner().Thumbnails(ctx, fs.Args(), nil)
	return res, len(res.Thumbnails) > 0, nil
}
