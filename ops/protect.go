package ops

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/parser"
	"github.com/wudi/pdfforge/security"
	"github.com/wudi/pdfforge/writer"
)

// ProtectResult reports ProtectPDF and UnlockPDF. OutputPath is empty when
// nothing was written.
type ProtectResult struct {
	OutputPath string   `json:"output_path"`
	Errors     []string `json:"errors"`
}

// ErrEmptyPassword is reported when no password was supplied.
var ErrEmptyPassword = errors.New("password cannot be empty")

// ProtectPDF encrypts the PDF at path with password, used as both user and
// owner password, and writes <stem>-protected.pdf into outDir.
func (r *Runner) ProtectPDF(ctx context.Context, path, password, outDir string) ProtectResult {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanProtect)
	defer span.Finish()

	res := ProtectResult{Errors: []string{}}
	if password == "" {
		res.Errors = append(res.Errors, ErrEmptyPassword.Error())
		return res
	}
	if err := ensureOutputDir(outDir); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	doc, err := parser.Open(ctx, path, r.cfg.Parser)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot open PDF '%s': %v", path, err))
		return res
	}
	params, err := security.Protect(doc, security.Config{UserPassword: password, IDSeed: path})
	if err != nil {
		span.SetError(err)
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot encrypt PDF: %v", err))
		return res
	}
	out := filepath.Join(outDir, fileStem(path)+"-protected.pdf")
	if err := writer.WriteFile(ctx, doc, out, r.cfg.Writer); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Cannot save PDF: %v", err))
		return res
	}
	res.OutputPath = out
	span.SetTag(observability.TagObjectCount, len(doc.Objects))
	r.log.Info("protected PDF", observability.String("path", out), observability.Int("permissions", int(params.P)))
	return res
}

// Backend opens a password protected PDF and saves it without encryption.
// It must not create outPath when the password is wrong.
type Backend interface {
	Unlock(ctx context.Context, inPath, password, outPath string) error
}

// NativeBackend unlocks standard security handler revision 2 files with the
// parser and writer of this module.
type NativeBackend struct {
	Parser parser.Config
	Writer writer.Config
}

// Open returns the decrypted document at path.
func (b NativeBackend) Open(ctx context.Context, path, password string) (*raw.Document, error) {
	cfg := b.Parser
	cfg.Password = password
	doc, err := parser.Open(ctx, path, cfg)
	if errors.Is(err, parser.ErrEncrypted) {
		return nil, security.ErrInvalidPassword
	}
	return doc, err
}

func (b NativeBackend) Unlock(ctx context.Context, inPath, password, outPath string) error {
	doc, err := b.Open(ctx, inPath, password)
	if err != nil {
		return err
	}
	return writer.WriteFile(ctx, doc, outPath, b.Writer)
}

// UnlockPDF opens the PDF at path with password and writes it decrypted to
// <stem>-unlocked.pdf in outDir. A wrong password writes nothing.
func (r *Runner) UnlockPDF(ctx context.Context, path, password, outDir string) ProtectResult {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanUnlock)
	defer span.Finish()

	res := ProtectResult{Errors: []string{}}
	if err := ensureOutputDir(outDir); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	out := filepath.Join(outDir, fileStem(path)+"-unlocked.pdf")
	if err := r.cfg.Backend.Unlock(ctx, path, password, out); err != nil {
		span.SetError(err)
		if errors.Is(err, security.ErrInvalidPassword) {
			res.Errors = append(res.Errors, "Incorrect password")
		} else {
			res.Errors = append(res.Errors, fmt.Sprintf("Cannot unlock PDF '%s': %v", path, err))
		}
		return res
	}
	res.OutputPath = out
	r.log.Info("unlocked PDF", observability.String("path", out))
	return res
}
