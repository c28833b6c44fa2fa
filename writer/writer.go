// Package writer serializes a raw.Document into a PDF file with a classic
// cross-reference table.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wudi/pdfforge/ir/raw"
)

// ErrDanglingReference is returned when an object refers to an id that is not
// in the document's object table.
var ErrDanglingReference = errors.New("dangling reference")

// Config controls serialization.
type Config struct {
	// Version overrides the header version. Empty uses the document's.
	Version string
}

// Writer serializes documents.
type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes every indirect object as it is emitted.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// Write serializes doc to w with the default writer.
func Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error {
	return (&WriterBuilder{}).Build().Write(ctx, doc, w, cfg)
}

// WriteFile serializes doc to path. The file is only created once the whole
// document serialized successfully.
func WriteFile(ctx context.Context, doc *raw.Document, path string, cfg Config) error {
	var buf bytes.Buffer
	if err := Write(ctx, doc, &buf, cfg); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Validate checks that the trailer names a catalog and that every reference
// held by the trailer or a stored object resolves inside doc.
func Validate(doc *raw.Document) error {
	if doc == nil || doc.Trailer == nil {
		return raw.ErrNoRoot
	}
	root, ok := doc.Trailer.Get("Root").(raw.RefObj)
	if !ok {
		return raw.ErrNoRoot
	}
	if _, ok := doc.Objects[root.R]; !ok {
		return fmt.Errorf("%w: root %s", ErrDanglingReference, root.R)
	}
	if err := checkRefs(doc, doc.Trailer, "trailer"); err != nil {
		return err
	}
	for _, ref := range doc.Refs() {
		if err := checkRefs(doc, doc.Objects[ref], "object "+ref.String()); err != nil {
			return err
		}
	}
	return nil
}

func checkRefs(doc *raw.Document, obj raw.Object, owner string) error {
	switch v := obj.(type) {
	case raw.RefObj:
		if _, ok := doc.Objects[v.R]; !ok {
			return fmt.Errorf("%w: %s in %s", ErrDanglingReference, v.R, owner)
		}
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if err := checkRefs(doc, it, owner); err != nil {
				return err
			}
		}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			if err := checkRefs(doc, v.KV[k], owner); err != nil {
				return err
			}
		}
	case *raw.StreamObj:
		return checkRefs(doc, v.Dict, owner)
	}
	return nil
}
