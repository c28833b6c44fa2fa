// Package parser loads a PDF file into a raw.Document: every live object of
// the file, decrypted when a password is supplied, with cross-reference and
// object-stream bookkeeping removed.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/recovery"
	"github.com/wudi/pdfforge/security"
	"github.com/wudi/pdfforge/xref"
)

var (
	// ErrNotPDF is returned when the input has no %PDF- header.
	ErrNotPDF = errors.New("not a PDF file")
	// ErrEncrypted is returned for encrypted input when no password was
	// configured and the empty user password does not open it.
	ErrEncrypted = errors.New("document is encrypted")
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	// Recovery decides what happens when one object cannot be loaded.
	// Defaults to recovery.NewStrictStrategy.
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Limits   security.Limits
	Password string
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.XRef.MaxXRefDepth == 0 {
		cfg.XRef.MaxXRefDepth = cfg.Limits.MaxXRefDepth
	}
	if cfg.XRef.Limits == (filters.Limits{}) {
		cfg.XRef.Limits = filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize}
	}
	if cfg.XRef.Logger == nil {
		cfg.XRef.Logger = cfg.Logger
	}
	return &DocumentParser{cfg: cfg}
}

// Open reads and parses the file at path.
func Open(ctx context.Context, path string, cfg Config) (*raw.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewDocumentParser(cfg).ParseBytes(ctx, data)
}

func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	return p.ParseBytes(ctx, data)
}

func (p *DocumentParser) ParseBytes(ctx context.Context, data []byte) (*raw.Document, error) {
	start := time.Now()
	version, err := detectHeaderVersion(data)
	if err != nil {
		return nil, err
	}
	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := table.Trailer()

	loader := newObjectLoader(data, table, p.cfg.Limits)
	sec, encRef, err := p.selectSecurity(ctx, loader, trailer)
	if err != nil {
		return nil, err
	}
	loader.security = sec

	doc := raw.NewDocument(version)
	for _, num := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, _ := table.Lookup(num)
		ref := raw.ObjectRef{Num: num}
		if entry.Kind == xref.EntryInUse {
			ref.Gen = entry.Gen
		}
		if encRef != nil && ref == *encRef {
			continue
		}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			loc := recovery.Location{ByteOffset: entry.Offset, ObjectNum: int(ref.Num), ObjectGen: int(ref.Gen), Component: "parser"}
			if p.cfg.Recovery.OnError(ctx, err, loc) == recovery.ActionFail {
				return nil, fmt.Errorf("load object %v: %w", ref, err)
			}
			continue
		}
		if isBookkeeping(obj) {
			continue
		}
		doc.Objects[ref] = obj
	}

	doc.Trailer = cleanTrailer(trailer)
	if _, err := doc.Root(); err != nil {
		return nil, err
	}
	if v := catalogVersion(doc); v > doc.Version {
		doc.Version = v
	}
	if n := dropDanglingRefs(doc); n > 0 {
		p.cfg.Logger.Debug("replaced references to missing objects with null", observability.Int("count", n))
	}
	p.cfg.Logger.Debug("parsed document",
		observability.String("xref", table.Type()),
		observability.Int("objects", len(doc.Objects)),
		observability.Int64("micros", time.Since(start).Microseconds()))
	return doc, nil
}

// selectSecurity authenticates against the Encrypt dictionary, trying the
// empty user password before the configured one. It returns a nil handler
// for unencrypted files.
func (p *DocumentParser) selectSecurity(ctx context.Context, loader *objectLoader, trailer *raw.DictObj) (*security.Handler, *raw.ObjectRef, error) {
	encObj := trailer.Get("Encrypt")
	if encObj == nil {
		return nil, nil, nil
	}
	var encDict *raw.DictObj
	var encRef *raw.ObjectRef
	switch v := encObj.(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		obj, err := loader.Load(ctx, v.R)
		if err != nil {
			return nil, nil, fmt.Errorf("load encryption dictionary: %w", err)
		}
		encDict, _ = obj.(*raw.DictObj)
		r := v.R
		encRef = &r
	}
	if encDict == nil {
		return nil, nil, fmt.Errorf("%w: encryption dictionary missing", security.ErrUnsupported)
	}
	fileID := fileIDFromTrailer(trailer)
	h, err := security.NewHandler(encDict, fileID, "")
	if err == nil {
		return h, encRef, nil
	}
	if !errors.Is(err, security.ErrInvalidPassword) {
		return nil, nil, err
	}
	if p.cfg.Password == "" {
		return nil, nil, ErrEncrypted
	}
	h, err = security.NewHandler(encDict, fileID, p.cfg.Password)
	if err != nil {
		return nil, nil, err
	}
	return h, encRef, nil
}

func fileIDFromTrailer(trailer *raw.DictObj) []byte {
	if arr, ok := trailer.Get("ID").(*raw.ArrayObj); ok && arr.Len() > 0 {
		if s, ok := arr.Items[0].(raw.StringObj); ok {
			return s.Bytes
		}
	}
	return nil
}

// isBookkeeping reports objects that only describe the file layout.
func isBookkeeping(obj raw.Object) bool {
	s, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	t := s.Dict.Name("Type")
	return t == "ObjStm" || t == "XRef"
}

// cleanTrailer keeps the document-level entries of a merged trailer.
func cleanTrailer(trailer *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for _, k := range []string{"Root", "Info", "ID"} {
		if v := trailer.Get(k); v != nil {
			out.Set(k, v)
		}
	}
	return out
}

func catalogVersion(doc *raw.Document) string {
	root, err := doc.Root()
	if err != nil {
		return ""
	}
	return root.Name("Version")
}

// dropDanglingRefs replaces references to objects absent from the table
// with null, the meaning PDF gives them. Dictionary entries holding such a
// reference are removed.
func dropDanglingRefs(doc *raw.Document) int {
	count := 0
	var fix func(obj raw.Object) raw.Object
	fix = func(obj raw.Object) raw.Object {
		switch v := obj.(type) {
		case raw.RefObj:
			if _, ok := doc.Objects[v.R]; !ok {
				count++
				return raw.NullObj{}
			}
		case *raw.ArrayObj:
			for i, item := range v.Items {
				v.Items[i] = fix(item)
			}
		case *raw.DictObj:
			for _, k := range v.Keys() {
				if _, isNull := fix(v.KV[k]).(raw.NullObj); isNull {
					v.Delete(k)
				}
			}
		case *raw.StreamObj:
			fix(v.Dict)
		}
		return obj
	}
	for _, obj := range doc.Objects {
		fix(obj)
	}
	fix(doc.Trailer)
	return count
}

func detectHeaderVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		return "", ErrNotPDF
	}
	v := head[i+5:]
	end := 0
	for end < len(v) && end < 4 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "1.4", nil
	}
	return string(v[:end]), nil
}

func readAll(r io.ReaderAt) ([]byte, error) {
	if s, ok := r.(interface{ Size() int64 }); ok {
		buf := make([]byte, s.Size())
		n, err := r.ReadAt(buf, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return buf[:n], nil
	}
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		buf.Write(tmp[:n])
		if errors.Is(err, io.EOF) || (err == nil && int64(n) < chunk) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
