// Package xref locates the cross-reference data of a PDF file: classic
// tables, cross-reference streams, hybrid files and incremental Prev chains.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/observability"
	"github.com/wudi/pdfforge/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrBadXRef     = errors.New("malformed cross-reference section")
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. InUse entries carry a byte offset; Compressed
// entries name the object stream and the index inside it.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    uint16
	Stream uint32
	Index  int
}

// Table is the merged view over every cross-reference section of a file.
type Table interface {
	Lookup(objNum uint32) (Entry, bool)
	Objects() []uint32
	Trailer() *raw.DictObj
	Type() string
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	Limits       filters.Limits
	Logger       observability.Logger
}

// NewResolver returns a resolver that follows Prev chains up to
// cfg.MaxXRefDepth sections (32 when unset).
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 32
	}
	if cfg.Limits.MaxDecompressedSize == 0 {
		cfg.Limits = filters.DefaultLimits()
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &resolver{cfg: cfg}
}

type resolver struct{ cfg ResolverConfig }

func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &table{entries: make(map[uint32]Entry)}
	rd := scanner.NewReader(scanner.New(data, scanner.Config{}))
	seen := make(map[int64]bool)

	offset := start
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("%w: more than %d sections", ErrBadXRef, r.cfg.MaxXRefDepth)
		}
		if seen[offset] {
			r.cfg.Logger.Warn("xref Prev loop", observability.Int64("offset", offset))
			break
		}
		seen[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("%w: offset %d out of range", ErrBadXRef, offset)
		}

		trailer, kind, err := r.readSection(ctx, rd, data, offset, t, false)
		if err != nil {
			return nil, err
		}
		if t.kind == "" {
			t.kind = kind
		}
		t.mergeTrailer(trailer)

		// hybrid file: the classic table is complemented by a stream
		if stm, ok := trailer.Int("XRefStm"); ok && kind == "table" {
			if _, _, err := r.readSection(ctx, rd, data, stm, t, true); err != nil {
				r.cfg.Logger.Warn("ignoring broken XRefStm", observability.Error("error", err))
			} else if t.kind == "table" {
				t.kind = "hybrid"
			}
		}

		offset = -1
		if prev, ok := trailer.Int("Prev"); ok {
			offset = prev
		}
	}
	if t.trailer == nil || t.trailer.Get("Root") == nil {
		return nil, fmt.Errorf("%w: trailer has no Root", ErrBadXRef)
	}
	return t, nil
}

// readSection parses the section at offset into t. Entries already present
// are kept, since sections are visited newest first; overrideFree lets an
// XRefStm fill slots its classic table marked free.
func (r *resolver) readSection(ctx context.Context, rd *scanner.Reader, data []byte, offset int64, t *table, overrideFree bool) (*raw.DictObj, string, error) {
	if err := rd.Seek(offset); err != nil {
		return nil, "", err
	}
	tok, err := rd.Next()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		trailer, err := readClassic(rd, t)
		return trailer, "table", err
	}
	if tok.Type != scanner.TokenNumber {
		return nil, "", fmt.Errorf("%w: no xref at offset %d", ErrBadXRef, offset)
	}
	_, obj, err := rd.ReadIndirect(offset, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok || stream.Dict.Name("Type") != "XRef" {
		return nil, "", fmt.Errorf("%w: object at offset %d is not an xref stream", ErrBadXRef, offset)
	}
	if err := readStream(ctx, stream, r.cfg.Limits, t, overrideFree); err != nil {
		return nil, "", err
	}
	return stream.Dict, "stream", nil
}

func readClassic(rd *scanner.Reader, t *table) (*raw.DictObj, error) {
	for {
		tok, err := rd.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := rd.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("%w: trailer: %v", ErrBadXRef, err)
			}
			d, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrBadXRef)
			}
			return d, nil
		}
		countTok, err := rd.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber || tok.Int < 0 || countTok.Int < 0 {
			return nil, fmt.Errorf("%w: invalid subsection header", ErrBadXRef)
		}
		first, count := tok.Int, countTok.Int
		for i := int64(0); i < count; i++ {
			offTok, err1 := rd.Next()
			genTok, err2 := rd.Next()
			kindTok, err3 := rd.Next()
			if err1 != nil || err2 != nil || err3 != nil ||
				offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kindTok.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("%w: entry %d of subsection %d", ErrBadXRef, i, first)
			}
			num := uint32(first + i)
			e := Entry{Kind: EntryFree, Gen: uint16(genTok.Int)}
			if kindTok.Str == "n" {
				e.Kind = EntryInUse
				e.Offset = offTok.Int
			}
			// object 0 is the head of the free list
			if num == 0 && e.Kind == EntryInUse && e.Offset == 0 {
				continue
			}
			t.add(num, e, false)
		}
	}
}

func readStream(ctx context.Context, s *raw.StreamObj, limits filters.Limits, t *table, overrideFree bool) error {
	data, err := filters.DecodeStream(ctx, s, limits)
	if err != nil {
		return fmt.Errorf("%w: xref stream: %v", ErrBadXRef, err)
	}
	wArr, ok := s.Dict.Get("W").(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return fmt.Errorf("%w: xref stream W", ErrBadXRef)
	}
	var w [3]int
	for i, item := range wArr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok || n.Int() < 0 || n.Int() > 8 {
			return fmt.Errorf("%w: xref stream W", ErrBadXRef)
		}
		w[i] = int(n.Int())
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return fmt.Errorf("%w: xref stream W", ErrBadXRef)
	}

	var index []int64
	if idx, ok := s.Dict.Get("Index").(*raw.ArrayObj); ok {
		for _, item := range idx.Items {
			if n, ok := item.(raw.NumberObj); ok {
				index = append(index, n.Int())
			}
		}
	} else {
		size, _ := s.Dict.Int("Size")
		index = []int64{0, size}
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+rowLen > len(data) {
				return nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := uint32(first + j)
			switch typ {
			case 0:
				t.add(num, Entry{Kind: EntryFree, Gen: uint16(f3)}, overrideFree)
			case 1:
				t.add(num, Entry{Kind: EntryInUse, Offset: f2, Gen: uint16(f3)}, overrideFree)
			case 2:
				t.add(num, Entry{Kind: EntryCompressed, Stream: uint32(f2), Index: int(f3)}, overrideFree)
			}
		}
	}
	return nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("%w: offset %d out of range", ErrBadXRef, off)
	}
	return off, nil
}

type table struct {
	entries map[uint32]Entry
	trailer *raw.DictObj
	kind    string
}

func (t *table) add(num uint32, e Entry, overrideFree bool) {
	if cur, ok := t.entries[num]; ok {
		if !(overrideFree && cur.Kind == EntryFree) {
			return
		}
	}
	t.entries[num] = e
}

// mergeTrailer keeps the newest value of every trailer key.
func (t *table) mergeTrailer(d *raw.DictObj) {
	if t.trailer == nil {
		t.trailer = raw.Dict()
	}
	for _, k := range d.Keys() {
		if t.trailer.Get(k) == nil {
			t.trailer.Set(k, d.Get(k))
		}
	}
}

func (t *table) Lookup(objNum uint32) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

// Objects lists the in-use and compressed object numbers in ascending order.
func (t *table) Objects() []uint32 {
	out := make([]uint32, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) Type() string          { return t.kind }
