package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/scanner"
	"github.com/wudi/pdfforge/security"
	"github.com/wudi/pdfforge/xref"
)

var errLengthLoop = errors.New("stream length reference loop")

// objectLoader reads single objects of one file on demand.
type objectLoader struct {
	data     []byte
	table    xref.Table
	limits   security.Limits
	security *security.Handler

	objstm      map[uint32]*objectStream
	lengthStack map[uint32]bool
}

// objectStream is a decoded ObjStm: object numbers and their absolute
// offsets in the decoded data.
type objectStream struct {
	nums    []uint32
	offsets []int64
	data    []byte
}

func newObjectLoader(data []byte, table xref.Table, limits security.Limits) *objectLoader {
	return &objectLoader{
		data:        data,
		table:       table,
		limits:      limits,
		objstm:      make(map[uint32]*objectStream),
		lengthStack: make(map[uint32]bool),
	}
}

func (o *objectLoader) newReader(data []byte) *scanner.Reader {
	r := scanner.NewReader(scanner.New(data, scanner.Config{
		MaxStringLength: o.limits.MaxStringLength,
		MaxStreamLength: o.limits.MaxStreamLength,
	}))
	r.MaxDepth = o.limits.MaxIndirectDepth
	return r
}

// Load returns the object ref names, decrypted when a handler is set.
func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	entry, ok := o.table.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("object %v not in cross-reference table", ref)
	}
	switch entry.Kind {
	case xref.EntryInUse:
		obj, err := o.loadAtOffset(ref, entry.Offset)
		if err != nil {
			return nil, err
		}
		return o.decrypt(ref, obj), nil
	case xref.EntryCompressed:
		return o.loadFromObjectStream(ctx, ref, entry.Stream, entry.Index)
	}
	return nil, fmt.Errorf("object %v is free", ref)
}

func (o *objectLoader) loadAtOffset(ref raw.ObjectRef, offset int64) (raw.Object, error) {
	if offset <= 0 || offset >= int64(len(o.data)) {
		return nil, fmt.Errorf("object %v offset %d out of range", ref, offset)
	}
	got, obj, err := o.newReader(o.data).ReadIndirect(offset, o.streamLength)
	if err != nil {
		return nil, err
	}
	if got.Num != ref.Num {
		return nil, fmt.Errorf("object header mismatch: want %v, found %v", ref, got)
	}
	return obj, nil
}

// streamLength resolves /Length, following one indirect reference. It
// returns -1 when the value is unusable so the scanner searches for
// endstream instead.
func (o *objectLoader) streamLength(length raw.Object) int64 {
	switch v := length.(type) {
	case raw.NumberObj:
		return v.Int()
	case raw.RefObj:
		if o.lengthStack[v.R.Num] {
			return -1
		}
		entry, ok := o.table.Lookup(v.R.Num)
		if !ok || entry.Kind != xref.EntryInUse {
			return -1
		}
		o.lengthStack[v.R.Num] = true
		defer delete(o.lengthStack, v.R.Num)
		obj, err := o.loadAtOffset(v.R, entry.Offset)
		if err != nil {
			return -1
		}
		if n, ok := obj.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return -1
}

func (o *objectLoader) decrypt(ref raw.ObjectRef, obj raw.Object) raw.Object {
	if o.security == nil {
		return obj
	}
	if s, ok := obj.(*raw.StreamObj); ok && s.Dict.Name("Type") == "XRef" {
		return obj
	}
	return o.security.DecryptObject(ref, obj)
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, streamNum uint32, idx int) (raw.Object, error) {
	stm, ok := o.objstm[streamNum]
	if !ok {
		var err error
		stm, err = o.readObjectStream(ctx, streamNum)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		o.objstm[streamNum] = stm
	}
	pos := idx
	if pos < 0 || pos >= len(stm.nums) || stm.nums[pos] != ref.Num {
		// index is a hint; fall back to a search
		pos = -1
		for i, n := range stm.nums {
			if n == ref.Num {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("object %v not found in object stream %d", ref, streamNum)
		}
	}
	r := o.newReader(stm.data)
	if err := r.Seek(stm.offsets[pos]); err != nil {
		return nil, err
	}
	return r.ReadObject()
}

func (o *objectLoader) readObjectStream(ctx context.Context, num uint32) (*objectStream, error) {
	entry, ok := o.table.Lookup(num)
	if !ok || entry.Kind != xref.EntryInUse {
		return nil, errors.New("object stream is not a direct object")
	}
	ref := raw.ObjectRef{Num: num, Gen: entry.Gen}
	obj, err := o.loadAtOffset(ref, entry.Offset)
	if err != nil {
		return nil, err
	}
	s, ok := o.decrypt(ref, obj).(*raw.StreamObj)
	if !ok || s.Dict.Name("Type") != "ObjStm" {
		return nil, errors.New("not an object stream")
	}
	data, err := filters.DecodeStream(ctx, s, filters.Limits{MaxDecompressedSize: o.limits.MaxDecompressedSize})
	if err != nil {
		return nil, err
	}
	n, _ := s.Dict.Int("N")
	first, _ := s.Dict.Int("First")
	if n < 0 || first < 0 || first > int64(len(data)) {
		return nil, errors.New("invalid object stream header")
	}
	stm := &objectStream{data: data}
	header := o.newReader(data[:first])
	for i := int64(0); i < n; i++ {
		numTok, err1 := header.Next()
		offTok, err2 := header.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return nil, errors.New("truncated object stream header")
		}
		stm.nums = append(stm.nums, uint32(numTok.Int))
		stm.offsets = append(stm.offsets, first+offTok.Int)
	}
	return stm, nil
}
