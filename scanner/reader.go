package scanner

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfforge/ir/raw"
)

// DefaultMaxDepth bounds array/dictionary nesting.
const DefaultMaxDepth = 256

var ErrDepthExceeded = errors.New("object nesting too deep")

// LengthFunc resolves a stream's /Length entry, which may be an indirect
// reference. It returns a negative value when the length is unknown.
type LengthFunc func(length raw.Object) int64

// Reader assembles tokens from a Scanner into raw objects.
type Reader struct {
	s        Scanner
	buf      []Token
	MaxDepth int
}

func NewReader(s Scanner) *Reader {
	return &Reader{s: s, MaxDepth: DefaultMaxDepth}
}

func (r *Reader) Next() (Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *Reader) Unread(tok Token) { r.buf = append(r.buf, tok) }

// Seek repositions the underlying scanner and drops buffered tokens.
func (r *Reader) Seek(offset int64) error {
	r.buf = r.buf[:0]
	return r.s.Seek(offset)
}

// ReadObject parses one direct object.
func (r *Reader) ReadObject() (raw.Object, error) {
	return r.readObject(0)
}

func (r *Reader) readObject(depth int) (raw.Object, error) {
	if r.MaxDepth > 0 && depth > r.MaxDepth {
		return nil, ErrDepthExceeded
	}
	tok, err := r.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenArray:
		return r.readArray(depth + 1)
	case TokenDict:
		return r.readDict(depth + 1)
	case TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: uint32(tok.Int), Gen: uint16(tok.Gen)}}, nil
	}
	return nil, fmt.Errorf("unexpected token %q at offset %d", tok.Str, tok.Pos)
}

func (r *Reader) readArray(depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		r.Unread(tok)
		item, err := r.readObject(depth)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *Reader) readDict(depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != TokenName {
			return nil, fmt.Errorf("expected name in dict at offset %d", tok.Pos)
		}
		val, err := r.readObject(depth)
		if err != nil {
			return nil, err
		}
		// a null value is equivalent to an absent key
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(tok.Str, val)
	}
}

// ReadIndirect parses "N G obj ... endobj" at offset. When the object is a
// dictionary followed by a stream, length resolves the payload size hint.
func (r *Reader) ReadIndirect(offset int64, length LengthFunc) (raw.ObjectRef, raw.Object, error) {
	if err := r.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	tokNum, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	tokGen, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	tokObj, err := r.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if tokNum.Type != TokenNumber || !tokNum.IsInt || tokNum.Int < 0 ||
		tokGen.Type != TokenNumber || !tokGen.IsInt || tokGen.Int < 0 ||
		tokObj.Type != TokenKeyword || tokObj.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("no object header at offset %d", offset)
	}
	ref := raw.ObjectRef{Num: uint32(tokNum.Int), Gen: uint16(tokGen.Int)}

	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %v: %w", ref, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return ref, obj, nil
	}
	hint := int64(-1)
	if length != nil {
		hint = length(dict.Get("Length"))
	} else if n, ok := dict.Get("Length").(raw.NumberObj); ok {
		hint = n.Int()
	}
	r.s.SetNextStreamLength(hint)
	tok, err := r.Next()
	r.s.SetNextStreamLength(-1)
	if err != nil {
		// a trailing dictionary without endobj is still usable
		return ref, obj, nil
	}
	if tok.Type == TokenStream {
		return ref, raw.NewStream(dict, tok.Bytes), nil
	}
	r.Unread(tok)
	return ref, obj, nil
}
