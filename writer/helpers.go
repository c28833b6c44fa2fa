package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wudi/pdfforge/ir/raw"
)

// buildTrailer copies the document trailer, dropping the keys that describe
// the input file's cross-reference layout, and sets Size.
func buildTrailer(src *raw.DictObj, size uint32) *raw.DictObj {
	trailer := raw.Dict()
	if src != nil {
		for k, v := range src.KV {
			switch k {
			case "Size", "Prev", "XRefStm":
				continue
			}
			trailer.Set(k, v)
		}
	}
	trailer.Set("Size", raw.NumberInt(int64(size)))
	return trailer
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

func formatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

func serializePrimitive(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return []byte("/" + pdfNameLiteral(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			return []byte(strconv.FormatInt(v.Int(), 10))
		}
		return []byte(formatReal(v.Float()))
	case raw.BoolObj:
		if v.Value() {
			return []byte("true")
		}
		return []byte("false")
	case raw.NullObj:
		return []byte("null")
	case raw.StringObj:
		if v.IsHex() {
			return []byte("<" + strings.ToUpper(hex.EncodeToString(v.Value())) + ">")
		}
		return escapeLiteralString(v.Value())
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serializePrimitive(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		return serializeDict(v, nil)
	case *raw.StreamObj:
		var b bytes.Buffer
		// Length always matches the payload actually written
		b.Write(serializeDict(v.Dict, map[string]raw.Object{
			"Length": raw.NumberInt(int64(len(v.Data))),
		}))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
		return b.Bytes()
	case raw.RefObj:
		return []byte(fmt.Sprintf("%d %d R", v.Ref().Num, v.Ref().Gen))
	default:
		return []byte("null")
	}
}

func serializeDict(d *raw.DictObj, overrides map[string]raw.Object) []byte {
	var b bytes.Buffer
	b.WriteString("<<")
	var keys []string
	if d != nil {
		keys = d.Keys()
	}
	for k := range overrides {
		if d.Get(k) == nil {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		v, ok := overrides[k]
		if !ok {
			v = d.Get(k)
		}
		b.WriteString("/" + pdfNameLiteral(k) + " ")
		b.Write(serializePrimitive(v))
	}
	b.WriteString(">>")
	return b.Bytes()
}

// pdfNameLiteral escapes a decoded name for output: everything outside the
// regular printable characters, plus '#' itself, becomes #XX.
func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7f && !strings.ContainsRune("#()<>[]{}/%", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}
