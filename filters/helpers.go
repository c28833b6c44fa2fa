package filters

import (
	"bytes"
	"context"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdfforge/ir/raw"
)

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. Indirect values must have been resolved by the caller.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	switch f := dict.Get("Filter").(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	switch p := dict.Get("DecodeParms").(type) {
	case *raw.DictObj:
		params = append(params, p)
	case *raw.ArrayObj:
		for _, item := range p.Items {
			d, _ := item.(*raw.DictObj)
			params = append(params, d)
		}
	}
	return names, params
}

// DecodeStream runs every declared filter of s through the standard pipeline.
func DecodeStream(ctx context.Context, s *raw.StreamObj, limits Limits) ([]byte, error) {
	names, params := ExtractFilters(s.Dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	return NewStandardPipeline(limits).Decode(ctx, s.Data, names, params)
}

// EncodeFlate compresses data into a zlib stream suitable for FlateDecode.
func EncodeFlate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
