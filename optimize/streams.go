package optimize

import (
	"context"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/ir/raw"
)

// compressStreams flate-encodes every unfiltered stream whose encoding is
// smaller than the original. XMP metadata stays readable as plain text.
func (o *Optimizer) compressStreams(ctx context.Context, doc *raw.Document) (int, int64, error) {
	count := 0
	var saved int64
	for _, ref := range doc.Refs() {
		if err := ctx.Err(); err != nil {
			return count, saved, err
		}
		s, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok || len(s.Data) == 0 || s.Dict.Get("Filter") != nil || s.Dict.Name("Type") == "Metadata" {
			continue
		}
		compressed, err := filters.EncodeFlate(s.Data, o.config.CompressionLevel)
		if err != nil {
			return count, saved, err
		}
		if len(compressed) >= len(s.Data) {
			continue
		}
		saved += int64(len(s.Data) - len(compressed))
		s.Data = compressed
		s.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
		s.Dict.Set("Length", raw.NumberInt(int64(len(compressed))))
		s.Dict.Delete("DecodeParms")
		count++
	}
	return count, saved, nil
}
