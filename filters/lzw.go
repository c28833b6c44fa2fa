package filters

import (
	"context"
	"errors"

	"github.com/wudi/pdfforge/ir/raw"
)

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }

// Decode implements the PDF flavour of LZW: MSB-first codes of 9 to 12
// bits, with the code width growing one code early unless EarlyChange is 0.
func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := 1
	if params != nil {
		early = paramInt(params, "EarlyChange", 1)
	}
	const (
		clearCode = 256
		eodCode   = 257
	)
	table := make([][]byte, 258, 4096)
	reset := func() {
		table = table[:258]
		for i := 0; i < 256; i++ {
			table[i] = []byte{byte(i)}
		}
	}
	reset()

	var (
		out    []byte
		prev   []byte
		bitBuf uint32
		nbits  uint
		width  uint = 9
	)
	for _, b := range in {
		bitBuf = bitBuf<<8 | uint32(b)
		nbits += 8
		for nbits >= width {
			code := int(bitBuf>>(nbits-width)) & (1<<width - 1)
			nbits -= width
			switch {
			case code == clearCode:
				reset()
				width = 9
				prev = nil
				continue
			case code == eodCode:
				return applyPredictor(out, params)
			}
			var entry []byte
			switch {
			case code < len(table):
				entry = table[code]
			case code == len(table) && prev != nil:
				entry = append(append([]byte(nil), prev...), prev[0])
			default:
				return nil, errors.New("lzw code out of range")
			}
			out = append(out, entry...)
			if prev != nil && len(table) < 4096 {
				table = append(table, append(append([]byte(nil), prev...), entry[0]))
			}
			prev = entry
			if next := len(table) + early; next >= 1<<width && width < 12 {
				width++
			}
		}
	}
	return applyPredictor(out, params)
}

func NewLZWDecoder() Decoder { return lzwDecoder{} }
