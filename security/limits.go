package security

// Limits defines security boundaries for parsing PDFs.
// These limits help prevent resource exhaustion (zip bombs, stack overflows).
type Limits struct {
	// Maximum decompressed stream size. Default: 256 MB.
	MaxDecompressedSize int64

	// Maximum array/dictionary nesting depth. Default: 256.
	MaxIndirectDepth int

	// Maximum XRef chain depth (Prev entries). Default: 32.
	MaxXRefDepth int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length (bytes). Default: 512 MB.
	MaxStreamLength int64
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 256 * 1024 * 1024,
		MaxIndirectDepth:    256,
		MaxXRefDepth:        32,
		MaxStringLength:     10 * 1024 * 1024,
		MaxStreamLength:     512 * 1024 * 1024,
	}
}
