// Package optimize shrinks a raw.Document in place: it drops unreachable
// objects, merges identical streams, flate-compresses unfiltered streams and
// can re-encode raw images as JPEG.
//
// Optimize must run before security.Protect; encrypted payloads neither
// compress nor compare equal.
package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/observability"
)

type Config struct {
	// CleanUnusedObjects drops objects not reachable from the trailer.
	CleanUnusedObjects bool
	// CombineDuplicateStreams merges streams with identical dictionaries and
	// payloads into one object.
	CombineDuplicateStreams bool
	// CombineIdenticalIndirectObjects also merges identical non-stream
	// objects. Page tree nodes and the catalog are never merged.
	CombineIdenticalIndirectObjects bool
	// CompressStreams flate-encodes streams that carry no filter.
	CompressStreams bool
	// CompressionLevel is the flate level, 1..9. Zero means 9.
	CompressionLevel int
	// ImageQuality re-encodes 8-bit RGB and gray images as JPEG with this
	// quality when that makes them smaller. Zero leaves images alone.
	ImageQuality int
	Logger       observability.Logger
}

// DefaultConfig is the lossless configuration used by the compress command.
func DefaultConfig() Config {
	return Config{
		CleanUnusedObjects:      true,
		CombineDuplicateStreams: true,
		CompressStreams:         true,
		CompressionLevel:        9,
	}
}

// Report counts what one Optimize call changed.
type Report struct {
	Removed      int
	Merged       int
	Compressed   int
	Recompressed int
	// BytesSaved is the reduction of stream payload sizes.
	BytesSaved int64
}

type Optimizer struct {
	config Config
	log    observability.Logger
}

func New(config Config) *Optimizer {
	if config.CompressionLevel == 0 {
		config.CompressionLevel = 9
	}
	return &Optimizer{config: config, log: observability.OrNop(config.Logger)}
}

func (o *Optimizer) Optimize(ctx context.Context, doc *raw.Document) (Report, error) {
	var rep Report
	if doc.Encrypted() {
		return rep, fmt.Errorf("optimize: document is encrypted")
	}
	if o.config.CleanUnusedObjects {
		rep.Removed += o.cleanUnusedObjects(doc)
	}
	if o.config.CombineDuplicateStreams || o.config.CombineIdenticalIndirectObjects {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Merged += o.combineObjects(doc, o.config.CombineIdenticalIndirectObjects)
	}
	if o.config.ImageQuality > 0 {
		n, saved, err := o.optimizeImages(ctx, doc)
		if err != nil {
			return rep, fmt.Errorf("failed to optimize images: %w", err)
		}
		rep.Recompressed += n
		rep.BytesSaved += saved
	}
	if o.config.CompressStreams {
		n, saved, err := o.compressStreams(ctx, doc)
		if err != nil {
			return rep, fmt.Errorf("failed to compress streams: %w", err)
		}
		rep.Compressed += n
		rep.BytesSaved += saved
	}
	o.log.Debug("optimized document",
		observability.Int("removed", rep.Removed),
		observability.Int("merged", rep.Merged),
		observability.Int("compressed", rep.Compressed),
		observability.Int("recompressed", rep.Recompressed),
		observability.Int64("bytes_saved", rep.BytesSaved))
	return rep, nil
}
