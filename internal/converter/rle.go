package converter

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
)

// Rasterize decodes a CVAT run-length string into a full-canvas mask.
//
// Runs alternate between zeros and ones, starting with zeros. Offsets are
// row-major within the box width and placed at (top+y, left+x). Runs that
// end early leave the rest of the box unset; cells below the box height or
// outside the canvas are clipped. A box with a non-positive size or one
// larger than the canvas is malformed.
func Rasterize(rle string, left, top, width, height, canvasHeight, canvasWidth int) (*annotation.Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: mask box size %dx%d", ErrMalformedRecord, height, width)
	}
	if width > canvasWidth || height > canvasHeight {
		return nil, fmt.Errorf("%w: mask box %dx%d exceeds canvas %dx%d", ErrMalformedRecord, height, width, canvasHeight, canvasWidth)
	}
	mask := annotation.NewMask(canvasHeight, canvasWidth)

	// only box rows that land on the canvas can receive cells
	firstRow := min(max(0, -top), height)
	lastRow := min(height, canvasHeight-top)
	lo, hi := firstRow*width, lastRow*width

	offset := 0
	clipped := 0
	ones := false
	for _, field := range strings.Split(rle, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		run, err := strconv.Atoi(field)
		if err != nil || run < 0 {
			return nil, fmt.Errorf("%w: rle run %q", ErrMalformedRecord, field)
		}
		if ones {
			end := hi
			if run < hi-offset {
				end = offset + run
			}
			for j := max(offset, lo); j < end; j++ {
				if !mask.Set(top+j/width, left+j%width) {
					clipped++
				}
			}
		}
		if run >= hi-offset {
			slog.Debug("RLE runs past the visible part of the mask box", "offset", offset, "limit", hi)
			break
		}
		offset += run
		ones = !ones
	}

	if clipped > 0 {
		slog.Debug("Clipped mask cells outside canvas", "cells", clipped)
	}
	return mask, nil
}
