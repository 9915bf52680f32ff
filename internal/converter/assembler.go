package converter

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

// Options controls which source geometries are converted
type Options struct {
	// IncludeCuboids runs the cuboid decoder; every cuboid is then logged as unsupported
	IncludeCuboids bool
}

type kind struct {
	element string
	decode  Decoder
}

// Converter assembles image or frame annotations from parsed <image> elements
type Converter struct {
	kinds []kind
}

// New creates a converter with the fixed kind order
// box, polygon, polyline, points, mask, skeleton.
func New(opts Options) *Converter {
	kinds := []kind{
		{"box", DecodeRectangle},
		{"polygon", DecodePolygon},
		{"polyline", DecodePolyline},
		{"points", DecodePoints},
		{"mask", DecodeMask},
		{"skeleton", DecodeSkeleton},
	}
	if opts.IncludeCuboids {
		kinds = append(kinds, kind{"cuboid", DecodeCuboid})
	}
	return &Converter{kinds: kinds}
}

// Result is the converted content of one image or video frame
type Result struct {
	Size    annotation.Size
	HasSize bool
	// Frame is the frame index in video context
	Frame   *int
	Labels  []annotation.Label
	Tags    []annotation.Tag
	Dropped int
}

// ConvertImage converts one <image>. Individual labels or tags that fail to
// decode are logged and dropped; only a missing frame id in video context
// fails the whole element.
func (c *Converter) ConvertImage(img cvat.Image, dataType cvat.DataType) (Result, error) {
	var res Result

	height, hOK := dimension(img.Height)
	width, wOK := dimension(img.Width)
	if hOK && wOK {
		res.Size = annotation.Size{Height: height, Width: width}
		res.HasSize = true
	} else if img.Height != "" || img.Width != "" {
		slog.Warn("Ignoring invalid image size", "image", img.Name, "height", img.Height, "width", img.Width)
	}

	if dataType == cvat.DataVideo {
		idx, err := strconv.Atoi(strings.TrimSpace(img.ID))
		if err != nil || idx < 0 {
			return Result{}, fmt.Errorf("%w: image %s has no valid frame id %q", ErrMalformedRecord, img.Name, img.ID)
		}
		res.Frame = &idx
	}

	for _, shape := range img.Shapes("tag") {
		tag, err := DecodeTag(shape.Record(), res.Frame)
		if err != nil {
			slog.Error("Dropping tag", "image", img.Name, "error", err)
			res.Dropped++
			continue
		}
		res.Tags = append(res.Tags, tag)
	}
	if len(res.Tags) > 0 {
		slog.Debug("Found tags", "image", img.Name, "count", len(res.Tags))
	}

	ctx := Context{Frame: res.Frame}
	if res.HasSize {
		ctx.ImageHeight, ctx.ImageWidth = res.Size.Height, res.Size.Width
	}

	for _, k := range c.kinds {
		shapes := img.Shapes(k.element)
		if len(shapes) == 0 {
			continue
		}
		slog.Debug("Found geometries", "image", img.Name, "kind", k.element, "count", len(shapes))

		for _, shape := range shapes {
			kctx := ctx
			kctx.Nodes = shape.Nodes("points")
			labels, err := k.decode(shape.Record(), kctx)
			if err != nil {
				slog.Error("Dropping label", "image", img.Name, "kind", k.element, "error", err)
				res.Dropped++
				continue
			}
			res.Labels = append(res.Labels, labels...)
		}
	}

	return res, nil
}

func dimension(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
