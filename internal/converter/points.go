package converter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

// parsePoints reads a "x,y;x,y" list into (row, col) locations.
// Empty segments are skipped; coordinates are truncated toward zero.
func parsePoints(s string) ([]annotation.PointLocation, error) {
	var locs []annotation.PointLocation
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		xs, ys, ok := strings.Cut(seg, ",")
		if !ok {
			return nil, fmt.Errorf("%w: point %q has no comma", ErrMalformedRecord, seg)
		}
		x, err := parseCoord(xs)
		if err != nil {
			return nil, err
		}
		y, err := parseCoord(ys)
		if err != nil {
			return nil, err
		}
		locs = append(locs, annotation.PointLocation{Row: y, Col: x})
	}
	return locs, nil
}

func parseCoord(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedRecord, s)
	}
	if math.IsNaN(f) || f <= math.MinInt32 || f >= math.MaxInt32 {
		return 0, fmt.Errorf("%w: coordinate %q out of range", ErrMalformedRecord, s)
	}
	return int(f), nil
}

// coord reads a numeric attribute of rec
func coord(rec cvat.Record, key string) (int, error) {
	v, ok := rec.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedRecord, key)
	}
	return parseCoord(v)
}
