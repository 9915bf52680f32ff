package converter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

var (
	// ErrMissingContext is returned when a decoder needs canvas size or nodes it was not given
	ErrMissingContext = errors.New("missing decode context")
	// ErrUnsupportedGeometry is returned for geometries with no destination equivalent
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
	// ErrMalformedRecord is returned when an attribute cannot be parsed
	ErrMalformedRecord = errors.New("malformed record")
)

// SkeletonSpacing is the distance between neighbouring nodes of a generated graph template
const SkeletonSpacing = 10

// Context carries what a decoder may need beyond the record itself
type Context struct {
	ImageHeight int
	ImageWidth  int
	// Frame is set in video context only
	Frame *int
	// Nodes holds the nested <points> records of a skeleton
	Nodes []cvat.Record
}

func (c Context) hasCanvas() bool {
	return c.ImageHeight > 0 && c.ImageWidth > 0
}

// Decoder turns one source record into zero or more labels
type Decoder func(rec cvat.Record, ctx Context) ([]annotation.Label, error)

// ClassName is the destination class name for a source label and shape.
// The shape suffix keeps one source label from colliding across geometries.
func ClassName(label string, shape annotation.GeometryType) string {
	return label + "_" + string(shape)
}

func objClass(rec cvat.Record, shape annotation.GeometryType) (annotation.ObjClass, error) {
	label, ok := rec.Get("label")
	if !ok || label == "" {
		return annotation.ObjClass{}, fmt.Errorf("%w: missing label", ErrMalformedRecord)
	}
	return annotation.NewObjClass(ClassName(label, shape), shape), nil
}

func single(class annotation.ObjClass, g annotation.Geometry, ctx Context) []annotation.Label {
	return []annotation.Label{{Class: class, Geometry: g, Frame: ctx.Frame}}
}

// DecodeRectangle reads ytl, xtl, ybr, xbr. Inverted boxes are accepted as is.
func DecodeRectangle(rec cvat.Record, ctx Context) ([]annotation.Label, error) {
	class, err := objClass(rec, annotation.GeometryRectangle)
	if err != nil {
		return nil, err
	}
	var r annotation.Rectangle
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"ytl", &r.Top}, {"xtl", &r.Left}, {"ybr", &r.Bottom}, {"xbr", &r.Right},
	} {
		if *f.dst, err = coord(rec, f.key); err != nil {
			return nil, err
		}
	}
	return single(class, r, ctx), nil
}

// DecodePolygon reads a closed contour from the points attribute
func DecodePolygon(rec cvat.Record, ctx Context) ([]annotation.Label, error) {
	class, err := objClass(rec, annotation.GeometryPolygon)
	if err != nil {
		return nil, err
	}
	locs, err := parsePoints(rec["points"])
	if err != nil {
		return nil, err
	}
	return single(class, annotation.Polygon{Exterior: locs}, ctx), nil
}

// DecodePolyline reads an open contour from the points attribute
func DecodePolyline(rec cvat.Record, ctx Context) ([]annotation.Label, error) {
	class, err := objClass(rec, annotation.GeometryPolyline)
	if err != nil {
		return nil, err
	}
	locs, err := parsePoints(rec["points"])
	if err != nil {
		return nil, err
	}
	return single(class, annotation.Polyline{Exterior: locs}, ctx), nil
}

// DecodePoints returns one point label per pair, in source order, all of one class
func DecodePoints(rec cvat.Record, ctx Context) ([]annotation.Label, error) {
	class, err := objClass(rec, annotation.GeometryPoint)
	if err != nil {
		return nil, err
	}
	locs, err := parsePoints(rec["points"])
	if err != nil {
		return nil, err
	}
	labels := make([]annotation.Label, 0, len(locs))
	for _, loc := range locs {
		labels = append(labels, annotation.Label{
			Class:    class,
			Geometry: annotation.Point{Row: loc.Row, Col: loc.Col},
			Frame:    ctx.Frame,
		})
	}
	return labels, nil
}

// DecodeMask rasterizes the rle attribute onto the full canvas
func DecodeMask(rec cvat.Record, ctx Context) ([]annotation.Label, error) {
	class, err := objClass(rec, annotation.GeometryBitmap)
	if err != nil {
		return nil, err
	}
	if !ctx.hasCanvas() {
		return nil, fmt.Errorf("%w: mask %s needs the image size", ErrMissingContext, class.Name)
	}

	var box [4]int
	for i, key := range []string{"left", "top", "width", "height"} {
		if box[i], err = coord(rec, key); err != nil {
			return nil, err
		}
	}
	mask, err := Rasterize(rec["rle"], box[0], box[1], box[2], box[3], ctx.ImageHeight, ctx.ImageWidth)
	if err != nil {
		return nil, err
	}
	if mask.Count() == 0 {
		return nil, fmt.Errorf("mask %s: %w", class.Name, annotation.ErrEmptyMask)
	}
	return single(class, annotation.Bitmap{Mask: mask}, ctx), nil
}

// DecodeSkeleton builds a keypoint graph from the nested nodes. The class
// template is laid out by node label order so it does not depend on the
// order nodes appear in the source. Nodes marked outside are kept in the
// template but left out of the geometry.
func DecodeSkeleton(rec cvat.Record, ctx Context) ([]annotation.Label, error) {
	class, err := objClass(rec, annotation.GeometryGraph)
	if err != nil {
		return nil, err
	}
	if len(ctx.Nodes) == 0 {
		return nil, fmt.Errorf("%w: skeleton %s has no nodes", ErrMissingContext, class.Name)
	}

	nodes := make([]cvat.Record, len(ctx.Nodes))
	copy(nodes, ctx.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i]["label"] < nodes[j]["label"] })

	tmpl := &annotation.GraphTemplate{}
	var graph annotation.GraphNodes
	seen := make(map[string]bool, len(nodes))
	for rank, node := range nodes {
		name := node["label"]
		if name == "" {
			return nil, fmt.Errorf("%w: skeleton %s node without label", ErrMalformedRecord, class.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: skeleton %s repeats node %q", ErrMalformedRecord, class.Name, name)
		}
		seen[name] = true

		tmpl.Nodes = append(tmpl.Nodes, annotation.TemplateNode{
			Label:    name,
			Location: annotation.PointLocation{Row: rank * SkeletonSpacing, Col: rank * SkeletonSpacing},
		})
		if node["outside"] == "1" {
			continue
		}

		locs, err := parsePoints(node["points"])
		if err != nil {
			return nil, err
		}
		if len(locs) == 0 {
			return nil, fmt.Errorf("%w: skeleton %s node %q has no point", ErrMalformedRecord, class.Name, name)
		}
		graph.Nodes = append(graph.Nodes, annotation.GraphNode{ID: name, Location: locs[0]})
	}
	class.Template = tmpl

	return single(class, graph, ctx), nil
}

// DecodeCuboid always fails: cuboids have no destination geometry
func DecodeCuboid(rec cvat.Record, _ Context) ([]annotation.Label, error) {
	return nil, fmt.Errorf("cuboid %q: %w", rec["label"], ErrUnsupportedGeometry)
}
