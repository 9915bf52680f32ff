package annotation

import (
	"encoding/json"
	"fmt"
)

// GeometryType is the destination shape name of a geometry
type GeometryType string

const (
	GeometryRectangle GeometryType = "rectangle"
	GeometryPolygon   GeometryType = "polygon"
	GeometryPolyline  GeometryType = "line"
	GeometryPoint     GeometryType = "point"
	GeometryBitmap    GeometryType = "bitmap"
	GeometryGraph     GeometryType = "graph"
	GeometryCuboid    GeometryType = "cuboid"
)

// PointLocation is a pixel position in (row, col) order.
// The wire format stores it as [col, row].
type PointLocation struct {
	Row int
	Col int
}

func (p PointLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Col, p.Row})
}

func (p *PointLocation) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to decode point location: %w", err)
	}
	p.Col, p.Row = int(pair[0]), int(pair[1])
	return nil
}

// Geometry is a typed shape that can be attached to a label
type Geometry interface {
	GeometryType() GeometryType
	fields() (map[string]any, error)
}

type pointsField struct {
	Exterior []PointLocation   `json:"exterior"`
	Interior [][]PointLocation `json:"interior"`
}

func exterior(locs ...PointLocation) map[string]any {
	return map[string]any{"points": pointsField{Exterior: locs, Interior: [][]PointLocation{}}}
}

// Rectangle is an axis-aligned box in pixel coordinates.
// No ordering is enforced between Top/Bottom or Left/Right.
type Rectangle struct {
	Top    int
	Left   int
	Bottom int
	Right  int
}

func (Rectangle) GeometryType() GeometryType { return GeometryRectangle }

func (r Rectangle) fields() (map[string]any, error) {
	return exterior(PointLocation{Row: r.Top, Col: r.Left}, PointLocation{Row: r.Bottom, Col: r.Right}), nil
}

// Polygon is a closed contour
type Polygon struct {
	Exterior []PointLocation
}

func (Polygon) GeometryType() GeometryType { return GeometryPolygon }

func (p Polygon) fields() (map[string]any, error) {
	return exterior(p.Exterior...), nil
}

// Polyline is an open contour
type Polyline struct {
	Exterior []PointLocation
}

func (Polyline) GeometryType() GeometryType { return GeometryPolyline }

func (p Polyline) fields() (map[string]any, error) {
	return exterior(p.Exterior...), nil
}

// Point is a single pixel location
type Point struct {
	Row int
	Col int
}

func (Point) GeometryType() GeometryType { return GeometryPoint }

func (p Point) fields() (map[string]any, error) {
	return exterior(PointLocation{Row: p.Row, Col: p.Col}), nil
}

// GraphNode is one keypoint of a graph geometry
type GraphNode struct {
	ID       string
	Location PointLocation
}

// GraphNodes is a keypoint graph (skeleton) geometry
type GraphNodes struct {
	Nodes []GraphNode
}

func (GraphNodes) GeometryType() GeometryType { return GeometryGraph }

func (g GraphNodes) fields() (map[string]any, error) {
	nodes := make(map[string]any, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate graph node %q", n.ID)
		}
		nodes[n.ID] = map[string]any{"loc": n.Location}
	}
	return map[string]any{"nodes": nodes}, nil
}

