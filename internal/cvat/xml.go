package cvat

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// Record is the flat attribute mapping of one source annotation element
type Record map[string]string

// Get returns the attribute value and whether it was present
func (r Record) Get(key string) (string, bool) {
	v, ok := r[key]
	return v, ok
}

// Shape is any child element of an <image>: a tag, a geometry, or a skeleton
// with nested <points> nodes.
type Shape struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []Shape    `xml:",any"`
}

// Kind returns the element name (box, polygon, tag, ...)
func (s Shape) Kind() string {
	return s.XMLName.Local
}

// Record flattens the element attributes
func (s Shape) Record() Record {
	rec := make(Record, len(s.Attrs))
	for _, a := range s.Attrs {
		rec[a.Name.Local] = a.Value
	}
	return rec
}

// Nodes returns the records of nested elements of the given kind
func (s Shape) Nodes(kind string) []Record {
	var nodes []Record
	for _, c := range s.Children {
		if c.Kind() == kind {
			nodes = append(nodes, c.Record())
		}
	}
	return nodes
}

// Image is one <image> element. Attributes are kept as strings; an empty
// value means the attribute was absent.
type Image struct {
	ID       string  `xml:"id,attr"`
	Name     string  `xml:"name,attr"`
	Width    string  `xml:"width,attr"`
	Height   string  `xml:"height,attr"`
	Elements []Shape `xml:",any"`
}

// Shapes returns the child elements of the given kind in document order
func (img Image) Shapes(kind string) []Shape {
	var out []Shape
	for _, e := range img.Elements {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

// Annotations is the root of annotations.xml
type Annotations struct {
	XMLName xml.Name `xml:"annotations"`
	Source  string   `xml:"meta>task>source"`
	Images  []Image  `xml:"image"`
}

// ParseAnnotations decodes an annotations.xml document
func ParseAnnotations(r io.Reader) (*Annotations, error) {
	var doc Annotations
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse annotations: %w", err)
	}
	return &doc, nil
}

// ParseAnnotationsFile decodes the annotations.xml at path
func ParseAnnotationsFile(path string) (*Annotations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotations: %w", err)
	}
	defer f.Close()
	return ParseAnnotations(f)
}
