package annotation

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
)

// TagValueType is the value kind of a tag meta
type TagValueType string

const TagValueNone TagValueType = "none"

// GraphTemplate is the node layout stored on a graph class
type GraphTemplate struct {
	Nodes []TemplateNode
}

// TemplateNode is a single node of a graph template
type TemplateNode struct {
	Label    string
	Location PointLocation
}

// ObjClass is a named, geometry-typed category of the project schema
type ObjClass struct {
	Name     string
	Shape    GeometryType
	Color    string
	Template *GraphTemplate

	// geometry_config as received from the server, kept so that
	// classes we did not create survive a meta update unchanged
	rawConfig json.RawMessage
}

// NewObjClass creates a class with a color derived from its name
func NewObjClass(name string, shape GeometryType) ObjClass {
	return ObjClass{Name: name, Shape: shape, Color: colorFor(name)}
}

// Same reports whether both classes have the same identity (name and shape)
func (c ObjClass) Same(other ObjClass) bool {
	return c.Name == other.Name && c.Shape == other.Shape
}

type objClassJSON struct {
	Title          string          `json:"title"`
	Shape          GeometryType    `json:"shape"`
	Color          string          `json:"color"`
	GeometryConfig json.RawMessage `json:"geometry_config"`
}

type templateNodeJSON struct {
	Label string        `json:"label"`
	Loc   PointLocation `json:"loc"`
	Color string        `json:"color"`
}

func (c ObjClass) MarshalJSON() ([]byte, error) {
	config := c.rawConfig
	if c.Template != nil {
		nodes := make(map[string]templateNodeJSON, len(c.Template.Nodes))
		for _, n := range c.Template.Nodes {
			nodes[n.Label] = templateNodeJSON{Label: n.Label, Loc: n.Location, Color: c.Color}
		}
		raw, err := json.Marshal(map[string]any{"nodes": nodes, "edges": []any{}})
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph template for %s: %w", c.Name, err)
		}
		config = raw
	}
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	return json.Marshal(objClassJSON{
		Title:          c.Name,
		Shape:          c.Shape,
		Color:          c.Color,
		GeometryConfig: config,
	})
}

func (c *ObjClass) UnmarshalJSON(data []byte) error {
	var raw objClassJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode object class: %w", err)
	}
	*c = ObjClass{Name: raw.Title, Shape: raw.Shape, Color: raw.Color, rawConfig: raw.GeometryConfig}

	if raw.Shape != GeometryGraph || len(raw.GeometryConfig) == 0 {
		return nil
	}
	var config struct {
		Nodes map[string]templateNodeJSON `json:"nodes"`
	}
	if err := json.Unmarshal(raw.GeometryConfig, &config); err != nil {
		return fmt.Errorf("failed to decode graph template for %s: %w", raw.Title, err)
	}
	ids := make([]string, 0, len(config.Nodes))
	for id := range config.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	tmpl := &GraphTemplate{}
	for _, id := range ids {
		n := config.Nodes[id]
		label := n.Label
		if label == "" {
			label = id
		}
		tmpl.Nodes = append(tmpl.Nodes, TemplateNode{Label: label, Location: n.Loc})
	}
	c.Template = tmpl
	return nil
}

// TagMeta is a tag definition of the project schema.
// ID is assigned by the server and is zero on locally created metas.
type TagMeta struct {
	ID        int          `json:"id,omitempty"`
	Name      string       `json:"name"`
	ValueType TagValueType `json:"value_type"`
	Color     string       `json:"color"`
}

// NewTagMeta creates a value-less tag definition
func NewTagMeta(name string) TagMeta {
	return TagMeta{Name: name, ValueType: TagValueNone, Color: colorFor(name)}
}

// ProjectMeta is the project schema: object classes and tag metas.
// It is a value; Add* methods return a new meta and leave the receiver untouched.
type ProjectMeta struct {
	Classes []ObjClass `json:"classes"`
	Tags    []TagMeta  `json:"tags"`
}

// HasClass reports whether a class with the same identity exists
func (m ProjectMeta) HasClass(c ObjClass) bool {
	for _, existing := range m.Classes {
		if existing.Same(c) {
			return true
		}
	}
	return false
}

// AddClass returns a copy of the meta with c appended
func (m ProjectMeta) AddClass(c ObjClass) ProjectMeta {
	classes := make([]ObjClass, len(m.Classes), len(m.Classes)+1)
	copy(classes, m.Classes)
	return ProjectMeta{Classes: append(classes, c), Tags: m.Tags}
}

// HasTagMeta reports whether a tag meta with the same name exists
func (m ProjectMeta) HasTagMeta(t TagMeta) bool {
	_, ok := m.TagMeta(t.Name)
	return ok
}

// AddTagMeta returns a copy of the meta with t appended
func (m ProjectMeta) AddTagMeta(t TagMeta) ProjectMeta {
	tags := make([]TagMeta, len(m.Tags), len(m.Tags)+1)
	copy(tags, m.Tags)
	return ProjectMeta{Classes: m.Classes, Tags: append(tags, t)}
}

// TagMeta looks up a tag meta by name
func (m ProjectMeta) TagMeta(name string) (TagMeta, bool) {
	for _, t := range m.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return TagMeta{}, false
}

func (m ProjectMeta) MarshalJSON() ([]byte, error) {
	classes := m.Classes
	if classes == nil {
		classes = []ObjClass{}
	}
	tags := m.Tags
	if tags == nil {
		tags = []TagMeta{}
	}
	return json.Marshal(struct {
		Classes []ObjClass `json:"classes"`
		Tags    []TagMeta  `json:"tags"`
	}{classes, tags})
}

func colorFor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("#%06X", h.Sum32()&0xFFFFFF)
}
