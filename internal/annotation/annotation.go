package annotation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Size is an image or video canvas size
type Size struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Label is a typed shape bound to an object class. Frame is set when the
// label was decoded in video context; such a label is a video figure.
type Label struct {
	Class    ObjClass
	Geometry Geometry
	Frame    *int
}

// FrameIndex returns the frame the label is bound to
func (l Label) FrameIndex() (int, bool) {
	if l.Frame == nil {
		return 0, false
	}
	return *l.Frame, true
}

func (l Label) MarshalJSON() ([]byte, error) {
	if l.Geometry == nil {
		return nil, fmt.Errorf("label %s has no geometry", l.Class.Name)
	}
	obj, err := l.Geometry.fields()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s geometry: %w", l.Class.Name, err)
	}
	obj["classTitle"] = l.Class.Name
	obj["geometryType"] = l.Geometry.GeometryType()
	obj["tags"] = []any{}
	return json.Marshal(obj)
}

// Tag is a value-less tag instance
type Tag struct {
	Meta  TagMeta
	Frame *int
}

func (t Tag) MarshalJSON() ([]byte, error) {
	if t.Frame != nil {
		return json.Marshal(map[string]any{
			"name":       t.Meta.Name,
			"key":        uuid.NewString(),
			"frameRange": [2]int{*t.Frame, *t.Frame},
		})
	}
	return json.Marshal(map[string]any{"name": t.Meta.Name, "value": nil})
}

// Annotation is the annotation of a single image
type Annotation struct {
	Size   Size
	Labels []Label
	Tags   []Tag
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	labels := a.Labels
	if labels == nil {
		labels = []Label{}
	}
	tags := a.Tags
	if tags == nil {
		tags = []Tag{}
	}
	return json.Marshal(map[string]any{
		"description": "",
		"size":        a.Size,
		"tags":        tags,
		"objects":     labels,
	})
}

// VideoObject is a persistent object identity shared by figures across frames
type VideoObject struct {
	Key   string
	Class ObjClass
}

func (o VideoObject) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"key":        o.Key,
		"classTitle": o.Class.Name,
		"tags":       []any{},
	})
}

// VideoObjectSet deduplicates video objects by class identity in first-seen order
type VideoObjectSet struct {
	objects []VideoObject
}

// Add returns the object for class, creating it on first sight
func (s *VideoObjectSet) Add(class ObjClass) VideoObject {
	if obj, ok := s.Find(class); ok {
		return obj
	}
	obj := VideoObject{Key: uuid.NewString(), Class: class}
	s.objects = append(s.objects, obj)
	return obj
}

// Find returns the object for class if it was added
func (s *VideoObjectSet) Find(class ObjClass) (VideoObject, bool) {
	for _, obj := range s.objects {
		if obj.Class.Same(class) {
			return obj, true
		}
	}
	return VideoObject{}, false
}

// Objects returns the objects in first-seen order
func (s *VideoObjectSet) Objects() []VideoObject {
	out := make([]VideoObject, len(s.objects))
	copy(out, s.objects)
	return out
}

// Len returns the number of distinct objects
func (s *VideoObjectSet) Len() int { return len(s.objects) }

// Frame groups the figures of one video frame
type Frame struct {
	Index   int
	Figures []Label
}

// VideoAnnotation is the annotation of a whole video
type VideoAnnotation struct {
	Size        Size
	FramesCount int
	Objects     *VideoObjectSet
	Frames      []Frame
	Tags        []Tag
}

type figureJSON struct {
	Key          string         `json:"key"`
	ObjectKey    string         `json:"objectKey"`
	GeometryType GeometryType   `json:"geometryType"`
	Geometry     map[string]any `json:"geometry"`
}

type frameJSON struct {
	Index   int          `json:"index"`
	Figures []figureJSON `json:"figures"`
}

func (v VideoAnnotation) MarshalJSON() ([]byte, error) {
	objects := &VideoObjectSet{}
	if v.Objects != nil {
		objects = v.Objects
	}

	frames := make([]frameJSON, 0, len(v.Frames))
	for _, f := range v.Frames {
		fj := frameJSON{Index: f.Index, Figures: make([]figureJSON, 0, len(f.Figures))}
		for _, fig := range f.Figures {
			obj, ok := objects.Find(fig.Class)
			if !ok {
				return nil, fmt.Errorf("figure of class %s in frame %d has no video object", fig.Class.Name, f.Index)
			}
			geom, err := fig.Geometry.fields()
			if err != nil {
				return nil, fmt.Errorf("failed to encode figure of %s in frame %d: %w", fig.Class.Name, f.Index, err)
			}
			fj.Figures = append(fj.Figures, figureJSON{
				Key:          uuid.NewString(),
				ObjectKey:    obj.Key,
				GeometryType: fig.Geometry.GeometryType(),
				Geometry:     geom,
			})
		}
		frames = append(frames, fj)
	}

	tags := v.Tags
	if tags == nil {
		tags = []Tag{}
	}

	return json.Marshal(map[string]any{
		"description": "",
		"key":         uuid.NewString(),
		"size":        v.Size,
		"framesCount": v.FramesCount,
		"objects":     objects.Objects(),
		"frames":      frames,
		"tags":        tags,
	})
}
