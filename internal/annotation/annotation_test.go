package annotation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
)

func TestPointLocationWireOrder(t *testing.T) {
	data, err := json.Marshal(PointLocation{Row: 20, Col: 10})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != "[10,20]" {
		t.Errorf("Expected [10,20], got %s", data)
	}

	var p PointLocation
	if err := json.Unmarshal([]byte("[3.7,4.2]"), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Row != 4 || p.Col != 3 {
		t.Errorf("Expected row=4 col=3, got %+v", p)
	}
}

func TestLabelMarshal(t *testing.T) {
	label := Label{
		Class:    NewObjClass("car_rectangle", GeometryRectangle),
		Geometry: Rectangle{Top: 1, Left: 2, Bottom: 3, Right: 4},
	}
	data, err := json.Marshal(label)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got struct {
		ClassTitle   string `json:"classTitle"`
		GeometryType string `json:"geometryType"`
		Points       struct {
			Exterior [][2]int `json:"exterior"`
		} `json:"points"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.ClassTitle != "car_rectangle" || got.GeometryType != "rectangle" {
		t.Errorf("Unexpected class/geometry: %s/%s", got.ClassTitle, got.GeometryType)
	}
	want := [][2]int{{2, 1}, {4, 3}}
	if diff := cmp.Diff(want, got.Points.Exterior); diff != "" {
		t.Errorf("exterior mismatch (-want +got):\n%s", diff)
	}
}

func TestBitmapEncodesCroppedMask(t *testing.T) {
	mask := NewMask(5, 5)
	mask.Set(1, 4)
	mask.Set(2, 2)
	mask.Set(2, 3)

	fields, err := Bitmap{Mask: mask}.fields()
	if err != nil {
		t.Fatalf("fields failed: %v", err)
	}
	bitmap := fields["bitmap"].(map[string]any)

	origin := bitmap["origin"].(PointLocation)
	if origin.Row != 1 || origin.Col != 2 {
		t.Errorf("Expected origin row=1 col=2, got %+v", origin)
	}

	raw, err := base64.StdEncoding.DecodeString(bitmap["data"].(string))
	if err != nil {
		t.Fatalf("base64 decode failed: %v", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("zlib reader failed: %v", err)
	}
	pngData, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("zlib read failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		t.Fatalf("png decode failed: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("Expected cropped 3x2 image, got %v", img.Bounds())
	}
}

func TestBitmapRejectsEmptyMask(t *testing.T) {
	if _, err := (Bitmap{Mask: NewMask(3, 3)}).fields(); err != ErrEmptyMask {
		t.Errorf("Expected ErrEmptyMask, got %v", err)
	}
}

func TestMaskIgnoresOutOfCanvas(t *testing.T) {
	mask := NewMask(2, 2)
	if mask.Set(2, 0) {
		t.Error("Expected Set outside canvas to report false")
	}
	if mask.Set(-1, 1) {
		t.Error("Expected Set with negative row to report false")
	}
	if mask.Count() != 0 {
		t.Errorf("Expected empty mask, got %d set pixels", mask.Count())
	}
}

func TestProjectMetaAddIsCopyOnWrite(t *testing.T) {
	base := ProjectMeta{}
	car := NewObjClass("car_rectangle", GeometryRectangle)

	updated := base.AddClass(car).AddTagMeta(NewTagMeta("night"))

	if base.HasClass(car) {
		t.Error("AddClass modified the receiver")
	}
	if !updated.HasClass(car) {
		t.Error("Expected updated meta to contain car_rectangle")
	}
	if updated.HasClass(NewObjClass("car_rectangle", GeometryPolygon)) {
		t.Error("Class identity must include the shape")
	}
	if !updated.HasTagMeta(NewTagMeta("night")) {
		t.Error("Expected updated meta to contain tag night")
	}
}

func TestGraphClassTemplateRoundTrip(t *testing.T) {
	class := NewObjClass("person_graph", GeometryGraph)
	class.Template = &GraphTemplate{Nodes: []TemplateNode{
		{Label: "a", Location: PointLocation{Row: 0, Col: 0}},
		{Label: "b", Location: PointLocation{Row: 10, Col: 10}},
	}}

	data, err := json.Marshal(ProjectMeta{Classes: []ObjClass{class}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var meta ProjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(meta.Classes) != 1 || meta.Classes[0].Template == nil {
		t.Fatalf("Expected one graph class with a template, got %+v", meta.Classes)
	}
	if diff := cmp.Diff(class.Template, meta.Classes[0].Template); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}
}

func TestVideoObjectSetDeduplicatesByClass(t *testing.T) {
	var set VideoObjectSet
	car := NewObjClass("car_rectangle", GeometryRectangle)

	first := set.Add(car)
	second := set.Add(car)
	set.Add(NewObjClass("car_polygon", GeometryPolygon))

	if first.Key != second.Key {
		t.Errorf("Expected the same object key, got %s and %s", first.Key, second.Key)
	}
	if set.Len() != 2 {
		t.Errorf("Expected 2 objects, got %d", set.Len())
	}
}

func TestVideoAnnotationRequiresObjects(t *testing.T) {
	frame := 3
	ann := VideoAnnotation{
		Size:        Size{Height: 4, Width: 4},
		FramesCount: 4,
		Objects:     &VideoObjectSet{},
		Frames: []Frame{{Index: 3, Figures: []Label{{
			Class:    NewObjClass("car_point", GeometryPoint),
			Geometry: Point{Row: 1, Col: 1},
			Frame:    &frame,
		}}}},
	}
	if _, err := json.Marshal(ann); err == nil {
		t.Error("Expected error for a figure without a video object")
	}

	ann.Objects.Add(NewObjClass("car_point", GeometryPoint))
	if _, err := json.Marshal(ann); err != nil {
		t.Errorf("Marshal failed: %v", err)
	}
}
