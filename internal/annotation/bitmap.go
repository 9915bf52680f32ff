package annotation

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/klauspost/compress/zlib"
)

// ErrEmptyMask is returned when a bitmap has no set pixels
var ErrEmptyMask = errors.New("mask has no set pixels")

// Mask is a dense binary mask sized to the full image canvas
type Mask struct {
	Height int
	Width  int
	pix    []bool
}

// NewMask allocates an all-zero mask of the given canvas size
func NewMask(height, width int) *Mask {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	return &Mask{Height: height, Width: width, pix: make([]bool, height*width)}
}

// Contains reports whether (row, col) lies on the canvas
func (m *Mask) Contains(row, col int) bool {
	return row >= 0 && col >= 0 && row < m.Height && col < m.Width
}

// Set marks (row, col). Out-of-canvas positions are ignored and reported as false.
func (m *Mask) Set(row, col int) bool {
	if !m.Contains(row, col) {
		return false
	}
	m.pix[row*m.Width+col] = true
	return true
}

// At reports whether (row, col) is set
func (m *Mask) At(row, col int) bool {
	if !m.Contains(row, col) {
		return false
	}
	return m.pix[row*m.Width+col]
}

// Count returns the number of set pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.pix {
		if v {
			n++
		}
	}
	return n
}

// Bounds returns the tight bounding box of set pixels
func (m *Mask) Bounds() (image.Rectangle, bool) {
	minRow, minCol := m.Height, m.Width
	maxRow, maxCol := -1, -1
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			if !m.pix[row*m.Width+col] {
				continue
			}
			minRow = min(minRow, row)
			minCol = min(minCol, col)
			maxRow = max(maxRow, row)
			maxCol = max(maxCol, col)
		}
	}
	if maxRow < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minCol, minRow, maxCol+1, maxRow+1), true
}

// Bitmap is a mask geometry. The mask always covers the full canvas;
// it is cropped to its set pixels only when encoded.
type Bitmap struct {
	Mask *Mask
}

func (Bitmap) GeometryType() GeometryType { return GeometryBitmap }

func (b Bitmap) fields() (map[string]any, error) {
	if b.Mask == nil {
		return nil, ErrEmptyMask
	}
	bounds, ok := b.Mask.Bounds()
	if !ok {
		return nil, ErrEmptyMask
	}
	data, err := encodeMask(b.Mask, bounds)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"bitmap": map[string]any{
			"origin": PointLocation{Row: bounds.Min.Y, Col: bounds.Min.X},
			"data":   data,
		},
	}, nil
}

var maskPalette = color.Palette{
	color.RGBA{0, 0, 0, 0},
	color.RGBA{255, 255, 255, 255},
}

// encodeMask writes the cropped mask as base64(zlib(png))
func encodeMask(m *Mask, bounds image.Rectangle) (string, error) {
	img := image.NewPaletted(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), maskPalette)
	for row := bounds.Min.Y; row < bounds.Max.Y; row++ {
		for col := bounds.Min.X; col < bounds.Max.X; col++ {
			if m.At(row, col) {
				img.SetColorIndex(col-bounds.Min.X, row-bounds.Min.Y, 1)
			}
		}
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return "", fmt.Errorf("failed to encode mask png: %w", err)
	}

	var zBuf bytes.Buffer
	zw := zlib.NewWriter(&zBuf)
	if _, err := zw.Write(pngBuf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to compress mask: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to compress mask: %w", err)
	}

	return base64.StdEncoding.EncodeToString(zBuf.Bytes()), nil
}
