package images

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
)

// Dimensions reads the pixel size of an image file from its header
func Dimensions(path string) (annotation.Size, error) {
	file, err := os.Open(path)
	if err != nil {
		return annotation.Size{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return annotation.Size{}, fmt.Errorf("failed to read dimensions of %s: %w", path, err)
	}
	return annotation.Size{Height: cfg.Height, Width: cfg.Width}, nil
}

// Decode reads a whole image file
func Decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
