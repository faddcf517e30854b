// Package train fits the hashtron image classifier to weakly labeled
// X-rays and scores reports with it.
package train

import (
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// GridSize is the side of the downscaled grayscale raster the network
// consumes.
const GridSize = 28

// ImageInput is a row-major GridSize x GridSize grayscale raster.
type ImageInput [GridSize * GridSize]byte

// Feature packs the 2x2 pixel window at n into one word.
func (i *ImageInput) Feature(n int) uint32 {
	n %= (GridSize - 1) * (GridSize - 1)
	return uint32(i[n]) | uint32(i[n+1])<<8 | uint32(i[n+GridSize])<<16 | uint32(i[n+1+GridSize])<<24
}

// Outcome is the binary training target, true for abnormal.
type Outcome bool

func (o *Outcome) Feature(n int) uint32 {
	if *o {
		return 1
	}
	return 0
}

// Rasterize grayscales and downscales an X-ray to the input grid.
func Rasterize(img image.Image) *ImageInput {
	small := image.NewGray(image.Rect(0, 0, GridSize, GridSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var in ImageInput
	copy(in[:], small.Pix)
	return &in
}

// LoadImageInput decodes an image file and rasterizes it.
func LoadImageInput(path string) (*ImageInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}

	return Rasterize(img), nil
}
