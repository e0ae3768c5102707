// Package imaging turns uploaded photo bytes into the fixed-size float
// tensors the classification models consume.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ScalingMode selects how 8-bit channel values are mapped before inference.
// Each model family expects its own mode.
type ScalingMode string

const (
	ScaleUnit      ScalingMode = "unit"      // [0,1]
	ScaleSymmetric ScalingMode = "symmetric" // [-1,1], MobileNet / Inception
	ScaleCaffe     ScalingMode = "caffe"     // BGR minus ImageNet mean, ResNet / VGG
	ScaleRaw       ScalingMode = "raw"       // [0,255], models with in-graph preprocessing
)

var caffeMean = [3]float32{103.939, 116.779, 123.68} // B, G, R

func (m ScalingMode) Valid() bool {
	switch m {
	case ScaleUnit, ScaleSymmetric, ScaleCaffe, ScaleRaw:
		return true
	}
	return false
}

// Size is a model input resolution in pixels.
type Size struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Tensor holds Height*Width*3 values in row-major HWC order.
type Tensor struct {
	Width  int
	Height int
	Data   []float32
}

func (t *Tensor) At(x, y, c int) float32 {
	return t.Data[(y*t.Width+x)*3+c]
}

// Nested returns the tensor as [height][width][channel], the shape model
// servers accept for a single image instance.
func (t *Tensor) Nested() [][][]float32 {
	rows := make([][][]float32, t.Height)
	for y := range rows {
		row := make([][]float32, t.Width)
		for x := range row {
			i := (y*t.Width + x) * 3
			row[x] = t.Data[i : i+3 : i+3]
		}
		rows[y] = row
	}
	return rows
}

// DecodeError reports bytes that are not a readable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "cannot decode image: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// DefaultMaxPixels bounds the decoded size of an upload, about 40 MP.
const DefaultMaxPixels = 40_000_000

// Decode reads raw image bytes and rotates the result upright according to
// its EXIF orientation tag, if any. Images whose header declares more than
// maxPixels pixels are rejected before any pixel data is decoded; a
// non-positive maxPixels means DefaultMaxPixels.
func Decode(raw []byte, maxPixels int) (image.Image, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("empty upload")}
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &DecodeError{Err: fmt.Errorf("image is %dx%d, over the %d pixel limit", cfg.Width, cfg.Height, maxPixels)}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return Orient(img, Orientation(raw)), nil
}

// Normalize decodes raw and converts it for a model with the given input size
// and scaling mode.
func Normalize(raw []byte, size Size, mode ScalingMode) (*Tensor, error) {
	img, err := Decode(raw, DefaultMaxPixels)
	if err != nil {
		return nil, err
	}
	return FromImage(img, size, mode)
}

// FromImage drops alpha, resizes img to size with bilinear sampling and
// scales each channel according to mode.
func FromImage(img image.Image, size Size, mode ScalingMode) (*Tensor, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown scaling mode %q", mode)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("invalid input size %s", size)
	}

	rgb := opaque(img)
	dst := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), rgb, rgb.Bounds(), draw.Src, nil)

	t := &Tensor{
		Width:  size.Width,
		Height: size.Height,
		Data:   make([]float32, size.Width*size.Height*3),
	}
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			p := dst.Pix[y*dst.Stride+x*4:]
			r, g, b := float32(p[0]), float32(p[1]), float32(p[2])
			i := (y*size.Width + x) * 3
			switch mode {
			case ScaleUnit:
				t.Data[i], t.Data[i+1], t.Data[i+2] = r/255, g/255, b/255
			case ScaleSymmetric:
				t.Data[i], t.Data[i+1], t.Data[i+2] = r/127.5-1, g/127.5-1, b/127.5-1
			case ScaleCaffe:
				t.Data[i], t.Data[i+1], t.Data[i+2] = b-caffeMean[0], g-caffeMean[1], r-caffeMean[2]
			case ScaleRaw:
				t.Data[i], t.Data[i+1], t.Data[i+2] = r, g, b
			}
		}
	}
	return t, nil
}

// opaque copies img into non-premultiplied RGB with alpha forced to 255, so
// transparent pixels keep their colour instead of turning black. Grayscale
// and paletted sources come out with equal channels.
func opaque(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
