package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1.0 / 255

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func assertPixel(t *testing.T, tn *Tensor, x, y int, want [3]float32, delta float64) {
	t.Helper()
	for c := 0; c < 3; c++ {
		assert.InDelta(t, want[c], tn.At(x, y, c), delta, "pixel (%d,%d) channel %d", x, y, c)
	}
}

func TestNormalize_UnitScaleAndResize(t *testing.T) {
	raw := encodePNG(t, solid(16, 10, color.NRGBA{R: 255, A: 255}))

	tn, err := Normalize(raw, Size{Width: 4, Height: 3}, ScaleUnit)
	require.NoError(t, err)
	assert.Equal(t, 4, tn.Width)
	assert.Equal(t, 3, tn.Height)
	assert.Len(t, tn.Data, 4*3*3)
	assertPixel(t, tn, 0, 0, [3]float32{1, 0, 0}, tol)
	assertPixel(t, tn, 3, 2, [3]float32{1, 0, 0}, tol)
}

func TestNormalize_SymmetricScale(t *testing.T) {
	raw := encodePNG(t, solid(8, 8, color.NRGBA{R: 255, G: 0, B: 0, A: 255}))

	tn, err := Normalize(raw, Size{Width: 2, Height: 2}, ScaleSymmetric)
	require.NoError(t, err)
	assertPixel(t, tn, 1, 1, [3]float32{1, -1, -1}, 2*tol)
}

func TestNormalize_CaffeSwapsToBGRAndCentres(t *testing.T) {
	raw := encodePNG(t, solid(8, 8, color.NRGBA{R: 255, A: 255}))

	tn, err := Normalize(raw, Size{Width: 2, Height: 2}, ScaleCaffe)
	require.NoError(t, err)
	assertPixel(t, tn, 0, 0, [3]float32{-103.939, -116.779, 255 - 123.68}, 1)
}

func TestNormalize_RawKeepsByteRange(t *testing.T) {
	raw := encodePNG(t, solid(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))

	tn, err := Normalize(raw, Size{Width: 4, Height: 4}, ScaleRaw)
	require.NoError(t, err)
	assertPixel(t, tn, 2, 2, [3]float32{10, 20, 30}, 1)
}

func TestNormalize_GrayscaleBecomesThreeChannels(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 6, 6))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	raw := encodePNG(t, gray)

	tn, err := Normalize(raw, Size{Width: 3, Height: 3}, ScaleUnit)
	require.NoError(t, err)
	v := float32(128) / 255
	assertPixel(t, tn, 1, 1, [3]float32{v, v, v}, tol)
}

func TestNormalize_DropsAlphaWithoutDarkening(t *testing.T) {
	raw := encodePNG(t, solid(4, 4, color.NRGBA{G: 255, A: 0}))

	tn, err := Normalize(raw, Size{Width: 2, Height: 2}, ScaleUnit)
	require.NoError(t, err)
	assertPixel(t, tn, 0, 0, [3]float32{0, 1, 0}, tol)
}

func TestNormalize_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(32, 32, color.NRGBA{R: 200, G: 200, B: 200, A: 255}), nil))

	tn, err := Normalize(buf.Bytes(), Size{Width: 8, Height: 8}, ScaleUnit)
	require.NoError(t, err)
	assertPixel(t, tn, 4, 4, [3]float32{200.0 / 255, 200.0 / 255, 200.0 / 255}, 0.03)
}

func TestNormalize_DecodeError(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte("definitely not an image")} {
		_, err := Normalize(raw, Size{Width: 2, Height: 2}, ScaleUnit)
		var de *DecodeError
		assert.True(t, errors.As(err, &de), "got %v", err)
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h
// grayscale image, with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, w)
	binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 0, 0, 0, 0})

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&out, binary.BigEndian, uint32(13))
	out.Write(ihdr.Bytes())
	binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return out.Bytes()
}

func TestDecode_PixelLimit(t *testing.T) {
	raw := encodePNG(t, solid(16, 16, color.White))

	_, err := Decode(raw, 16*16)
	assert.NoError(t, err)

	_, err = Decode(raw, 16*16-1)
	var de *DecodeError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Contains(t, err.Error(), "pixel limit")
}

func TestDecode_RejectsDeclaredSizeBeforeDecoding(t *testing.T) {
	_, err := Decode(pngHeader(12000, 12000), 0)
	var de *DecodeError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Contains(t, err.Error(), "12000x12000")
}

func TestFromImage_RejectsBadConfig(t *testing.T) {
	img := solid(2, 2, color.White)

	_, err := FromImage(img, Size{Width: 2, Height: 2}, ScalingMode("imagenet"))
	assert.Error(t, err)

	_, err = FromImage(img, Size{Width: 0, Height: 2}, ScaleUnit)
	assert.Error(t, err)
}

func TestTensorNested(t *testing.T) {
	tn := &Tensor{Width: 2, Height: 1, Data: []float32{1, 2, 3, 4, 5, 6}}
	n := tn.Nested()
	require.Len(t, n, 1)
	require.Len(t, n[0], 2)
	assert.Equal(t, []float32{4, 5, 6}, n[0][1])
}

func TestOrient(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, red)
	src.Set(1, 0, blue)

	cw := Orient(src, 6)
	assert.Equal(t, image.Rect(0, 0, 1, 2), cw.Bounds())
	assert.Equal(t, red, color.NRGBAModel.Convert(cw.At(0, 0)))
	assert.Equal(t, blue, color.NRGBAModel.Convert(cw.At(0, 1)))

	ccw := Orient(src, 8)
	assert.Equal(t, blue, color.NRGBAModel.Convert(ccw.At(0, 0)))
	assert.Equal(t, red, color.NRGBAModel.Convert(ccw.At(0, 1)))

	flipped := Orient(src, 3)
	assert.Equal(t, blue, color.NRGBAModel.Convert(flipped.At(0, 0)))

	assert.Same(t, src, Orient(src, 1))
}

func TestOrientation_NoExif(t *testing.T) {
	assert.Equal(t, 1, Orientation(encodePNG(t, solid(1, 1, color.White))))
}
