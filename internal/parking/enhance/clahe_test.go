package enhance

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampGray is a w x h frame whose values climb from lo to lo+steps-1 left
// to right.
func rampGray(w, h int, lo, steps uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: lo + uint8(x*int(steps)/w)})
		}
	}
	return img
}

func grayRange(img *image.Gray) (lo, hi uint8) {
	lo, hi = 255, 0
	for _, v := range img.Pix {
		lo, hi = min(lo, v), max(hi, v)
	}
	return lo, hi
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultParams().Validate())
	for _, p := range []Params{
		{ClipLimit: 0, Tiles: 8},
		{ClipLimit: -1, Tiles: 8},
		{ClipLimit: 3, Tiles: 0},
	} {
		_, err := NewContrast(p)
		assert.Error(t, err, "%+v", p)
	}
}

func TestContrast_StretchesLowContrastFrame(t *testing.T) {
	t.Parallel()

	frame := rampGray(64, 64, 100, 16)
	c, err := NewContrast(Params{ClipLimit: 256, Tiles: 1})
	require.NoError(t, err)

	out, ok := c.Apply(frame).(*image.Gray)
	require.True(t, ok)
	lo, hi := grayRange(out)
	assert.Less(t, lo, uint8(40))
	assert.Equal(t, uint8(255), hi)

	inLo, inHi := grayRange(frame)
	assert.Equal(t, uint8(100), inLo, "input untouched")
	assert.Equal(t, uint8(115), inHi)
}

func TestContrast_ClipLimitSoftensResult(t *testing.T) {
	t.Parallel()

	frame := rampGray(64, 64, 100, 16)
	strong, err := NewContrast(Params{ClipLimit: 256, Tiles: 1})
	require.NoError(t, err)
	gentle, err := NewContrast(Params{ClipLimit: 1, Tiles: 1})
	require.NoError(t, err)

	sLo, _ := grayRange(strong.Apply(frame).(*image.Gray))
	gLo, _ := grayRange(gentle.Apply(frame).(*image.Gray))
	assert.Greater(t, gLo, sLo)
}

func TestContrast_UniformFrameStaysUniform(t *testing.T) {
	t.Parallel()

	frame := image.NewGray(image.Rect(0, 0, 48, 32))
	for i := range frame.Pix {
		frame.Pix[i] = 90
	}
	c, err := NewContrast(DefaultParams())
	require.NoError(t, err)

	out := c.Apply(frame).(*image.Gray)
	for _, v := range out.Pix {
		require.Equal(t, out.Pix[0], v)
	}
}

func TestContrast_ColourKeepsChroma(t *testing.T) {
	t.Parallel()

	frame := image.NewRGBA(image.Rect(10, 10, 42, 42))
	for y := 10; y < 42; y++ {
		for x := 10; x < 42; x++ {
			v := uint8(90 + (x-10)/4)
			frame.SetRGBA(x, y, color.RGBA{R: v + 30, G: v, B: v - 20, A: 255})
		}
	}
	c, err := NewContrast(DefaultParams())
	require.NoError(t, err)

	out, ok := c.Apply(frame).(*image.RGBA)
	require.True(t, ok)
	require.Equal(t, frame.Bounds(), out.Bounds())
	for _, p := range []image.Point{{10, 10}, {25, 30}, {41, 41}} {
		px := out.RGBAAt(p.X, p.Y)
		assert.Greater(t, px.R, px.B, "%v keeps its warm tint", p)
		assert.Equal(t, uint8(255), px.A)
	}
}

func TestContrast_NonRGBAInputAndEmptyFrame(t *testing.T) {
	t.Parallel()

	c, err := NewContrast(DefaultParams())
	require.NoError(t, err)

	ycc := image.NewYCbCr(image.Rect(0, 0, 16, 16), image.YCbCrSubsampleRatio444)
	_, ok := c.Apply(ycc).(*image.RGBA)
	assert.True(t, ok)

	empty := image.NewGray(image.Rect(0, 0, 0, 0))
	assert.Same(t, empty, c.Apply(empty))
	assert.Nil(t, c.Apply(nil))
}

func TestContrast_TranslucentPixelsStayPremultiplied(t *testing.T) {
	t.Parallel()

	frame := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := uint8(60 + x)
			frame.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 100})
		}
	}
	c, err := NewContrast(Params{ClipLimit: 256, Tiles: 1})
	require.NoError(t, err)

	out := c.Apply(frame).(*image.RGBA)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			px := out.RGBAAt(x, y)
			require.LessOrEqual(t, px.R, px.A)
			require.LessOrEqual(t, px.G, px.A)
			require.LessOrEqual(t, px.B, px.A)
		}
	}
}
