package service

import (
	"image"
	"image/color"
	"testing"

	"github.com/TIANLI0/MatteKit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskWith(w, h int, rects ...image.Rectangle) *model.AlphaMask {
	m := model.NewAlphaMask(w, h)
	for _, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				m.Set(x, y, 1)
			}
		}
	}
	return m
}

func binaryOptions() Options {
	opts := DefaultOptions()
	opts.FeatherRadius = 0
	return opts
}

func TestProcessRemovesSpeckles(t *testing.T) {
	opts := binaryOptions()
	opts.MinComponentSize = 4
	in := maskWith(20, 20, image.Rect(8, 8, 18, 18), image.Rect(1, 1, 2, 2))

	out := NewMaskProcessor(opts).Process(in, 20, 20)
	assert.Equal(t, 0.0, out.At(1, 1))
	assert.Equal(t, 1.0, out.At(10, 10))
	assert.Equal(t, 100, out.ForegroundCount())
}

func TestProcessFillsEnclosedHoles(t *testing.T) {
	in := maskWith(20, 20, image.Rect(4, 4, 16, 16))
	for y := 8; y < 12; y++ {
		for x := 8; x < 12; x++ {
			in.Set(x, y, 0)
		}
	}

	out := NewMaskProcessor(binaryOptions()).Process(in, 20, 20)
	assert.Equal(t, 1.0, out.At(9, 9))
	assert.Equal(t, 0.0, out.At(0, 0))
	assert.Equal(t, 144, out.ForegroundCount())
}

func TestProcessKeepsBorderConnectedGaps(t *testing.T) {
	// 开口的 U 形：中间区域与边缘相连，不应被填充
	in := maskWith(20, 20, image.Rect(4, 4, 6, 20), image.Rect(14, 4, 16, 20), image.Rect(4, 4, 16, 6))

	out := NewMaskProcessor(binaryOptions()).Process(in, 20, 20)
	assert.Equal(t, 0.0, out.At(10, 12))
}

func TestProcessKeepLargest(t *testing.T) {
	opts := binaryOptions()
	opts.KeepLargestOnly = true
	in := maskWith(30, 30, image.Rect(2, 2, 12, 12), image.Rect(20, 20, 26, 26))

	out := NewMaskProcessor(opts).Process(in, 30, 30)
	assert.Equal(t, 1.0, out.At(5, 5))
	assert.Equal(t, 0.0, out.At(22, 22))
}

func TestProcessFeatherZeroIsBinary(t *testing.T) {
	in := maskWith(20, 20, image.Rect(5, 5, 15, 15))
	in.Set(4, 10, 0.7)
	in.Set(15, 10, 0.3)

	out := NewMaskProcessor(binaryOptions()).Process(in, 20, 20)
	for _, a := range out.Alpha {
		require.True(t, a == 0 || a == 1, "alpha %v is not binary", a)
	}
}

func TestProcessFeatherSoftensEdges(t *testing.T) {
	opts := DefaultOptions()
	opts.FeatherRadius = 2
	in := maskWith(40, 40, image.Rect(10, 10, 30, 30))

	out := NewMaskProcessor(opts).Process(in, 40, 40)
	assert.Equal(t, 1.0, out.At(20, 20))
	assert.Equal(t, 0.0, out.At(0, 0))

	edge := out.At(10, 20)
	assert.Greater(t, edge, 0.0)
	assert.Less(t, edge, 1.0)
	for _, a := range out.Alpha {
		require.GreaterOrEqual(t, a, 0.0)
		require.LessOrEqual(t, a, 1.0)
	}
}

func TestProcessUpsamples(t *testing.T) {
	in := maskWith(10, 10, image.Rect(2, 2, 8, 8))

	out := NewMaskProcessor(binaryOptions()).Process(in, 40, 30)
	out.MustMatch(40, 30)
	assert.Equal(t, 1.0, out.At(20, 15))
	assert.Equal(t, 0.0, out.At(1, 1))
}

func TestCompositeTransparent(t *testing.T) {
	src := squareImage()
	mask := maskWith(100, 100, image.Rect(30, 30, 70, 70))

	out := NewMaskProcessor(DefaultOptions()).Composite(src, mask)
	require.Equal(t, src.Bounds(), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(50, 50))
	assert.Equal(t, uint8(0), out.NRGBAAt(5, 5).A)
}

func TestCompositeMatte(t *testing.T) {
	opts := DefaultOptions()
	opts.Matte = color.NRGBA{G: 255, A: 255}
	src := squareImage()
	mask := maskWith(100, 100, image.Rect(30, 30, 70, 70))
	mask.Set(20, 20, 0.5)

	out := NewMaskProcessor(opts).Composite(src, mask)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(50, 50))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, out.NRGBAAt(5, 5))
	assert.Equal(t, color.NRGBA{R: 128, G: 255, B: 128, A: 255}, out.NRGBAAt(20, 20))
}
