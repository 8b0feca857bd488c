package model

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimapCountAndFraction(t *testing.T) {
	tm := NewTrimap(4, 5)
	assert.Equal(t, 20, tm.Count(Unknown))

	tm.Set(1, 2, DefiniteFG)
	tm.Set(3, 4, DefiniteBG)
	assert.Equal(t, DefiniteFG, tm.At(1, 2))
	assert.Equal(t, 1, tm.Count(DefiniteFG))
	assert.InDelta(t, 0.05, tm.Fraction(DefiniteBG), 1e-12)
	assert.Equal(t, "definite_fg", DefiniteFG.String())
	assert.Equal(t, "unknown", Unknown.String())
}

func TestMustMatchPanics(t *testing.T) {
	tm := NewTrimap(4, 4)
	assert.NotPanics(t, func() { tm.MustMatch(4, 4) })
	assert.Panics(t, func() { tm.MustMatch(4, 5) })
	assert.Panics(t, func() { NewAlphaMask(0, 3) })
	assert.Panics(t, func() { NewAlphaMask(2, 2).MustMatch(3, 2) })
}

func TestNewRectSeed(t *testing.T) {
	s := NewRectSeed(20, 20, image.Rect(4, 4, 16, 16))
	at := func(x, y int) Label { return s.Labels[y*s.Width+x] }

	assert.Equal(t, DefiniteBG, at(0, 0))
	assert.Equal(t, DefiniteBG, at(16, 10))
	assert.Equal(t, Unknown, at(5, 5))
	assert.Equal(t, DefiniteFG, at(10, 10))
	// 核心区域为四周各内缩 3 像素
	assert.Equal(t, 6*6, s.Count(DefiniteFG))
	assert.Equal(t, 400-144, s.Count(DefiniteBG))
}

func TestNewSeedFromGray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix = []uint8{0, 128, 255}
	s := NewSeedFromGray(g)

	assert.Equal(t, []Label{DefiniteBG, Unknown, DefiniteFG}, s.Labels)
}

func TestSeedScale(t *testing.T) {
	s := &SeedMask{Width: 2, Height: 1, Labels: []Label{DefiniteBG, DefiniteFG}}
	assert.Same(t, s, s.Scale(2, 1))

	up := s.Scale(4, 2)
	assert.Equal(t, []Label{
		DefiniteBG, DefiniteBG, DefiniteFG, DefiniteFG,
		DefiniteBG, DefiniteBG, DefiniteFG, DefiniteFG,
	}, up.Labels)
}

func TestAlphaMaskHelpers(t *testing.T) {
	m := NewAlphaMask(4, 3)
	m.Set(1, 1, 1)
	m.Set(2, 1, 0.5)
	m.Set(3, 2, 0.49)

	assert.Equal(t, 2, m.ForegroundCount())
	assert.InDelta(t, 2.0/12, m.ForegroundFraction(), 1e-12)
	assert.Equal(t, image.Rect(1, 1, 3, 2), m.BoundingBox())
	assert.True(t, NewAlphaMask(2, 2).BoundingBox().Empty())

	g := m.Gray()
	assert.Equal(t, uint8(255), g.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(128), g.GrayAt(2, 1).Y)

	inv := m.Inverted()
	assert.InDelta(t, 0, inv.At(1, 1), 1e-12)
	assert.InDelta(t, 1, inv.At(0, 0), 1e-12)
	assert.InDelta(t, 1, m.At(1, 1), 1e-12)
}

func TestHSVDistance(t *testing.T) {
	red := HSV{H: 0, S: 1, V: 1}
	assert.InDelta(t, 0, HSVDistance(red, red), 1e-12)

	// 色相环绕：350° 与 10° 相差 20°
	a := HSV{H: 350, S: 1, V: 1}
	b := HSV{H: 10, S: 1, V: 1}
	assert.InDelta(t, 20.0/180, HSVDistance(a, b), 1e-12)

	// 无彩色时色相差不起作用
	grey1 := HSV{H: 0, S: 0, V: 0.5}
	grey2 := HSV{H: 180, S: 0, V: 0.6}
	assert.InDelta(t, 0.1, HSVDistance(grey1, grey2), 1e-12)
}

func TestNewBackgroundProfile(t *testing.T) {
	white := NewBackgroundProfile(HSV{V: 1}, 0.1)
	assert.True(t, white.HueAny)
	assert.InDelta(t, 0.9, white.ValMin, 1e-12)
	assert.InDelta(t, 1, white.ValMax, 1e-12)
	assert.True(t, white.Matches(HSV{H: 200, S: 0.05, V: 0.95}))
	assert.False(t, white.Matches(HSV{H: 0, S: 1, V: 1}))

	red := NewBackgroundProfile(HSV{H: 5, S: 1, V: 1}, 0.1)
	require.False(t, red.HueAny)
	assert.InDelta(t, 347, red.HueMin, 1e-9)
	assert.InDelta(t, 23, red.HueMax, 1e-9)
}

func TestWarningMessages(t *testing.T) {
	var r SegmentationResult
	assert.Nil(t, r.WarningMessages())
	r.Warnings = append(r.Warnings, assertErr("did not converge"))
	assert.Equal(t, []string{"did not converge"}, r.WarningMessages())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
