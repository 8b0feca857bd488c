package model

import (
	"fmt"
	"image"
	"math"
)

// AlphaMask 前景透明度，1.0 为完全前景
type AlphaMask struct {
	Width  int
	Height int
	Alpha  []float64
}

func NewAlphaMask(width, height int) *AlphaMask {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("model: invalid mask size %dx%d", width, height))
	}
	return &AlphaMask{
		Width:  width,
		Height: height,
		Alpha:  make([]float64, width*height),
	}
}

func (m *AlphaMask) At(x, y int) float64 {
	return m.Alpha[y*m.Width+x]
}

func (m *AlphaMask) Set(x, y int, a float64) {
	m.Alpha[y*m.Width+x] = a
}

func (m *AlphaMask) Clone() *AlphaMask {
	c := &AlphaMask{Width: m.Width, Height: m.Height, Alpha: make([]float64, len(m.Alpha))}
	copy(c.Alpha, m.Alpha)
	return c
}

// MustMatch 尺寸不一致属于编程错误
func (m *AlphaMask) MustMatch(width, height int) {
	if m.Width != width || m.Height != height {
		panic(fmt.Sprintf("model: mask is %dx%d, expected %dx%d", m.Width, m.Height, width, height))
	}
}

// ForegroundCount 统计 alpha >= 0.5 的像素数
func (m *AlphaMask) ForegroundCount() int {
	n := 0
	for _, a := range m.Alpha {
		if a >= 0.5 {
			n++
		}
	}
	return n
}

// ForegroundFraction 前景像素比例
func (m *AlphaMask) ForegroundFraction() float64 {
	return float64(m.ForegroundCount()) / float64(len(m.Alpha))
}

// BoundingBox 前景的最小外接矩形，无前景时返回空矩形
func (m *AlphaMask) BoundingBox() image.Rectangle {
	var r image.Rectangle
	found := false
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Alpha[y*m.Width+x] < 0.5 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if !found {
				r = px
				found = true
			} else {
				r = r.Union(px)
			}
		}
	}
	return r
}

// Gray 转换为8位灰度图
func (m *AlphaMask) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, a := range m.Alpha {
		g.Pix[i] = uint8(math.Round(clamp01(a) * 255))
	}
	return g
}

// Inverted 背景掩码
func (m *AlphaMask) Inverted() *AlphaMask {
	inv := m.Clone()
	for i, a := range inv.Alpha {
		inv.Alpha[i] = 1 - a
	}
	return inv
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
