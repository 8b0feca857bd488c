package model

import (
	"fmt"
	"image"
)

// Label 像素的三分类标签
type Label uint8

const (
	Unknown Label = iota
	DefiniteBG
	DefiniteFG
)

func (l Label) String() string {
	switch l {
	case DefiniteBG:
		return "definite_bg"
	case DefiniteFG:
		return "definite_fg"
	default:
		return "unknown"
	}
}

// Trimap 三分图，每个像素恰好一个标签
type Trimap struct {
	Width  int
	Height int
	Labels []Label
}

// NewTrimap 创建一个全部为Unknown的三分图
func NewTrimap(width, height int) *Trimap {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("model: invalid trimap size %dx%d", width, height))
	}
	return &Trimap{
		Width:  width,
		Height: height,
		Labels: make([]Label, width*height),
	}
}

func (t *Trimap) At(x, y int) Label {
	return t.Labels[y*t.Width+x]
}

func (t *Trimap) Set(x, y int, l Label) {
	t.Labels[y*t.Width+x] = l
}

// Count 统计某个标签的像素数
func (t *Trimap) Count(l Label) int {
	n := 0
	for _, v := range t.Labels {
		if v == l {
			n++
		}
	}
	return n
}

// Fraction 某个标签占全部像素的比例
func (t *Trimap) Fraction(l Label) float64 {
	return float64(t.Count(l)) / float64(len(t.Labels))
}

// MustMatch 尺寸不一致属于编程错误
func (t *Trimap) MustMatch(width, height int) {
	if t.Width != width || t.Height != height {
		panic(fmt.Sprintf("model: trimap is %dx%d, expected %dx%d", t.Width, t.Height, width, height))
	}
}

// SeedMask 用户提供的手动种子；Unknown 表示该像素无约束
type SeedMask struct {
	Width  int
	Height int
	Labels []Label
}

// NewRectSeed 由矩形框生成种子：框外为背景，框中心区域为前景，其余无约束
func NewRectSeed(width, height int, rect image.Rectangle) *SeedMask {
	s := &SeedMask{Width: width, Height: height, Labels: make([]Label, width*height)}
	rect = rect.Intersect(image.Rect(0, 0, width, height))
	core := rect.Inset(min(rect.Dx(), rect.Dy()) / 4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := image.Pt(x, y)
			switch {
			case !p.In(rect):
				s.Labels[y*width+x] = DefiniteBG
			case p.In(core):
				s.Labels[y*width+x] = DefiniteFG
			}
		}
	}
	return s
}

// NewSeedFromGray 由灰度图生成种子：亮为前景，暗为背景，中间灰无约束
func NewSeedFromGray(g *image.Gray) *SeedMask {
	b := g.Bounds()
	s := &SeedMask{Width: b.Dx(), Height: b.Dy(), Labels: make([]Label, b.Dx()*b.Dy())}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := g.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			switch {
			case v >= 192:
				s.Labels[y*s.Width+x] = DefiniteFG
			case v <= 63:
				s.Labels[y*s.Width+x] = DefiniteBG
			}
		}
	}
	return s
}

// Count 统计某个标签的种子像素数
func (s *SeedMask) Count(l Label) int {
	n := 0
	for _, v := range s.Labels {
		if v == l {
			n++
		}
	}
	return n
}

// Scale 最近邻缩放种子到新尺寸
func (s *SeedMask) Scale(width, height int) *SeedMask {
	if width == s.Width && height == s.Height {
		return s
	}
	out := &SeedMask{Width: width, Height: height, Labels: make([]Label, width*height)}
	for y := 0; y < height; y++ {
		sy := min(s.Height-1, y*s.Height/height)
		for x := 0; x < width; x++ {
			sx := min(s.Width-1, x*s.Width/width)
			out.Labels[y*width+x] = s.Labels[sy*s.Width+sx]
		}
	}
	return out
}
