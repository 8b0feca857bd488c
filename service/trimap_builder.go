package service

import (
	"image"

	"github.com/TIANLI0/MatteKit/model"
)

// TrimapBuilder 根据背景分布与边缘连通性生成三分图
type TrimapBuilder struct {
	opts Options
}

func NewTrimapBuilder(opts Options) *TrimapBuilder {
	return &TrimapBuilder{opts: opts}
}

// Build 生成三分图，seed 中有约束的像素优先
func (tb *TrimapBuilder) Build(img image.Image, profile model.BackgroundProfile, seed *model.SeedMask) *model.Trimap {
	trimap, _ := tb.build(newRaster(img), profile, seed)
	return trimap
}

// build 同时返回加宽过渡带之前的确定前景比例，小主体的边缘不会被算作缺失
func (tb *TrimapBuilder) build(r *raster, profile model.BackgroundProfile, seed *model.SeedMask) (*model.Trimap, float64) {
	n := r.w * r.h
	dist := make([]float64, n)
	match := make([]bool, n)
	for i, c := range r.hsv {
		dist[i] = profile.Distance(c)
		match[i] = dist[i] <= profile.Tolerance
	}

	background := borderConnected(r, match)

	trimap := model.NewTrimap(r.w, r.h)
	far := profile.Tolerance + tb.opts.FarMargin
	for i := range trimap.Labels {
		switch {
		case background[i]:
			trimap.Labels[i] = model.DefiniteBG
		case dist[i] > far:
			trimap.Labels[i] = model.DefiniteFG
		default:
			trimap.Labels[i] = model.Unknown
		}
	}

	fgFraction := trimap.Fraction(model.DefiniteFG)
	widenBoundary(trimap, tb.opts.unknownMargin(r.w, r.h))

	if seed != nil {
		seed = seed.Scale(r.w, r.h)
		for i, l := range seed.Labels {
			if l != model.Unknown {
				trimap.Labels[i] = l
			}
		}
	}

	trimap.MustMatch(r.w, r.h)
	return trimap, fgFraction
}

// borderConnected 从图像边缘出发，经匹配像素四连通可达的区域
func borderConnected(r *raster, match []bool) []bool {
	seen := make([]bool, len(match))
	queue := make([]int, 0, 2*(r.w+r.h))
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			i := r.index(x, y)
			if r.onBorder(x, y) && match[i] && !seen[i] {
				seen[i] = true
				queue = append(queue, i)
			}
		}
	}
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		x, y := i%r.w, i/r.w
		for _, d := range neighbours4 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= r.w || ny >= r.h {
				continue
			}
			j := r.index(nx, ny)
			if match[j] && !seen[j] {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}
	return seen
}

// widenBoundary 确定前景与确定背景相距 margin 以内的像素改为 Unknown
func widenBoundary(t *model.Trimap, margin int) {
	if margin <= 0 {
		return
	}
	fg := newIntegral(t, model.DefiniteFG)
	bg := newIntegral(t, model.DefiniteBG)

	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			i := y*t.Width + x
			x0, y0 := max(0, x-margin), max(0, y-margin)
			x1, y1 := min(t.Width, x+margin+1), min(t.Height, y+margin+1)
			switch t.Labels[i] {
			case model.DefiniteFG:
				if bg.sum(x0, y0, x1, y1) > 0 {
					t.Labels[i] = model.Unknown
				}
			case model.DefiniteBG:
				if fg.sum(x0, y0, x1, y1) > 0 {
					t.Labels[i] = model.Unknown
				}
			}
		}
	}
}

// integral 标签计数的积分图
type integral struct {
	stride int
	acc    []int
}

func newIntegral(t *model.Trimap, l model.Label) integral {
	stride := t.Width + 1
	acc := make([]int, stride*(t.Height+1))
	for y := 0; y < t.Height; y++ {
		row := 0
		for x := 0; x < t.Width; x++ {
			if t.Labels[y*t.Width+x] == l {
				row++
			}
			acc[(y+1)*stride+x+1] = acc[y*stride+x+1] + row
		}
	}
	return integral{stride: stride, acc: acc}
}

// sum 半开区间 [x0,x1)x[y0,y1) 内的计数
func (ig integral) sum(x0, y0, x1, y1 int) int {
	s := ig.stride
	return ig.acc[y1*s+x1] - ig.acc[y0*s+x1] - ig.acc[y1*s+x0] + ig.acc[y0*s+x0]
}
