package service

import (
	"image"
	"image/color"
	"math"

	"github.com/TIANLI0/MatteKit/model"
	"github.com/disintegration/imaging"
)

// MaskProcessor 负责掩码的形态学清理、还原尺寸、羽化与合成
type MaskProcessor struct {
	opts Options
}

func NewMaskProcessor(opts Options) *MaskProcessor {
	return &MaskProcessor{opts: opts}
}

// Process 清理掩码并还原到 width x height；FeatherRadius 为0时结果严格二值
func (mp *MaskProcessor) Process(mask *model.AlphaMask, width, height int) *model.AlphaMask {
	w, h := mask.Width, mask.Height
	fg := binarize(mask)

	RemoveSpeckles(fg, w, h, mp.opts.MinComponentSize)
	FillHoles(fg, w, h)
	if mp.opts.KeepLargestOnly {
		KeepLargest(fg, w, h)
	}

	if w != width || h != height {
		fg = upsample(fg, w, h, width, height)
		w, h = width, height
	}

	out := hardMask(w, h, fg)
	if mp.opts.FeatherRadius > 0 {
		out = feather(out, mp.opts.FeatherRadius)
	}
	out.MustMatch(width, height)
	return out
}

func binarize(m *model.AlphaMask) []bool {
	fg := make([]bool, len(m.Alpha))
	for i, a := range m.Alpha {
		fg[i] = a >= 0.5
	}
	return fg
}

// components 取值为 value 的像素的连通区域，eight 选择八邻域
func components(fg []bool, w, h int, value, eight bool) [][]int {
	seen := make([]bool, len(fg))
	var regions [][]int
	queue := make([]int, 0, 64)
	for start := range fg {
		if seen[start] || fg[start] != value {
			continue
		}
		seen[start] = true
		queue = append(queue[:0], start)
		for head := 0; head < len(queue); head++ {
			i := queue[head]
			x, y := i%w, i/w
			visit := func(nx, ny int) {
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					return
				}
				j := ny*w + nx
				if !seen[j] && fg[j] == value {
					seen[j] = true
					queue = append(queue, j)
				}
			}
			if eight {
				for _, d := range neighbours8 {
					visit(x+d.dx, y+d.dy)
				}
			} else {
				for _, d := range neighbours4 {
					visit(x+d[0], y+d[1])
				}
			}
		}
		region := make([]int, len(queue))
		copy(region, queue)
		regions = append(regions, region)
	}
	return regions
}

// RemoveSpeckles 小于 minSize 的八连通前景区域改为背景
func RemoveSpeckles(fg []bool, w, h, minSize int) {
	if minSize <= 1 {
		return
	}
	for _, region := range components(fg, w, h, true, true) {
		if len(region) >= minSize {
			continue
		}
		for _, i := range region {
			fg[i] = false
		}
	}
}

// FillHoles 不与图像边缘相连的四连通背景区域改为前景
func FillHoles(fg []bool, w, h int) {
	for _, region := range components(fg, w, h, false, false) {
		enclosed := true
		for _, i := range region {
			x, y := i%w, i/w
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				enclosed = false
				break
			}
		}
		if !enclosed {
			continue
		}
		for _, i := range region {
			fg[i] = true
		}
	}
}

// KeepLargest 只保留面积最大的前景区域
func KeepLargest(fg []bool, w, h int) {
	regions := components(fg, w, h, true, true)
	if len(regions) <= 1 {
		return
	}
	largest := 0
	for i, r := range regions {
		if len(r) > len(regions[largest]) {
			largest = i
		}
	}
	for i, r := range regions {
		if i == largest {
			continue
		}
		for _, p := range r {
			fg[p] = false
		}
	}
}

// upsample 线性插值放大后重新二值化
func upsample(fg []bool, w, h, width, height int) []bool {
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range fg {
		if v {
			gray.Pix[i] = 255
		}
	}
	resized := imaging.Resize(gray, width, height, imaging.Linear)

	out := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out[y*width+x] = resized.Pix[y*resized.Stride+x*4] >= 128
		}
	}
	return out
}

// feather 高斯模糊边缘，sigma 取羽化半径
func feather(m *model.AlphaMask, radius int) *model.AlphaMask {
	blurred := imaging.Blur(m.Gray(), float64(radius))
	out := model.NewAlphaMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			out.Alpha[y*m.Width+x] = float64(blurred.Pix[y*blurred.Stride+x*4]) / 255
		}
	}
	return out
}

// Composite 合成输出图：matte 为 nil 时掩码写入透明通道，否则与填充色混合为不透明图
func (mp *MaskProcessor) Composite(src image.Image, mask *model.AlphaMask) *image.NRGBA {
	b := src.Bounds()
	mask.MustMatch(b.Dx(), b.Dy())

	var fill color.NRGBA
	if mp.opts.Matte != nil {
		fill = color.NRGBAModel.Convert(mp.opts.Matte).(color.NRGBA)
	}

	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			a := mask.At(x, y)
			o := out.PixOffset(x, y)
			if mp.opts.Matte == nil {
				out.Pix[o+0] = c.R
				out.Pix[o+1] = c.G
				out.Pix[o+2] = c.B
				out.Pix[o+3] = uint8(math.Round(a * float64(c.A)))
				continue
			}
			out.Pix[o+0] = blend(c.R, fill.R, a)
			out.Pix[o+1] = blend(c.G, fill.G, a)
			out.Pix[o+2] = blend(c.B, fill.B, a)
			out.Pix[o+3] = 255
		}
	}
	return out
}

func blend(fg, bg uint8, a float64) uint8 {
	return uint8(math.Round(a*float64(fg) + (1-a)*float64(bg)))
}
