package service

import (
	"image"
	"image/color"

	"github.com/TIANLI0/MatteKit/model"
	"github.com/lucasb-eyer/go-colorful"
	xdraw "golang.org/x/image/draw"
)

// raster 一次处理内共享的像素缓冲，RGB 归一化到 [0,1]
type raster struct {
	w, h int
	rgb  [][3]float64
	hsv  []model.HSV
}

func newRaster(img image.Image) *raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	r := &raster{
		w:   w,
		h:   h,
		rgb: make([][3]float64, w*h),
		hsv: make([]model.HSV, w*h),
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			cf := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
			i := y*w + x
			r.rgb[i] = [3]float64{cf.R, cf.G, cf.B}
			hh, ss, vv := cf.Hsv()
			r.hsv[i] = model.HSV{H: hh, S: ss, V: vv}
		}
	}
	return r
}

func (r *raster) index(x, y int) int {
	return y*r.w + x
}

func (r *raster) onBorder(x, y int) bool {
	return x == 0 || y == 0 || x == r.w-1 || y == r.h-1
}

// downsample 将最长边缩放到 ceiling 以内，返回缩放后的图像与比例；
// 短边不会被缩到 minDim 以下，此时最长边可能超过 ceiling
func downsample(img image.Image, ceiling, minDim int) (image.Image, float64) {
	b := img.Bounds()
	maxDim := max(b.Dx(), b.Dy())
	if ceiling <= 0 || maxDim <= ceiling {
		return img, 1.0
	}

	scale := float64(ceiling) / float64(maxDim)
	if shorter := min(b.Dx(), b.Dy()); float64(shorter)*scale < float64(minDim) {
		scale = float64(minDim) / float64(shorter)
	}
	if scale >= 1 {
		return img, 1.0
	}
	newW := max(min(minDim, b.Dx()), int(float64(b.Dx())*scale))
	newH := max(min(minDim, b.Dy()), int(float64(b.Dy())*scale))

	dst := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, scale
}

// neighbours8 八邻域偏移及距离
var neighbours8 = [8]struct {
	dx, dy int
	dist   float64
}{
	{-1, -1, 1.4142135623730951}, {0, -1, 1}, {1, -1, 1.4142135623730951},
	{-1, 0, 1}, {1, 0, 1},
	{-1, 1, 1.4142135623730951}, {0, 1, 1}, {1, 1, 1.4142135623730951},
}

var neighbours4 = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
