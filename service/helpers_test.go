package service

import (
	"image"
	"image/color"
	"math/rand"
)

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.NRGBA{R: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// squareImage 100x100 白底，中心 40x40 红色方块
func squareImage() *image.NRGBA {
	img := solidImage(100, 100, white)
	fillRect(img, image.Rect(30, 30, 70, 70), red)
	return img
}

// ringImage 60x60 白底红色方环，中间的白色孔洞不接触边缘
func ringImage() *image.NRGBA {
	img := solidImage(60, 60, white)
	fillRect(img, image.Rect(10, 10, 50, 50), red)
	fillRect(img, image.Rect(20, 20, 40, 40), white)
	return img
}

func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}
