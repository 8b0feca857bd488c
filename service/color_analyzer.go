package service

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/model"
	"gonum.org/v1/gonum/stat"
)

const (
	hueBins   = 18 // 每格20度，第19格为无彩色
	satBins   = 8
	valBins   = 8
	histoSize = (hueBins + 1) * satBins * valBins
)

// ColorSpaceAnalyzer 通过边缘与四角采样估计背景颜色分布
type ColorSpaceAnalyzer struct {
	opts Options
}

func NewColorSpaceAnalyzer(opts Options) *ColorSpaceAnalyzer {
	return &ColorSpaceAnalyzer{opts: opts}
}

// Analyze 分析图像背景，seed 中的背景像素会一并采样
func (a *ColorSpaceAnalyzer) Analyze(img image.Image, seed *model.SeedMask) (model.BackgroundProfile, error) {
	b := img.Bounds()
	if err := a.checkSize(b.Dx(), b.Dy()); err != nil {
		return model.BackgroundProfile{}, err
	}
	return a.analyze(newRaster(img), seed)
}

func (a *ColorSpaceAnalyzer) checkSize(w, h int) error {
	if min(w, h) < a.opts.MinImageDim {
		return apperror.NewInvalidImage(
			fmt.Sprintf("image %dx%d is below the minimum dimension of %d px", w, h, a.opts.MinImageDim), nil)
	}
	return nil
}

func (a *ColorSpaceAnalyzer) analyze(r *raster, seed *model.SeedMask) (model.BackgroundProfile, error) {
	if err := a.checkSize(r.w, r.h); err != nil {
		return model.BackgroundProfile{}, err
	}

	samples := a.sample(r, seed)
	if len(samples) == 0 {
		return model.BackgroundProfile{}, apperror.NewInvalidImage("no background samples", nil)
	}

	center := dominantMode(samples)
	tolerance, inside := bandTolerance(samples, center, a.opts.BandCoverage, a.opts.MinTolerance)

	profile := model.NewBackgroundProfile(center, tolerance)
	profile.Samples = len(samples)
	profile.Confidence = inside * widthPenalty(tolerance)
	return profile, nil
}

// sample 收集边缘带、四角及种子背景的加权样本
func (a *ColorSpaceAnalyzer) sample(r *raster, seed *model.SeedMask) []model.ColorSample {
	shorter := min(r.w, r.h)
	margin := max(1, int(math.Round(a.opts.BorderMarginFraction*float64(shorter))))
	patch := max(margin, shorter/8)

	inner := max(0, r.w-2*margin) * max(0, r.h-2*margin)
	bandCount := r.w*r.h - inner
	stride := max(1, (bandCount+a.opts.MaxSamples-1)/max(1, a.opts.MaxSamples))

	samples := make([]model.ColorSample, 0, bandCount/stride+1)
	k := 0
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			if x >= margin && x < r.w-margin && y >= margin && y < r.h-margin {
				continue
			}
			if k%stride == 0 {
				weight := 1.0
				if (x < patch || x >= r.w-patch) && (y < patch || y >= r.h-patch) {
					weight = a.opts.CornerWeight
				}
				samples = append(samples, model.ColorSample{HSV: r.hsv[r.index(x, y)], Weight: weight})
			}
			k++
		}
	}

	if seed == nil {
		return samples
	}
	seed = seed.Scale(r.w, r.h)
	seeded := seed.Count(model.DefiniteBG)
	if seeded == 0 {
		return samples
	}
	stride = max(1, (seeded+a.opts.MaxSamples-1)/max(1, a.opts.MaxSamples))
	k = 0
	for i, l := range seed.Labels {
		if l != model.DefiniteBG {
			continue
		}
		if k%stride == 0 {
			samples = append(samples, model.ColorSample{HSV: r.hsv[i], Weight: 1})
		}
		k++
	}
	return samples
}

func histogramBin(c model.HSV) int {
	hb := int(c.H/20) % hueBins
	if c.S < model.AchromaticSat {
		hb = hueBins
	}
	sb := min(satBins-1, int(c.S*satBins))
	vb := min(valBins-1, int(c.V*valBins))
	return (hb*satBins+sb)*valBins + vb
}

// dominantMode 直方图峰值格内样本的加权中心
func dominantMode(samples []model.ColorSample) model.HSV {
	var histo [histoSize]float64
	for _, s := range samples {
		histo[histogramBin(s.HSV)] += s.Weight
	}
	peak := 0
	for i := 1; i < histoSize; i++ {
		if histo[i] > histo[peak] {
			peak = i
		}
	}

	var (
		sumW, sumS, sumV float64
		angles, weights  []float64
	)
	for _, s := range samples {
		if histogramBin(s.HSV) != peak {
			continue
		}
		sumW += s.Weight
		sumS += s.Weight * s.S
		sumV += s.Weight * s.V
		angles = append(angles, s.H*math.Pi/180)
		weights = append(weights, s.Weight)
	}

	center := model.HSV{S: sumS / sumW, V: sumV / sumW}
	if peak/(satBins*valBins) != hueBins {
		h := stat.CircularMean(angles, weights) * 180 / math.Pi
		center.H = math.Mod(h+360, 360)
	}
	return center
}

// bandTolerance 覆盖 coverage 比例样本权重的最小半径，以及半径内的样本比例
func bandTolerance(samples []model.ColorSample, center model.HSV, coverage, floor float64) (float64, float64) {
	type distSample struct {
		d, w float64
	}
	ds := make([]distSample, len(samples))
	total := 0.0
	for i, s := range samples {
		ds[i] = distSample{d: model.HSVDistance(center, s.HSV), w: s.Weight}
		total += s.Weight
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].d < ds[j].d })

	x := make([]float64, len(ds))
	w := make([]float64, len(ds))
	for i, s := range ds {
		x[i], w[i] = s.d, s.w
	}
	tolerance := math.Max(floor, stat.Quantile(coverage, stat.Empirical, x, w))

	inside := 0.0
	for _, s := range ds {
		if s.d > tolerance {
			break
		}
		inside += s.w
	}
	return tolerance, inside / total
}

// widthPenalty 背景带过宽说明边缘颜色杂乱
func widthPenalty(tolerance float64) float64 {
	const relaxed, hard = 0.20, 0.50
	switch {
	case tolerance <= relaxed:
		return 1
	case tolerance >= hard:
		return 0
	default:
		return (hard - tolerance) / (hard - relaxed)
	}
}
