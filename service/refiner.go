package service

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// EngineNative 纯Go实现的迭代优化引擎
const EngineNative = "native"

// Refiner 将三分图的未知带解析为连续透明度
type Refiner interface {
	Refine(ctx context.Context, img image.Image, trimap *model.Trimap) (*Refinement, error)
}

// refinerFactories 可用引擎，opencv 构建标签下会注册 grabcut
var refinerFactories = map[string]func(Options) Refiner{
	EngineNative: func(o Options) Refiner { return NewSegmentationRefiner(o) },
}

// Engines 当前构建可用的引擎名称
func Engines() []string {
	names := make([]string, 0, len(refinerFactories))
	for name := range refinerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newRefiner(opts Options) Refiner {
	return refinerFactories[opts.Engine](opts)
}

// RefineState 迭代状态机
type RefineState int

const (
	StateIterating RefineState = iota
	StateConverged
	StateMaxIterationsReached
)

func (s RefineState) String() string {
	switch s {
	case StateConverged:
		return "converged"
	case StateMaxIterationsReached:
		return "max_iterations_reached"
	default:
		return "iterating"
	}
}

// Refinement 优化结果
type Refinement struct {
	Mask       *model.AlphaMask
	Iterations int
	State      RefineState
}

func (r *Refinement) Converged() bool {
	return r.State == StateConverged
}

const (
	minSigma       = 0.02
	maxFitSamples  = 50000
	emRounds       = 2
	wideMean       = 0.5
	wideSigma      = 0.5
	lumaR, lumaG   = 0.299, 0.587
	lumaB          = 0.114
	forwardNeighbs = 4
)

// SegmentationRefiner 颜色似然加边缘感知平滑项的迭代条件众数优化
type SegmentationRefiner struct {
	opts Options
}

func NewSegmentationRefiner(opts Options) *SegmentationRefiner {
	return &SegmentationRefiner{opts: opts}
}

// Refine 只重新分配 Unknown 像素；确定标签保持不变。迭代次数不超过 MaxIterations
func (sr *SegmentationRefiner) Refine(ctx context.Context, img image.Image, trimap *model.Trimap) (*Refinement, error) {
	return sr.refine(ctx, newRaster(img), trimap)
}

func (sr *SegmentationRefiner) refine(ctx context.Context, r *raster, trimap *model.Trimap) (*Refinement, error) {
	trimap.MustMatch(r.w, r.h)

	fg := make([]bool, len(trimap.Labels))
	unknown := make([]int, 0)
	for i, l := range trimap.Labels {
		switch l {
		case model.DefiniteFG:
			fg[i] = true
		case model.Unknown:
			unknown = append(unknown, i)
		}
	}

	out := &Refinement{State: StateIterating}
	if len(unknown) == 0 {
		out.State = StateConverged
		out.Mask = hardMask(r.w, r.h, fg)
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperror.NewCancelled(err)
	}

	e := newEnergy(r, sr.opts, unknown)
	e.fit(fg, func(i int) bool { return trimap.Labels[i] != model.Unknown })
	e.updateUnary()
	for k, i := range unknown {
		fg[i] = e.ufg[k] <= e.ubg[k]
	}

	everyPixel := func(int) bool { return true }
	for out.State == StateIterating {
		if err := ctx.Err(); err != nil {
			return nil, apperror.NewCancelled(err)
		}

		changed := 0
		for k, i := range unknown {
			efg, ebg := e.pixel(k, i, fg)
			next := efg <= ebg
			if next != fg[i] {
				fg[i] = next
				changed++
			}
		}
		out.Iterations++

		fraction := float64(changed) / float64(len(unknown))
		switch {
		case changed == 0 || fraction < sr.opts.ConvergenceThreshold:
			out.State = StateConverged
		case out.Iterations >= sr.opts.MaxIterations:
			out.State = StateMaxIterationsReached
		default:
			e.fit(fg, everyPixel)
			e.updateUnary()
		}
	}

	out.Mask = e.alpha(fg, sr.opts.Softness)
	utils.Logger.Debug("refiner finished",
		zap.Int("unknown_pixels", len(unknown)),
		zap.Int("iterations", out.Iterations),
		zap.Stringer("state", out.State))
	return out, nil
}

func hardMask(w, h int, fg []bool) *model.AlphaMask {
	m := model.NewAlphaMask(w, h)
	for i, v := range fg {
		if v {
			m.Alpha[i] = 1
		}
	}
	return m
}

// energy 单次优化的能量项：一元代价只为未知像素保存
type energy struct {
	r          *raster
	unknown    []int
	components int
	lambda     float64
	gamma      float64
	beta       float64

	fgModel, bgModel *mixture
	ufg, ubg         []float64
}

func newEnergy(r *raster, opts Options, unknown []int) *energy {
	return &energy{
		r:          r,
		unknown:    unknown,
		components: opts.Components,
		lambda:     opts.LikelihoodWeight,
		gamma:      opts.SmoothnessWeight,
		beta:       contrastBeta(r),
		ufg:        make([]float64, len(unknown)),
		ubg:        make([]float64, len(unknown)),
	}
}

// contrastBeta 1/(2*平均邻域色差平方)，图像完全均匀时为0
func contrastBeta(r *raster) float64 {
	var sum float64
	var pairs int
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			i := r.index(x, y)
			for _, d := range neighbours8[len(neighbours8)-forwardNeighbs:] {
				nx, ny := x+d.dx, y+d.dy
				if nx < 0 || nx >= r.w || ny >= r.h {
					continue
				}
				sum += sqDist(r.rgb[i], r.rgb[r.index(nx, ny)])
				pairs++
			}
		}
	}
	if pairs == 0 || sum == 0 {
		return 0
	}
	return 1 / (2 * sum / float64(pairs))
}

func sqDist(a, b [3]float64) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}

// fit 用 include 选中的像素按当前标签重新拟合两个颜色模型
func (e *energy) fit(fg []bool, include func(i int) bool) {
	var fgSamples, bgSamples [][3]float64
	for i, c := range e.r.rgb {
		if !include(i) {
			continue
		}
		if fg[i] {
			fgSamples = append(fgSamples, c)
		} else {
			bgSamples = append(bgSamples, c)
		}
	}
	e.fgModel = fitMixture(fgSamples, e.components)
	e.bgModel = fitMixture(bgSamples, e.components)
}

func (e *energy) updateUnary() {
	for k, i := range e.unknown {
		c := e.r.rgb[i]
		e.ufg[k] = e.lambda * e.fgModel.cost(c)
		e.ubg[k] = e.lambda * e.bgModel.cost(c)
	}
}

// pixel 像素取前景/背景时的总能量
func (e *energy) pixel(k, i int, fg []bool) (efg, ebg float64) {
	efg, ebg = e.ufg[k], e.ubg[k]
	if e.gamma == 0 {
		return efg, ebg
	}
	x, y := i%e.r.w, i/e.r.w
	for _, d := range neighbours8 {
		nx, ny := x+d.dx, y+d.dy
		if nx < 0 || ny < 0 || nx >= e.r.w || ny >= e.r.h {
			continue
		}
		j := e.r.index(nx, ny)
		w := e.gamma * math.Exp(-e.beta*sqDist(e.r.rgb[i], e.r.rgb[j])) / d.dist
		if fg[j] {
			ebg += w
		} else {
			efg += w
		}
	}
	return efg, ebg
}

// alpha 未知像素按能量差做 logistic 软分配
func (e *energy) alpha(fg []bool, softness float64) *model.AlphaMask {
	m := hardMask(e.r.w, e.r.h, fg)
	for k, i := range e.unknown {
		efg, ebg := e.pixel(k, i, fg)
		a := 1 / (1 + math.Exp(-(ebg-efg)/softness))
		if math.IsNaN(a) {
			if fg[i] {
				a = 1
			} else {
				a = 0
			}
		}
		m.Alpha[i] = math.Min(1, math.Max(0, a))
	}
	return m
}

// gaussian 三通道独立的高斯分量
type gaussian struct {
	logWeight float64
	dims      [3]distuv.Normal
}

func (g gaussian) logProb(c [3]float64) float64 {
	lp := g.logWeight
	for d := range g.dims {
		lp += g.dims[d].LogProb(c[d])
	}
	return lp
}

// mixture 对角协方差高斯混合模型
type mixture struct {
	comps   []gaussian
	scratch []float64
}

// cost 负对数似然
func (m *mixture) cost(c [3]float64) float64 {
	for i, g := range m.comps {
		m.scratch[i] = g.logProb(c)
	}
	return -floats.LogSumExp(m.scratch)
}

func newMixture(comps []gaussian) *mixture {
	return &mixture{comps: comps, scratch: make([]float64, len(comps))}
}

// wideMixture 没有样本时使用的宽分布
func wideMixture() *mixture {
	g := gaussian{}
	for d := range g.dims {
		g.dims[d] = distuv.Normal{Mu: wideMean, Sigma: wideSigma}
	}
	return newMixture([]gaussian{g})
}

// fitMixture 按亮度分段初始化，再做两轮硬分配EM
func fitMixture(samples [][3]float64, k int) *mixture {
	if len(samples) == 0 {
		return wideMixture()
	}
	if len(samples) > maxFitSamples {
		stride := (len(samples) + maxFitSamples - 1) / maxFitSamples
		sub := make([][3]float64, 0, len(samples)/stride+1)
		for i := 0; i < len(samples); i += stride {
			sub = append(sub, samples[i])
		}
		samples = sub
	}

	sorted := make([][3]float64, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return luma(sorted[i]) < luma(sorted[j]) })

	groups := min(k, len(sorted))
	assign := make([]int, len(sorted))
	for i := range assign {
		assign[i] = i * groups / len(sorted)
	}
	comps := estimate(sorted, assign, groups)

	for round := 0; round < emRounds; round++ {
		for i, c := range sorted {
			best, bestLP := 0, math.Inf(-1)
			for j, g := range comps {
				if lp := g.logProb(c); lp > bestLP {
					best, bestLP = j, lp
				}
			}
			assign[i] = best
		}
		comps = estimate(sorted, assign, len(comps))
	}
	return newMixture(comps)
}

// estimate 按分配结果估计各分量参数，空分量被丢弃
func estimate(samples [][3]float64, assign []int, groups int) []gaussian {
	members := make([][]int, groups)
	for i, g := range assign {
		members[g] = append(members[g], i)
	}

	comps := make([]gaussian, 0, groups)
	xs := make([]float64, 0, len(samples))
	for _, idx := range members {
		if len(idx) == 0 {
			continue
		}
		g := gaussian{logWeight: math.Log(float64(len(idx)) / float64(len(samples)))}
		for d := 0; d < 3; d++ {
			xs = xs[:0]
			for _, i := range idx {
				xs = append(xs, samples[i][d])
			}
			mean, variance := stat.MeanVariance(xs, nil)
			sigma := minSigma
			if !math.IsNaN(variance) && variance > 0 {
				sigma = math.Max(minSigma, math.Sqrt(variance))
			}
			g.dims[d] = distuv.Normal{Mu: mean, Sigma: sigma}
		}
		comps = append(comps, g)
	}
	return comps
}

func luma(c [3]float64) float64 {
	return lumaR*c[0] + lumaG*c[1] + lumaB*c[2]
}
