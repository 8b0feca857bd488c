//go:build opencv

package service

import (
	"context"
	"image"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// EngineGrabCut OpenCV GrabCut 引擎，需要 opencv 构建标签
const EngineGrabCut = "grabcut"

// GrabCut 掩码取值
const (
	gcBGD   = 0
	gcFGD   = 1
	gcPRBGD = 2
	gcPRFGD = 3
)

func init() {
	refinerFactories[EngineGrabCut] = func(o Options) Refiner { return NewGrabCutRefiner(o) }
}

// GrabCutRefiner 用 OpenCV GrabCut 解析未知带，每次调用只迭代一轮以便检查收敛与取消
type GrabCutRefiner struct {
	opts     Options
	fallback *SegmentationRefiner
}

func NewGrabCutRefiner(opts Options) *GrabCutRefiner {
	return &GrabCutRefiner{opts: opts, fallback: NewSegmentationRefiner(opts)}
}

func (g *GrabCutRefiner) Refine(ctx context.Context, img image.Image, trimap *model.Trimap) (*Refinement, error) {
	b := img.Bounds()
	trimap.MustMatch(b.Dx(), b.Dy())

	// GrabCut 要求两类都有样本
	if trimap.Count(model.Unknown) == 0 || trimap.Count(model.DefiniteFG) == 0 || trimap.Count(model.DefiniteBG) == 0 {
		return g.fallback.Refine(ctx, img, trimap)
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, apperror.NewInvalidImage("failed to convert image for grabcut", err)
	}
	defer src.Close()

	mask := gocv.NewMatWithSize(trimap.Height, trimap.Width, gocv.MatTypeCV8U)
	defer mask.Close()
	for y := 0; y < trimap.Height; y++ {
		for x := 0; x < trimap.Width; x++ {
			var v uint8
			switch trimap.At(x, y) {
			case model.DefiniteFG:
				v = gcFGD
			case model.DefiniteBG:
				v = gcBGD
			default:
				v = gcPRFGD
			}
			mask.SetUCharAt(y, x, v)
		}
	}

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	unknown := trimap.Count(model.Unknown)
	prev := foregroundOf(&mask, trimap)
	out := &Refinement{State: StateIterating}
	for out.State == StateIterating {
		if err := ctx.Err(); err != nil {
			return nil, apperror.NewCancelled(err)
		}
		gocv.GrabCut(src, &mask, image.Rectangle{}, &bgdModel, &fgdModel, 1, gocv.GCInitWithMask)
		out.Iterations++

		cur := foregroundOf(&mask, trimap)
		changed := 0
		for i := range cur {
			if cur[i] != prev[i] {
				changed++
			}
		}
		prev = cur

		switch {
		case changed == 0 || float64(changed)/float64(unknown) < g.opts.ConvergenceThreshold:
			out.State = StateConverged
		case out.Iterations >= g.opts.MaxIterations:
			out.State = StateMaxIterationsReached
		}
	}

	out.Mask = hardMask(trimap.Width, trimap.Height, prev)
	utils.Logger.Debug("grabcut finished",
		zap.Int("unknown_pixels", unknown),
		zap.Int("iterations", out.Iterations),
		zap.Stringer("state", out.State))
	return out, nil
}

// foregroundOf 读取掩码中的前景，确定标签以三分图为准
func foregroundOf(mask *gocv.Mat, trimap *model.Trimap) []bool {
	fg := make([]bool, len(trimap.Labels))
	for y := 0; y < trimap.Height; y++ {
		for x := 0; x < trimap.Width; x++ {
			i := y*trimap.Width + x
			switch trimap.Labels[i] {
			case model.DefiniteFG:
				fg[i] = true
			case model.Unknown:
				v := mask.GetUCharAt(y, x)
				fg[i] = v == gcFGD || v == gcPRFGD
			}
		}
	}
	return fg
}
