package service

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
)

// Pipeline 抠图流水线的唯一入口：分析 -> 三分图 -> 迭代优化 -> 后处理
type Pipeline struct {
	opts      Options
	analyzer  *ColorSpaceAnalyzer
	trimaps   *TrimapBuilder
	refiner   Refiner
	processor *MaskProcessor
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		opts:      opts,
		analyzer:  NewColorSpaceAnalyzer(opts),
		trimaps:   NewTrimapBuilder(opts),
		refiner:   newRefiner(opts),
		processor: NewMaskProcessor(opts),
	}, nil
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Run 处理一张图像。seed 可为 nil；提供种子时跳过置信度门限
func (p *Pipeline) Run(ctx context.Context, img image.Image, seed *model.SeedMask) (*model.SegmentationResult, error) {
	if img == nil {
		return nil, apperror.NewInvalidImage("no image", nil)
	}
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if err := p.analyzer.checkSize(width, height); err != nil {
		return nil, err
	}
	seeded := seed != nil && seed.Count(model.DefiniteFG)+seed.Count(model.DefiniteBG) > 0
	start := time.Now()

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	work, scale := downsample(img, p.opts.DownsampleCeilingPx, p.opts.MinImageDim)
	r := newRaster(work)
	if scale != 1.0 {
		utils.Logger.Debug("image downsampled",
			zap.Int("width", width),
			zap.Int("height", height),
			zap.Int("work_width", r.w),
			zap.Int("work_height", r.h))
	}

	profile, err := p.analyzer.analyze(r, seed)
	if err != nil {
		return nil, err
	}
	utils.Logger.Debug("background analyzed",
		zap.Float64("hue", profile.Center.H),
		zap.Float64("saturation", profile.Center.S),
		zap.Float64("value", profile.Center.V),
		zap.Float64("tolerance", profile.Tolerance),
		zap.Float64("confidence", profile.Confidence))
	if !seeded && profile.Confidence < p.opts.ConfidenceThreshold {
		return nil, apperror.NewLowConfidence(fmt.Sprintf(
			"could not auto-detect background: border confidence %.2f below %.2f", profile.Confidence, p.opts.ConfidenceThreshold))
	}

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	trimap, fgFraction := p.trimaps.build(r, profile, seed)
	if !seeded && (fgFraction < p.opts.MinForegroundFraction || fgFraction > p.opts.MaxForegroundFraction) {
		return nil, apperror.NewLowConfidence(fmt.Sprintf(
			"could not auto-detect background: definite foreground fraction %.4f out of [%.4f, %.4f]",
			fgFraction, p.opts.MinForegroundFraction, p.opts.MaxForegroundFraction))
	}

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	refined, err := p.refiner.Refine(ctx, work, trimap)
	if err != nil {
		return nil, err
	}
	refined.Mask.MustMatch(r.w, r.h)

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	mask := p.processor.Process(refined.Mask, width, height)
	output := p.processor.Composite(img, mask)

	result := &model.SegmentationResult{
		Mask:               mask,
		Output:             output,
		Profile:            profile,
		Confidence:         profile.Confidence,
		ForegroundFraction: mask.ForegroundFraction(),
		Iterations:         refined.Iterations,
		Converged:          refined.Converged(),
		Seeded:             seeded,
		Scale:              scale,
	}
	if !result.Converged {
		warning := apperror.NewConvergenceWarning(refined.Iterations)
		result.Warnings = append(result.Warnings, warning)
		utils.Logger.Warn("refiner did not converge", zap.Int("iterations", refined.Iterations))
	}

	utils.Logger.Info("segmentation finished",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Bool("seeded", seeded),
		zap.Int("iterations", result.Iterations),
		zap.Bool("converged", result.Converged),
		zap.Float64("foreground_fraction", result.ForegroundFraction),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperror.NewCancelled(err)
	}
	return nil
}
