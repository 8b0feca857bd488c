package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/imageio"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
)

// RemoveRequest 单次请求的可选参数
type RemoveRequest struct {
	Seed              *model.SeedMask
	SeedRect          *image.Rectangle
	Matte             string // 为空时使用配置
	MaxForegroundOnly bool
}

// Variants 缓存键中区分请求参数的部分
func (r RemoveRequest) Variants() []string {
	var v []string
	if r.MaxForegroundOnly {
		v = append(v, "max_fg")
	}
	if r.Matte != "" {
		v = append(v, "matte="+r.Matte)
	}
	return v
}

// Seeded 带手动种子的请求结果不进缓存
func (r RemoveRequest) Seeded() bool {
	return r.Seed != nil || r.SeedRect != nil
}

// BackgroundRemover 负责HTTP请求的抠图处理，限制并发数
type BackgroundRemover struct {
	opts         Options
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewBackgroundRemover(cfg *config.SegmentationConfig) (*BackgroundRemover, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &BackgroundRemover{
		opts:         opts,
		semaphore:    make(chan struct{}, max(1, cfg.MaxConcurrent)),
		queueTimeout: time.Duration(cfg.QueueTimeout) * time.Second,
	}, nil
}

// ProcessImage 处理图片并返回分层结果
func (s *BackgroundRemover) ProcessImage(ctx context.Context, imagePath, md5 string, req RemoveRequest) (*model.LayerResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-s.semaphore }()

	startTime := time.Now()

	img, _, err := imageio.Load(imagePath)
	if err != nil {
		return nil, err
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	utils.Logger.Info("processing image",
		zap.String("md5", md5),
		zap.Int("width", width),
		zap.Int("height", height))

	opts := s.opts
	opts.KeepLargestOnly = req.MaxForegroundOnly
	if req.Matte != "" {
		if opts.Matte, err = ParseMatte(req.Matte); err != nil {
			return nil, err
		}
	}
	pipeline, err := NewPipeline(opts)
	if err != nil {
		return nil, err
	}

	seed := req.Seed
	if req.SeedRect != nil {
		seed = model.NewRectSeed(width, height, *req.SeedRect)
	}

	result, err := pipeline.Run(ctx, img, seed)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", md5, err)
	}

	layerResult, err := s.buildLayerResult(md5, result)
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("image processed successfully",
		zap.String("md5", md5),
		zap.Duration("duration", time.Since(startTime)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("iterations", result.Iterations),
		zap.Bool("converged", result.Converged))

	return layerResult, nil
}

// acquire 并发控制：排队超过 queueTimeout 返回 Busy
func (s *BackgroundRemover) acquire(ctx context.Context) error {
	select {
	case s.semaphore <- struct{}{}:
		return nil
	default:
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()
	select {
	case s.semaphore <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return apperror.NewCancelled(ctx.Err())
		}
		return apperror.NewBusy(waitCtx.Err())
	}
}

func (s *BackgroundRemover) buildLayerResult(md5 string, result *model.SegmentationResult) (*model.LayerResult, error) {
	mask := result.Mask
	fgMask, err := encodePNG(mask.Gray())
	if err != nil {
		return nil, err
	}
	bgMask, err := encodePNG(mask.Inverted().Gray())
	if err != nil {
		return nil, err
	}
	output, err := encodePNG(result.Output)
	if err != nil {
		return nil, err
	}

	return &model.LayerResult{
		MD5:        md5,
		Width:      mask.Width,
		Height:     mask.Height,
		Output:     output,
		Iterations: result.Iterations,
		Converged:  result.Converged,
		Warnings:   result.WarningMessages(),
		Timestamp:  time.Now().Unix(),
		Layers: []model.Layer{
			{
				ID:          1,
				Type:        "foreground",
				BoundingBox: toBBox(mask.BoundingBox()),
				Mask:        fgMask,
				Confidence:  result.Confidence,
			},
			{
				ID:          2,
				Type:        "background",
				BoundingBox: model.BBox{X: 0, Y: 0, Width: mask.Width, Height: mask.Height},
				Mask:        bgMask,
				Confidence:  result.Confidence,
			},
		},
	}, nil
}

// encodePNG 将图像编码为Base64 PNG
func encodePNG(img image.Image) (string, error) {
	data, err := imageio.EncodePNG(img)
	if err != nil {
		utils.Logger.Error("failed to encode png", zap.Error(err))
		return "", apperror.NewIO("encode png", "", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func toBBox(r image.Rectangle) model.BBox {
	return model.BBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}
