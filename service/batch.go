package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/imageio"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchItem 单张图片的处理结果
type BatchItem struct {
	Input      string
	Output     string
	Iterations int
	Converged  bool
	Err        error
}

// BatchReport 批处理汇总
type BatchReport struct {
	Items     []BatchItem
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// BatchProcessor 文件夹批处理，单张失败不影响其他图片
type BatchProcessor struct {
	pipeline *Pipeline
	workers  int
}

func NewBatchProcessor(pipeline *Pipeline, workers int) *BatchProcessor {
	return &BatchProcessor{pipeline: pipeline, workers: max(1, workers)}
}

// ListImages 按文件名排序列出目录下支持的图像文件
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperror.NewIO("read input directory", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageio.IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Run 处理 inputDir 下所有图片并写入 outputDir；取消时中止并返回 Cancelled
func (b *BatchProcessor) Run(ctx context.Context, inputDir, outputDir string) (*BatchReport, error) {
	start := time.Now()
	files, err := ListImages(inputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, apperror.NewIO("create output directory", outputDir, err)
	}

	utils.Logger.Info("batch started",
		zap.String("input", inputDir),
		zap.String("output", outputDir),
		zap.Int("images", len(files)),
		zap.Int("workers", b.workers))

	report := &BatchReport{Items: make([]BatchItem, len(files))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			item := b.processOne(gctx, path, outputDir)
			report.Items[i] = item
			if apperror.IsType(item.Err, apperror.TypeCancelled) {
				return item.Err
			}
			return nil
		})
	}
	err = g.Wait()

	for _, item := range report.Items {
		if item.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	report.Duration = time.Since(start)

	utils.Logger.Info("batch finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	if err != nil {
		return report, err
	}
	if ctx.Err() != nil {
		return report, apperror.NewCancelled(ctx.Err())
	}
	return report, nil
}

func (b *BatchProcessor) processOne(ctx context.Context, path, outputDir string) BatchItem {
	item := BatchItem{Input: path, Output: filepath.Join(outputDir, utils.OutputName(path))}
	if err := ctx.Err(); err != nil {
		item.Err = apperror.NewCancelled(err)
		return item
	}

	img, _, err := imageio.Load(path)
	if err != nil {
		item.Err = err
		b.logFailure(path, err)
		return item
	}

	result, err := b.pipeline.Run(ctx, img, nil)
	if err != nil {
		item.Err = fmt.Errorf("%s: %w", filepath.Base(path), err)
		b.logFailure(path, err)
		return item
	}
	item.Iterations = result.Iterations
	item.Converged = result.Converged

	// JPEG 没有透明通道，保存时铺到填充色上
	if err := imageio.Save(item.Output, result.Output, b.pipeline.Options().Matte); err != nil {
		item.Err = err
		b.logFailure(path, err)
		return item
	}

	utils.Logger.Info("image saved",
		zap.String("input", path),
		zap.String("output", item.Output),
		zap.Int("iterations", result.Iterations),
		zap.Bool("converged", result.Converged))
	return item
}

func (b *BatchProcessor) logFailure(path string, err error) {
	if apperror.IsType(err, apperror.TypeCancelled) {
		return
	}
	utils.Logger.Warn("image skipped",
		zap.String("input", path),
		zap.String("type", string(apperror.TypeOf(err))),
		zap.Error(err))
}
