package service

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/model"
)

// Command 工具箱中的变换命令
type Command string

const (
	CommandRemoveBackground Command = "remove_background"
)

// Transformation 一种图像变换
type Transformation interface {
	Description() string
	Apply(ctx context.Context, img image.Image, seed *model.SeedMask) (*model.SegmentationResult, error)
}

// Toolbox 命令到变换的映射
type Toolbox struct {
	transformations map[Command]Transformation
}

func NewToolbox(opts Options) (*Toolbox, error) {
	pipeline, err := NewPipeline(opts)
	if err != nil {
		return nil, err
	}
	return &Toolbox{
		transformations: map[Command]Transformation{
			CommandRemoveBackground: backgroundRemoval{pipeline},
		},
	}, nil
}

// Run 执行命令
func (t *Toolbox) Run(ctx context.Context, cmd Command, img image.Image, seed *model.SeedMask) (*model.SegmentationResult, error) {
	tr, ok := t.transformations[cmd]
	if !ok {
		return nil, apperror.NewConfig(fmt.Sprintf("unknown command %q", cmd))
	}
	return tr.Apply(ctx, img, seed)
}

// Commands 已注册的命令，按名称排序
func (t *Toolbox) Commands() []model.CommandInfo {
	out := make([]model.CommandInfo, 0, len(t.transformations))
	for cmd, tr := range t.transformations {
		out = append(out, model.CommandInfo{Name: string(cmd), Description: tr.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type backgroundRemoval struct {
	pipeline *Pipeline
}

func (backgroundRemoval) Description() string {
	return "automatic foreground/background separation"
}

func (b backgroundRemoval) Apply(ctx context.Context, img image.Image, seed *model.SeedMask) (*model.SegmentationResult, error) {
	return b.pipeline.Run(ctx, img, seed)
}
