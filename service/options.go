package service

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/config"
)

// Options 单次抠图的完整参数，按值传入流水线
type Options struct {
	// 背景分析
	BorderMarginFraction float64 // 边缘采样带宽度，占短边比例
	CornerWeight         float64 // 四角采样点权重
	BandCoverage         float64 // 背景带需覆盖的采样权重比例
	MinTolerance         float64 // 背景带最小半径
	MaxSamples           int
	MinImageDim          int

	// 置信度门限
	ConfidenceThreshold   float64
	MinForegroundFraction float64
	MaxForegroundFraction float64

	// 三分图
	UnknownMarginPx int     // 0 表示按对角线自动计算
	FarMargin       float64 // 超出背景带多少才算确定前景

	// 迭代优化
	Engine               string
	MaxIterations        int
	ConvergenceThreshold float64
	LikelihoodWeight     float64
	SmoothnessWeight     float64
	Components           int
	Softness             float64

	// 后处理
	FeatherRadius    int
	MinComponentSize int
	KeepLargestOnly  bool
	Matte            color.Color // nil 表示透明背景

	DownsampleCeilingPx int
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		BorderMarginFraction:  0.05,
		CornerWeight:          2.0,
		BandCoverage:          0.7,
		MinTolerance:          0.08,
		MaxSamples:            40000,
		MinImageDim:           8,
		ConfidenceThreshold:   0.5,
		MinForegroundFraction: 0.002,
		MaxForegroundFraction: 0.98,
		UnknownMarginPx:       0,
		FarMargin:             0.15,
		Engine:                EngineNative,
		MaxIterations:         8,
		ConvergenceThreshold:  0.01,
		LikelihoodWeight:      1.0,
		SmoothnessWeight:      50,
		Components:            3,
		Softness:              1.0,
		FeatherRadius:         1,
		MinComponentSize:      32,
		DownsampleCeilingPx:   1600,
	}
}

// OptionsFromConfig 由配置生成参数。配置由 config.Load 填好默认值，
// 这里逐项照搬，显式写 0 的项保持为 0；cfg 为 nil 时使用 DefaultOptions
func OptionsFromConfig(cfg *config.SegmentationConfig) (Options, error) {
	opts := DefaultOptions()
	if cfg == nil {
		return opts, nil
	}
	opts.Engine = cfg.Engine
	opts.ConfidenceThreshold = cfg.ConfidenceThreshold
	opts.BorderMarginFraction = cfg.BorderMarginFraction
	opts.BandCoverage = cfg.BandCoverage
	opts.UnknownMarginPx = cfg.UnknownMarginPx
	opts.FarMargin = cfg.FarMargin
	opts.MaxIterations = cfg.MaxIterations
	opts.ConvergenceThreshold = cfg.ConvergenceThreshold
	opts.LikelihoodWeight = cfg.LikelihoodWeight
	opts.SmoothnessWeight = cfg.SmoothnessWeight
	opts.Components = cfg.Components
	opts.Softness = cfg.Softness
	opts.FeatherRadius = cfg.FeatherRadius
	opts.MinComponentSize = cfg.MinComponentSize
	opts.DownsampleCeilingPx = cfg.DownsampleCeilingPx

	matte, err := ParseMatte(cfg.Matte)
	if err != nil {
		return opts, err
	}
	opts.Matte = matte
	return opts, opts.Validate()
}

// Validate 检查参数合法性
func (o Options) Validate() error {
	switch {
	case o.BorderMarginFraction <= 0 || o.BorderMarginFraction >= 0.5:
		return apperror.NewConfig(fmt.Sprintf("border margin fraction %.3f out of (0, 0.5)", o.BorderMarginFraction))
	case o.BandCoverage <= 0 || o.BandCoverage > 1:
		return apperror.NewConfig(fmt.Sprintf("band coverage %.3f out of (0, 1]", o.BandCoverage))
	case o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1:
		return apperror.NewConfig(fmt.Sprintf("confidence threshold %.3f out of [0, 1]", o.ConfidenceThreshold))
	case o.MinForegroundFraction < 0 || o.MaxForegroundFraction > 1 || o.MinForegroundFraction >= o.MaxForegroundFraction:
		return apperror.NewConfig("foreground fraction bounds must satisfy 0 <= min < max <= 1")
	case o.UnknownMarginPx < 0 || o.FarMargin < 0:
		return apperror.NewConfig("unknown margin and far margin must be >= 0")
	case o.MaxIterations < 1:
		return apperror.NewConfig("max iterations must be >= 1")
	case o.ConvergenceThreshold < 0 || o.ConvergenceThreshold > 1:
		return apperror.NewConfig("convergence threshold out of [0, 1]")
	case o.LikelihoodWeight <= 0 || o.SmoothnessWeight < 0:
		return apperror.NewConfig("energy weights must be positive")
	case o.Components < 1:
		return apperror.NewConfig("mixture components must be >= 1")
	case o.Softness <= 0:
		return apperror.NewConfig("softness must be > 0")
	case o.FeatherRadius < 0 || o.MinComponentSize < 0:
		return apperror.NewConfig("feather radius and min component size must be >= 0")
	case o.MinImageDim < 1:
		return apperror.NewConfig("min image dimension must be >= 1")
	}
	if _, ok := refinerFactories[o.Engine]; !ok {
		return apperror.NewConfig(fmt.Sprintf("refiner engine %q is not available in this build", o.Engine))
	}
	return nil
}

// unknownMargin 三分图过渡带宽度
func (o Options) unknownMargin(w, h int) int {
	if o.UnknownMarginPx > 0 {
		return o.UnknownMarginPx
	}
	diag := math.Hypot(float64(w), float64(h))
	return max(2, int(math.Round(diag*0.01)))
}

// ParseMatte 解析背景填充："transparent"、空串或 #rrggbb
func ParseMatte(s string) (color.Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "transparent", "none":
		return nil, nil
	case "white":
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}, nil
	case "black":
		return color.NRGBA{A: 255}, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return nil, apperror.NewConfig(fmt.Sprintf("invalid matte colour %q", s))
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, apperror.NewConfig(fmt.Sprintf("invalid matte colour %q", s))
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
