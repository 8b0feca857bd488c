package service

import (
	"image/color"
	"testing"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptionsValid(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
	assert.Contains(t, Engines(), EngineNative)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Options){
		"margin":      func(o *Options) { o.BorderMarginFraction = 0.5 },
		"coverage":    func(o *Options) { o.BandCoverage = 0 },
		"confidence":  func(o *Options) { o.ConfidenceThreshold = 1.5 },
		"fraction":    func(o *Options) { o.MinForegroundFraction = 0.99 },
		"iterations":  func(o *Options) { o.MaxIterations = 0 },
		"weights":     func(o *Options) { o.LikelihoodWeight = 0 },
		"feather":     func(o *Options) { o.FeatherRadius = -1 },
		"unknown":     func(o *Options) { o.UnknownMarginPx = -2 },
		"engine":      func(o *Options) { o.Engine = "does-not-exist" },
		"softness":    func(o *Options) { o.Softness = 0 },
		"components":  func(o *Options) { o.Components = 0 },
		"minimum dim": func(o *Options) { o.MinImageDim = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions()
			mutate(&opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.True(t, apperror.IsType(err, apperror.TypeConfig))
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)

	opts, err = OptionsFromConfig(&config.Default().Segmentation)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)

	cfg := config.Default().Segmentation
	cfg.ConfidenceThreshold = 0.7
	cfg.MaxIterations = 3
	cfg.FeatherRadius = 0
	cfg.MinComponentSize = 10
	cfg.UnknownMarginPx = 4
	cfg.Components = 5
	cfg.Softness = 0.5
	cfg.FarMargin = 0.3
	cfg.Matte = "#102030"
	opts, err = OptionsFromConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.7, opts.ConfidenceThreshold)
	assert.Equal(t, 3, opts.MaxIterations)
	assert.Equal(t, 0, opts.FeatherRadius)
	assert.Equal(t, 10, opts.MinComponentSize)
	assert.Equal(t, 4, opts.UnknownMarginPx)
	assert.Equal(t, 5, opts.Components)
	assert.Equal(t, 0.5, opts.Softness)
	assert.Equal(t, 0.3, opts.FarMargin)
	assert.Equal(t, EngineNative, opts.Engine)
	assert.Equal(t, color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 255}, opts.Matte)

	_, err = OptionsFromConfig(&config.SegmentationConfig{Engine: "nope"})
	assert.True(t, apperror.IsType(err, apperror.TypeConfig))
}

func TestOptionsFromConfigKeepsExplicitZero(t *testing.T) {
	cfg := config.Default().Segmentation
	cfg.ConfidenceThreshold = 0
	cfg.ConvergenceThreshold = 0
	cfg.SmoothnessWeight = 0

	opts, err := OptionsFromConfig(&cfg)
	require.NoError(t, err)
	assert.Zero(t, opts.ConfidenceThreshold)
	assert.Zero(t, opts.ConvergenceThreshold)
	assert.Zero(t, opts.SmoothnessWeight)
}

func TestParseMatte(t *testing.T) {
	for _, s := range []string{"", "transparent", "None"} {
		c, err := ParseMatte(s)
		require.NoError(t, err)
		assert.Nil(t, c)
	}

	c, err := ParseMatte("white")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, c)

	c, err = ParseMatte("#FF8000")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 128, A: 255}, c)

	_, err = ParseMatte("#12")
	assert.Error(t, err)
	_, err = ParseMatte("#zzzzzz")
	assert.Error(t, err)
}

func TestUnknownMargin(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 2, opts.unknownMargin(100, 100))
	assert.Equal(t, 14, opts.unknownMargin(1000, 1000))

	opts.UnknownMarginPx = 7
	assert.Equal(t, 7, opts.unknownMargin(100, 100))
}

func TestDownsample(t *testing.T) {
	img := solidImage(400, 200, white)
	out, scale := downsample(img, 100, 8)
	assert.Equal(t, 0.25, scale)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())

	same, scale := downsample(img, 0, 8)
	assert.Equal(t, 1.0, scale)
	assert.Same(t, img, same)
}

func TestDownsampleKeepsShortSide(t *testing.T) {
	img := solidImage(4000, 10, white)
	out, scale := downsample(img, 1600, 8)
	assert.InDelta(t, 0.8, scale, 1e-12)
	assert.Equal(t, 8, out.Bounds().Dy())
	assert.Equal(t, 3200, out.Bounds().Dx())

	// 短边已经等于下限时不再缩小
	thin := solidImage(4000, 8, white)
	same, scale := downsample(thin, 1600, 8)
	assert.Equal(t, 1.0, scale)
	assert.Same(t, thin, same)
}
