package model

import "image"

// SegmentationResult 一次抠图的完整输出，不在内部保留
type SegmentationResult struct {
	Mask   *AlphaMask
	Output *image.NRGBA

	Profile            BackgroundProfile
	Confidence         float64
	ForegroundFraction float64
	Iterations         int
	Converged          bool
	Seeded             bool
	Scale              float64 // 工作分辨率 / 原始分辨率
	Warnings           []error
}

// WarningMessages 警告的文本形式
func (r *SegmentationResult) WarningMessages() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}
