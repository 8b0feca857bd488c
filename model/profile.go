package model

import "math"

// HSV 色相单位为度 [0,360)，饱和度与明度在 [0,1]
type HSV struct {
	H float64
	S float64
	V float64
}

// ColorSample 带权重的边缘采样点
type ColorSample struct {
	HSV
	Weight float64
}

// BackgroundProfile 背景颜色分布估计
type BackgroundProfile struct {
	Center    HSV
	Tolerance float64 // 归一化HSV距离半径

	// 由 Center 与 Tolerance 推导的范围；HueMin > HueMax 表示跨越0度
	HueMin, HueMax float64
	HueAny         bool // 无彩色背景，色相不参与判断
	SatMin, SatMax float64
	ValMin, ValMax float64

	Samples    int
	Confidence float64
}

// AchromaticSat 低于此饱和度的颜色色相不可靠
const AchromaticSat = 0.15

// NewBackgroundProfile 根据中心与容差填充各通道范围
func NewBackgroundProfile(center HSV, tolerance float64) BackgroundProfile {
	p := BackgroundProfile{
		Center:    center,
		Tolerance: tolerance,
		SatMin:    math.Max(0, center.S-tolerance),
		SatMax:    math.Min(1, center.S+tolerance),
		ValMin:    math.Max(0, center.V-tolerance),
		ValMax:    math.Min(1, center.V+tolerance),
	}
	if center.S < AchromaticSat || tolerance >= 1 {
		p.HueAny = true
		p.HueMin, p.HueMax = 0, 360
		return p
	}
	span := math.Min(180, tolerance*180/center.S)
	p.HueMin = math.Mod(center.H-span+360, 360)
	p.HueMax = math.Mod(center.H+span, 360)
	if span >= 180 {
		p.HueAny = true
		p.HueMin, p.HueMax = 0, 360
	}
	return p
}

// Distance 颜色到背景中心的归一化距离（切比雪夫距离）
func (p BackgroundProfile) Distance(c HSV) float64 {
	return HSVDistance(p.Center, c)
}

// Matches 颜色是否落在背景带内
func (p BackgroundProfile) Matches(c HSV) bool {
	return p.Distance(c) <= p.Tolerance
}

// HSVDistance 两个颜色的归一化距离；色相差按较小的饱和度缩放
func HSVDistance(a, b HSV) float64 {
	dh := math.Abs(a.H - b.H)
	if dh > 180 {
		dh = 360 - dh
	}
	dh = dh / 180 * math.Min(a.S, b.S)
	ds := math.Abs(a.S - b.S)
	dv := math.Abs(a.V - b.V)
	return math.Max(dh, math.Max(ds, dv))
}
