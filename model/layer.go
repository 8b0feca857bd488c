package model

// LayerResult 抠图结果（HTTP 响应与缓存共用）
type LayerResult struct {
	MD5        string   `json:"md5"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Layers     []Layer  `json:"layers"`
	Output     string   `json:"output"` // base64编码的PNG抠图结果
	Iterations int      `json:"iterations"`
	Converged  bool     `json:"converged"`
	Warnings   []string `json:"warnings,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

// Layer 单个图层信息
type Layer struct {
	ID          int     `json:"id"`
	Type        string  `json:"type"` // foreground, background
	BoundingBox BBox    `json:"bounding_box"`
	Mask        string  `json:"mask"` // base64编码的mask数据
	Confidence  float64 `json:"confidence"`
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// UploadResponse 上传响应
type UploadResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *LayerResult `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CommandInfo 可用的变换命令
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
