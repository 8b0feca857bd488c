package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// UploadName 生成基于时间戳的上传文件名，保留原扩展名
func UploadName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return fmt.Sprintf("%d%s", time.Now().UnixNano(), ext)
}

// OutputName 批处理输出文件名：<原名>_bg_removed.<扩展名>
func OutputName(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_bg_removed" + ext
}
