package utils

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// FileMD5 计算文件MD5
func FileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// CacheKey 由文件MD5与请求参数拼出缓存键，参数为空时即为MD5本身
func CacheKey(md5 string, variants ...string) string {
	parts := []string{md5}
	for _, v := range variants {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ":")
}
