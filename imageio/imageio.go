// Package imageio 负责图像文件的读取、嗅探与写出
package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
)

// Format 支持的图像格式
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
)

var extensions = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".bmp":  FormatBMP,
}

// IsImageFile 按扩展名判断是否为支持的图像文件
func IsImageFile(name string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// FormatFromPath 由扩展名推断格式
func FormatFromPath(path string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// HasAlpha 格式是否能保存透明通道
func (f Format) HasAlpha() bool {
	return f == FormatPNG || f == FormatBMP
}

// SniffMIME 根据内容检测MIME类型
func SniffMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// Load 读取并解码图像文件
func Load(path string) (image.Image, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperror.NewInvalidImage("image file not found", err)
		}
		return nil, "", apperror.NewIO("read image", path, err)
	}
	img, format, err := Decode(data)
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			appErr.Path = path
		}
		return nil, "", err
	}
	return img, format, nil
}

// Decode 解码内存中的图像数据
func Decode(data []byte) (image.Image, Format, error) {
	if len(data) == 0 {
		return nil, "", apperror.NewInvalidImage("empty image data", nil)
	}
	var (
		img    image.Image
		format Format
		err    error
	)
	switch mt := mimetype.Detect(data); {
	case mt.Is("image/png"):
		format = FormatPNG
		img, err = png.Decode(bytes.NewReader(data))
	case mt.Is("image/jpeg"):
		format = FormatJPEG
		img, err = jpeg.Decode(bytes.NewReader(data))
	case mt.Is("image/bmp"), mt.Is("image/x-ms-bmp"):
		format = FormatBMP
		img, err = bmp.Decode(bytes.NewReader(data))
	default:
		return nil, "", apperror.NewInvalidImage("unsupported image type "+mt.String(), nil)
	}
	if err != nil {
		return nil, "", apperror.NewInvalidImage("decode "+string(format), err)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, "", apperror.NewInvalidImage("image has no pixels", nil)
	}
	return img, format, nil
}

// Encode 按格式编码；JPEG 不支持透明度，先铺到 fill 上
func Encode(w io.Writer, img image.Image, format Format, fill color.Color) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, Flatten(img, fill), &jpeg.Options{Quality: 92})
	default:
		return errors.New("imageio: unsupported format " + string(format))
	}
}

// Save 按扩展名写出图像文件
func Save(path string, img image.Image, fill color.Color) error {
	format, ok := FormatFromPath(path)
	if !ok {
		return apperror.NewIO("unsupported output extension", path, nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperror.NewIO("create output directory", path, err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, fill); err != nil {
		return apperror.NewIO("encode image", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return apperror.NewIO("write image", path, err)
	}
	return nil
}

// EncodePNG 编码为PNG字节
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Flatten 将带透明度的图像铺到纯色底上
func Flatten(img image.Image, fill color.Color) *image.RGBA {
	if fill == nil {
		fill = color.White
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}
