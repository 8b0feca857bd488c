package handler

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/imageio"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/service"
	"github.com/TIANLI0/MatteKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Remover 抠图服务
type Remover interface {
	ProcessImage(ctx context.Context, imagePath, md5 string, req service.RemoveRequest) (*model.LayerResult, error)
}

type UploadHandler struct {
	cfg      *config.Config
	cache    service.ResultCache
	remover  Remover
	commands []model.CommandInfo
}

func NewUploadHandler(cfg *config.Config, cache service.ResultCache, remover Remover, commands []model.CommandInfo) *UploadHandler {
	return &UploadHandler{
		cfg:      cfg,
		cache:    cache,
		remover:  remover,
		commands: commands,
	}
}

// Upload 处理图片上传
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	// 按内容验证文件类型
	head, err := readHead(file.Open)
	if err != nil || !h.isAllowedType(imageio.SniffMIME(head)) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型，仅支持 JPEG/PNG/BMP",
			Type:    string(apperror.TypeInvalidImage),
		})
		return
	}

	req, err := h.parseRequest(c)
	if err != nil {
		h.fail(c, "请求参数错误", err)
		return
	}

	// 生成文件名并保存
	filename := utils.UploadName(file.Filename)
	savePath := filepath.Join(h.cfg.Upload.UploadDir, filename)
	if err := c.SaveUploadedFile(file, savePath); err != nil {
		utils.Logger.Error("failed to save file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "保存文件失败",
			Type:    string(apperror.TypeIO),
			Error:   err.Error(),
		})
		return
	}

	// 确保文件在处理完成后被删除（如果配置启用）
	if h.cfg.Segmentation.CleanupTempFiles {
		defer func() {
			if err := os.Remove(savePath); err != nil {
				utils.Logger.Warn("failed to delete temp file",
					zap.String("file", savePath),
					zap.Error(err))
			} else {
				utils.Logger.Debug("temp file deleted",
					zap.String("file", savePath))
			}
		}()
	}

	md5, err := utils.FileMD5(savePath)
	if err != nil {
		utils.Logger.Error("failed to calculate md5", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "计算文件哈希失败",
			Type:    string(apperror.TypeIO),
			Error:   err.Error(),
		})
		return
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", filename),
		zap.String("md5", md5),
		zap.Int64("size", file.Size),
		zap.Bool("seeded", req.Seeded()),
		zap.Bool("max_foreground_only", req.MaxForegroundOnly))

	// 检查缓存（带参数区分，手动种子不缓存）
	ctx := c.Request.Context()
	cacheKey := utils.CacheKey(md5, req.Variants()...)
	useCache := h.cache != nil && !req.Seeded()

	if useCache {
		cachedResult, err := h.cache.GetLayerResult(ctx, cacheKey)
		if err != nil {
			utils.Logger.Warn("failed to get cache", zap.Error(err))
		}
		if cachedResult != nil {
			utils.Logger.Info("cache hit", zap.String("cache_key", cacheKey))
			c.JSON(http.StatusOK, model.UploadResponse{
				Success: true,
				Message: "处理成功（来自缓存）",
				Data:    cachedResult,
			})
			return
		}
	}

	result, err := h.remover.ProcessImage(ctx, savePath, md5, req)
	if err != nil {
		utils.Logger.Error("failed to process image", zap.String("md5", md5), zap.Error(err))
		h.fail(c, failureMessage(err), err)
		return
	}

	if useCache {
		if err := h.cache.SetLayerResult(ctx, cacheKey, result); err != nil {
			utils.Logger.Warn("failed to set cache", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		Success: true,
		Message: "处理成功",
		Data:    result,
	})
}

// GetByMD5 根据MD5获取抠图结果
func (h *UploadHandler) GetByMD5(c *gin.Context) {
	md5 := c.Param("md5")
	if md5 == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "MD5参数缺失",
		})
		return
	}
	if h.cache == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "缓存未启用",
		})
		return
	}

	result, err := h.cache.GetLayerResult(c.Request.Context(), md5)
	if err != nil {
		utils.Logger.Error("failed to get layer result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "查询失败",
			Error:   err.Error(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该图片的抠图结果",
		})
		return
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		Success: true,
		Message: "查询成功",
		Data:    result,
	})
}

// Commands 列出可用的变换命令
func (h *UploadHandler) Commands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"commands": h.commands,
	})
}

// parseRequest 读取 seed_rect、seed_mask、matte、max_foreground_only
func (h *UploadHandler) parseRequest(c *gin.Context) (service.RemoveRequest, error) {
	req := service.RemoveRequest{
		Matte:             strings.TrimSpace(c.PostForm("matte")),
		MaxForegroundOnly: c.DefaultPostForm("max_foreground_only", "false") == "true",
	}
	if req.Matte != "" {
		if _, err := service.ParseMatte(req.Matte); err != nil {
			return req, err
		}
	}

	if s := strings.TrimSpace(c.PostForm("seed_rect")); s != "" {
		rect, err := parseRect(s)
		if err != nil {
			return req, err
		}
		req.SeedRect = &rect
	}

	if fh, err := c.FormFile("seed_mask"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return req, apperror.NewIO("open seed mask", fh.Filename, err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return req, apperror.NewIO("read seed mask", fh.Filename, err)
		}
		img, _, err := imageio.Decode(data)
		if err != nil {
			return req, err
		}
		req.Seed = model.NewSeedFromGray(toGray(img))
	}
	return req, nil
}

// parseRect 解析 "x,y,w,h"
func parseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, apperror.NewConfig(fmt.Sprintf("seed_rect %q must be x,y,w,h", s))
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, apperror.NewConfig(fmt.Sprintf("seed_rect %q must be x,y,w,h", s))
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, apperror.NewConfig("seed_rect width and height must be positive")
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

func readHead(open func() (multipart.File, error)) ([]byte, error) {
	f, err := open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	head := make([]byte, 3072)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return head[:n], nil
}

func (h *UploadHandler) fail(c *gin.Context, message string, err error) {
	c.JSON(apperror.StatusCode(err), model.ErrorResponse{
		Success: false,
		Message: message,
		Type:    string(apperror.TypeOf(err)),
		Error:   err.Error(),
	})
}

func failureMessage(err error) string {
	switch apperror.TypeOf(err) {
	case apperror.TypeLowConfidence:
		return "无法自动识别背景，请提供手动选区后重试"
	case apperror.TypeInvalidImage:
		return "图片无效或尺寸过小"
	case apperror.TypeBusy:
		return "处理队列已满，请稍后重试"
	case apperror.TypeCancelled:
		return "处理已取消"
	default:
		return "图片处理失败"
	}
}

func (h *UploadHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
