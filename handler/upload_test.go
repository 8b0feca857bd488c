package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/TIANLI0/MatteKit/apperror"
	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/imageio"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemover struct {
	mu    sync.Mutex
	calls int
	last  service.RemoveRequest
	err   error
}

func (f *fakeRemover) ProcessImage(_ context.Context, imagePath, md5 string, req service.RemoveRequest) (*model.LayerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(imagePath); err != nil {
		return nil, err
	}
	return &model.LayerResult{MD5: md5, Width: 8, Height: 8, Converged: true}, nil
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*model.LayerResult
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string]*model.LayerResult)}
}

func (m *memoryCache) GetLayerResult(_ context.Context, key string) (*model.LayerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *memoryCache) SetLayerResult(_ context.Context, key string, result *model.LayerResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = result
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Upload.UploadDir = t.TempDir()
	return cfg
}

func newTestRouter(h *UploadHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/upload", h.Upload)
	r.GET("/layer/:md5", h.GetByMD5)
	r.GET("/commands", h.Commands)
	return r
}

func pngBytes(t *testing.T) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.Set(4, 4, color.NRGBA{R: 255, A: 255})
	data, err := imageio.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestUploadSuccessAndCacheHit(t *testing.T) {
	cfg := testConfig(t)
	remover := &fakeRemover{}
	cache := newMemoryCache()
	r := newTestRouter(NewUploadHandler(cfg, cache, remover, nil))
	data := pngBytes(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "a.png", data, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[model.UploadResponse](t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.NotEmpty(t, resp.Data.MD5)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "b.png", data, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, remover.calls)
	assert.Contains(t, decodeBody[model.UploadResponse](t, rec).Message, "缓存")

	// 临时文件已清理
	entries, err := os.ReadDir(cfg.Upload.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadVariantsUseSeparateCacheKeys(t *testing.T) {
	remover := &fakeRemover{}
	r := newTestRouter(NewUploadHandler(testConfig(t), newMemoryCache(), remover, nil))
	data := pngBytes(t)

	for _, fields := range []map[string]string{nil, {"max_foreground_only": "true"}, {"matte": "white"}} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, uploadRequest(t, "a.png", data, fields))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 3, remover.calls)
}

func TestUploadSeedRectBypassesCache(t *testing.T) {
	remover := &fakeRemover{}
	cache := newMemoryCache()
	r := newTestRouter(NewUploadHandler(testConfig(t), cache, remover, nil))
	data := pngBytes(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, uploadRequest(t, "a.png", data, map[string]string{"seed_rect": "1, 2, 4, 5"}))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, remover.calls)
	assert.Empty(t, cache.items)
	require.NotNil(t, remover.last.SeedRect)
	assert.Equal(t, image.Rect(1, 2, 5, 7), *remover.last.SeedRect)
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		fields map[string]string
		err    error
		status int
		typ    apperror.Type
	}{
		{name: "not an image", data: []byte("hello, world"), status: http.StatusBadRequest, typ: apperror.TypeInvalidImage},
		{name: "bad seed rect", fields: map[string]string{"seed_rect": "1,2,3"}, status: http.StatusBadRequest, typ: apperror.TypeConfig},
		{name: "bad matte", fields: map[string]string{"matte": "chartreuse"}, status: http.StatusBadRequest, typ: apperror.TypeConfig},
		{name: "low confidence", err: apperror.NewLowConfidence("busy border"), status: http.StatusUnprocessableEntity, typ: apperror.TypeLowConfidence},
		{name: "busy", err: apperror.NewBusy(context.DeadlineExceeded), status: http.StatusTooManyRequests, typ: apperror.TypeBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = pngBytes(t)
			}
			r := newTestRouter(NewUploadHandler(testConfig(t), nil, &fakeRemover{err: tt.err}, nil))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, uploadRequest(t, "a.png", data, tt.fields))

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[model.ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.typ), resp.Type)
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upload.MaxSize = 10
	r := newTestRouter(NewUploadHandler(cfg, nil, &fakeRemover{}, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "a.png", pngBytes(t), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetByMD5(t *testing.T) {
	cache := newMemoryCache()
	cache.items["abc"] = &model.LayerResult{MD5: "abc"}

	r := newTestRouter(NewUploadHandler(testConfig(t), cache, &fakeRemover{}, nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/layer/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", decodeBody[model.UploadResponse](t, rec).Data.MD5)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/layer/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	r = newTestRouter(NewUploadHandler(testConfig(t), nil, &fakeRemover{}, nil))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/layer/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommands(t *testing.T) {
	commands := []model.CommandInfo{{Name: "remove_background", Description: "x"}}
	r := newTestRouter(NewUploadHandler(testConfig(t), nil, &fakeRemover{}, commands))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/commands", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success  bool                `json:"success"`
		Commands []model.CommandInfo `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, commands, body.Commands)
}

func TestParseRect(t *testing.T) {
	rect, err := parseRect("10,20,30,40")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 20, 40, 60), rect)

	for _, s := range []string{"", "1,2,3", "a,b,c,d", "0,0,0,5", "0,0,5,-1"} {
		_, err := parseRect(s)
		assert.True(t, apperror.IsType(err, apperror.TypeConfig), s)
	}
}
