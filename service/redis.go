package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResultCache 抠图结果缓存
type ResultCache interface {
	GetLayerResult(ctx context.Context, key string) (*model.LayerResult, error)
	SetLayerResult(ctx context.Context, key string, result *model.LayerResult) error
}

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return NewRedisServiceWithClient(client, cfg.TTL, cfg.KeyPrefix)
}

// NewRedisServiceWithClient 使用已有客户端
func NewRedisServiceWithClient(client *redis.Client, ttl time.Duration, prefix string) *RedisService {
	return &RedisService{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) key(k string) string {
	return s.prefix + "layer:" + k
}

// GetLayerResult 从缓存获取抠图结果，未命中时返回 nil, nil
func (s *RedisService) GetLayerResult(ctx context.Context, key string) (*model.LayerResult, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var result model.LayerResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal layer result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetLayerResult 设置抠图结果到缓存
func (s *RedisService) SetLayerResult(ctx context.Context, key string, result *model.LayerResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, s.key(key), data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
