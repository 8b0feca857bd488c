package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	Batch        BatchConfig        `mapstructure:"batch"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	UploadDir    string   `mapstructure:"upload_dir"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// SegmentationConfig 抠图流水线参数
type SegmentationConfig struct {
	Engine               string  `mapstructure:"engine"`
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold"`
	BorderMarginFraction float64 `mapstructure:"border_margin_fraction"`
	BandCoverage         float64 `mapstructure:"band_coverage"`
	UnknownMarginPx      int     `mapstructure:"unknown_margin_px"`
	FarMargin            float64 `mapstructure:"far_margin"`
	MaxIterations        int     `mapstructure:"max_iterations"`
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold"`
	LikelihoodWeight     float64 `mapstructure:"likelihood_weight"`
	SmoothnessWeight     float64 `mapstructure:"smoothness_weight"`
	Components           int     `mapstructure:"components"`
	Softness             float64 `mapstructure:"softness"`
	FeatherRadius        int     `mapstructure:"feather_radius"`
	MinComponentSize     int     `mapstructure:"min_component_size"`
	DownsampleCeilingPx  int     `mapstructure:"downsample_ceiling_px"`
	Matte                string  `mapstructure:"matte"`
	MaxConcurrent        int     `mapstructure:"max_concurrent"`
	QueueTimeout         int     `mapstructure:"queue_timeout"`
	CleanupTempFiles     bool    `mapstructure:"cleanup_temp_files"`
}

// BatchConfig 文件夹批处理参数
type BatchConfig struct {
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	Workers   int    `mapstructure:"workers"`
}

// Load 从 YAML 文件加载配置，环境变量 MATTEKIT_* 可覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mattekit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 加载配置，失败时返回默认配置
func New(configPath string) *Config {
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := Load(configPath)
	if err != nil {
		return getDefaultConfig()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := getDefaultConfig()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.upload_dir", d.Upload.UploadDir)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	s := d.Segmentation
	v.SetDefault("segmentation.engine", s.Engine)
	v.SetDefault("segmentation.confidence_threshold", s.ConfidenceThreshold)
	v.SetDefault("segmentation.border_margin_fraction", s.BorderMarginFraction)
	v.SetDefault("segmentation.band_coverage", s.BandCoverage)
	v.SetDefault("segmentation.unknown_margin_px", s.UnknownMarginPx)
	v.SetDefault("segmentation.far_margin", s.FarMargin)
	v.SetDefault("segmentation.max_iterations", s.MaxIterations)
	v.SetDefault("segmentation.convergence_threshold", s.ConvergenceThreshold)
	v.SetDefault("segmentation.likelihood_weight", s.LikelihoodWeight)
	v.SetDefault("segmentation.smoothness_weight", s.SmoothnessWeight)
	v.SetDefault("segmentation.components", s.Components)
	v.SetDefault("segmentation.softness", s.Softness)
	v.SetDefault("segmentation.feather_radius", s.FeatherRadius)
	v.SetDefault("segmentation.min_component_size", s.MinComponentSize)
	v.SetDefault("segmentation.downsample_ceiling_px", s.DownsampleCeilingPx)
	v.SetDefault("segmentation.matte", s.Matte)
	v.SetDefault("segmentation.max_concurrent", s.MaxConcurrent)
	v.SetDefault("segmentation.queue_timeout", s.QueueTimeout)
	v.SetDefault("segmentation.cleanup_temp_files", s.CleanupTempFiles)

	v.SetDefault("batch.input_dir", d.Batch.InputDir)
	v.SetDefault("batch.output_dir", d.Batch.OutputDir)
	v.SetDefault("batch.workers", d.Batch.Workers)
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			TTL:       24 * time.Hour,
			KeyPrefix: "matte:",
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			UploadDir:    "./uploads",
			AllowedTypes: []string{"image/jpeg", "image/png", "image/bmp", "image/x-ms-bmp"},
		},
		Segmentation: SegmentationConfig{
			Engine:               "native",
			ConfidenceThreshold:  0.5,
			BorderMarginFraction: 0.05,
			BandCoverage:         0.7,
			UnknownMarginPx:      0,
			FarMargin:            0.15,
			MaxIterations:        8,
			ConvergenceThreshold: 0.01,
			LikelihoodWeight:     1.0,
			SmoothnessWeight:     50,
			Components:           3,
			Softness:             1.0,
			FeatherRadius:        1,
			MinComponentSize:     32,
			DownsampleCeilingPx:  1600,
			Matte:                "transparent",
			MaxConcurrent:        3,
			QueueTimeout:         30,
			CleanupTempFiles:     true,
		},
		Batch: BatchConfig{
			InputDir:  "./input",
			OutputDir: "./output",
			Workers:   runtime.NumCPU(),
		},
	}
}

// Default 默认配置
func Default() *Config {
	return getDefaultConfig()
}
