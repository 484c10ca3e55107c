package config

import (
	"fmt"
	"strings"

	"github.com/veritag-api/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Batch         BatchConfig         `mapstructure:"batch"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	DownloadToken DownloadTokenConfig `mapstructure:"download_token"`
	Security      SecurityConfig      `mapstructure:"security"`
	CORS          CORSConfig          `mapstructure:"cors"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// BatchConfig 批次生成配置
type BatchConfig struct {
	SyncThreshold     int    `mapstructure:"sync_threshold"`      // 同步生成阈值
	JobChunkSize      int    `mapstructure:"job_chunk_size"`      // 每个任务负责的区间大小
	MaxItemsPerJob    int    `mapstructure:"max_items_per_job"`   // 单任务区间上限
	SubChunkSize      int    `mapstructure:"sub_chunk_size"`      // 单次写库条数上限
	InsertAttempts    int    `mapstructure:"insert_attempts"`     // 子块写库尝试次数
	WorkerConcurrency int    `mapstructure:"worker_concurrency"`  // 同时执行的生成任务数
	StartLimitMax     int    `mapstructure:"start_limit_max"`     // 限流窗口内最大任务启动数
	StartLimitWindowS int    `mapstructure:"start_limit_window_s"` // 限流窗口秒数
	QRCodePrefix      string `mapstructure:"qr_code_prefix"`      // 扫码串前缀
}

// ArchiveConfig 码图归档配置
type ArchiveConfig struct {
	Dir           string `mapstructure:"dir"`            // 归档输出目录
	PageSize      int    `mapstructure:"page_size"`      // 单页拉取条数
	PageDelayMS   int    `mapstructure:"page_delay_ms"`  // 相邻页之间的间隔
	QRBaseURL     string `mapstructure:"qr_base_url"`    // 扫码校验地址前缀
	QRImageSize   int    `mapstructure:"qr_image_size"`  // 码图边长（像素）
	WatermarkPath string `mapstructure:"watermark_path"` // 水印图片路径（可选）
}

// DownloadTokenConfig 下载令牌配置
type DownloadTokenConfig struct {
	Secret        string `mapstructure:"secret"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	ScanRateLimit ScanRateLimitConfig `mapstructure:"scan_rate_limit"`
}

// ScanRateLimitConfig 扫码接口限流配置
type ScanRateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/veritag.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "vt")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 7)
	viper.SetDefault("queue.queues", map[string]int{
		"status":     5,
		"generation": 2,
	})
	viper.SetDefault("batch.sync_threshold", 10)
	viper.SetDefault("batch.job_chunk_size", 100)
	viper.SetDefault("batch.max_items_per_job", 1000)
	viper.SetDefault("batch.sub_chunk_size", 50)
	viper.SetDefault("batch.insert_attempts", 3)
	viper.SetDefault("batch.worker_concurrency", 2)
	viper.SetDefault("batch.start_limit_max", 5)
	viper.SetDefault("batch.start_limit_window_s", 10)
	viper.SetDefault("batch.qr_code_prefix", "QR")
	viper.SetDefault("archive.dir", "./downloads")
	viper.SetDefault("archive.page_size", 200)
	viper.SetDefault("archive.page_delay_ms", 10)
	viper.SetDefault("archive.qr_base_url", "https://verify.veritag.local/scan")
	viper.SetDefault("archive.qr_image_size", 256)
	viper.SetDefault("archive.watermark_path", "")
	viper.SetDefault("download_token.secret", "change-me-in-production")
	viper.SetDefault("download_token.expire_minutes", 30)
	viper.SetDefault("security.scan_rate_limit.window_seconds", 60)
	viper.SetDefault("security.scan_rate_limit.max_requests", 30)
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allow_credentials", false)
	viper.SetDefault("cors.max_age", 3600)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warnw("config_file_not_found_use_defaults")
		} else {
			logger.Warnw("config_read_failed", "error", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("配置解析失败: %v", err))
	}
	normalizeConfig(&cfg)
	return &cfg
}

func normalizeConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Server.Mode) == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Batch.SyncThreshold <= 0 {
		cfg.Batch.SyncThreshold = 10
	}
	if cfg.Batch.JobChunkSize <= 0 {
		cfg.Batch.JobChunkSize = 100
	}
	if cfg.Batch.MaxItemsPerJob <= 0 {
		cfg.Batch.MaxItemsPerJob = 1000
	}
	if cfg.Batch.SubChunkSize <= 0 {
		cfg.Batch.SubChunkSize = 50
	}
	if cfg.Batch.InsertAttempts <= 0 {
		cfg.Batch.InsertAttempts = 3
	}
	if cfg.Batch.WorkerConcurrency <= 0 {
		cfg.Batch.WorkerConcurrency = 2
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = "./downloads"
	}
	if cfg.Archive.PageSize <= 0 {
		cfg.Archive.PageSize = 200
	}
	if cfg.Archive.QRImageSize <= 0 {
		cfg.Archive.QRImageSize = 256
	}
}
