package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/veritag-api/internal/config"
	"github.com/veritag-api/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// GenerationQueue 生成任务队列
	GenerationQueue = constants.QueueGeneration
	// StatusQueue 状态回写任务队列
	StatusQueue = constants.QueueStatus

	// 任务完成/失败后保留一段时间供检视，而不是永久堆积
	generationRetention = 24 * time.Hour
	statusRetention     = 2 * time.Hour
)

// Client 队列客户端封装
type Client struct {
	client  *asynq.Client
	enabled bool
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false}, nil
	}
	opt := buildRedisOpt(cfg)
	client := asynq.NewClient(opt)
	return &Client{
		client:  client,
		enabled: true,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueGenerateItems 推送批次单品生成任务
func (c *Client) EnqueueGenerateItems(payload GenerateItemsPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewGenerateItemsTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{
		asynq.Queue(GenerationQueue),
		asynq.MaxRetry(3),
		asynq.Retention(generationRetention),
	}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// EnqueueBatchStatusUpdate 推送批次状态回写任务
func (c *Client) EnqueueBatchStatusUpdate(payload BatchStatusUpdatePayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewBatchStatusUpdateTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{
		asynq.Queue(StatusQueue),
		asynq.MaxRetry(3),
		asynq.Retention(statusRetention),
	}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 7
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{
		StatusQueue:     5,
		GenerationQueue: 2,
	}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         queues,
		RetryDelayFunc: retryDelay,
	}
}

// retryDelay 指数退避：2s、4s、8s……
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	return time.Duration(1<<uint(n)) * 2 * time.Second
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
