package provider

import (
	"time"

	"github.com/veritag-api/internal/cache"
	"github.com/veritag-api/internal/config"
	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/logger"
	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/queue"
	"github.com/veritag-api/internal/repository"
	"github.com/veritag-api/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Inspector   *queue.Inspector

	// Repositories
	ProductRepo repository.ProductRepository
	BatchRepo   repository.ProductBatchRepository
	ItemRepo    repository.ProductItemRepository
	ScanLogRepo repository.ScanLogRepository

	// Services
	ProductService       *service.ProductService
	BatchService         *service.BatchService
	ArchiveService       *service.ArchiveService
	ScanService          *service.ScanService
	DownloadTokenService *service.DownloadTokenService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端与检视器
	var queueClient *queue.Client
	var inspector *queue.Inspector
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
		inspector = queue.NewInspector(&cfg.Queue)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Inspector:   inspector,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.ProductRepo = repository.NewProductRepository(db)
	c.BatchRepo = repository.NewProductBatchRepository(db)
	c.ItemRepo = repository.NewProductItemRepository(db)
	c.ScanLogRepo = repository.NewScanLogRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config

	c.ProductService = service.NewProductService(c.ProductRepo)

	c.ArchiveService = service.NewArchiveService(c.BatchRepo, c.ItemRepo, service.ArchiveServiceConfig{
		Dir:           cfg.Archive.Dir,
		PageSize:      cfg.Archive.PageSize,
		PageDelay:     time.Duration(cfg.Archive.PageDelayMS) * time.Millisecond,
		QRBaseURL:     cfg.Archive.QRBaseURL,
		QRImageSize:   cfg.Archive.QRImageSize,
		WatermarkPath: cfg.Archive.WatermarkPath,
	})

	c.BatchService = service.NewBatchService(
		c.BatchRepo,
		c.ItemRepo,
		c.ProductRepo,
		c.QueueClient,
		c.Inspector,
		c.ArchiveService,
		service.BatchServiceConfig{
			SyncThreshold:  cfg.Batch.SyncThreshold,
			JobChunkSize:   cfg.Batch.JobChunkSize,
			MaxItemsPerJob: cfg.Batch.MaxItemsPerJob,
			EnqueueDelay:   time.Duration(constants.DefaultEnqueueDelayMS) * time.Millisecond,
			QRCodePrefix:   cfg.Batch.QRCodePrefix,
		},
	)

	c.ScanService = service.NewScanService(c.ItemRepo, c.ProductRepo, c.BatchRepo, c.ScanLogRepo)

	c.DownloadTokenService = service.NewDownloadTokenService(
		cfg.DownloadToken.Secret,
		time.Duration(cfg.DownloadToken.ExpireMinutes)*time.Minute,
	)
}
