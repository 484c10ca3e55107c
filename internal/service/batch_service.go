package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veritag-api/internal/cache"
	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/logger"
	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/queue"
	"github.com/veritag-api/internal/repository"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// GenerationEnqueuer 生成/状态任务入队接口（注入式句柄，测试可替换）
type GenerationEnqueuer interface {
	Enabled() bool
	EnqueueGenerateItems(payload queue.GenerateItemsPayload, opts ...asynq.Option) error
	EnqueueBatchStatusUpdate(payload queue.BatchStatusUpdatePayload, opts ...asynq.Option) error
}

// JobInspector 队列任务检视接口
type JobInspector interface {
	Enabled() bool
	CountGenerationJobs(batchID uint) (queue.BatchJobCounts, error)
	ListFailedGenerationJobs(batchID uint) ([]*asynq.TaskInfo, error)
	DeleteGenerationJob(id string) error
}

// BatchServiceConfig 批次服务参数
type BatchServiceConfig struct {
	SyncThreshold  int
	JobChunkSize   int
	MaxItemsPerJob int
	EnqueueDelay   time.Duration
	QRCodePrefix   string
}

// NormalizeBatchServiceConfig 补齐默认参数
func NormalizeBatchServiceConfig(cfg BatchServiceConfig) BatchServiceConfig {
	if cfg.SyncThreshold <= 0 {
		cfg.SyncThreshold = constants.DefaultSyncThreshold
	}
	if cfg.JobChunkSize <= 0 {
		cfg.JobChunkSize = constants.DefaultJobChunkSize
	}
	if cfg.MaxItemsPerJob <= 0 {
		cfg.MaxItemsPerJob = constants.DefaultMaxItemsPerJob
	}
	if cfg.EnqueueDelay < 0 {
		cfg.EnqueueDelay = 0
	}
	if strings.TrimSpace(cfg.QRCodePrefix) == "" {
		cfg.QRCodePrefix = constants.DefaultQRCodePrefix
	}
	return cfg
}

// BatchService 批次编排服务：同步/异步分流与任务分发
type BatchService struct {
	batchRepo   repository.ProductBatchRepository
	itemRepo    repository.ProductItemRepository
	productRepo repository.ProductRepository
	queueClient GenerationEnqueuer
	inspector   JobInspector
	archive     *ArchiveService
	cfg         BatchServiceConfig
}

// NewBatchService 创建批次服务
func NewBatchService(
	batchRepo repository.ProductBatchRepository,
	itemRepo repository.ProductItemRepository,
	productRepo repository.ProductRepository,
	queueClient GenerationEnqueuer,
	inspector JobInspector,
	archive *ArchiveService,
	cfg BatchServiceConfig,
) *BatchService {
	return &BatchService{
		batchRepo:   batchRepo,
		itemRepo:    itemRepo,
		productRepo: productRepo,
		queueClient: queueClient,
		inspector:   inspector,
		archive:     archive,
		cfg:         NormalizeBatchServiceConfig(cfg),
	}
}

// CreateBatchInput 创建批次输入
type CreateBatchInput struct {
	ProductID    uint
	BatchCode    string
	Quantity     int
	QRCodePrefix string
}

// DispatchResult 异步分发结果
type DispatchResult struct {
	BatchID           uint     `json:"batch_id"`
	TotalQuantity     int      `json:"total_quantity"`
	JobsCreated       int      `json:"jobs_created"`
	JobIDs            []string `json:"job_ids"`
	EffectiveChunk    int      `json:"effective_chunk_size"`
	EstimatedDuration string   `json:"estimated_duration"`
}

// CreateBatch 创建批次并生成单品。
// 数量不超过同步阈值时直接在请求内生成；否则拆分为多个生成任务入队。
func (s *BatchService) CreateBatch(input CreateBatchInput) (*models.ProductBatch, *DispatchResult, error) {
	batchCode := strings.TrimSpace(input.BatchCode)
	if input.ProductID == 0 || batchCode == "" || input.Quantity <= 0 {
		return nil, nil, ErrBatchInvalid
	}

	product, err := s.productRepo.GetByID(input.ProductID)
	if err != nil {
		return nil, nil, ErrProductFetchFailed
	}
	if product == nil {
		return nil, nil, ErrProductNotFound
	}

	existing, err := s.batchRepo.GetByCode(batchCode)
	if err != nil {
		return nil, nil, ErrBatchFetchFailed
	}
	if existing != nil {
		return nil, nil, ErrBatchCodeExists
	}

	now := time.Now()
	batch := &models.ProductBatch{
		ProductID:      input.ProductID,
		BatchCode:      batchCode,
		Quantity:       input.Quantity,
		GenerateStatus: constants.BatchGenerateStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.batchRepo.Create(batch); err != nil {
		return nil, nil, ErrBatchCreateFailed
	}

	prefix := strings.TrimSpace(input.QRCodePrefix)
	if prefix == "" {
		prefix = s.cfg.QRCodePrefix
	}

	if input.Quantity <= s.cfg.SyncThreshold {
		if err := s.generateItemsSync(batch, prefix); err != nil {
			return nil, nil, err
		}
		return batch, nil, nil
	}

	result, err := s.DispatchGenerationJobs(batch, input.Quantity, prefix)
	if err != nil {
		return nil, nil, err
	}
	return batch, result, nil
}

// generateItemsSync 小批量同步生成，与异步路径共用同一套生成逻辑
func (s *BatchService) generateItemsSync(batch *models.ProductBatch, prefix string) error {
	lastSerial, err := s.itemRepo.LastSerialNumber(batch.ID)
	if err != nil {
		return ErrItemFetchFailed
	}
	baseOffset := ParseSerialSequence(lastSerial)

	now := time.Now()
	items := BuildBatchItems(batch.ID, batch.BatchCode, 0, batch.Quantity-1, baseOffset, prefix, now)

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.itemRepo.WithTx(tx).CreateBatch(items); err != nil {
			return err
		}
		affected, err := s.batchRepo.WithTx(tx).TransitionGenerateStatus(
			batch.ID,
			[]string{constants.BatchGenerateStatusPending},
			constants.BatchGenerateStatusCompleted,
			nil,
		)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrBatchCreateFailed
		}
		return nil
	})
	if err != nil {
		logger.Warnw("batch_sync_generate_failed", "batch_id", batch.ID, "error", err)
		return ErrItemCreateFailed
	}
	batch.GenerateStatus = constants.BatchGenerateStatusCompleted
	return nil
}

// DispatchGenerationJobs 将数量拆分为互不重叠的区间任务并入队。
// 任务 ID 为幂等键，靠前区间优先级更高并带更短的错峰延迟。
func (s *BatchService) DispatchGenerationJobs(batch *models.ProductBatch, quantity int, prefix string) (*DispatchResult, error) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return nil, ErrQueueDisabled
	}

	effectiveChunk := s.cfg.JobChunkSize
	if effectiveChunk > s.cfg.MaxItemsPerJob {
		effectiveChunk = s.cfg.MaxItemsPerJob
	}
	totalJobs := (quantity + effectiveChunk - 1) / effectiveChunk

	logger.Infow("batch_dispatch_start",
		"batch_id", batch.ID,
		"quantity", quantity,
		"total_jobs", totalJobs,
		"chunk_size", effectiveChunk,
	)

	jobIDs := make([]string, 0, totalJobs)
	for jobIndex := 0; jobIndex < totalJobs; jobIndex++ {
		startIndex := jobIndex * effectiveChunk
		endIndex := startIndex + effectiveChunk - 1
		if endIndex > quantity-1 {
			endIndex = quantity - 1
		}
		jobID := queue.GenerationJobID(batch.ID, jobIndex)
		payload := queue.GenerateItemsPayload{
			BatchID:       batch.ID,
			TotalQuantity: quantity,
			BatchSize:     effectiveChunk,
			StartIndex:    startIndex,
			EndIndex:      endIndex,
			QRCodePrefix:  prefix,
			Priority:      totalJobs - jobIndex,
		}
		err := s.queueClient.EnqueueGenerateItems(payload,
			asynq.TaskID(jobID),
			asynq.ProcessIn(time.Duration(jobIndex)*s.cfg.EnqueueDelay),
		)
		if err != nil {
			logger.Errorw("batch_dispatch_enqueue_failed", "batch_id", batch.ID, "job_id", jobID, "error", err)
			s.reportDispatchFailure(batch.ID, err)
			return nil, ErrEnqueueFailed
		}
		jobIDs = append(jobIDs, jobID)
	}

	logger.Infow("batch_dispatch_done", "batch_id", batch.ID, "jobs_created", len(jobIDs))
	return &DispatchResult{
		BatchID:           batch.ID,
		TotalQuantity:     quantity,
		JobsCreated:       len(jobIDs),
		JobIDs:            jobIDs,
		EffectiveChunk:    effectiveChunk,
		EstimatedDuration: estimateDuration(totalJobs),
	}, nil
}

// estimateDuration 按并发 2、单任务约 2 秒粗估总耗时
func estimateDuration(totalJobs int) string {
	seconds := (totalJobs + 1) / 2 * 2
	if seconds < 2 {
		seconds = 2
	}
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	return fmt.Sprintf("%d minutes", (seconds+59)/60)
}

// reportDispatchFailure 入队失败时同步回写批次失败状态
func (s *BatchService) reportDispatchFailure(batchID uint, cause error) {
	err := s.queueClient.EnqueueBatchStatusUpdate(queue.BatchStatusUpdatePayload{
		BatchID: batchID,
		Status:  constants.BatchGenerateStatusFailed,
		Error:   cause.Error(),
	})
	if err != nil {
		// 队列彻底不可用时直接落库
		if _, derr := s.batchRepo.TransitionGenerateStatus(
			batchID,
			[]string{constants.BatchGenerateStatusPending},
			constants.BatchGenerateStatusFailed,
			map[string]interface{}{"generate_error": cause.Error()},
		); derr != nil {
			logger.Errorw("batch_dispatch_failure_report_failed", "batch_id", batchID, "error", derr)
		}
	}
}

// RetryResult 失败任务重回队列的结果
type RetryResult struct {
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

// RetryFailedJobs 找出批次的终态失败任务，删除后以全新任务 ID 重新入队，
// 并把批次状态从 failed 重置回 pending。
func (s *BatchService) RetryFailedJobs(batchID uint) (*RetryResult, error) {
	if batchID == 0 {
		return nil, ErrBatchInvalid
	}
	if s.inspector == nil || !s.inspector.Enabled() {
		return nil, ErrQueueDisabled
	}
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return nil, ErrBatchFetchFailed
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}

	tasks, err := s.inspector.ListFailedGenerationJobs(batchID)
	if err != nil {
		return nil, ErrBatchFetchFailed
	}
	if len(tasks) == 0 {
		return &RetryResult{}, nil
	}

	// 必须先把批次拉回 pending 再入队：消费端会直接拒收
	// failed 状态批次的生成任务
	if _, err := s.batchRepo.TransitionGenerateStatus(
		batchID,
		[]string{constants.BatchGenerateStatusFailed},
		constants.BatchGenerateStatusPending,
		map[string]interface{}{"generate_error": ""},
	); err != nil {
		logger.Warnw("batch_retry_reset_status_failed", "batch_id", batchID, "error", err)
		return nil, ErrBatchFetchFailed
	}

	result := &RetryResult{}
	for _, task := range tasks {
		payload, err := queue.DecodeGenerateItemsPayload(task.Payload)
		if err != nil {
			logger.Warnw("batch_retry_decode_failed", "batch_id", batchID, "job_id", task.ID, "error", err)
			result.Failed++
			continue
		}
		if err := s.inspector.DeleteGenerationJob(task.ID); err != nil {
			logger.Warnw("batch_retry_delete_failed", "batch_id", batchID, "job_id", task.ID, "error", err)
			result.Failed++
			continue
		}
		freshID := fmt.Sprintf("%sretry-%s", queue.GenerationJobIDPrefix(batchID), uuid.NewString()[:8])
		if err := s.queueClient.EnqueueGenerateItems(payload, asynq.TaskID(freshID)); err != nil {
			logger.Warnw("batch_retry_enqueue_failed", "batch_id", batchID, "job_id", freshID, "error", err)
			result.Failed++
			continue
		}
		result.Requeued++
	}

	if result.Requeued == 0 {
		// 一个任务都没能重新入队，批次回到 failed 以便再次重试
		if _, err := s.batchRepo.TransitionGenerateStatus(
			batchID,
			[]string{constants.BatchGenerateStatusPending},
			constants.BatchGenerateStatusFailed,
			map[string]interface{}{"generate_error": "重试任务重新入队失败"},
		); err != nil {
			logger.Warnw("batch_retry_revert_status_failed", "batch_id", batchID, "error", err)
		}
	}
	return result, nil
}

// BatchProgress 批次生成进度
type BatchProgress struct {
	BatchID        uint    `json:"batch_id"`
	Status         string  `json:"status"`
	TotalQuantity  int     `json:"total_quantity"`
	GeneratedCount int64   `json:"generated_count"`
	Percentage     float64 `json:"percentage"`
	IsCompleted    bool    `json:"is_completed"`
	TotalJobs      int     `json:"total_jobs"`
	WaitingJobs    int     `json:"waiting_jobs"`
	ActiveJobs     int     `json:"active_jobs"`
	CompletedJobs  int     `json:"completed_jobs"`
	FailedJobs     int     `json:"failed_jobs"`
	GenerateError  string  `json:"generate_error,omitempty"`
}

// Progress 汇总批次的生成进度：落库单品计数加队列任务分布。
// 结果短暂缓存，避免高频轮询打穿队列检视接口。
func (s *BatchService) Progress(ctx context.Context, batchID uint) (*BatchProgress, error) {
	if batchID == 0 {
		return nil, ErrBatchInvalid
	}

	cacheKey := fmt.Sprintf("batch:progress:%d", batchID)
	if cache.Enabled() {
		var cached BatchProgress
		if ok, err := cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return nil, ErrBatchFetchFailed
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}

	generated, err := s.itemRepo.CountByBatch(batchID)
	if err != nil {
		return nil, ErrItemFetchFailed
	}

	progress := &BatchProgress{
		BatchID:        batch.ID,
		Status:         batch.GenerateStatus,
		TotalQuantity:  batch.Quantity,
		GeneratedCount: generated,
		IsCompleted:    batch.GenerateStatus == constants.BatchGenerateStatusCompleted,
		GenerateError:  batch.GenerateError,
	}
	if batch.Quantity > 0 {
		progress.Percentage = float64(generated) / float64(batch.Quantity) * 100
		if progress.Percentage > 100 {
			progress.Percentage = 100
		}
	}

	if s.inspector != nil && s.inspector.Enabled() {
		counts, err := s.inspector.CountGenerationJobs(batchID)
		if err != nil {
			logger.Warnw("batch_progress_count_jobs_failed", "batch_id", batchID, "error", err)
		} else {
			progress.TotalJobs = counts.TotalJobs
			progress.WaitingJobs = counts.Waiting
			progress.ActiveJobs = counts.Active
			progress.CompletedJobs = counts.Completed
			progress.FailedJobs = counts.Failed
		}
	}

	if cache.Enabled() {
		if err := cache.SetJSON(ctx, cacheKey, progress, 5*time.Second); err != nil {
			logger.Warnw("batch_progress_cache_failed", "batch_id", batchID, "error", err)
		}
	}
	return progress, nil
}

// GetBatch 获取批次
func (s *BatchService) GetBatch(batchID uint) (*models.ProductBatch, error) {
	if batchID == 0 {
		return nil, ErrBatchInvalid
	}
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return nil, ErrBatchFetchFailed
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

// ListBatches 获取批次列表
func (s *BatchService) ListBatches(filter repository.BatchListFilter) ([]models.ProductBatch, int64, error) {
	items, total, err := s.batchRepo.List(filter)
	if err != nil {
		return nil, 0, ErrBatchFetchFailed
	}
	return items, total, nil
}

// ListBatchItems 分页获取批次单品
func (s *BatchService) ListBatchItems(batchID uint, page, pageSize int) ([]models.ProductItem, int64, error) {
	if batchID == 0 {
		return nil, 0, ErrBatchInvalid
	}
	items, total, err := s.itemRepo.ListByBatch(batchID, page, pageSize)
	if err != nil {
		return nil, 0, ErrItemFetchFailed
	}
	return items, total, nil
}

// DeleteBatch 软删除批次及其单品，并清理归档产物
func (s *BatchService) DeleteBatch(batchID uint) error {
	if batchID == 0 {
		return ErrBatchInvalid
	}
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return ErrBatchFetchFailed
	}
	if batch == nil {
		return ErrBatchNotFound
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := s.itemRepo.WithTx(tx).DeleteByBatch(batchID); err != nil {
			return err
		}
		return s.batchRepo.WithTx(tx).Delete(batchID)
	})
	if err != nil {
		return ErrBatchDeleteFailed
	}

	if s.archive != nil {
		if err := s.archive.RemoveArchive(batchID); err != nil {
			logger.Warnw("batch_delete_remove_archive_failed", "batch_id", batchID, "error", err)
		}
	}
	return nil
}
