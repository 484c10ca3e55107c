package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veritag-api/internal/cache"
	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/logger"
	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/provider"
	"github.com/veritag-api/internal/queue"
	"github.com/veritag-api/internal/repository"
	"github.com/veritag-api/internal/service"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/semaphore"
)

const (
	subChunkDelay       = time.Duration(constants.DefaultSubChunkDelayMS) * time.Millisecond
	insertRetryBaseWait = 200 * time.Millisecond
	jobProgressTTL      = time.Hour
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container

	sem     *semaphore.Weighted
	limiter *StartLimiter
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	concurrency := 2
	limitMax := 0
	limitWindow := time.Duration(0)
	if c != nil && c.Config != nil {
		concurrency = c.Config.Batch.WorkerConcurrency
		limitMax = c.Config.Batch.StartLimitMax
		limitWindow = time.Duration(c.Config.Batch.StartLimitWindowS) * time.Second
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Consumer{
		Container: c,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		limiter:   NewStartLimiter(limitMax, limitWindow),
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskBatchGenerateItems, c.handleGenerateItems)
	mux.HandleFunc(queue.TaskBatchStatusUpdate, c.handleBatchStatusUpdate)
}

// jobProgress 单个生成任务的进度快照，写入缓存供进度接口展示
type jobProgress struct {
	BatchID       uint     `json:"batch_id"`
	Processed     int      `json:"processed"`
	Total         int      `json:"total"`
	CurrentChunk  int      `json:"current_chunk"`
	TotalChunks   int      `json:"total_chunks"`
	Errors        []string `json:"errors,omitempty"`
	UpdatedAtUnix int64    `json:"updated_at"`
}

func (c *Consumer) handleGenerateItems(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_generate_items_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.DecodeGenerateItemsPayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_generate_items_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.BatchID == 0 || payload.EndIndex < payload.StartIndex {
		logger.Warnw("worker_generate_items_invalid_payload",
			"batch_id", payload.BatchID, "start", payload.StartIndex, "end", payload.EndIndex)
		return fmt.Errorf("%w: invalid generate payload", asynq.SkipRetry)
	}

	// 限制同时执行的生成任务数，并对任务启动做窗口限流
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	batch, err := c.BatchRepo.GetByID(payload.BatchID)
	if err != nil {
		return c.failJob(payload.BatchID, fmt.Errorf("读取批次失败: %w", err))
	}
	if batch == nil {
		return c.failJob(payload.BatchID, fmt.Errorf("批次 %d 不存在", payload.BatchID))
	}
	if batch.GenerateStatus == constants.BatchGenerateStatusFailed {
		logger.Warnw("worker_generate_items_batch_failed_state", "batch_id", batch.ID)
		return fmt.Errorf("%w: batch %d: %w", asynq.SkipRetry, batch.ID, service.ErrBatchFailedState)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	logger.Infow("worker_generate_items_start",
		"batch_id", batch.ID, "task_id", taskID,
		"start", payload.StartIndex, "end", payload.EndIndex)

	subChunk := c.Config.Batch.SubChunkSize
	if payload.BatchSize > 0 && payload.BatchSize < subChunk {
		subChunk = payload.BatchSize
	}
	if subChunk <= 0 {
		subChunk = constants.DefaultSubChunkSize
	}

	// 序号由全局下标直接决定，任务重投会撞唯一索引或命中跳过检查，
	// 只有发生序号冲突时才重读基准
	baseOffset := 0

	total := payload.EndIndex - payload.StartIndex + 1
	progress := jobProgress{
		BatchID:     batch.ID,
		Total:       total,
		TotalChunks: (total + subChunk - 1) / subChunk,
	}
	c.reportProgress(ctx, taskID, &progress)

	for currentStart := payload.StartIndex; currentStart <= payload.EndIndex; currentStart += subChunk {
		currentEnd := currentStart + subChunk - 1
		if currentEnd > payload.EndIndex {
			currentEnd = payload.EndIndex
		}
		size := currentEnd - currentStart + 1
		progress.CurrentChunk++

		inserted, chunkErr := c.insertSubChunk(ctx, batch, currentStart, currentEnd, &baseOffset, payload.QRCodePrefix)
		if chunkErr != nil {
			// 子块重试耗尽后记录错误并继续，不终止整个任务
			msg := fmt.Sprintf("items %d-%d: %v", currentStart, currentEnd, chunkErr)
			progress.Errors = append(progress.Errors, msg)
			logger.Errorw("worker_generate_items_chunk_failed",
				"batch_id", batch.ID, "start", currentStart, "end", currentEnd, "error", chunkErr)
		} else {
			progress.Processed += size
			if inserted < size {
				logger.Debugw("worker_generate_items_chunk_partial_skip",
					"batch_id", batch.ID, "start", currentStart, "end", currentEnd, "inserted", inserted)
			}
		}
		c.reportProgress(ctx, taskID, &progress)

		if currentEnd < payload.EndIndex && subChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(subChunkDelay):
			}
		}
	}

	logger.Infow("worker_generate_items_done",
		"batch_id", batch.ID, "task_id", taskID,
		"processed", progress.Processed, "total", total, "errors", len(progress.Errors))

	return c.detectCompletion(batch.ID, batch.Quantity)
}

// insertSubChunk 写入一个子块，失败时指数退避重试。
// 撞唯一索引说明序号基准已被并发任务推进，重读基准后再试。
func (c *Consumer) insertSubChunk(ctx context.Context, batch *models.ProductBatch, startIndex, endIndex int, baseOffset *int, prefix string) (int, error) {
	attempts := c.Config.Batch.InsertAttempts
	if attempts <= 0 {
		attempts = constants.DefaultInsertAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := insertRetryBaseWait << uint(attempt-1)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
		}

		// 基准右移后截掉会超出批次总量的下标，保证落库量不超过申请量
		end := endIndex
		if batch.Quantity > 0 {
			if limit := batch.Quantity - 1 - *baseOffset; limit < end {
				end = limit
			}
		}
		if end < startIndex {
			return 0, nil
		}
		size := end - startIndex + 1

		// 任务重试时整块已写入则直接跳过，避免重复生成
		existing, err := c.ItemRepo.CountByOrderRange(batch.ID, *baseOffset+startIndex+1, *baseOffset+end+1)
		if err == nil && existing >= int64(size) {
			return 0, nil
		}

		items := service.BuildBatchItems(batch.ID, batch.BatchCode, startIndex, end, *baseOffset, prefix, time.Now())
		err = c.ItemRepo.CreateBatch(items)
		if err == nil {
			return len(items), nil
		}
		lastErr = err
		if repository.IsDuplicateKeyError(err) {
			lastSerial, serr := c.ItemRepo.LastSerialNumber(batch.ID)
			if serr == nil {
				// 让本块首个序号落在当前最大序号之后
				*baseOffset = service.ParseSerialSequence(lastSerial) - startIndex
				if *baseOffset < 0 {
					*baseOffset = 0
				}
			}
			logger.Warnw("worker_insert_chunk_serial_conflict",
				"batch_id", batch.ID, "start", startIndex, "end", endIndex, "new_base", *baseOffset)
			continue
		}
		logger.Warnw("worker_insert_chunk_retry",
			"batch_id", batch.ID, "start", startIndex, "end", endIndex, "attempt", attempt+1, "error", err)
	}
	return 0, lastErr
}

// detectCompletion 任务收尾时检查批次是否已生成完整，满量则触发归档
func (c *Consumer) detectCompletion(batchID uint, quantity int) error {
	count, err := c.ItemRepo.CountByBatch(batchID)
	if err != nil {
		return fmt.Errorf("完成度检查失败: %w", err)
	}
	if count < int64(quantity) {
		logger.Debugw("worker_completion_pending", "batch_id", batchID, "count", count, "quantity", quantity)
		return nil
	}
	logger.Infow("worker_completion_reached", "batch_id", batchID, "count", count, "quantity", quantity)
	if err := c.ArchiveService.BuildArchive(batchID); err != nil {
		return fmt.Errorf("归档失败: %w", err)
	}
	return nil
}

// failJob 任务级失败：先把失败状态回写到批次，再把错误抛回队列重试
func (c *Consumer) failJob(batchID uint, cause error) error {
	if c.QueueClient != nil {
		if err := c.QueueClient.EnqueueBatchStatusUpdate(queue.BatchStatusUpdatePayload{
			BatchID: batchID,
			Status:  constants.BatchGenerateStatusFailed,
			Error:   cause.Error(),
		}); err != nil {
			logger.Errorw("worker_fail_job_report_failed", "batch_id", batchID, "error", err)
		}
	}
	return cause
}

// reportProgress 把任务进度写入缓存，供进度查询接口展示
func (c *Consumer) reportProgress(ctx context.Context, taskID string, progress *jobProgress) {
	if !cache.Enabled() || strings.TrimSpace(taskID) == "" {
		return
	}
	progress.UpdatedAtUnix = time.Now().Unix()
	key := fmt.Sprintf("batch:jobprogress:%d:%s", progress.BatchID, taskID)
	if err := cache.SetJSON(ctx, key, progress, jobProgressTTL); err != nil {
		logger.Debugw("worker_report_progress_failed", "batch_id", progress.BatchID, "task_id", taskID, "error", err)
	}
}

func (c *Consumer) handleBatchStatusUpdate(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_status_update_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.DecodeBatchStatusUpdatePayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_status_update_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.BatchID == 0 {
		logger.Debugw("worker_status_update_skip_invalid_payload", "batch_id", payload.BatchID)
		return nil
	}

	var from []string
	updates := map[string]interface{}{}
	switch payload.Status {
	case constants.BatchGenerateStatusFailed:
		from = []string{constants.BatchGenerateStatusPending, constants.BatchGenerateStatusArchiving}
		updates["generate_error"] = payload.Error
	case constants.BatchGenerateStatusPending:
		from = []string{constants.BatchGenerateStatusFailed}
		updates["generate_error"] = ""
	case constants.BatchGenerateStatusCompleted:
		from = []string{constants.BatchGenerateStatusPending, constants.BatchGenerateStatusArchiving}
	default:
		logger.Warnw("worker_status_update_unknown_status", "batch_id", payload.BatchID, "status", payload.Status)
		return nil
	}

	affected, err := c.BatchRepo.TransitionGenerateStatus(payload.BatchID, from, payload.Status, updates)
	if err != nil {
		logger.Warnw("worker_status_update_failed", "batch_id", payload.BatchID, "status", payload.Status, "error", err)
		return err
	}
	if affected == 0 {
		// 批次已处于终态，回写被状态机拦下
		logger.Debugw("worker_status_update_skipped", "batch_id", payload.BatchID, "status", payload.Status)
		return nil
	}
	logger.Infow("worker_status_update_done",
		"batch_id", payload.BatchID, "status", payload.Status, "processed", payload.ProcessedCount)
	return nil
}
