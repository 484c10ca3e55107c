package queue

import (
	"encoding/json"
	"fmt"

	"github.com/veritag-api/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskBatchGenerateItems 批次单品生成任务
	TaskBatchGenerateItems = constants.TaskBatchGenerateItems
	// TaskBatchStatusUpdate 批次状态回写任务
	TaskBatchStatusUpdate = constants.TaskBatchStatusUpdate
)

// GenerateItemsPayload 批次单品生成任务载荷。
// 每个任务负责 [StartIndex, EndIndex] 的闭区间，区间之间互不重叠。
type GenerateItemsPayload struct {
	BatchID       uint   `json:"batch_id"`
	TotalQuantity int    `json:"total_quantity"`
	BatchSize     int    `json:"batch_size"`
	StartIndex    int    `json:"start_index"`
	EndIndex      int    `json:"end_index"`
	QRCodePrefix  string `json:"qr_code_prefix,omitempty"`
	Priority      int    `json:"priority"`
}

// BatchStatusUpdatePayload 批次状态回写任务载荷
type BatchStatusUpdatePayload struct {
	BatchID        uint   `json:"batch_id"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	ProcessedCount int    `json:"processed_count,omitempty"`
}

// NewGenerateItemsTask 创建批次单品生成任务
func NewGenerateItemsTask(payload GenerateItemsPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchGenerateItems, body), nil
}

// NewBatchStatusUpdateTask 创建批次状态回写任务
func NewBatchStatusUpdateTask(payload BatchStatusUpdatePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchStatusUpdate, body), nil
}

// DecodeGenerateItemsPayload 解析批次单品生成任务载荷
func DecodeGenerateItemsPayload(body []byte) (GenerateItemsPayload, error) {
	var payload GenerateItemsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("解析生成任务载荷失败: %w", err)
	}
	return payload, nil
}

// DecodeBatchStatusUpdatePayload 解析批次状态回写任务载荷
func DecodeBatchStatusUpdatePayload(body []byte) (BatchStatusUpdatePayload, error) {
	var payload BatchStatusUpdatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("解析状态回写任务载荷失败: %w", err)
	}
	return payload, nil
}

// GenerationJobID 生成任务的幂等 ID，同一批次同一区间重复入队会被去重
func GenerationJobID(batchID uint, jobIndex int) string {
	return fmt.Sprintf("batch-%d-job-%d", batchID, jobIndex)
}

// GenerationJobIDPrefix 批次生成任务 ID 前缀（进度查询按前缀过滤）
func GenerationJobIDPrefix(batchID uint) string {
	return fmt.Sprintf("batch-%d-job-", batchID)
}
