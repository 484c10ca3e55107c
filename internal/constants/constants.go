package constants

// 批次生成状态常量
const (
	BatchGenerateStatusPending   = "pending"
	BatchGenerateStatusArchiving = "archiving"
	BatchGenerateStatusCompleted = "completed"
	BatchGenerateStatusFailed    = "failed"
)

// 单品扫码状态常量
const (
	ItemStatusUnscanned = "unscanned"
	ItemStatusScanned   = "scanned"
	ItemStatusFlagged   = "flagged"
)

// 队列与任务常量
const (
	QueueGeneration        = "generation"
	QueueStatus            = "status"
	TaskBatchGenerateItems = "batch:generate_items"
	TaskBatchStatusUpdate  = "batch:status_update"
)

// 批次生成默认参数
const (
	DefaultSyncThreshold   = 10   // 小于等于该数量时同步生成
	DefaultJobChunkSize    = 100  // 每个任务负责的索引区间大小
	DefaultMaxItemsPerJob  = 1000 // 单个任务区间的上限
	DefaultSubChunkSize    = 50   // 单次批量写库的条数上限
	DefaultInsertAttempts  = 3    // 子块写库尝试次数
	DefaultEnqueueDelayMS  = 100  // 相邻任务入队的错峰延迟
	DefaultSubChunkDelayMS = 10   // 相邻子块之间的写库间隔
)

// 序列号格式常量
const (
	SerialSequenceDigits = 8 // 序列号数字部分位数（零填充）
	DefaultQRCodePrefix  = "QR"
)
