package queue

import (
	"strings"

	"github.com/veritag-api/internal/config"

	"github.com/hibiken/asynq"
)

const inspectorPageSize = 100

// Inspector 队列状态检视器，按批次过滤生成任务
type Inspector struct {
	inspector *asynq.Inspector
	enabled   bool
}

// NewInspector 创建检视器
func NewInspector(cfg *config.QueueConfig) *Inspector {
	if cfg == nil || !cfg.Enabled {
		return &Inspector{enabled: false}
	}
	return &Inspector{
		inspector: asynq.NewInspector(buildRedisOpt(cfg)),
		enabled:   true,
	}
}

// Enabled 判断是否启用
func (i *Inspector) Enabled() bool {
	return i != nil && i.enabled && i.inspector != nil
}

// Close 关闭检视器
func (i *Inspector) Close() error {
	if i == nil || i.inspector == nil {
		return nil
	}
	return i.inspector.Close()
}

// BatchJobCounts 批次生成任务的状态计数
type BatchJobCounts struct {
	TotalJobs int `json:"total_jobs"`
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// CountGenerationJobs 统计批次在各状态的生成任务数。
// pending/scheduled/retry 一律计入 waiting，archived 视为终态失败。
func (i *Inspector) CountGenerationJobs(batchID uint) (BatchJobCounts, error) {
	var counts BatchJobCounts
	if !i.Enabled() {
		return counts, nil
	}
	prefix := GenerationJobIDPrefix(batchID)

	waitingLists := []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		i.inspector.ListPendingTasks,
		i.inspector.ListScheduledTasks,
		i.inspector.ListRetryTasks,
	}
	for _, list := range waitingLists {
		tasks, err := listAllTasks(list, GenerationQueue)
		if err != nil {
			return counts, err
		}
		counts.Waiting += countByPrefix(tasks, prefix)
	}

	active, err := listAllTasks(i.inspector.ListActiveTasks, GenerationQueue)
	if err != nil {
		return counts, err
	}
	counts.Active = countByPrefix(active, prefix)

	completed, err := listAllTasks(i.inspector.ListCompletedTasks, GenerationQueue)
	if err != nil {
		return counts, err
	}
	counts.Completed = countByPrefix(completed, prefix)

	archived, err := listAllTasks(i.inspector.ListArchivedTasks, GenerationQueue)
	if err != nil {
		return counts, err
	}
	counts.Failed = countByPrefix(archived, prefix)

	counts.TotalJobs = counts.Waiting + counts.Active + counts.Completed + counts.Failed
	return counts, nil
}

// ListFailedGenerationJobs 列出批次的终态失败生成任务
func (i *Inspector) ListFailedGenerationJobs(batchID uint) ([]*asynq.TaskInfo, error) {
	if !i.Enabled() {
		return nil, nil
	}
	archived, err := listAllTasks(i.inspector.ListArchivedTasks, GenerationQueue)
	if err != nil {
		return nil, err
	}
	prefix := GenerationJobIDPrefix(batchID)
	matched := make([]*asynq.TaskInfo, 0, len(archived))
	for _, task := range archived {
		if task != nil && strings.HasPrefix(task.ID, prefix) {
			matched = append(matched, task)
		}
	}
	return matched, nil
}

// DeleteGenerationJob 删除生成队列中的任务
func (i *Inspector) DeleteGenerationJob(id string) error {
	if !i.Enabled() {
		return nil
	}
	return i.inspector.DeleteTask(GenerationQueue, id)
}

func listAllTasks(list func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error), queue string) ([]*asynq.TaskInfo, error) {
	var all []*asynq.TaskInfo
	for page := 1; ; page++ {
		tasks, err := list(queue, asynq.Page(page), asynq.PageSize(inspectorPageSize))
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
		if len(tasks) < inspectorPageSize {
			return all, nil
		}
	}
}

func countByPrefix(tasks []*asynq.TaskInfo, prefix string) int {
	count := 0
	for _, task := range tasks {
		if task != nil && strings.HasPrefix(task.ID, prefix) {
			count++
		}
	}
	return count
}
