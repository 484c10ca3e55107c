package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/queue"
	"github.com/veritag-api/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type enqueuedGenerateCall struct {
	payload queue.GenerateItemsPayload
	taskID  string
	delay   time.Duration
}

// fakeEnqueuer 记录入队调用，failAfter>0 时从该序号起入队失败
type fakeEnqueuer struct {
	generate   []enqueuedGenerateCall
	status     []queue.BatchStatusUpdatePayload
	failAfter  int
	onGenerate func()
}

func (f *fakeEnqueuer) Enabled() bool { return true }

func (f *fakeEnqueuer) EnqueueGenerateItems(payload queue.GenerateItemsPayload, opts ...asynq.Option) error {
	if f.onGenerate != nil {
		f.onGenerate()
	}
	if f.failAfter > 0 && len(f.generate)+1 >= f.failAfter {
		return errors.New("queue unavailable")
	}
	call := enqueuedGenerateCall{payload: payload}
	for _, opt := range opts {
		switch opt.Type() {
		case asynq.TaskIDOpt:
			if id, ok := opt.Value().(string); ok {
				call.taskID = id
			}
		case asynq.ProcessInOpt:
			if d, ok := opt.Value().(time.Duration); ok {
				call.delay = d
			}
		}
	}
	f.generate = append(f.generate, call)
	return nil
}

func (f *fakeEnqueuer) EnqueueBatchStatusUpdate(payload queue.BatchStatusUpdatePayload, _ ...asynq.Option) error {
	f.status = append(f.status, payload)
	return nil
}

// fakeInspector 返回预置的任务状态
type fakeInspector struct {
	counts  queue.BatchJobCounts
	failed  []*asynq.TaskInfo
	deleted []string
}

func (f *fakeInspector) Enabled() bool { return true }

func (f *fakeInspector) CountGenerationJobs(_ uint) (queue.BatchJobCounts, error) {
	return f.counts, nil
}

func (f *fakeInspector) ListFailedGenerationJobs(_ uint) ([]*asynq.TaskInfo, error) {
	return f.failed, nil
}

func (f *fakeInspector) DeleteGenerationJob(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func setupBatchServiceTest(t *testing.T, enq GenerationEnqueuer, insp JobInspector) (*BatchService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:batchsvc?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.ProductBatch{}, &models.ProductItem{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	db.Exec("DELETE FROM product_items")
	db.Exec("DELETE FROM product_batches")
	db.Exec("DELETE FROM products")
	models.DB = db

	svc := NewBatchService(
		repository.NewProductBatchRepository(db),
		repository.NewProductItemRepository(db),
		repository.NewProductRepository(db),
		enq,
		insp,
		nil,
		BatchServiceConfig{
			SyncThreshold:  10,
			JobChunkSize:   100,
			MaxItemsPerJob: 1000,
			EnqueueDelay:   100 * time.Millisecond,
			QRCodePrefix:   "QR",
		},
	)
	return svc, db
}

func seedProduct(t *testing.T, db *gorm.DB) *models.Product {
	t.Helper()
	product := &models.Product{Name: "测试商品", Category: "beverage"}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product failed: %v", err)
	}
	return product
}

func TestCreateBatchSyncSmallQuantity(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, db := setupBatchServiceTest(t, enq, &fakeInspector{})
	product := seedProduct(t, db)

	batch, dispatch, err := svc.CreateBatch(CreateBatchInput{
		ProductID: product.ID,
		BatchCode: "SYNC-001",
		Quantity:  5,
	})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	if dispatch != nil {
		t.Fatal("small quantity must not dispatch jobs")
	}
	if len(enq.generate) != 0 {
		t.Fatalf("small quantity must not enqueue, got %d calls", len(enq.generate))
	}
	if batch.GenerateStatus != constants.BatchGenerateStatusCompleted {
		t.Fatalf("expected completed, got %s", batch.GenerateStatus)
	}

	var items []models.ProductItem
	if err := db.Where("batch_id = ?", batch.ID).Order("item_order asc").Find(&items).Error; err != nil {
		t.Fatalf("load items failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i, item := range items {
		want := fmt.Sprintf("SYNC-001-%08d", i+1)
		if item.SerialNumber != want {
			t.Fatalf("item %d: want serial %q, got %q", i, want, item.SerialNumber)
		}
	}
}

func TestCreateBatchAsyncDispatch(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, db := setupBatchServiceTest(t, enq, &fakeInspector{})
	product := seedProduct(t, db)

	batch, dispatch, err := svc.CreateBatch(CreateBatchInput{
		ProductID: product.ID,
		BatchCode: "ASYNC-001",
		Quantity:  250,
	})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	if batch.GenerateStatus != constants.BatchGenerateStatusPending {
		t.Fatalf("expected pending, got %s", batch.GenerateStatus)
	}
	if dispatch == nil || dispatch.JobsCreated != 3 {
		t.Fatalf("expected 3 jobs, got %+v", dispatch)
	}

	wantRanges := [][2]int{{0, 99}, {100, 199}, {200, 249}}
	wantPriorities := []int{3, 2, 1}
	for i, call := range enq.generate {
		if call.payload.StartIndex != wantRanges[i][0] || call.payload.EndIndex != wantRanges[i][1] {
			t.Fatalf("job %d: unexpected range [%d,%d]", i, call.payload.StartIndex, call.payload.EndIndex)
		}
		if call.payload.Priority != wantPriorities[i] {
			t.Fatalf("job %d: unexpected priority %d", i, call.payload.Priority)
		}
		wantID := fmt.Sprintf("batch-%d-job-%d", batch.ID, i)
		if call.taskID != wantID {
			t.Fatalf("job %d: unexpected task id %q", i, call.taskID)
		}
		wantDelay := time.Duration(i) * 100 * time.Millisecond
		if call.delay != wantDelay {
			t.Fatalf("job %d: unexpected delay %v", i, call.delay)
		}
		if call.payload.TotalQuantity != 250 || call.payload.BatchSize != 100 {
			t.Fatalf("job %d: unexpected payload %+v", i, call.payload)
		}
	}
}

func TestCreateBatchEnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{failAfter: 2}
	svc, db := setupBatchServiceTest(t, enq, &fakeInspector{})
	product := seedProduct(t, db)

	_, _, err := svc.CreateBatch(CreateBatchInput{
		ProductID: product.ID,
		BatchCode: "FAIL-001",
		Quantity:  250,
	})
	if !errors.Is(err, ErrEnqueueFailed) {
		t.Fatalf("expected enqueue failure, got %v", err)
	}
	if len(enq.status) != 1 || enq.status[0].Status != constants.BatchGenerateStatusFailed {
		t.Fatalf("expected failed status update, got %+v", enq.status)
	}
}

func TestCreateBatchDuplicateCode(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, db := setupBatchServiceTest(t, enq, &fakeInspector{})
	product := seedProduct(t, db)

	if _, _, err := svc.CreateBatch(CreateBatchInput{ProductID: product.ID, BatchCode: "DUP-001", Quantity: 3}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, _, err := svc.CreateBatch(CreateBatchInput{ProductID: product.ID, BatchCode: "DUP-001", Quantity: 3})
	if !errors.Is(err, ErrBatchCodeExists) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestRetryFailedJobs(t *testing.T) {
	enq := &fakeEnqueuer{}
	insp := &fakeInspector{}
	svc, db := setupBatchServiceTest(t, enq, insp)
	product := seedProduct(t, db)

	batch := &models.ProductBatch{
		ProductID:      product.ID,
		BatchCode:      "RETRY-001",
		Quantity:       200,
		GenerateStatus: constants.BatchGenerateStatusFailed,
		GenerateError:  "boom",
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("seed batch failed: %v", err)
	}

	for jobIndex := 0; jobIndex < 2; jobIndex++ {
		payload := queue.GenerateItemsPayload{
			BatchID:    batch.ID,
			StartIndex: jobIndex * 100,
			EndIndex:   jobIndex*100 + 99,
		}
		task, err := queue.NewGenerateItemsTask(payload)
		if err != nil {
			t.Fatalf("build task failed: %v", err)
		}
		insp.failed = append(insp.failed, &asynq.TaskInfo{
			ID:      queue.GenerationJobID(batch.ID, jobIndex),
			Payload: task.Payload(),
		})
	}

	result, err := svc.RetryFailedJobs(batch.ID)
	if err != nil {
		t.Fatalf("retry failed jobs failed: %v", err)
	}
	if result.Requeued != 2 || result.Failed != 0 {
		t.Fatalf("unexpected retry result %+v", result)
	}
	if len(insp.deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %d", len(insp.deleted))
	}
	if len(enq.generate) != 2 {
		t.Fatalf("expected 2 re-enqueues, got %d", len(enq.generate))
	}
	// 新任务必须换 ID 且不带延迟
	for i, call := range enq.generate {
		if call.taskID == insp.deleted[i] || call.taskID == "" {
			t.Fatalf("re-enqueue %d reused old task id %q", i, call.taskID)
		}
		if call.delay != 0 {
			t.Fatalf("re-enqueue %d should not be delayed, got %v", i, call.delay)
		}
	}

	got, err := svc.GetBatch(batch.ID)
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if got.GenerateStatus != constants.BatchGenerateStatusPending {
		t.Fatalf("expected failed batch reset to pending, got %s", got.GenerateStatus)
	}
	if got.GenerateError != "" {
		t.Fatalf("expected generate_error cleared, got %q", got.GenerateError)
	}
}

func seedFailedBatchWithTasks(t *testing.T, db *gorm.DB, insp *fakeInspector, code string, jobs int) *models.ProductBatch {
	t.Helper()
	batch := &models.ProductBatch{
		ProductID:      1,
		BatchCode:      code,
		Quantity:       jobs * 100,
		GenerateStatus: constants.BatchGenerateStatusFailed,
		GenerateError:  "boom",
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("seed batch failed: %v", err)
	}
	for jobIndex := 0; jobIndex < jobs; jobIndex++ {
		task, err := queue.NewGenerateItemsTask(queue.GenerateItemsPayload{
			BatchID:    batch.ID,
			StartIndex: jobIndex * 100,
			EndIndex:   jobIndex*100 + 99,
		})
		if err != nil {
			t.Fatalf("build task failed: %v", err)
		}
		insp.failed = append(insp.failed, &asynq.TaskInfo{
			ID:      queue.GenerationJobID(batch.ID, jobIndex),
			Payload: task.Payload(),
		})
	}
	return batch
}

func TestRetryFailedJobsResetsStatusBeforeEnqueue(t *testing.T) {
	enq := &fakeEnqueuer{}
	insp := &fakeInspector{}
	svc, db := setupBatchServiceTest(t, enq, insp)
	batch := seedFailedBatchWithTasks(t, db, insp, "RETRY-002", 2)

	// 新任务不带延迟，可能在重置状态前就被消费，
	// 所以入队那一刻批次必须已经回到 pending
	var statusAtEnqueue []string
	enq.onGenerate = func() {
		var got models.ProductBatch
		if err := db.First(&got, batch.ID).Error; err != nil {
			t.Fatalf("load batch during enqueue failed: %v", err)
		}
		statusAtEnqueue = append(statusAtEnqueue, got.GenerateStatus)
	}

	result, err := svc.RetryFailedJobs(batch.ID)
	if err != nil {
		t.Fatalf("retry failed jobs failed: %v", err)
	}
	if result.Requeued != 2 {
		t.Fatalf("expected 2 requeued, got %+v", result)
	}
	if len(statusAtEnqueue) != 2 {
		t.Fatalf("expected 2 enqueue calls, got %d", len(statusAtEnqueue))
	}
	for i, status := range statusAtEnqueue {
		if status != constants.BatchGenerateStatusPending {
			t.Fatalf("enqueue %d: batch still %s, reset must happen first", i, status)
		}
	}
}

func TestRetryFailedJobsRevertsWhenNothingRequeued(t *testing.T) {
	enq := &fakeEnqueuer{failAfter: 1}
	insp := &fakeInspector{}
	svc, db := setupBatchServiceTest(t, enq, insp)
	batch := seedFailedBatchWithTasks(t, db, insp, "RETRY-003", 1)

	result, err := svc.RetryFailedJobs(batch.ID)
	if err != nil {
		t.Fatalf("retry failed jobs failed: %v", err)
	}
	if result.Requeued != 0 || result.Failed != 1 {
		t.Fatalf("unexpected retry result %+v", result)
	}

	// 一个任务都没能入队时批次要回到 failed，不能卡在 pending
	got, err := svc.GetBatch(batch.ID)
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if got.GenerateStatus != constants.BatchGenerateStatusFailed {
		t.Fatalf("expected batch reverted to failed, got %s", got.GenerateStatus)
	}
	if got.GenerateError == "" {
		t.Fatal("expected generate_error to be set after revert")
	}
}

func TestProgressAggregation(t *testing.T) {
	enq := &fakeEnqueuer{}
	insp := &fakeInspector{
		counts: queue.BatchJobCounts{TotalJobs: 3, Waiting: 1, Active: 1, Completed: 1},
	}
	svc, db := setupBatchServiceTest(t, enq, insp)
	product := seedProduct(t, db)

	batch := &models.ProductBatch{
		ProductID:      product.ID,
		BatchCode:      "PROG-001",
		Quantity:       100,
		GenerateStatus: constants.BatchGenerateStatusPending,
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("seed batch failed: %v", err)
	}
	for i := 1; i <= 40; i++ {
		item := models.ProductItem{
			BatchID:      batch.ID,
			QRCode:       fmt.Sprintf("QR-%d-%d-x", batch.ID, i),
			SerialNumber: fmt.Sprintf("PROG-001-%08d", i),
			ItemOrder:    i,
			Status:       constants.ItemStatusUnscanned,
		}
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("seed item failed: %v", err)
		}
	}

	progress, err := svc.Progress(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if progress.GeneratedCount != 40 || progress.TotalQuantity != 100 {
		t.Fatalf("unexpected counts: %+v", progress)
	}
	if progress.Percentage != 40 {
		t.Fatalf("unexpected percentage: %v", progress.Percentage)
	}
	if progress.IsCompleted {
		t.Fatal("pending batch must not be completed")
	}
	if progress.TotalJobs != 3 || progress.WaitingJobs != 1 || progress.ActiveJobs != 1 || progress.CompletedJobs != 1 {
		t.Fatalf("unexpected job counts: %+v", progress)
	}
}
