package repository

import (
	"testing"

	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupBatchRepositoryTest(t *testing.T) (*GormProductBatchRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:batchrepo?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.ProductBatch{}, &models.ProductItem{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	db.Exec("DELETE FROM product_batches")
	db.Exec("DELETE FROM product_items")
	return NewProductBatchRepository(db), db
}

func createBatch(t *testing.T, repo *GormProductBatchRepository, code string, quantity int, status string) *models.ProductBatch {
	t.Helper()
	batch := &models.ProductBatch{
		ProductID:      1,
		BatchCode:      code,
		Quantity:       quantity,
		GenerateStatus: status,
	}
	if err := repo.Create(batch); err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	return batch
}

func TestTransitionGenerateStatusClaim(t *testing.T) {
	repo, _ := setupBatchRepositoryTest(t)
	batch := createBatch(t, repo, "CLAIM-001", 100, constants.BatchGenerateStatusPending)

	affected, err := repo.TransitionGenerateStatus(batch.ID,
		[]string{constants.BatchGenerateStatusPending},
		constants.BatchGenerateStatusArchiving, nil)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected first claim to succeed, affected=%d", affected)
	}

	// 第二次抢占必须失败，保证归档只有一个执行方
	affected, err = repo.TransitionGenerateStatus(batch.ID,
		[]string{constants.BatchGenerateStatusPending},
		constants.BatchGenerateStatusArchiving, nil)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected second claim to be rejected, affected=%d", affected)
	}
}

func TestTransitionGenerateStatusNoRegression(t *testing.T) {
	repo, _ := setupBatchRepositoryTest(t)
	batch := createBatch(t, repo, "REGRESS-001", 5, constants.BatchGenerateStatusCompleted)

	affected, err := repo.TransitionGenerateStatus(batch.ID,
		[]string{constants.BatchGenerateStatusFailed},
		constants.BatchGenerateStatusPending, nil)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("completed batch must not regress to pending, affected=%d", affected)
	}

	got, err := repo.GetByID(batch.ID)
	if err != nil || got == nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if got.GenerateStatus != constants.BatchGenerateStatusCompleted {
		t.Fatalf("status changed unexpectedly: %s", got.GenerateStatus)
	}
}

func TestTransitionGenerateStatusWithUpdates(t *testing.T) {
	repo, _ := setupBatchRepositoryTest(t)
	batch := createBatch(t, repo, "UPD-001", 5, constants.BatchGenerateStatusPending)

	affected, err := repo.TransitionGenerateStatus(batch.ID,
		[]string{constants.BatchGenerateStatusPending},
		constants.BatchGenerateStatusFailed,
		map[string]interface{}{"generate_error": "boom"})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected transition to succeed, affected=%d", affected)
	}

	got, err := repo.GetByID(batch.ID)
	if err != nil || got == nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if got.GenerateStatus != constants.BatchGenerateStatusFailed {
		t.Fatalf("unexpected status: %s", got.GenerateStatus)
	}
	if got.GenerateError != "boom" {
		t.Fatalf("unexpected generate_error: %q", got.GenerateError)
	}
}

func TestGetByCodeNotFound(t *testing.T) {
	repo, _ := setupBatchRepositoryTest(t)
	got, err := repo.GetByCode("NO-SUCH-CODE")
	if err != nil {
		t.Fatalf("get by code failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing code, got %+v", got)
	}
}
