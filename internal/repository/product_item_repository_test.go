package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupItemRepositoryTest(t *testing.T) (*GormProductItemRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:itemrepo?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.ProductBatch{}, &models.ProductItem{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	db.Exec("DELETE FROM product_items")
	db.Exec("DELETE FROM product_batches")
	return NewProductItemRepository(db), db
}

func seedItems(t *testing.T, repo *GormProductItemRepository, batchID uint, count int) {
	t.Helper()
	items := make([]models.ProductItem, 0, count)
	for i := 1; i <= count; i++ {
		items = append(items, models.ProductItem{
			BatchID:      batchID,
			QRCode:       fmt.Sprintf("QR-%d-%d-test", batchID, i),
			SerialNumber: fmt.Sprintf("CODE%03d-%08d", batchID, i),
			ItemOrder:    i,
			Status:       constants.ItemStatusUnscanned,
		})
	}
	if err := repo.CreateBatch(items); err != nil {
		t.Fatalf("seed items failed: %v", err)
	}
}

func TestLastSerialNumber(t *testing.T) {
	repo, _ := setupItemRepositoryTest(t)

	serial, err := repo.LastSerialNumber(7)
	if err != nil {
		t.Fatalf("last serial failed: %v", err)
	}
	if serial != "" {
		t.Fatalf("expected empty serial for empty batch, got %q", serial)
	}

	seedItems(t, repo, 7, 12)
	serial, err = repo.LastSerialNumber(7)
	if err != nil {
		t.Fatalf("last serial failed: %v", err)
	}
	want := "CODE007-00000012"
	if serial != want {
		t.Fatalf("unexpected last serial, want %q, got %q", want, serial)
	}
}

func TestCountByOrderRange(t *testing.T) {
	repo, _ := setupItemRepositoryTest(t)
	seedItems(t, repo, 3, 10)

	count, err := repo.CountByOrderRange(3, 4, 8)
	if err != nil {
		t.Fatalf("count by order range failed: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 items in [4,8], got %d", count)
	}

	count, err = repo.CountByOrderRange(3, 11, 20)
	if err != nil {
		t.Fatalf("count by order range failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 items beyond range, got %d", count)
	}
}

func TestCreateBatchDuplicateSerial(t *testing.T) {
	repo, _ := setupItemRepositoryTest(t)
	seedItems(t, repo, 5, 3)

	err := repo.CreateBatch([]models.ProductItem{{
		BatchID:      5,
		QRCode:       "QR-5-999-test",
		SerialNumber: "CODE005-00000002",
		ItemOrder:    99,
		Status:       constants.ItemStatusUnscanned,
	}})
	if err == nil {
		t.Fatal("expected duplicate serial insert to fail")
	}
	if !IsDuplicateKeyError(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestRecordScan(t *testing.T) {
	repo, _ := setupItemRepositoryTest(t)
	seedItems(t, repo, 9, 1)

	item, err := repo.GetByQRCode("QR-9-1-test")
	if err != nil || item == nil {
		t.Fatalf("get by qr code failed: %v", err)
	}

	now := time.Now()
	if err := repo.RecordScan(item.ID, now); err != nil {
		t.Fatalf("record scan failed: %v", err)
	}
	if err := repo.RecordScan(item.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("repeat scan failed: %v", err)
	}

	got, err := repo.GetByQRCode("QR-9-1-test")
	if err != nil || got == nil {
		t.Fatalf("get by qr code failed: %v", err)
	}
	if got.Status != constants.ItemStatusScanned {
		t.Fatalf("unexpected status: %s", got.Status)
	}
	if got.ScanCount != 2 {
		t.Fatalf("unexpected scan count: %d", got.ScanCount)
	}
	if got.FirstScanAt == nil {
		t.Fatal("first scan time not recorded")
	}
}

func TestListPageByBatchOrder(t *testing.T) {
	repo, _ := setupItemRepositoryTest(t)
	seedItems(t, repo, 11, 7)

	page1, err := repo.ListPageByBatch(11, 1, 3)
	if err != nil {
		t.Fatalf("list page failed: %v", err)
	}
	if len(page1) != 3 {
		t.Fatalf("expected 3 items on page 1, got %d", len(page1))
	}
	if page1[0].ItemOrder != 1 || page1[2].ItemOrder != 3 {
		t.Fatalf("page 1 not ordered by item_order: %d..%d", page1[0].ItemOrder, page1[2].ItemOrder)
	}

	page3, err := repo.ListPageByBatch(11, 3, 3)
	if err != nil {
		t.Fatalf("list page failed: %v", err)
	}
	if len(page3) != 1 || page3[0].ItemOrder != 7 {
		t.Fatalf("unexpected tail page: %+v", page3)
	}
}
