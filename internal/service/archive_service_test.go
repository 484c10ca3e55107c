package service

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupArchiveServiceTest(t *testing.T) (*ArchiveService, *gorm.DB, string) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:archivesvc?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.ProductBatch{}, &models.ProductItem{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	db.Exec("DELETE FROM product_items")
	db.Exec("DELETE FROM product_batches")

	dir := t.TempDir()
	svc := NewArchiveService(
		repository.NewProductBatchRepository(db),
		repository.NewProductItemRepository(db),
		ArchiveServiceConfig{
			Dir:         dir,
			PageSize:    2,
			QRBaseURL:   "https://verify.example.com/scan",
			QRImageSize: 64,
		},
	)
	return svc, db, dir
}

func seedArchivableBatch(t *testing.T, db *gorm.DB, code string, quantity int) *models.ProductBatch {
	t.Helper()
	batch := &models.ProductBatch{
		ProductID:      1,
		BatchCode:      code,
		Quantity:       quantity,
		GenerateStatus: constants.BatchGenerateStatusPending,
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("seed batch failed: %v", err)
	}
	for i := 1; i <= quantity; i++ {
		item := models.ProductItem{
			BatchID:      batch.ID,
			QRCode:       fmt.Sprintf("QR-%d-%d-arch", batch.ID, i),
			SerialNumber: fmt.Sprintf("%s-%08d", code, i),
			ItemOrder:    i,
			Status:       constants.ItemStatusUnscanned,
		}
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("seed item failed: %v", err)
		}
	}
	return batch
}

func TestBuildArchiveWriteFailureRevertsClaim(t *testing.T) {
	svc, db, dir := setupArchiveServiceTest(t)
	batch := seedArchivableBatch(t, db, "ARCH-BAD", 3)

	// 归档目录指向一个普通文件，落盘必然失败
	blocker := dir + "/blocked"
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed blocker failed: %v", err)
	}
	svc.cfg.Dir = blocker

	err := svc.BuildArchive(batch.ID)
	if !errors.Is(err, ErrArchiveCreateFailed) {
		t.Fatalf("expected ErrArchiveCreateFailed, got %v", err)
	}

	// 抢占的 archiving 状态要回退，给下一次归档留重试空间
	var got models.ProductBatch
	if err := db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.GenerateStatus != constants.BatchGenerateStatusPending {
		t.Fatalf("expected pending after failed archive, got %s", got.GenerateStatus)
	}
}

func TestBuildArchive(t *testing.T) {
	svc, db, _ := setupArchiveServiceTest(t)
	batch := seedArchivableBatch(t, db, "ARCH-001", 5)

	if err := svc.BuildArchive(batch.ID); err != nil {
		t.Fatalf("build archive failed: %v", err)
	}

	path := svc.ArchivePath(batch.ID)
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive failed: %v", err)
	}
	defer reader.Close()

	if len(reader.File) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(reader.File))
	}
	// 条目按 item_order 稳定排序
	for i, f := range reader.File {
		want := fmt.Sprintf("ARCH-001-%08d.png", i+1)
		if f.Name != want {
			t.Fatalf("entry %d: want %q, got %q", i, want, f.Name)
		}
		if f.UncompressedSize64 == 0 {
			t.Fatalf("entry %q is empty", f.Name)
		}
	}

	var got models.ProductBatch
	if err := db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.GenerateStatus != constants.BatchGenerateStatusCompleted {
		t.Fatalf("expected completed, got %s", got.GenerateStatus)
	}
	wantLink := fmt.Sprintf("/downloads/batch-%d-qrcodes.zip", batch.ID)
	if got.BatchLinkDownload != wantLink {
		t.Fatalf("unexpected download link %q", got.BatchLinkDownload)
	}
}

func TestBuildArchiveIdempotent(t *testing.T) {
	svc, db, _ := setupArchiveServiceTest(t)
	batch := seedArchivableBatch(t, db, "ARCH-002", 3)

	if err := svc.BuildArchive(batch.ID); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	info, err := os.Stat(svc.ArchivePath(batch.ID))
	if err != nil {
		t.Fatalf("stat archive failed: %v", err)
	}

	// 批次已完成，再次触发必须是无副作用的空操作
	if err := svc.BuildArchive(batch.ID); err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	again, err := os.Stat(svc.ArchivePath(batch.ID))
	if err != nil {
		t.Fatalf("stat archive failed: %v", err)
	}
	if !again.ModTime().Equal(info.ModTime()) || again.Size() != info.Size() {
		t.Fatal("archive was rebuilt for a completed batch")
	}

	var got models.ProductBatch
	if err := db.First(&got, batch.ID).Error; err != nil {
		t.Fatalf("load batch failed: %v", err)
	}
	if got.GenerateStatus != constants.BatchGenerateStatusCompleted {
		t.Fatalf("status changed on re-invoke: %s", got.GenerateStatus)
	}
}

func TestBuildArchiveMissingBatch(t *testing.T) {
	svc, _, _ := setupArchiveServiceTest(t)
	if err := svc.BuildArchive(12345); err == nil {
		t.Fatal("expected error for missing batch")
	}
}

func TestRemoveArchive(t *testing.T) {
	svc, db, _ := setupArchiveServiceTest(t)
	batch := seedArchivableBatch(t, db, "ARCH-003", 2)

	if err := svc.BuildArchive(batch.ID); err != nil {
		t.Fatalf("build archive failed: %v", err)
	}
	if !svc.ArchiveExists(batch.ID) {
		t.Fatal("archive should exist after build")
	}
	if err := svc.RemoveArchive(batch.ID); err != nil {
		t.Fatalf("remove archive failed: %v", err)
	}
	if svc.ArchiveExists(batch.ID) {
		t.Fatal("archive should be gone after removal")
	}
	// 再删一次不报错
	if err := svc.RemoveArchive(batch.ID); err != nil {
		t.Fatalf("second removal failed: %v", err)
	}
}
