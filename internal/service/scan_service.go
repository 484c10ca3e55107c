package service

import (
	"time"

	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/logger"
	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/repository"
)

// ScanService 扫码验证服务
type ScanService struct {
	itemRepo    repository.ProductItemRepository
	productRepo repository.ProductRepository
	batchRepo   repository.ProductBatchRepository
	scanLogRepo repository.ScanLogRepository
}

// NewScanService 创建扫码服务
func NewScanService(
	itemRepo repository.ProductItemRepository,
	productRepo repository.ProductRepository,
	batchRepo repository.ProductBatchRepository,
	scanLogRepo repository.ScanLogRepository,
) *ScanService {
	return &ScanService{
		itemRepo:    itemRepo,
		productRepo: productRepo,
		batchRepo:   batchRepo,
		scanLogRepo: scanLogRepo,
	}
}

// ScanResult 扫码验证结果
type ScanResult struct {
	Genuine     bool                `json:"genuine"`
	FirstScan   bool                `json:"first_scan"`
	ScanCount   int                 `json:"scan_count"`
	ScannedAt   time.Time           `json:"scanned_at"`
	Item        *models.ProductItem `json:"item,omitempty"`
	Product     *models.Product     `json:"product,omitempty"`
	Batch       *models.ProductBatch `json:"batch,omitempty"`
}

// Scan 按扫码串验证单品。
// 码不存在返回 genuine=false；存在则记扫码次数并落日志，重复扫码
// 在结果里明确标出，方便前端做防伪提示。
func (s *ScanService) Scan(qrCode, clientIP, deviceInfo string) (*ScanResult, error) {
	if qrCode == "" {
		return nil, ErrScanItemNotFound
	}
	item, err := s.itemRepo.GetByQRCode(qrCode)
	if err != nil {
		return nil, ErrScanFailed
	}
	now := time.Now()
	if item == nil {
		return &ScanResult{Genuine: false, ScannedAt: now}, nil
	}

	firstScan := item.Status == constants.ItemStatusUnscanned
	if err := s.itemRepo.RecordScan(item.ID, now); err != nil {
		return nil, ErrScanFailed
	}
	item.ScanCount++
	if firstScan {
		item.Status = constants.ItemStatusScanned
		item.FirstScanAt = &now
	}

	if err := s.scanLogRepo.Create(&models.ScanLog{
		ItemID:     item.ID,
		ScannedAt:  now,
		ClientIP:   clientIP,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
	}); err != nil {
		logger.Warnw("scan_log_write_failed", "item_id", item.ID, "error", err)
	}

	result := &ScanResult{
		Genuine:   true,
		FirstScan: firstScan,
		ScanCount: item.ScanCount,
		ScannedAt: now,
		Item:      item,
	}
	if batch, err := s.batchRepo.GetByID(item.BatchID); err == nil && batch != nil {
		result.Batch = batch
		if product, err := s.productRepo.GetByID(batch.ProductID); err == nil && product != nil {
			result.Product = product
		}
	}
	return result, nil
}

// ScanHistory 按单品获取扫码日志
func (s *ScanService) ScanHistory(filter repository.ScanLogListFilter) ([]models.ScanLog, int64, error) {
	logs, total, err := s.scanLogRepo.ListByItem(filter)
	if err != nil {
		return nil, 0, ErrScanFailed
	}
	return logs, total, nil
}
