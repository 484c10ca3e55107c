package repository

import (
	"errors"

	"github.com/veritag-api/internal/models"

	"gorm.io/gorm"
)

// ScanLogRepository 扫码日志数据访问接口
type ScanLogRepository interface {
	Create(log *models.ScanLog) error
	ListByItem(filter ScanLogListFilter) ([]models.ScanLog, int64, error)
}

// GormScanLogRepository GORM 实现
type GormScanLogRepository struct {
	db *gorm.DB
}

// NewScanLogRepository 创建扫码日志仓库
func NewScanLogRepository(db *gorm.DB) *GormScanLogRepository {
	return &GormScanLogRepository{db: db}
}

// Create 写入扫码日志
func (r *GormScanLogRepository) Create(log *models.ScanLog) error {
	if log == nil {
		return errors.New("scan log is nil")
	}
	return r.db.Create(log).Error
}

// ListByItem 按单品获取扫码日志
func (r *GormScanLogRepository) ListByItem(filter ScanLogListFilter) ([]models.ScanLog, int64, error) {
	if filter.ItemID == 0 {
		return nil, 0, errors.New("invalid item id")
	}
	query := r.db.Model(&models.ScanLog{}).Where("item_id = ?", filter.ItemID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var items []models.ScanLog
	if err := query.Order("id desc").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
