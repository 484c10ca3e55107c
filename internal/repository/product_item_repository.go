package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/veritag-api/internal/models"

	"gorm.io/gorm"
)

// ProductItemRepository 单品数据访问接口
type ProductItemRepository interface {
	CreateBatch(items []models.ProductItem) error
	CountByBatch(batchID uint) (int64, error)
	CountByOrderRange(batchID uint, fromOrder, toOrder int) (int64, error)
	LastSerialNumber(batchID uint) (string, error)
	ListByBatch(batchID uint, page, pageSize int) ([]models.ProductItem, int64, error)
	ListPageByBatch(batchID uint, page, pageSize int) ([]models.ProductItem, error)
	GetByQRCode(code string) (*models.ProductItem, error)
	RecordScan(id uint, scannedAt time.Time) error
	DeleteByBatch(batchID uint) (int64, error)
	WithTx(tx *gorm.DB) *GormProductItemRepository
}

// GormProductItemRepository GORM 实现
type GormProductItemRepository struct {
	db *gorm.DB
}

// NewProductItemRepository 创建单品仓库
func NewProductItemRepository(db *gorm.DB) *GormProductItemRepository {
	return &GormProductItemRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductItemRepository) WithTx(tx *gorm.DB) *GormProductItemRepository {
	if tx == nil {
		return r
	}
	return &GormProductItemRepository{db: tx}
}

// CreateBatch 批量创建单品
func (r *GormProductItemRepository) CreateBatch(items []models.ProductItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.Create(&items).Error
}

// CountByBatch 统计批次内已落库的单品数
func (r *GormProductItemRepository) CountByBatch(batchID uint) (int64, error) {
	if batchID == 0 {
		return 0, errors.New("invalid batch id")
	}
	var count int64
	if err := r.db.Model(&models.ProductItem{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByOrderRange 统计批次内落在 [fromOrder, toOrder] 顺序区间的单品数。
// 任务重试时用来跳过已经写入过的子块。
func (r *GormProductItemRepository) CountByOrderRange(batchID uint, fromOrder, toOrder int) (int64, error) {
	if batchID == 0 {
		return 0, errors.New("invalid batch id")
	}
	var count int64
	if err := r.db.Model(&models.ProductItem{}).
		Where("batch_id = ? AND item_order >= ? AND item_order <= ?", batchID, fromOrder, toOrder).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// LastSerialNumber 获取批次内当前最大的序列号，批次为空时返回空串。
// 序列号格式固定为 {批次号}-{8位零填充序号}，按字符串倒序即按序号倒序。
func (r *GormProductItemRepository) LastSerialNumber(batchID uint) (string, error) {
	if batchID == 0 {
		return "", errors.New("invalid batch id")
	}
	var item models.ProductItem
	err := r.db.Select("serial_number").
		Where("batch_id = ?", batchID).
		Order("serial_number desc").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return item.SerialNumber, nil
}

// ListByBatch 按批次分页获取单品（附总数）
func (r *GormProductItemRepository) ListByBatch(batchID uint, page, pageSize int) ([]models.ProductItem, int64, error) {
	if batchID == 0 {
		return nil, 0, errors.New("invalid batch id")
	}
	query := r.db.Model(&models.ProductItem{}).Where("batch_id = ?", batchID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, page, pageSize)

	var items []models.ProductItem
	if err := query.Order("item_order asc, id asc").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListPageByBatch 按批次取一页单品（归档迭代用，稳定顺序，不统计总数）
func (r *GormProductItemRepository) ListPageByBatch(batchID uint, page, pageSize int) ([]models.ProductItem, error) {
	if batchID == 0 {
		return nil, errors.New("invalid batch id")
	}
	query := applyPagination(r.db.Where("batch_id = ?", batchID), page, pageSize)
	var items []models.ProductItem
	if err := query.Order("item_order asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// GetByQRCode 按扫码串获取单品
func (r *GormProductItemRepository) GetByQRCode(code string) (*models.ProductItem, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("invalid qr code")
	}
	var item models.ProductItem
	if err := r.db.Where("qr_code = ?", code).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// RecordScan 记录一次扫码：首扫翻转状态并写入首扫时间，扫码次数自增
func (r *GormProductItemRepository) RecordScan(id uint, scannedAt time.Time) error {
	if id == 0 {
		return errors.New("invalid item id")
	}
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}
	// 首扫：unscanned -> scanned
	if err := r.db.Model(&models.ProductItem{}).
		Where("id = ? AND status = ?", id, "unscanned").
		Updates(map[string]interface{}{
			"status":        "scanned",
			"first_scan_at": scannedAt,
		}).Error; err != nil {
		return err
	}
	return r.db.Model(&models.ProductItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"scan_count": gorm.Expr("scan_count + 1"),
			"updated_at": scannedAt,
		}).Error
}

// DeleteByBatch 软删除批次下全部单品
func (r *GormProductItemRepository) DeleteByBatch(batchID uint) (int64, error) {
	if batchID == 0 {
		return 0, errors.New("invalid batch id")
	}
	result := r.db.Where("batch_id = ?", batchID).Delete(&models.ProductItem{})
	return result.RowsAffected, result.Error
}

// IsDuplicateKeyError 判断是否唯一约束冲突
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "duplicate key")
}
