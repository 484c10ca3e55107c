package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/veritag-api/internal/models"

	"gorm.io/gorm"
)

// ProductBatchRepository 批次数据访问接口
type ProductBatchRepository interface {
	Create(batch *models.ProductBatch) error
	GetByID(id uint) (*models.ProductBatch, error)
	GetByCode(code string) (*models.ProductBatch, error)
	List(filter BatchListFilter) ([]models.ProductBatch, int64, error)
	TransitionGenerateStatus(id uint, from []string, to string, updates map[string]interface{}) (int64, error)
	Delete(id uint) error
	WithTx(tx *gorm.DB) *GormProductBatchRepository
}

// GormProductBatchRepository GORM 实现
type GormProductBatchRepository struct {
	db *gorm.DB
}

// NewProductBatchRepository 创建批次仓库
func NewProductBatchRepository(db *gorm.DB) *GormProductBatchRepository {
	return &GormProductBatchRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductBatchRepository) WithTx(tx *gorm.DB) *GormProductBatchRepository {
	if tx == nil {
		return r
	}
	return &GormProductBatchRepository{db: tx}
}

// Create 创建批次
func (r *GormProductBatchRepository) Create(batch *models.ProductBatch) error {
	if batch == nil {
		return errors.New("batch is nil")
	}
	return r.db.Create(batch).Error
}

// GetByID 获取批次
func (r *GormProductBatchRepository) GetByID(id uint) (*models.ProductBatch, error) {
	if id == 0 {
		return nil, errors.New("invalid batch id")
	}
	var batch models.ProductBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetByCode 按批次号获取批次
func (r *GormProductBatchRepository) GetByCode(code string) (*models.ProductBatch, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("invalid batch code")
	}
	var batch models.ProductBatch
	if err := r.db.Where("batch_code = ?", code).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// List 获取批次列表
func (r *GormProductBatchRepository) List(filter BatchListFilter) ([]models.ProductBatch, int64, error) {
	query := r.db.Model(&models.ProductBatch{})
	if filter.ProductID > 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("generate_product_items_status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var items []models.ProductBatch
	if err := query.Order("id desc").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// TransitionGenerateStatus 条件更新生成状态。
// 只有当前状态位于 from 集合时才写入 to，返回受影响行数；
// 归档单写者抢占与“completed 不可回退”都依赖该条件更新。
func (r *GormProductBatchRepository) TransitionGenerateStatus(id uint, from []string, to string, updates map[string]interface{}) (int64, error) {
	if id == 0 || strings.TrimSpace(to) == "" {
		return 0, errors.New("invalid transition")
	}
	values := map[string]interface{}{
		"generate_product_items_status": to,
		"updated_at":                    time.Now(),
	}
	for k, v := range updates {
		values[k] = v
	}
	query := r.db.Model(&models.ProductBatch{}).Where("id = ?", id)
	if len(from) > 0 {
		query = query.Where("generate_product_items_status IN ?", from)
	}
	result := query.Updates(values)
	return result.RowsAffected, result.Error
}

// Delete 软删除批次
func (r *GormProductBatchRepository) Delete(id uint) error {
	if id == 0 {
		return errors.New("invalid batch id")
	}
	return r.db.Delete(&models.ProductBatch{}, id).Error
}
