package models

import (
	"time"

	"gorm.io/gorm"
)

// ProductBatch 生产批次表
type ProductBatch struct {
	ID                uint           `gorm:"primarykey" json:"id"`                                  // 主键
	ProductID         uint           `gorm:"index;not null" json:"product_id"`                      // 商品ID
	BatchCode         string         `gorm:"uniqueIndex;not null;size:100" json:"batch_code"`       // 批次号
	Quantity          int            `gorm:"not null" json:"quantity"`                              // 请求生成数量
	GenerateStatus    string         `gorm:"column:generate_product_items_status;index;not null;default:'pending'" json:"generate_product_items_status"` // 生成状态（pending/archiving/completed/failed）
	GenerateError     string         `gorm:"type:text" json:"generate_error,omitempty"`             // 生成失败原因
	BatchLinkDownload string         `gorm:"size:500" json:"batch_link_download"`                   // 码图压缩包下载地址
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                               // 创建时间
	UpdatedAt         time.Time      `json:"updated_at"`                                            // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                        // 软删除时间

	Product *Product      `gorm:"foreignKey:ProductID" json:"product,omitempty"` // 商品信息
	Items   []ProductItem `gorm:"foreignKey:BatchID" json:"items,omitempty"`     // 单品列表
}

// TableName 指定表名
func (ProductBatch) TableName() string {
	return "product_batches"
}
