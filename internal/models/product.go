package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品表
type Product struct {
	ID          uint           `gorm:"primarykey" json:"id"`        // 主键
	Name        string         `gorm:"not null;index" json:"name"`  // 商品名称
	Category    string         `gorm:"index" json:"category"`       // 分类
	ImageURL    string         `gorm:"size:500" json:"image_url"`   // 商品图片
	Description string         `gorm:"type:text" json:"description"` // 商品描述
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`     // 创建时间
	UpdatedAt   time.Time      `json:"updated_at"`                  // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`              // 软删除时间

	Batches []ProductBatch `gorm:"foreignKey:ProductID" json:"batches,omitempty"` // 批次列表
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
