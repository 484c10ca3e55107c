package models

import (
	"time"

	"gorm.io/gorm"
)

// ProductItem 单品表（每个实体商品一条）
type ProductItem struct {
	ID           uint           `gorm:"primarykey" json:"id"`                               // 主键
	BatchID      uint           `gorm:"index;not null" json:"batch_id"`                     // 批次ID
	QRCode       string         `gorm:"uniqueIndex;not null;size:255" json:"qr_code"`       // 扫码串
	SerialNumber string         `gorm:"uniqueIndex;not null;size:255" json:"serial_number"` // 序列号（{批次号}-{8位序号}）
	ItemOrder    int            `gorm:"index;not null;default:0" json:"item_order"`         // 批次内顺序
	Status       string         `gorm:"index;not null;default:'unscanned'" json:"status"`   // 扫码状态（unscanned/scanned/flagged）
	FirstScanAt  *time.Time     `json:"first_scan_at"`                                      // 首次扫码时间
	ScanCount    int            `gorm:"not null;default:0" json:"scan_count"`               // 扫码次数
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt    time.Time      `json:"updated_at"`                                         // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                     // 软删除时间

	Batch *ProductBatch `gorm:"foreignKey:BatchID" json:"batch,omitempty"` // 批次信息
}

// TableName 指定表名
func (ProductItem) TableName() string {
	return "product_items"
}
