package models

import (
	"time"
)

// ScanLog 扫码日志表
type ScanLog struct {
	ID         uint      `gorm:"primarykey" json:"id"`                // 主键
	ItemID     uint      `gorm:"index;not null" json:"item_id"`       // 单品ID
	ScannedAt  time.Time `gorm:"index" json:"scanned_at"`             // 扫码时间
	ClientIP   string    `gorm:"size:45" json:"client_ip"`            // 客户端IP
	DeviceInfo string    `gorm:"type:text" json:"device_info"`        // 设备信息
	CreatedAt  time.Time `gorm:"index" json:"created_at"`             // 创建时间

	Item *ProductItem `gorm:"foreignKey:ItemID" json:"item,omitempty"` // 单品信息
}

// TableName 指定表名
func (ScanLog) TableName() string {
	return "scan_logs"
}
