package repository

import "gorm.io/gorm"

// applyPagination 应用分页参数，页码从 1 开始，pageSize 不合法时不分页
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}

// ProductListFilter 查询商品列表的过滤条件
type ProductListFilter struct {
	Page     int
	PageSize int
	Category string
	Search   string
}

// BatchListFilter 查询批次列表的过滤条件
type BatchListFilter struct {
	Page      int
	PageSize  int
	ProductID uint
	Status    string
}

// ScanLogListFilter 查询扫码日志的过滤条件
type ScanLogListFilter struct {
	Page     int
	PageSize int
	ItemID   uint
}
