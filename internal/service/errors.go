package service

import "errors"

// 服务层哨兵错误，handler 层通过 errors.Is 映射为业务码
var (
	ErrProductInvalid      = errors.New("product invalid")
	ErrProductNotFound     = errors.New("product not found")
	ErrProductFetchFailed  = errors.New("product fetch failed")
	ErrProductCreateFailed = errors.New("product create failed")
	ErrProductUpdateFailed = errors.New("product update failed")
	ErrProductDeleteFailed = errors.New("product delete failed")

	ErrBatchInvalid      = errors.New("batch invalid")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrBatchCodeExists   = errors.New("batch code already exists")
	ErrBatchFetchFailed  = errors.New("batch fetch failed")
	ErrBatchCreateFailed = errors.New("batch create failed")
	ErrBatchDeleteFailed = errors.New("batch delete failed")
	ErrBatchFailedState  = errors.New("batch in failed state")

	ErrItemCreateFailed = errors.New("item create failed")
	ErrItemFetchFailed  = errors.New("item fetch failed")

	ErrQueueDisabled = errors.New("queue disabled")
	ErrEnqueueFailed = errors.New("enqueue failed")

	ErrArchiveNotReady     = errors.New("archive not ready")
	ErrArchiveCreateFailed = errors.New("archive create failed")

	ErrDownloadTokenInvalid = errors.New("download token invalid")

	ErrScanItemNotFound = errors.New("scan item not found")
	ErrScanFailed       = errors.New("scan failed")
)
