package public

import (
	"strconv"
	"strings"

	"github.com/veritag-api/internal/http/handlers/shared"
	"github.com/veritag-api/internal/http/response"
	"github.com/veritag-api/internal/repository"

	"github.com/gin-gonic/gin"
)

// ScanItem 扫码验证单品真伪
func (h *Handler) ScanItem(c *gin.Context) {
	qrCode := strings.TrimSpace(c.Param("code"))
	if qrCode == "" {
		shared.RespondError(c, response.CodeBadRequest, "扫码串不能为空", nil)
		return
	}
	result, err := h.ScanService.Scan(qrCode, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "扫码验证失败", err)
		return
	}
	if !result.Genuine {
		response.SuccessWithMsg(c, "未找到对应的单品，谨防假冒", result)
		return
	}
	response.Success(c, result)
}

// GetScanHistory 查询单品的扫码日志
func (h *Handler) GetScanHistory(c *gin.Context) {
	itemID, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	if itemID == 0 {
		shared.RespondError(c, response.CodeBadRequest, "单品 ID 无效", nil)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	logs, total, err := h.ScanService.ScanHistory(repository.ScanLogListFilter{
		Page:     page,
		PageSize: pageSize,
		ItemID:   uint(itemID),
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "获取扫码日志失败", err)
		return
	}
	response.SuccessWithPage(c, logs, shared.BuildPagination(page, pageSize, total))
}
