package admin

import (
	"strconv"

	"github.com/veritag-api/internal/http/handlers/shared"
	"github.com/veritag-api/internal/http/response"
	"github.com/veritag-api/internal/repository"
	"github.com/veritag-api/internal/service"

	"github.com/gin-gonic/gin"
)

type createBatchRequest struct {
	ProductID    uint   `json:"product_id" binding:"required"`
	BatchCode    string `json:"batch_code" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,gt=0"`
	QRCodePrefix string `json:"qr_code_prefix"`
}

// CreateBatch 创建批次。小批量同步生成，大批量拆分为异步任务。
func (h *Handler) CreateBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	batch, dispatch, err := h.BatchService.CreateBatch(service.CreateBatchInput{
		ProductID:    req.ProductID,
		BatchCode:    req.BatchCode,
		Quantity:     req.Quantity,
		QRCodePrefix: req.QRCodePrefix,
	})
	if err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "创建批次失败")
		return
	}
	if dispatch != nil {
		response.SuccessWithMsg(c, "批次已创建，单品正在异步生成", gin.H{
			"batch":      batch,
			"processing": dispatch,
		})
		return
	}
	response.SuccessWithMsg(c, "批次创建成功", batch)
}

// ListBatches 获取批次列表
func (h *Handler) ListBatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)
	productID, _ := strconv.ParseUint(c.Query("product_id"), 10, 64)

	batches, total, err := h.BatchService.ListBatches(repository.BatchListFilter{
		Page:      page,
		PageSize:  pageSize,
		ProductID: uint(productID),
		Status:    c.Query("status"),
	})
	if err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "获取批次列表失败")
		return
	}
	response.SuccessWithPage(c, batches, shared.BuildPagination(page, pageSize, total))
}

// GetBatch 获取批次详情
func (h *Handler) GetBatch(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "批次 ID 无效", nil)
		return
	}
	batch, err := h.BatchService.GetBatch(id)
	if err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "获取批次失败")
		return
	}
	response.Success(c, batch)
}

// GetBatchProgress 查询批次生成进度
func (h *Handler) GetBatchProgress(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "批次 ID 无效", nil)
		return
	}
	progress, err := h.BatchService.Progress(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "获取进度失败")
		return
	}
	response.Success(c, progress)
}

// GetBatchItems 分页获取批次单品
func (h *Handler) GetBatchItems(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "批次 ID 无效", nil)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	items, total, err := h.BatchService.ListBatchItems(id, page, pageSize)
	if err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "获取单品列表失败")
		return
	}
	response.SuccessWithPage(c, items, shared.BuildPagination(page, pageSize, total))
}

// RetryBatchJobs 把批次的失败任务重新入队
func (h *Handler) RetryBatchJobs(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "批次 ID 无效", nil)
		return
	}
	result, err := h.BatchService.RetryFailedJobs(id)
	if err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "失败任务重试失败")
		return
	}
	response.SuccessWithMsg(c, "失败任务已重新入队", result)
}

// DeleteBatch 删除批次及其单品
func (h *Handler) DeleteBatch(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "批次 ID 无效", nil)
		return
	}
	if err := h.BatchService.DeleteBatch(id); err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "删除批次失败")
		return
	}
	response.SuccessWithMsg(c, "删除成功", nil)
}

// IssueBatchDownloadToken 为已完成批次签发归档下载令牌
func (h *Handler) IssueBatchDownloadToken(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "批次 ID 无效", nil)
		return
	}
	batch, err := h.BatchService.GetBatch(id)
	if err != nil {
		respondWithMappedError(c, err, batchErrorRules, response.CodeInternal, "获取批次失败")
		return
	}
	if batch.BatchLinkDownload == "" || !h.ArchiveService.ArchiveExists(id) {
		respondWithMappedError(c, service.ErrArchiveNotReady, batchErrorRules, response.CodeInternal, "批次尚未生成完成")
		return
	}
	token, err := h.DownloadTokenService.Issue(id)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "签发下载令牌失败", err)
		return
	}
	response.Success(c, gin.H{
		"token":        token,
		"download_url": batch.BatchLinkDownload,
	})
}
