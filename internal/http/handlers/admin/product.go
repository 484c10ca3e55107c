package admin

import (
	"strconv"

	"github.com/veritag-api/internal/http/handlers/shared"
	"github.com/veritag-api/internal/http/response"
	"github.com/veritag-api/internal/repository"
	"github.com/veritag-api/internal/service"

	"github.com/gin-gonic/gin"
)

type createProductRequest struct {
	Name        string `json:"name" binding:"required"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
	Description string `json:"description"`
}

// CreateProduct 创建商品
func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	product, err := h.ProductService.CreateProduct(service.CreateProductInput{
		Name:        req.Name,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Description: req.Description,
	})
	if err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "创建商品失败")
		return
	}
	response.Success(c, product)
}

// GetProduct 获取商品详情
func (h *Handler) GetProduct(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "商品 ID 无效", nil)
		return
	}
	product, err := h.ProductService.GetProduct(id)
	if err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "获取商品失败")
		return
	}
	response.Success(c, product)
}

// ListProducts 获取商品列表
func (h *Handler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	products, total, err := h.ProductService.ListProducts(repository.ProductListFilter{
		Page:     page,
		PageSize: pageSize,
		Category: c.Query("category"),
		Search:   c.Query("search"),
	})
	if err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "获取商品列表失败")
		return
	}
	response.SuccessWithPage(c, products, shared.BuildPagination(page, pageSize, total))
}

type updateProductRequest struct {
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	ImageURL    *string `json:"image_url"`
	Description *string `json:"description"`
}

// UpdateProduct 更新商品
func (h *Handler) UpdateProduct(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "商品 ID 无效", nil)
		return
	}
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	product, err := h.ProductService.UpdateProduct(id, service.UpdateProductInput{
		Name:        req.Name,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Description: req.Description,
	})
	if err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "更新商品失败")
		return
	}
	response.Success(c, product)
}

// DeleteProduct 删除商品
func (h *Handler) DeleteProduct(c *gin.Context) {
	id := parseIDParam(c)
	if id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "商品 ID 无效", nil)
		return
	}
	if err := h.ProductService.DeleteProduct(id); err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "删除商品失败")
		return
	}
	response.SuccessWithMsg(c, "删除成功", nil)
}

func parseIDParam(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
