package admin

import (
	"errors"

	"github.com/veritag-api/internal/http/handlers/shared"
	"github.com/veritag-api/internal/http/response"
	"github.com/veritag-api/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target  error
	code    int
	message string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			shared.RespondError(c, rule.code, rule.message, nil)
			return
		}
	}
	shared.RespondError(c, fallbackCode, fallbackMsg, err)
}

var productErrorRules = []mappedHandlerError{
	{target: service.ErrProductInvalid, code: response.CodeBadRequest, message: "商品参数无效"},
	{target: service.ErrProductNotFound, code: response.CodeNotFound, message: "商品不存在"},
}

var batchErrorRules = []mappedHandlerError{
	{target: service.ErrBatchInvalid, code: response.CodeBadRequest, message: "批次参数无效"},
	{target: service.ErrBatchNotFound, code: response.CodeNotFound, message: "批次不存在"},
	{target: service.ErrBatchCodeExists, code: response.CodeBadRequest, message: "批次号已存在"},
	{target: service.ErrProductNotFound, code: response.CodeBadRequest, message: "商品不存在"},
	{target: service.ErrQueueDisabled, code: response.CodeInternal, message: "异步队列未启用"},
	{target: service.ErrEnqueueFailed, code: response.CodeInternal, message: "生成任务入队失败"},
	{target: service.ErrArchiveNotReady, code: response.CodeBadRequest, message: "批次尚未生成完成"},
}
