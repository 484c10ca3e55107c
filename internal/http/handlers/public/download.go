package public

import (
	"strings"

	"github.com/veritag-api/internal/http/handlers/shared"
	"github.com/veritag-api/internal/http/response"
	"github.com/veritag-api/internal/service"

	"github.com/gin-gonic/gin"
)

// DownloadBatchArchive 下载批次码图压缩包。
// 链接不走登录态，靠短期令牌限定批次与有效期。
func (h *Handler) DownloadBatchArchive(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Unauthorized(c, "缺少下载令牌")
		return
	}
	batchID, err := h.DownloadTokenService.Validate(token)
	if err != nil {
		response.Unauthorized(c, "下载令牌无效或已过期")
		return
	}
	// 令牌只放行自己批次的压缩包
	if c.Param("filename") != service.ArchiveFileName(batchID) {
		shared.RespondError(c, response.CodeNotFound, "压缩包不存在", nil)
		return
	}
	if !h.ArchiveService.ArchiveExists(batchID) {
		shared.RespondError(c, response.CodeNotFound, "压缩包不存在", nil)
		return
	}
	c.FileAttachment(h.ArchiveService.ArchivePath(batchID), service.ArchiveFileName(batchID))
}
