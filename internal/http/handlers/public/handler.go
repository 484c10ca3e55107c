package public

import "github.com/veritag-api/internal/provider"

// Handler 公开接口处理器入口
// 说明：扫码验证与归档下载走这里，不要求登录态。
type Handler struct {
	*provider.Container
}

// New 创建公开处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
