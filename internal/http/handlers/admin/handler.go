package admin

import "github.com/veritag-api/internal/provider"

// Handler 管理端接口处理器入口
// 说明：商品、批次的维护接口都挂在这里。
type Handler struct {
	*provider.Container
}

// New 创建管理端处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
