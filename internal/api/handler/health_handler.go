package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// HealthCheck 依赖检查，返回 nil 表示正常
type HealthCheck func(ctx context.Context) error

// HealthHandler 健康检查
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HandleHealth GET /health
func (h *HealthHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := consts.StatusOK
	details := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			details[name] = err.Error()
			status = consts.StatusServiceUnavailable
			continue
		}
		details[name] = "ok"
	}

	overall := "ok"
	if status != consts.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, utils.H{"status": overall, "checks": details})
}
