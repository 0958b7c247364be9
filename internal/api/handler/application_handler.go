package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"talent-match/internal/processor"
	"talent-match/internal/types"
)

// ApplicationService 职位申请
type ApplicationService interface {
	Create(ctx context.Context, req processor.CreateApplicationRequest) (types.Application, error)
	Recheck(ctx context.Context, applicationID string) (types.Application, error)
	Rankings(ctx context.Context, roleID string, limit int) ([]types.Application, error)
}

// ApplicationHandler 职位申请接口
type ApplicationHandler struct {
	svc ApplicationService
}

// NewApplicationHandler 创建申请接口处理器
func NewApplicationHandler(svc ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{svc: svc}
}

// HandleCreate 提交申请。
// POST /api/v1/applications
func (h *ApplicationHandler) HandleCreate(ctx context.Context, c *app.RequestContext) {
	var req processor.CreateApplicationRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(ctx, c, err)
		return
	}
	application, err := h.svc.Create(ctx, req)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, application)
}

// HandleRecheck 重新校验申请。
// POST /api/v1/applications/:application_id/check-eligibility
func (h *ApplicationHandler) HandleRecheck(ctx context.Context, c *app.RequestContext) {
	application, err := h.svc.Recheck(ctx, c.Param("application_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, application)
}

// HandleRankings 职位下通过校验的申请排名。
// GET /api/v1/roles/:role_id/rankings?limit=
func (h *ApplicationHandler) HandleRankings(ctx context.Context, c *app.RequestContext) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		limit = 0
	}
	roleID := c.Param("role_id")
	apps, err := h.svc.Rankings(ctx, roleID, limit)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"role_id":      roleID,
		"applications": apps,
		"total":        len(apps),
	})
}
