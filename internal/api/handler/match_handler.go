package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"talent-match/internal/types"
)

// MatchService 匹配与资格校验
type MatchService interface {
	GetMatchedRoles(ctx context.Context, candidateID, cvID string) (types.MatchResponse, error)
	CheckEligibility(ctx context.Context, candidateID, roleID, cvID string) (types.EligibilityResult, error)
}

// MatchHandler 候选人匹配接口
type MatchHandler struct {
	svc MatchService
}

// NewMatchHandler 创建匹配接口处理器
func NewMatchHandler(svc MatchService) *MatchHandler {
	return &MatchHandler{svc: svc}
}

// CheckEligibilityRequest 资格校验请求
type CheckEligibilityRequest struct {
	RoleID string `json:"role_id" validate:"required"`
	CVID   string `json:"cv_id,omitempty"`
}

// HandleMatchedRoles 候选人对全部启用职位的匹配排名。
// GET /api/v1/candidates/:candidate_id/matched-roles
func (h *MatchHandler) HandleMatchedRoles(ctx context.Context, c *app.RequestContext) {
	resp, err := h.svc.GetMatchedRoles(ctx, c.Param("candidate_id"), c.Query("cv_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// HandleCheckEligibility 校验候选人是否满足职位的必备技能。
// POST /api/v1/candidates/:candidate_id/check-eligibility
func (h *MatchHandler) HandleCheckEligibility(ctx context.Context, c *app.RequestContext) {
	var req CheckEligibilityRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(ctx, c, err)
		return
	}
	result, err := h.svc.CheckEligibility(ctx, c.Param("candidate_id"), req.RoleID, req.CVID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}
