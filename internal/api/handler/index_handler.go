package handler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"talent-match/internal/processor"
	"talent-match/internal/types"
)

const defaultSearchK = 5

// IndexService 职位保存与向量索引管理
type IndexService interface {
	SaveRole(ctx context.Context, role types.RoleRequirement) (types.RoleRequirement, error)
	IndexRole(ctx context.Context, roleID string) (int, error)
	Rebuild(ctx context.Context) (int, error)
	IndexResumeText(ctx context.Context, candidateID, text string) (int, error)
	IndexResumeFile(ctx context.Context, candidateID, fileName string, r io.Reader) (processor.ResumeUploadResult, error)
	Search(ctx context.Context, query string, tag types.ChunkTag, k int) ([]types.SearchHit, error)
	Stats(ctx context.Context) (types.IndexStats, error)
}

// IndexHandler 管理接口
type IndexHandler struct {
	svc IndexService
}

// NewIndexHandler 创建管理接口处理器
func NewIndexHandler(svc IndexService) *IndexHandler {
	return &IndexHandler{svc: svc}
}

// SaveRoleRequest 保存职位请求，active 缺省为 true
type SaveRoleRequest struct {
	Title         string   `json:"title" validate:"required"`
	Department    string   `json:"department"`
	Location      string   `json:"location"`
	WorkType      string   `json:"work_type"`
	Description   string   `json:"description"`
	SalaryMin     *float64 `json:"salary_min"`
	SalaryMax     *float64 `json:"salary_max"`
	Currency      string   `json:"currency"`
	Required      []string `json:"required_skills"`
	Preferred     []string `json:"preferred_skills"`
	MinExperience *float64 `json:"min_experience" validate:"omitempty,gte=0"`
	MaxExperience *float64 `json:"max_experience" validate:"omitempty,gte=0"`
	Active        *bool    `json:"active"`
}

// IndexResumeRequest JSON方式提交简历全文
type IndexResumeRequest struct {
	ResumeText string `json:"resume_text" validate:"required"`
}

// HandleSaveRole 新增或更新职位。
// PUT /api/v1/admin/roles/:role_id
func (h *IndexHandler) HandleSaveRole(ctx context.Context, c *app.RequestContext) {
	var req SaveRoleRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(ctx, c, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	role := types.RoleRequirement{
		ID:            c.Param("role_id"),
		Title:         req.Title,
		Department:    req.Department,
		Location:      req.Location,
		WorkType:      req.WorkType,
		Description:   req.Description,
		SalaryMin:     req.SalaryMin,
		SalaryMax:     req.SalaryMax,
		Currency:      req.Currency,
		Required:      types.CoerceSkillList(req.Required),
		Preferred:     types.CoerceSkillList(req.Preferred),
		MinExperience: req.MinExperience,
		MaxExperience: req.MaxExperience,
		Active:        active,
	}
	saved, err := h.svc.SaveRole(ctx, role)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, saved)
}

// HandleIndexRole 重新索引一个职位。
// POST /api/v1/admin/index/roles/:role_id
func (h *IndexHandler) HandleIndexRole(ctx context.Context, c *app.RequestContext) {
	roleID := c.Param("role_id")
	n, err := h.svc.IndexRole(ctx, roleID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"role_id": roleID, "chunks": n})
}

// HandleRebuild 重建全部索引。
// POST /api/v1/admin/index/rebuild
func (h *IndexHandler) HandleRebuild(ctx context.Context, c *app.RequestContext) {
	n, err := h.svc.Rebuild(ctx)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "indexed": n})
}

// HandleIndexResume 索引简历，multipart 上传PDF(file字段)或JSON提交全文。
// POST /api/v1/admin/index/resumes/:candidate_id
func (h *IndexHandler) HandleIndexResume(ctx context.Context, c *app.RequestContext) {
	candidateID := c.Param("candidate_id")

	if strings.HasPrefix(string(c.ContentType()), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			writeError(ctx, c, fmt.Errorf("%w: 文件未找到", types.ErrInvalidInput))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			writeError(ctx, c, fmt.Errorf("打开上传文件失败: %w", err))
			return
		}
		defer file.Close()

		result, err := h.svc.IndexResumeFile(ctx, candidateID, fileHeader.Filename, file)
		if err != nil {
			writeError(ctx, c, err)
			return
		}
		c.JSON(consts.StatusOK, result)
		return
	}

	var req IndexResumeRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(ctx, c, err)
		return
	}
	n, err := h.svc.IndexResumeText(ctx, candidateID, req.ResumeText)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, processor.ResumeUploadResult{CandidateID: candidateID, Chunks: n})
}

// HandleSearch 直接检索向量索引。
// GET /api/v1/admin/index/search?q=&tag=role&k=5
func (h *IndexHandler) HandleSearch(ctx context.Context, c *app.RequestContext) {
	tag, err := types.ParseChunkTag(c.Query("tag"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	k, err := strconv.Atoi(c.DefaultQuery("k", strconv.Itoa(defaultSearchK)))
	if err != nil {
		writeError(ctx, c, fmt.Errorf("%w: k 必须是整数", types.ErrInvalidInput))
		return
	}
	hits, err := h.svc.Search(ctx, c.Query("q"), tag, k)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"tag": tag, "results": hits, "total": len(hits)})
}

// HandleStats 索引统计。
// GET /api/v1/admin/index/stats
func (h *IndexHandler) HandleStats(ctx context.Context, c *app.RequestContext) {
	stats, err := h.svc.Stats(ctx)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, stats)
}
