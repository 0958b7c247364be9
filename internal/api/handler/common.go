package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"

	"talent-match/internal/logger"
	"talent-match/internal/processor"
	"talent-match/internal/types"
)

const msgIndexingUnavailable = "indexing unavailable"

var validate = validator.New()

// bindJSON 解析JSON请求体并按 validate 标签校验
func bindJSON(c *app.RequestContext, req any) error {
	if err := c.BindJSON(req); err != nil {
		return fmt.Errorf("%w: 请求体格式错误: %v", types.ErrInvalidInput, err)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	return nil
}

// writeError 把业务错误映射为HTTP状态码
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	var ineligible *types.IneligibleError
	switch {
	case errors.As(err, &ineligible):
		c.JSON(consts.StatusUnprocessableEntity, utils.H{
			"error":       ineligible.Error(),
			"eligibility": ineligible.Result,
		})
	case errors.Is(err, types.ErrNotFound):
		c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, types.ErrInvalidInput):
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
	case processor.IsUnavailable(err):
		logger.Ctx(ctx).Warn().Err(err).Str("path", string(c.Path())).Msg("索引或embedding服务不可用")
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": msgIndexingUnavailable})
	default:
		logger.Ctx(ctx).Error().Err(err).Str("path", string(c.Path())).Msg("请求处理失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "internal server error"})
	}
}
