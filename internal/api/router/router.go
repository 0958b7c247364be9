package router

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"

	"talent-match/internal/api/handler"
	"talent-match/internal/constants"
	"talent-match/internal/logger"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Match       *handler.MatchHandler
	Application *handler.ApplicationHandler
	Index       *handler.IndexHandler
	Health      *handler.HealthHandler
}

// RegisterRoutes 注册 API 路由。adminAPIKey 为空时管理接口不做鉴权
func RegisterRoutes(h *server.Hertz, handlers Handlers, adminAPIKey string) {
	h.Use(RequestID(), AccessLog())

	h.GET("/health", handlers.Health.HandleHealth)

	api := h.Group("/api/v1")
	api.GET("/health", handlers.Health.HandleHealth)

	api.GET("/candidates/:candidate_id/matched-roles", handlers.Match.HandleMatchedRoles)
	api.POST("/candidates/:candidate_id/check-eligibility", handlers.Match.HandleCheckEligibility)

	api.POST("/applications", handlers.Application.HandleCreate)
	api.POST("/applications/:application_id/check-eligibility", handlers.Application.HandleRecheck)
	api.GET("/roles/:role_id/rankings", handlers.Application.HandleRankings)

	admin := api.Group("/admin")
	if adminAPIKey != "" {
		admin.Use(AdminAuth(adminAPIKey))
	} else {
		logger.Warn().Msg("未配置 admin_api_key，管理接口不做鉴权")
	}
	admin.PUT("/roles/:role_id", handlers.Index.HandleSaveRole)
	admin.POST("/index/roles/:role_id", handlers.Index.HandleIndexRole)
	admin.POST("/index/rebuild", handlers.Index.HandleRebuild)
	admin.POST("/index/resumes/:candidate_id", handlers.Index.HandleIndexResume)
	admin.GET("/index/search", handlers.Index.HandleSearch)
	admin.GET("/index/stats", handlers.Index.HandleStats)
}

// AdminAuth 校验 X-API-Key 请求头
func AdminAuth(apiKey string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+constants.HeaderAPIKey, ""),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			return key == apiKey, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "unauthorized"})
		}),
	)
}

// RequestID 透传或生成请求ID，并把带 request_id 字段的日志记录器放入上下文
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		requestID := string(c.GetHeader(constants.HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Response.Header.Set(constants.HeaderRequestID, requestID)

		l := logger.Logger.With().Str("request_id", requestID).Logger()
		ctx = logger.WithContext(ctx, l)
		c.Next(ctx)
	}
}

// AccessLog 记录每个请求的方法、路径、状态码和耗时
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		logger.Ctx(ctx).Info().
			Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Int("status", c.Response.StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
