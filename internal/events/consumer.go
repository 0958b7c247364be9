package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"talent-match/internal/constants"
	"talent-match/internal/logger"
	"talent-match/internal/storage"
	"talent-match/internal/types"
)

// RoleIndexer 变更消费者依赖的索引操作
type RoleIndexer interface {
	UpsertRole(ctx context.Context, role types.RoleRequirement) (int, error)
	DeleteRole(ctx context.Context, roleID string) error
	UpsertResume(ctx context.Context, candidateID, resumeText string) (int, error)
}

// RoleGetter 按ID读取职位
type RoleGetter interface {
	GetRole(ctx context.Context, id string) (types.RoleRequirement, error)
}

// ProfileGetter 读取候选人画像，事件未携带简历全文时使用
type ProfileGetter interface {
	GetMatchingProfile(ctx context.Context, candidateID, cvID string) (*types.CandidateProfile, error)
}

// ChangeConsumer 消费职位变更和简历解析事件，保持向量索引与数据源一致
type ChangeConsumer struct {
	index      RoleIndexer
	roles      RoleGetter
	candidates ProfileGetter
	logger     zerolog.Logger
}

// NewChangeConsumer 创建变更事件消费者
func NewChangeConsumer(index RoleIndexer, roles RoleGetter, candidates ProfileGetter) *ChangeConsumer {
	return &ChangeConsumer{
		index:      index,
		roles:      roles,
		candidates: candidates,
		logger:     logger.Component("change-consumer"),
	}
}

// HandleMessage 处理一条消息，返回 false 表示需要重新投递。
// 格式错误和引用不存在的消息直接确认，只有可重试的故障才重新入队
func (c *ChangeConsumer) HandleMessage(ctx context.Context, body []byte) bool {
	var event storage.ChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error().Err(err).Str("body", truncate(string(body), 256)).Msg("无法解析变更事件，丢弃")
		return true
	}

	var err error
	switch event.EventType {
	case constants.EventTypeRoleChanged:
		err = c.handleRoleChanged(ctx, event)
	case constants.EventTypeResumeParsed:
		err = c.handleResumeParsed(ctx, event)
	default:
		c.logger.Warn().Str("event_type", event.EventType).Msg("未知的事件类型，丢弃")
		return true
	}

	switch {
	case err == nil:
		return true
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, types.ErrNotFound), types.IsPermanentProviderError(err):
		c.logger.Warn().Err(err).Str("event_type", event.EventType).Msg("事件无法处理，丢弃")
		return true
	default:
		c.logger.Error().Err(err).Str("event_type", event.EventType).Msg("处理事件失败，重新入队")
		return false
	}
}

func (c *ChangeConsumer) handleRoleChanged(ctx context.Context, event storage.ChangeEvent) error {
	if strings.TrimSpace(event.RoleID) == "" {
		return types.ErrInvalidInput
	}

	role, err := c.roles.GetRole(ctx, event.RoleID)
	if errors.Is(err, types.ErrNotFound) {
		// 职位已删除，清理残留分块
		return c.index.DeleteRole(ctx, event.RoleID)
	}
	if err != nil {
		return err
	}

	// 以数据库中的当前状态为准，事件里的 active 只用于日志
	if !role.Active {
		c.logger.Info().Str("role_id", role.ID).Msg("职位已停用，删除分块")
		return c.index.DeleteRole(ctx, role.ID)
	}
	n, err := c.index.UpsertRole(ctx, role)
	if err != nil {
		return err
	}
	c.logger.Info().Str("role_id", role.ID).Int("chunks", n).Msg("职位已重新索引")
	return nil
}

func (c *ChangeConsumer) handleResumeParsed(ctx context.Context, event storage.ChangeEvent) error {
	if strings.TrimSpace(event.CandidateID) == "" {
		return types.ErrInvalidInput
	}

	text := event.ResumeText
	if strings.TrimSpace(text) == "" {
		profile, err := c.candidates.GetMatchingProfile(ctx, event.CandidateID, event.CVID)
		if err != nil {
			return err
		}
		text = profile.ResumeText
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Info().Str("candidate_id", event.CandidateID).Msg("简历没有全文，跳过索引")
		return nil
	}

	n, err := c.index.UpsertResume(ctx, event.CandidateID, text)
	if err != nil {
		return err
	}
	c.logger.Info().Str("candidate_id", event.CandidateID).Int("chunks", n).Msg("简历已索引")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
