package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"talent-match/internal/logger"
	"talent-match/internal/outbox"
	"talent-match/internal/storage/models"
	"talent-match/internal/types"
)

const defaultMaxUploadBytes = 10 << 20

// ResumeUploadResult 简历上传并索引的结果
type ResumeUploadResult struct {
	CandidateID string `json:"candidate_id"`
	CVID        string `json:"cv_id"`
	ObjectKey   string `json:"object_key,omitempty"`
	Chunks      int    `json:"chunks"`
}

// IndexService 职位保存、向量索引维护和简历入库
type IndexService struct {
	roles      RoleRepository
	candidates CandidateRepository
	index      VectorIndex

	// 配置了变更交换机时，职位保存与 outbox 消息同事务写入，由消费者异步索引
	exchange   string
	routingKey string

	files          FileStore
	pdf            PDFExtractor
	maxUploadBytes int64

	logger zerolog.Logger
}

// IndexServiceOption 索引服务配置项
type IndexServiceOption func(*IndexService)

// WithChangeEvents 职位保存时写入 role.changed 的 outbox 消息，不再同步索引
func WithChangeEvents(exchange, routingKey string) IndexServiceOption {
	return func(s *IndexService) {
		s.exchange = exchange
		s.routingKey = routingKey
	}
}

// WithResumeFiles 启用PDF简历上传，files 为 nil 时不保存原件
func WithResumeFiles(files FileStore, pdf PDFExtractor, maxBytes int64) IndexServiceOption {
	return func(s *IndexService) {
		s.files = files
		s.pdf = pdf
		if maxBytes > 0 {
			s.maxUploadBytes = maxBytes
		}
	}
}

// NewIndexService 创建索引服务
func NewIndexService(roles RoleRepository, candidates CandidateRepository, index VectorIndex, opts ...IndexServiceOption) *IndexService {
	s := &IndexService{
		roles:          roles,
		candidates:     candidates,
		index:          index,
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         logger.Component("index-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *IndexService) asyncEvents() bool {
	return s.exchange != "" && s.routingKey != ""
}

// SaveRole 保存职位。异步模式下只写 outbox；同步模式下立即重新索引，
// 索引失败时职位已保存，返回的错误可由重建索引补救
func (s *IndexService) SaveRole(ctx context.Context, role types.RoleRequirement) (types.RoleRequirement, error) {
	role.ID = strings.TrimSpace(role.ID)
	role.Title = strings.TrimSpace(role.Title)
	if role.ID == "" || role.Title == "" {
		return types.RoleRequirement{}, fmt.Errorf("%w: 职位ID和名称不能为空", types.ErrInvalidInput)
	}

	if s.asyncEvents() {
		msg, err := outbox.NewRoleChangedMessage(role.ID, role.Active, s.exchange, s.routingKey)
		if err != nil {
			return types.RoleRequirement{}, err
		}
		return s.roles.SaveRole(ctx, role, msg)
	}

	saved, err := s.roles.SaveRole(ctx, role)
	if err != nil {
		return types.RoleRequirement{}, err
	}
	if _, err := s.applyRole(ctx, saved); err != nil {
		return saved, fmt.Errorf("职位 %s 已保存但索引失败: %w", saved.ID, err)
	}
	return saved, nil
}

// IndexRole 按数据库中的当前状态重新索引一个职位，停用的职位删除其分块
func (s *IndexService) IndexRole(ctx context.Context, roleID string) (int, error) {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return 0, err
	}
	return s.applyRole(ctx, role)
}

func (s *IndexService) applyRole(ctx context.Context, role types.RoleRequirement) (int, error) {
	if !role.Active {
		return 0, s.index.DeleteRole(ctx, role.ID)
	}
	return s.index.UpsertRole(ctx, role)
}

// Rebuild 清空并按全部启用职位重建索引
func (s *IndexService) Rebuild(ctx context.Context) (int, error) {
	return s.index.Rebuild(ctx, s.roles)
}

// IndexResumeText 索引候选人的简历全文
func (s *IndexService) IndexResumeText(ctx context.Context, candidateID, text string) (int, error) {
	if err := s.candidates.EnsureCandidate(ctx, candidateID); err != nil {
		return 0, err
	}
	return s.index.UpsertResume(ctx, candidateID, text)
}

// IndexResumeFile 保存PDF原件，提取全文，新增一条简历记录并索引
func (s *IndexService) IndexResumeFile(ctx context.Context, candidateID, fileName string, r io.Reader) (ResumeUploadResult, error) {
	if s.pdf == nil {
		return ResumeUploadResult{}, fmt.Errorf("%w: 未启用简历文件上传", types.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return ResumeUploadResult{}, fmt.Errorf("%w: 只支持PDF简历", types.ErrInvalidInput)
	}
	if err := s.candidates.EnsureCandidate(ctx, candidateID); err != nil {
		return ResumeUploadResult{}, err
	}

	// 原件需要读两遍：上传和提取
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		return ResumeUploadResult{}, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if n > s.maxUploadBytes {
		return ResumeUploadResult{}, fmt.Errorf("%w: 文件超过 %d 字节", types.ErrInvalidInput, s.maxUploadBytes)
	}
	if n == 0 {
		return ResumeUploadResult{}, fmt.Errorf("%w: 上传文件为空", types.ErrInvalidInput)
	}
	data := buf.Bytes()

	result := ResumeUploadResult{CandidateID: candidateID, CVID: uuid.NewString()}
	if s.files != nil {
		result.ObjectKey, err = s.files.UploadResumeFile(ctx, candidateID, fileName, bytes.NewReader(data), n)
		if err != nil {
			return ResumeUploadResult{}, fmt.Errorf("保存简历原件失败: %w", err)
		}
	}

	extractCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	text, err := s.pdf.ExtractText(extractCtx, bytes.NewReader(data), fileName)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("PDF中没有可提取的文本")
	}
	if err != nil {
		s.discardUpload(ctx, result.ObjectKey)
		return ResumeUploadResult{}, fmt.Errorf("%w: 提取PDF文本失败: %w", types.ErrInvalidInput, err)
	}

	cv := &models.CandidateCV{
		ID:          result.CVID,
		CandidateID: candidateID,
		FileName:    fileName,
		StoragePath: result.ObjectKey,
		Status:      models.CVStatusTextOnly,
		ResumeText:  text,
	}
	if err := s.candidates.SaveCV(ctx, cv); err != nil {
		s.discardUpload(ctx, result.ObjectKey)
		return ResumeUploadResult{}, err
	}

	result.Chunks, err = s.index.UpsertResume(ctx, candidateID, text)
	if err != nil {
		return result, err
	}
	s.logger.Info().
		Str("candidate_id", candidateID).
		Str("cv_id", result.CVID).
		Int("chunks", result.Chunks).
		Msg("简历文件已入库并索引")
	return result, nil
}

// discardUpload 删除没有对应简历记录的原件
func (s *IndexService) discardUpload(ctx context.Context, objectKey string) {
	if s.files == nil || objectKey == "" {
		return
	}
	if err := s.files.DeleteFile(ctx, objectKey); err != nil {
		s.logger.Warn().Err(err).Str("object", objectKey).Msg("回滚简历原件失败")
	}
}

// Search 在指定标签下检索
func (s *IndexService) Search(ctx context.Context, query string, tag types.ChunkTag, k int) ([]types.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: 查询文本不能为空", types.ErrInvalidInput)
	}
	return s.index.Search(ctx, query, tag, k)
}

// Stats 索引统计
func (s *IndexService) Stats(ctx context.Context) (types.IndexStats, error) {
	return s.index.Stats(ctx)
}

// IsUnavailable 是否为embedding服务或向量索引不可用导致的错误
func IsUnavailable(err error) bool {
	return errors.Is(err, types.ErrProvider) || errors.Is(err, types.ErrIndexUnavailable)
}
