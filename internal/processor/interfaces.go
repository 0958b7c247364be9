package processor

import (
	"context"
	"io"

	"talent-match/internal/storage/models"
	"talent-match/internal/types"
	"talent-match/internal/vectorindex"
)

// RoleRepository 职位数据源
type RoleRepository interface {
	ListActiveRoles(ctx context.Context) ([]types.RoleRequirement, error)
	GetRole(ctx context.Context, id string) (types.RoleRequirement, error)
	SaveRole(ctx context.Context, role types.RoleRequirement, events ...models.OutboxMessage) (types.RoleRequirement, error)
}

// CandidateRepository 候选人与简历数据源
type CandidateRepository interface {
	EnsureCandidate(ctx context.Context, candidateID string) error
	GetMatchingProfile(ctx context.Context, candidateID, cvID string) (*types.CandidateProfile, error)
	SaveCV(ctx context.Context, cv *models.CandidateCV) error
}

// ApplicationRepository 职位申请数据源
type ApplicationRepository interface {
	Create(ctx context.Context, app *types.Application) error
	Get(ctx context.Context, id string) (types.Application, error)
	UpdateEligibility(ctx context.Context, id string, result types.EligibilityResult, combinedScore float64) (types.Application, error)
	ListEligibleByRole(ctx context.Context, roleID string, limit int) ([]types.Application, error)
}

// RoleMatcher 计算候选人对全部启用职位的匹配结果
type RoleMatcher interface {
	FindMatchingRoles(ctx context.Context, candidateID, resumeText string, parsed *types.ParsedSkills) ([]types.MatchResult, error)
}

// VectorIndex 向量索引操作
type VectorIndex interface {
	Backend() string
	UpsertRole(ctx context.Context, role types.RoleRequirement) (int, error)
	UpsertResume(ctx context.Context, candidateID, resumeText string) (int, error)
	DeleteRole(ctx context.Context, roleID string) error
	Search(ctx context.Context, query string, tag types.ChunkTag, k int) ([]types.SearchHit, error)
	Rebuild(ctx context.Context, roles vectorindex.RoleLister) (int, error)
	Stats(ctx context.Context) (types.IndexStats, error)
}

// FileStore 简历原件存储
type FileStore interface {
	UploadResumeFile(ctx context.Context, candidateID, fileName string, reader io.Reader, fileSize int64) (string, error)
	DeleteFile(ctx context.Context, objectName string) error
}

// PDFExtractor PDF文本提取
type PDFExtractor interface {
	ExtractText(ctx context.Context, reader io.Reader, uri string) (string, error)
}
