package processor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"talent-match/internal/logger"
	"talent-match/internal/matching"
	"talent-match/internal/types"
)

const defaultRankingLimit = 50

// CreateApplicationRequest 申请参数，CVID 为空时使用主简历或最近解析的简历
type CreateApplicationRequest struct {
	CandidateID string `json:"candidate_id" validate:"required"`
	RoleID      string `json:"role_id" validate:"required"`
	CVID        string `json:"cv_id,omitempty"`
}

// ApplicationService 职位申请：提交时做资格校验并保存快照，支持重新校验和排名
type ApplicationService struct {
	roles           RoleRepository
	candidates      CandidateRepository
	apps            ApplicationRepository
	matcher         RoleMatcher
	allowIneligible bool
	logger          zerolog.Logger
}

// NewApplicationService 创建申请服务。allowIneligible 为 true 时不满足必备技能的申请也会保存
func NewApplicationService(roles RoleRepository, candidates CandidateRepository, apps ApplicationRepository, matcher RoleMatcher, allowIneligible bool) *ApplicationService {
	return &ApplicationService{
		roles:           roles,
		candidates:      candidates,
		apps:            apps,
		matcher:         matcher,
		allowIneligible: allowIneligible,
		logger:          logger.Component("application-service"),
	}
}

// Create 提交申请
func (s *ApplicationService) Create(ctx context.Context, req CreateApplicationRequest) (types.Application, error) {
	if strings.TrimSpace(req.CandidateID) == "" || strings.TrimSpace(req.RoleID) == "" {
		return types.Application{}, fmt.Errorf("%w: 候选人ID和职位ID不能为空", types.ErrInvalidInput)
	}
	role, err := s.roles.GetRole(ctx, req.RoleID)
	if err != nil {
		return types.Application{}, err
	}
	if !role.Active {
		return types.Application{}, fmt.Errorf("%w: 职位 %s 已停止招聘", types.ErrInvalidInput, role.ID)
	}
	profile, err := s.candidates.GetMatchingProfile(ctx, req.CandidateID, req.CVID)
	if err != nil {
		return types.Application{}, err
	}
	if !profile.HasResume() {
		return types.Application{}, fmt.Errorf("%w: 候选人 %s 没有可用的简历", types.ErrInvalidInput, req.CandidateID)
	}

	gate := matching.CheckEligibility(profile.TechnicalSkills, role.Required)
	if !gate.Eligible && !s.allowIneligible {
		return types.Application{}, &types.IneligibleError{Result: gate}
	}

	app := types.Application{
		ID:                uuid.NewString(),
		CandidateID:       req.CandidateID,
		RoleID:            role.ID,
		CVID:              profile.CVID,
		Status:            types.ApplicationStatusSubmitted,
		EligibilityPassed: gate.Eligible,
		Eligibility:       gate,
		CombinedScore:     s.combinedScore(ctx, role, profile),
	}
	if err := s.apps.Create(ctx, &app); err != nil {
		return types.Application{}, err
	}
	s.logger.Info().
		Str("application_id", app.ID).
		Str("candidate_id", app.CandidateID).
		Str("role_id", app.RoleID).
		Bool("eligible", gate.Eligible).
		Float64("combined_score", app.CombinedScore).
		Msg("申请已提交")
	return app, nil
}

// Recheck 按申请关联的简历重新校验并保存结果
func (s *ApplicationService) Recheck(ctx context.Context, applicationID string) (types.Application, error) {
	app, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return types.Application{}, err
	}
	role, err := s.roles.GetRole(ctx, app.RoleID)
	if err != nil {
		return types.Application{}, err
	}
	profile, err := s.candidates.GetMatchingProfile(ctx, app.CandidateID, app.CVID)
	if err != nil {
		return types.Application{}, err
	}

	gate := matching.CheckEligibility(profile.TechnicalSkills, role.Required)
	return s.apps.UpdateEligibility(ctx, app.ID, gate, s.combinedScore(ctx, role, profile))
}

// Rankings 职位下通过资格校验的申请，按综合分降序
func (s *ApplicationService) Rankings(ctx context.Context, roleID string, limit int) ([]types.Application, error) {
	if _, err := s.roles.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRankingLimit
	}
	return s.apps.ListEligibleByRole(ctx, roleID, limit)
}

// combinedScore 取该职位在匹配结果中的综合分。
// 语义检索不可用时退化为只用规则分，不影响提交
func (s *ApplicationService) combinedScore(ctx context.Context, role types.RoleRequirement, profile *types.CandidateProfile) float64 {
	parsed := profile.ParsedSkills()
	results, err := s.matcher.FindMatchingRoles(ctx, profile.CandidateID, profile.ResumeText, parsed)
	if err != nil && IsUnavailable(err) {
		s.logger.Warn().Err(err).Str("candidate_id", profile.CandidateID).Msg("语义检索不可用，只使用规则分")
		results, err = s.matcher.FindMatchingRoles(ctx, profile.CandidateID, "", parsed)
	}
	if err == nil {
		for _, r := range results {
			if r.RoleID == role.ID {
				return r.MatchScore
			}
		}
	} else {
		s.logger.Warn().Err(err).Str("candidate_id", profile.CandidateID).Msg("计算综合分失败")
	}

	// 职位不在启用列表中时直接按规则打分
	if parsed == nil {
		return 0
	}
	rule := matching.ScoreSkills(parsed.Technical, role.Required, role.Preferred, parsed.YearsOfExperience)
	return math.Round(rule.Score*100) / 100
}
