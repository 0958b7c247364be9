package processor

import (
	"context"
	"fmt"
	"strings"

	"talent-match/internal/matching"
	"talent-match/internal/types"
)

// MatchService 候选人职位匹配和资格校验
type MatchService struct {
	roles      RoleRepository
	candidates CandidateRepository
	matcher    RoleMatcher
}

// NewMatchService 创建匹配服务
func NewMatchService(roles RoleRepository, candidates CandidateRepository, matcher RoleMatcher) *MatchService {
	return &MatchService{roles: roles, candidates: candidates, matcher: matcher}
}

// GetMatchedRoles 返回候选人对全部启用职位的匹配排名。cvID 为空时使用主简历或最近解析的简历
func (s *MatchService) GetMatchedRoles(ctx context.Context, candidateID, cvID string) (types.MatchResponse, error) {
	if strings.TrimSpace(candidateID) == "" {
		return types.MatchResponse{}, fmt.Errorf("%w: 候选人ID不能为空", types.ErrInvalidInput)
	}
	profile, err := s.candidates.GetMatchingProfile(ctx, candidateID, cvID)
	if err != nil {
		return types.MatchResponse{}, err
	}

	matches, err := s.matcher.FindMatchingRoles(ctx, candidateID, profile.ResumeText, profile.ParsedSkills())
	if err != nil {
		return types.MatchResponse{}, err
	}
	return types.MatchResponse{
		CandidateID:  candidateID,
		CVID:         profile.CVID,
		Matches:      matches,
		TotalMatches: len(matches),
	}, nil
}

// CheckEligibility 校验候选人是否具备职位的全部必备技能
func (s *MatchService) CheckEligibility(ctx context.Context, candidateID, roleID, cvID string) (types.EligibilityResult, error) {
	if strings.TrimSpace(candidateID) == "" || strings.TrimSpace(roleID) == "" {
		return types.EligibilityResult{}, fmt.Errorf("%w: 候选人ID和职位ID不能为空", types.ErrInvalidInput)
	}
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return types.EligibilityResult{}, err
	}
	profile, err := s.candidates.GetMatchingProfile(ctx, candidateID, cvID)
	if err != nil {
		return types.EligibilityResult{}, err
	}
	return matching.CheckEligibility(profile.TechnicalSkills, role.Required), nil
}
