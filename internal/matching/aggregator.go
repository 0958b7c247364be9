package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"talent-match/internal/types"
)

const (
	DefaultSemanticWeight       = 0.4
	DefaultRuleWeight           = 0.6
	DefaultEligibilityThreshold = 50.0
	DefaultSemanticTopK         = 5

	reasonNoCVData          = "No CV data for matching"
	reasonNoSemanticMatch   = "No semantic match for this role"
	reasonSemanticOnlyMatch = "Semantic match based on resume embeddings."
)

// RoleSource 提供当前所有启用的职位，顺序即平分时的排序依据
type RoleSource interface {
	ListActiveRoles(ctx context.Context) ([]types.RoleRequirement, error)
}

// SemanticSearcher 向量检索
type SemanticSearcher interface {
	Search(ctx context.Context, query string, tag types.ChunkTag, k int) ([]types.SearchHit, error)
}

// Aggregator 合并规则打分和语义检索结果，输出候选人对全部启用职位的匹配排名
type Aggregator struct {
	roles    RoleSource
	searcher SemanticSearcher

	semanticWeight float64
	ruleWeight     float64
	threshold      float64
	topK           int
}

// Option 聚合器配置项
type Option func(*Aggregator)

// WithSemanticTopK 设置语义检索返回的职位数上限
func WithSemanticTopK(k int) Option {
	return func(a *Aggregator) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithWeights 设置语义分和规则分的权重
func WithWeights(semantic, rule float64) Option {
	return func(a *Aggregator) {
		if semantic >= 0 && rule >= 0 && semantic+rule > 0 {
			a.semanticWeight = semantic
			a.ruleWeight = rule
		}
	}
}

// WithEligibilityThreshold 设置 is_eligible 的综合分门槛
func WithEligibilityThreshold(threshold float64) Option {
	return func(a *Aggregator) {
		a.threshold = threshold
	}
}

// NewAggregator 创建匹配聚合器
func NewAggregator(roles RoleSource, searcher SemanticSearcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		roles:          roles,
		searcher:       searcher,
		semanticWeight: DefaultSemanticWeight,
		ruleWeight:     DefaultRuleWeight,
		threshold:      DefaultEligibilityThreshold,
		topK:           DefaultSemanticTopK,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FindMatchingRoles 计算候选人与每个启用职位的匹配结果，按综合分降序稳定排序。
// resumeText 为空表示没有简历全文；parsed 为 nil 表示没有结构化技能。
func (a *Aggregator) FindMatchingRoles(ctx context.Context, candidateID, resumeText string, parsed *types.ParsedSkills) ([]types.MatchResult, error) {
	resumeText = strings.TrimSpace(resumeText)
	hasText := resumeText != "" && a.searcher != nil

	var (
		roles []types.RoleRequirement
		hits  []types.SearchHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roles, err = a.roles.ListActiveRoles(gctx)
		if err != nil {
			return fmt.Errorf("加载启用职位失败: %w", err)
		}
		return nil
	})
	if hasText {
		g.Go(func() error {
			var err error
			hits, err = a.searcher.Search(gctx, resumeText, types.TagRole, a.topK)
			if err != nil {
				return fmt.Errorf("候选人 %s 语义检索失败: %w", candidateID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(hits) > len(roles) {
		hits = hits[:len(roles)]
	}
	semantic := make(map[string]float64, len(hits))
	for _, h := range hits {
		if _, ok := semantic[h.OwnerID]; !ok {
			semantic[h.OwnerID] = h.Score
		}
	}

	var technical types.SkillSet
	if parsed != nil {
		technical = parsed.Technical
	}

	results := make([]types.MatchResult, 0, len(roles))
	for _, role := range roles {
		r := newMatchResult(role)
		gate := CheckEligibility(technical, role.Required)
		r.HasAllRequired = gate.Eligible

		semScore, hasHit := semantic[role.ID]
		switch {
		case hasText && parsed != nil:
			rule := ScoreSkills(parsed.Technical, role.Required, role.Preferred, parsed.YearsOfExperience)
			ruleScore := round2(rule.Score)
			r.RuleBasedScore = &ruleScore
			r.MatchedRequired = rule.MatchedRequired
			r.MatchedPreferred = rule.MatchedPreferred
			r.MissingRequired = rule.MissingRequired
			if hasHit {
				sem := semScore
				r.SemanticScore = &sem
				r.MatchScore = round2(sem*a.semanticWeight + rule.Score*a.ruleWeight)
				r.Reason = fmt.Sprintf("Semantic: %.1f%%, Rule-based: %.1f%% - %s", sem, rule.Score, rule.Reason)
			} else {
				r.MatchScore = ruleScore
				r.Reason = rule.Reason
			}
		case hasText:
			r.MissingRequired = role.Required.Clone()
			if hasHit {
				sem := semScore
				r.SemanticScore = &sem
				r.MatchScore = round2(sem)
				r.Reason = reasonSemanticOnlyMatch
			} else {
				r.Reason = reasonNoSemanticMatch
			}
		case parsed != nil:
			rule := ScoreSkills(parsed.Technical, role.Required, role.Preferred, parsed.YearsOfExperience)
			ruleScore := round2(rule.Score)
			r.RuleBasedScore = &ruleScore
			r.MatchedRequired = rule.MatchedRequired
			r.MatchedPreferred = rule.MatchedPreferred
			r.MissingRequired = rule.MissingRequired
			r.MatchScore = ruleScore
			r.Reason = rule.Reason
		default:
			r.MissingRequired = role.Required.Clone()
			r.Reason = reasonNoCVData
		}

		r.IsEligible = r.HasAllRequired && r.MatchScore >= a.threshold
		if !hasText && parsed == nil {
			r.IsEligible = false
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchScore > results[j].MatchScore
	})
	return results, nil
}

func newMatchResult(role types.RoleRequirement) types.MatchResult {
	return types.MatchResult{
		RoleID:           role.ID,
		RoleTitle:        role.Title,
		Department:       role.Department,
		Location:         role.Location,
		WorkType:         role.WorkType,
		SalaryMax:        role.SalaryMax,
		Currency:         role.Currency,
		MatchedRequired:  []string{},
		MatchedPreferred: []string{},
		MissingRequired:  []string{},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
