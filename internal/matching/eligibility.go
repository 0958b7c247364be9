package matching

import (
	"strings"

	"talent-match/internal/types"
)

const (
	explanationAllMatched = "All required skills matched"
	explanationMissing    = "Missing required skills: "
)

// CheckEligibility 申请资格校验，归一化后精确匹配必备技能。
// 必备技能为空时总是通过；结果只取决于入参。
func CheckEligibility(candidate, required []string) types.EligibilityResult {
	have := make(map[string]struct{}, len(candidate))
	for _, s := range candidate {
		if n := normalizeSkill(s); n != "" {
			have[n] = struct{}{}
		}
	}

	result := types.EligibilityResult{
		Matched: []string{},
		Missing: []string{},
	}
	for _, skill := range required {
		n := normalizeSkill(skill)
		if n == "" {
			continue
		}
		if _, ok := have[n]; ok {
			result.Matched = append(result.Matched, skill)
		} else {
			result.Missing = append(result.Missing, skill)
		}
	}

	result.Eligible = len(result.Missing) == 0
	if result.Eligible {
		result.Explanation = explanationAllMatched
	} else {
		result.Explanation = explanationMissing + strings.Join(result.Missing, ", ")
	}
	return result
}
