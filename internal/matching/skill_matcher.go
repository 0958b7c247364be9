package matching

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"talent-match/internal/types"
)

// 规则打分的各项权重
const (
	RequiredWeight    = 50.0
	PreferredWeight   = 30.0
	ExperienceWeight  = 20.0
	ExperienceCapYear = 10.0
)

// normalizeSkill 统一小写并去除首尾空白
func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if n := normalizeSkill(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// fuzzyContains 任一候选技能与目标技能互为子串即视为命中，例如 "aws" 命中 "aws lambda"
func fuzzyContains(candidate []string, target string) bool {
	for _, c := range candidate {
		if strings.Contains(target, c) || strings.Contains(c, target) {
			return true
		}
	}
	return false
}

// ScoreSkills 规则匹配打分。
// 必备技能占50分，加分技能占30分，工作年限占20分（10年封顶）。
// 输出列表保留职位中原始的技能写法，不修改入参。
func ScoreSkills(candidate, required, preferred types.SkillSet, years float64) types.SkillScore {
	cand := normalizeAll(candidate)

	result := types.SkillScore{
		MatchedRequired:  []string{},
		MissingRequired:  []string{},
		MatchedPreferred: []string{},
	}

	totalRequired := 0
	for _, skill := range required {
		n := normalizeSkill(skill)
		if n == "" {
			continue
		}
		totalRequired++
		if fuzzyContains(cand, n) {
			result.MatchedRequired = append(result.MatchedRequired, skill)
		} else {
			result.MissingRequired = append(result.MissingRequired, skill)
		}
	}

	totalPreferred := 0
	for _, skill := range preferred {
		n := normalizeSkill(skill)
		if n == "" {
			continue
		}
		totalPreferred++
		if fuzzyContains(cand, n) {
			result.MatchedPreferred = append(result.MatchedPreferred, skill)
		}
	}

	if years < 0 || math.IsNaN(years) {
		years = 0
	}

	var score float64
	if totalRequired > 0 {
		score += float64(len(result.MatchedRequired)) / float64(totalRequired) * RequiredWeight
	}
	if totalPreferred > 0 {
		score += float64(len(result.MatchedPreferred)) / float64(totalPreferred) * PreferredWeight
	}
	score += math.Min(years/ExperienceCapYear*ExperienceWeight, ExperienceWeight)

	result.Score = score
	result.Reason = fmt.Sprintf("Matched %d/%d required skills, %d/%d preferred skills, %s years of experience",
		len(result.MatchedRequired), totalRequired,
		len(result.MatchedPreferred), totalPreferred,
		strconv.FormatFloat(years, 'f', -1, 64))
	return result
}
