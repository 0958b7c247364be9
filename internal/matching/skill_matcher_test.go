package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/types"
)

// TestScoreSkills_MixedMatch 必备技能部分命中、加分技能全部命中
func TestScoreSkills_MixedMatch(t *testing.T) {
	candidate := types.SkillSet{"python", "docker", "excel"}
	required := types.SkillSet{"Python", "SQL"}
	preferred := types.SkillSet{"Docker"}

	got := ScoreSkills(candidate, required, preferred, 5)

	assert.Equal(t, []string{"Python"}, got.MatchedRequired, "必备技能命中列表应保留原始写法")
	assert.Equal(t, []string{"SQL"}, got.MissingRequired)
	assert.Equal(t, []string{"Docker"}, got.MatchedPreferred)
	assert.InDelta(t, 65.0, got.Score, 1e-9, "25+30+10 应为65分")
	assert.Equal(t, "Matched 1/2 required skills, 1/1 preferred skills, 5 years of experience", got.Reason)

	// 入参不应被修改
	assert.Equal(t, types.SkillSet{"Python", "SQL"}, required)
}

// TestScoreSkills_ExperienceOnly 没有任何技能要求时只按年限计分，且10年封顶
func TestScoreSkills_ExperienceOnly(t *testing.T) {
	got := ScoreSkills(types.SkillSet{"go"}, nil, nil, 12)
	assert.InDelta(t, 20.0, got.Score, 1e-9)
	assert.Empty(t, got.MatchedRequired)
	assert.NotNil(t, got.MatchedRequired, "空列表不应为nil")

	got = ScoreSkills(nil, nil, nil, 2.5)
	assert.InDelta(t, 5.0, got.Score, 1e-9)
	assert.Contains(t, got.Reason, "2.5 years")
}

// TestScoreSkills_SubstringBothWays 子串匹配是双向的
func TestScoreSkills_SubstringBothWays(t *testing.T) {
	got := ScoreSkills(types.SkillSet{"AWS"}, types.SkillSet{"AWS Lambda"}, nil, 0)
	assert.Equal(t, []string{"AWS Lambda"}, got.MatchedRequired, "候选技能是职位技能的子串")

	got = ScoreSkills(types.SkillSet{" PostgreSQL "}, types.SkillSet{"sql"}, nil, 0)
	assert.Equal(t, []string{"sql"}, got.MatchedRequired, "职位技能是候选技能的子串")
	assert.InDelta(t, 50.0, got.Score, 1e-9)
}

// TestScoreSkills_BlankLabelsIgnored 空白标签既不参与匹配也不计入分母
func TestScoreSkills_BlankLabelsIgnored(t *testing.T) {
	got := ScoreSkills(types.SkillSet{"", "  "}, types.SkillSet{"Go", " "}, nil, 0)
	assert.Empty(t, got.MatchedRequired, "空白候选技能不能作为子串命中任何技能")
	assert.Equal(t, []string{"Go"}, got.MissingRequired)
	assert.Contains(t, got.Reason, "0/1 required")
}

// TestScoreSkills_NegativeYears 负数年限按0处理
func TestScoreSkills_NegativeYears(t *testing.T) {
	got := ScoreSkills(nil, nil, nil, -3)
	assert.Zero(t, got.Score)
}

// TestScoreSkills_Monotonic 命中的技能越多分数不会降低
func TestScoreSkills_Monotonic(t *testing.T) {
	required := types.SkillSet{"Go", "Kafka", "Redis", "MySQL"}
	preferred := types.SkillSet{"Kubernetes", "Terraform"}
	pool := []string{"go", "kafka", "redis", "mysql", "kubernetes", "terraform"}

	prev := -1.0
	for i := 0; i <= len(pool); i++ {
		got := ScoreSkills(types.SkillSet(pool[:i]), required, preferred, 3)
		require.GreaterOrEqual(t, got.Score, prev, "第%d步分数不应下降", i)
		prev = got.Score
	}
	assert.InDelta(t, 86.0, prev, 1e-9)
}
