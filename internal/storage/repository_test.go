package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/types"
)

func TestRoleRepository_SaveAndList(t *testing.T) {
	db := newTestDatabase(t)
	repo := storage.NewGormRoleRepository(db.DB())
	ctx := context.Background()

	salary := 120000.0
	saved, err := repo.SaveRole(ctx, types.RoleRequirement{
		ID:        "role-1",
		Title:     "Backend Engineer",
		SalaryMax: &salary,
		Required:  types.SkillSet{"Go", "SQL"},
		Active:    true,
	}, models.OutboxMessage{
		AggregateID:      "role-1",
		EventType:        "role.changed",
		Payload:          `{"role_id":"role-1"}`,
		TargetExchange:   "talent.change.exchange",
		TargetRoutingKey: "role.changed",
		Status:           models.OutboxStatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SkillSet{"Go", "SQL"}, saved.Required)
	assert.Equal(t, types.SkillSet{}, saved.Preferred, "未填写的加分技能为空列表")
	require.NotNil(t, saved.SalaryMax)
	assert.InDelta(t, salary, *saved.SalaryMax, 1e-9)

	var outbox []models.OutboxMessage
	require.NoError(t, db.DB().Find(&outbox).Error)
	require.Len(t, outbox, 1, "outbox消息应与职位一起写入")

	_, err = repo.SaveRole(ctx, types.RoleRequirement{ID: "role-2", Title: "Inactive", Active: false})
	require.NoError(t, err)
	_, err = repo.SaveRole(ctx, types.RoleRequirement{ID: "role-3", Title: "Data Engineer", Active: true})
	require.NoError(t, err)

	// 更新已有职位不产生新行
	_, err = repo.SaveRole(ctx, types.RoleRequirement{ID: "role-1", Title: "Senior Backend Engineer", Required: types.SkillSet{"Go"}, Active: true})
	require.NoError(t, err)

	roles, err := repo.ListActiveRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "role-1", roles[0].ID, "按创建时间排序")
	assert.Equal(t, "Senior Backend Engineer", roles[0].Title)
	assert.Equal(t, types.SkillSet{"Go"}, roles[0].Required)
	assert.Equal(t, "role-3", roles[1].ID)

	_, err = repo.GetRole(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)
}

// TestRoleRepository_LegacySkillShapes 技能列存成二次编码的字符串也能读出
func TestRoleRepository_LegacySkillShapes(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.DB().Create(&models.JobRole{
		ID:                  "legacy",
		Title:               "Legacy",
		NonNegotiableSkills: datatypes.JSON(`"[\"Python\", \"Django\"]"`),
		PreferredSkills:     datatypes.JSON(`[{"name": "AWS"}]`),
		IsActive:            true,
	}).Error)

	role, err := storage.NewGormRoleRepository(db.DB()).GetRole(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, types.SkillSet{"Python", "Django"}, role.Required)
	assert.Equal(t, types.SkillSet{"AWS"}, role.Preferred)
}

func TestCandidateRepository_GetMatchingProfile(t *testing.T) {
	db := newTestDatabase(t)
	repo := storage.NewGormCandidateRepository(db.DB())
	ctx := context.Background()

	_, err := repo.GetMatchingProfile(ctx, "nobody", "")
	require.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, db.DB().Create(&models.Candidate{ID: "cand-1", Email: "a@example.com", IsActive: true}).Error)

	profile, err := repo.GetMatchingProfile(ctx, "cand-1", "")
	require.NoError(t, err)
	assert.False(t, profile.HasResume(), "没有简历时返回空画像")
	assert.Nil(t, profile.ParsedSkills())
	assert.Empty(t, profile.ResumeText)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, repo.SaveCV(ctx, &models.CandidateCV{
		ID:          "cv-old",
		CandidateID: "cand-1",
		Status:      models.CVStatusParsed,
		ParsedData:  datatypes.JSON(`{"skills": {"technical": ["Go"]}, "years_of_experience": "3"}`),
		CreatedAt:   base,
	}))
	require.NoError(t, repo.SaveCV(ctx, &models.CandidateCV{
		ID:          "cv-new",
		CandidateID: "cand-1",
		Status:      models.CVStatusTextOnly,
		ResumeText:  "Go developer with Kubernetes experience",
		CreatedAt:   base.Add(30 * time.Minute),
	}))
	require.NoError(t, repo.SaveCV(ctx, &models.CandidateCV{
		ID:          "cv-pending",
		CandidateID: "cand-1",
		Status:      models.CVStatusPending,
		CreatedAt:   base.Add(40 * time.Minute),
	}))

	profile, err = repo.GetMatchingProfile(ctx, "cand-1", "")
	require.NoError(t, err)
	assert.Equal(t, "cv-old", profile.CVID, "解析出技能的简历优先于更新的纯文本简历")
	require.NotNil(t, profile.ParsedSkills())
	assert.Equal(t, types.SkillSet{"Go"}, profile.ParsedSkills().Technical)
	assert.InDelta(t, 3.0, profile.YearsOfExperience, 1e-9)

	profile, err = repo.GetMatchingProfile(ctx, "cand-1", "cv-new")
	require.NoError(t, err)
	assert.Nil(t, profile.ParsedSkills(), "只有全文没有结构化技能")
	assert.Equal(t, "Go developer with Kubernetes experience", profile.ResumeText)

	require.NoError(t, db.DB().Model(&models.CandidateCV{}).Where("id = ?", "cv-new").Update("is_primary", true).Error)
	profile, err = repo.GetMatchingProfile(ctx, "cand-1", "")
	require.NoError(t, err)
	assert.Equal(t, "cv-old", profile.CVID, "纯文本的主简历不优先于解析成功的简历")

	require.NoError(t, repo.SaveCV(ctx, &models.CandidateCV{
		ID:          "cv-latest",
		CandidateID: "cand-1",
		Status:      models.CVStatusParsed,
		ParsedData:  datatypes.JSON(`{"skills": ["Rust"]}`),
		CreatedAt:   base.Add(50 * time.Minute),
	}))
	profile, err = repo.GetMatchingProfile(ctx, "cand-1", "")
	require.NoError(t, err)
	assert.Equal(t, "cv-latest", profile.CVID, "没有解析成功的主简历时取最近一份")

	require.NoError(t, db.DB().Model(&models.CandidateCV{}).Where("id = ?", "cv-old").Update("is_primary", true).Error)
	profile, err = repo.GetMatchingProfile(ctx, "cand-1", "")
	require.NoError(t, err)
	assert.Equal(t, "cv-old", profile.CVID, "解析成功的主简历优先")

	require.NoError(t, db.DB().Create(&models.Candidate{ID: "cand-2", Email: "b@example.com", IsActive: true}).Error)
	require.NoError(t, repo.SaveCV(ctx, &models.CandidateCV{
		ID:          "cv-text",
		CandidateID: "cand-2",
		Status:      models.CVStatusTextOnly,
		ResumeText:  "Python engineer",
	}))
	profile, err = repo.GetMatchingProfile(ctx, "cand-2", "")
	require.NoError(t, err)
	assert.Equal(t, "cv-text", profile.CVID, "只有纯文本简历时使用它做语义匹配")
	assert.Nil(t, profile.ParsedSkills())
	assert.Equal(t, "Python engineer", profile.ResumeText)

	_, err = repo.GetMatchingProfile(ctx, "cand-1", "cv-missing")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestApplicationRepository(t *testing.T) {
	db := newTestDatabase(t)
	repo := storage.NewGormApplicationRepository(db.DB())
	ctx := context.Background()

	newApp := func(id, cand string, passed bool, score float64) *types.Application {
		return &types.Application{
			ID:                id,
			CandidateID:       cand,
			RoleID:            "role-1",
			Status:            types.ApplicationStatusSubmitted,
			EligibilityPassed: passed,
			Eligibility:       types.EligibilityResult{Eligible: passed, Matched: []string{"Go"}, Missing: []string{}},
			CombinedScore:     score,
		}
	}

	first := newApp("app-1", "cand-1", true, 70)
	require.NoError(t, repo.Create(ctx, first))
	assert.False(t, first.CreatedAt.IsZero())
	require.NoError(t, repo.Create(ctx, newApp("app-2", "cand-2", true, 90)))
	require.NoError(t, repo.Create(ctx, newApp("app-3", "cand-3", false, 95)))

	err := repo.Create(ctx, newApp("app-4", "cand-1", true, 10))
	require.ErrorIs(t, err, types.ErrInvalidInput, "同一候选人不能重复申请同一职位")

	got, err := repo.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, got.Eligibility.Matched)
	assert.True(t, got.EligibilityPassed)

	ranked, err := repo.ListEligibleByRole(ctx, "role-1", 0)
	require.NoError(t, err)
	require.Len(t, ranked, 2, "未通过资格校验的申请不参与排名")
	assert.Equal(t, "app-2", ranked[0].ID)
	assert.Equal(t, "app-1", ranked[1].ID)

	updated, err := repo.UpdateEligibility(ctx, "app-2", types.EligibilityResult{
		Eligible:    false,
		Matched:     []string{},
		Missing:     []string{"Go"},
		Explanation: "Missing required skills: Go",
	}, 40)
	require.NoError(t, err)
	assert.False(t, updated.EligibilityPassed)
	assert.Equal(t, []string{"Go"}, updated.Eligibility.Missing)
	assert.InDelta(t, 40, updated.CombinedScore, 1e-9)

	ranked, err = repo.ListEligibleByRole(ctx, "role-1", 10)
	require.NoError(t, err)
	require.Len(t, ranked, 1)

	_, err = repo.UpdateEligibility(ctx, "missing", types.EligibilityResult{}, 0)
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)
}
