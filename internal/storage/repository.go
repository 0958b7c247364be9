package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"talent-match/internal/parser"
	"talent-match/internal/storage/models"
	"talent-match/internal/types"
)

// GormRoleRepository 职位仓储
type GormRoleRepository struct {
	db *gorm.DB
}

// NewGormRoleRepository 创建职位仓储
func NewGormRoleRepository(db *gorm.DB) *GormRoleRepository {
	return &GormRoleRepository{db: db}
}

// ListActiveRoles 返回全部启用的职位，按创建时间和ID排序
func (r *GormRoleRepository) ListActiveRoles(ctx context.Context) ([]types.RoleRequirement, error) {
	var rows []models.JobRole
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询启用职位失败: %w", err)
	}
	roles := make([]types.RoleRequirement, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, roleFromModel(row))
	}
	return roles, nil
}

// GetRole 按ID查询职位，不区分是否启用
func (r *GormRoleRepository) GetRole(ctx context.Context, id string) (types.RoleRequirement, error) {
	var row models.JobRole
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.RoleRequirement{}, types.NewNotFoundError("role", id)
	}
	if err != nil {
		return types.RoleRequirement{}, fmt.Errorf("查询职位 %s 失败: %w", id, err)
	}
	return roleFromModel(row), nil
}

// SaveRole 新建或更新职位，events 与职位在同一事务中写入 outbox
func (r *GormRoleRepository) SaveRole(ctx context.Context, role types.RoleRequirement, events ...models.OutboxMessage) (types.RoleRequirement, error) {
	row, err := roleToModel(role)
	if err != nil {
		return types.RoleRequirement{}, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "department", "location", "work_type", "description",
				"salary_min", "salary_max", "currency",
				"non_negotiable_skills", "preferred_skills",
				"min_experience", "max_experience", "is_active", "updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("保存职位 %s 失败: %w", role.ID, err)
		}
		for i := range events {
			if err := tx.Create(&events[i]).Error; err != nil {
				return fmt.Errorf("写入outbox消息失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return types.RoleRequirement{}, err
	}
	return r.GetRole(ctx, role.ID)
}

func roleFromModel(m models.JobRole) types.RoleRequirement {
	return types.RoleRequirement{
		ID:            m.ID,
		Title:         m.Title,
		Department:    m.Department,
		Location:      m.Location,
		WorkType:      m.WorkType,
		Description:   m.Description,
		SalaryMin:     m.SalaryMin,
		SalaryMax:     m.SalaryMax,
		Currency:      m.Currency,
		Required:      types.CoerceSkillList(json.RawMessage(m.NonNegotiableSkills)),
		Preferred:     types.CoerceSkillList(json.RawMessage(m.PreferredSkills)),
		MinExperience: m.MinExperience,
		MaxExperience: m.MaxExperience,
		Active:        m.IsActive,
		UpdatedAt:     m.UpdatedAt,
	}
}

func roleToModel(role types.RoleRequirement) (models.JobRole, error) {
	required, err := models.ToJSON([]string(role.Required))
	if err != nil {
		return models.JobRole{}, fmt.Errorf("序列化必备技能失败: %w", err)
	}
	preferred, err := models.ToJSON([]string(role.Preferred))
	if err != nil {
		return models.JobRole{}, fmt.Errorf("序列化加分技能失败: %w", err)
	}
	return models.JobRole{
		ID:                  role.ID,
		Title:               role.Title,
		Department:          role.Department,
		Location:            role.Location,
		WorkType:            role.WorkType,
		Description:         role.Description,
		SalaryMin:           role.SalaryMin,
		SalaryMax:           role.SalaryMax,
		Currency:            role.Currency,
		NonNegotiableSkills: required,
		PreferredSkills:     preferred,
		MinExperience:       role.MinExperience,
		MaxExperience:       role.MaxExperience,
		IsActive:            role.Active,
	}, nil
}

// GormCandidateRepository 候选人及简历仓储
type GormCandidateRepository struct {
	db *gorm.DB
}

// NewGormCandidateRepository 创建候选人仓储
func NewGormCandidateRepository(db *gorm.DB) *GormCandidateRepository {
	return &GormCandidateRepository{db: db}
}

// EnsureCandidate 确认候选人存在
func (r *GormCandidateRepository) EnsureCandidate(ctx context.Context, candidateID string) error {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Candidate{}).Where("id = ?", candidateID).Count(&n).Error
	if err != nil {
		return fmt.Errorf("查询候选人 %s 失败: %w", candidateID, err)
	}
	if n == 0 {
		return types.NewNotFoundError("candidate", candidateID)
	}
	return nil
}

// GetMatchingProfile 组装用于匹配的候选人画像。
// 指定 cvID 时使用该简历；否则依次取解析成功的主简历、最近一份解析成功的简历、最近一份只有全文的简历；
// 都没有时返回只有ID的画像
func (r *GormCandidateRepository) GetMatchingProfile(ctx context.Context, candidateID, cvID string) (*types.CandidateProfile, error) {
	if err := r.EnsureCandidate(ctx, candidateID); err != nil {
		return nil, err
	}

	profile := &types.CandidateProfile{
		CandidateID:     candidateID,
		TechnicalSkills: types.SkillSet{},
		SoftSkills:      types.SkillSet{},
		Languages:       types.SkillSet{},
	}

	var cv models.CandidateCV
	db := r.db.WithContext(ctx)
	var err error
	if cvID != "" {
		err = db.Where("id = ? AND candidate_id = ?", cvID, candidateID).First(&cv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("cv", cvID)
		}
	} else {
		err = db.Where("candidate_id = ? AND status IN ?", candidateID, []string{models.CVStatusParsed, models.CVStatusTextOnly}).
			Order(cvPreference).Order("is_primary DESC").Order("created_at DESC").Order("id DESC").
			First(&cv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return profile, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("查询候选人 %s 的简历失败: %w", candidateID, err)
	}

	parsed := parser.DecodeParsedData(cv.ParsedData)
	profile.CVID = cv.ID
	profile.TechnicalSkills = parsed.TechnicalSkills
	profile.SoftSkills = parsed.SoftSkills
	profile.Languages = parsed.Languages
	profile.YearsOfExperience = parsed.YearsOfExperience
	profile.HasParsedSkills = parsed.HasSkills
	profile.ResumeText = parsed.ResumeText
	if profile.ResumeText == "" {
		profile.ResumeText = cv.ResumeText
	}
	return profile, nil
}

// cvPreference 解析成功的主简历排最前，其次是解析成功的简历，只有全文的排最后
var cvPreference = clause.OrderBy{Expression: clause.Expr{
	SQL:                "CASE WHEN status = ? AND is_primary = ? THEN 0 WHEN status = ? THEN 1 ELSE 2 END",
	Vars:               []any{models.CVStatusParsed, true, models.CVStatusParsed},
	WithoutParentheses: true,
}}

// SaveCV 新增一份简历记录
func (r *GormCandidateRepository) SaveCV(ctx context.Context, cv *models.CandidateCV) error {
	if err := r.db.WithContext(ctx).Create(cv).Error; err != nil {
		return fmt.Errorf("保存简历记录失败: %w", err)
	}
	return nil
}

// GormApplicationRepository 职位申请仓储
type GormApplicationRepository struct {
	db *gorm.DB
}

// NewGormApplicationRepository 创建申请仓储
func NewGormApplicationRepository(db *gorm.DB) *GormApplicationRepository {
	return &GormApplicationRepository{db: db}
}

// Create 保存新申请，同一候选人重复申请同一职位时返回 ErrInvalidInput
func (r *GormApplicationRepository) Create(ctx context.Context, app *types.Application) error {
	row, err := applicationToModel(*app)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: 候选人 %s 已申请过职位 %s", types.ErrInvalidInput, app.CandidateID, app.RoleID)
	}
	if err != nil {
		return fmt.Errorf("保存申请失败: %w", err)
	}
	*app = applicationFromModel(row)
	return nil
}

// Get 按ID查询申请
func (r *GormApplicationRepository) Get(ctx context.Context, id string) (types.Application, error) {
	var row models.Application
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Application{}, types.NewNotFoundError("application", id)
	}
	if err != nil {
		return types.Application{}, fmt.Errorf("查询申请 %s 失败: %w", id, err)
	}
	return applicationFromModel(row), nil
}

// UpdateEligibility 写入重新校验的结果
func (r *GormApplicationRepository) UpdateEligibility(ctx context.Context, id string, result types.EligibilityResult, combinedScore float64) (types.Application, error) {
	details, err := models.ToJSON(result)
	if err != nil {
		return types.Application{}, fmt.Errorf("序列化资格校验结果失败: %w", err)
	}
	res := r.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", id).Updates(map[string]any{
		"eligibility_check_passed": result.Eligible,
		"eligibility_details":      details,
		"combined_score":           combinedScore,
	})
	if res.Error != nil {
		return types.Application{}, fmt.Errorf("更新申请 %s 失败: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Application{}, types.NewNotFoundError("application", id)
	}
	return r.Get(ctx, id)
}

// ListEligibleByRole 返回某职位下通过资格校验的申请，按综合分降序
func (r *GormApplicationRepository) ListEligibleByRole(ctx context.Context, roleID string, limit int) ([]types.Application, error) {
	q := r.db.WithContext(ctx).
		Where("job_role_id = ? AND eligibility_check_passed = ?", roleID, true).
		Order("combined_score DESC").Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Application
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询职位 %s 的申请失败: %w", roleID, err)
	}
	apps := make([]types.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, applicationFromModel(row))
	}
	return apps, nil
}

func applicationToModel(app types.Application) (models.Application, error) {
	details, err := models.ToJSON(app.Eligibility)
	if err != nil {
		return models.Application{}, fmt.Errorf("序列化资格校验结果失败: %w", err)
	}
	return models.Application{
		ID:                     app.ID,
		CandidateID:            app.CandidateID,
		JobRoleID:              app.RoleID,
		CVID:                   app.CVID,
		Status:                 app.Status,
		EligibilityCheckPassed: app.EligibilityPassed,
		EligibilityDetails:     details,
		CombinedScore:          app.CombinedScore,
	}, nil
}

func applicationFromModel(m models.Application) types.Application {
	app := types.Application{
		ID:                m.ID,
		CandidateID:       m.CandidateID,
		RoleID:            m.JobRoleID,
		CVID:              m.CVID,
		Status:            m.Status,
		EligibilityPassed: m.EligibilityCheckPassed,
		CombinedScore:     m.CombinedScore,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if len(m.EligibilityDetails) > 0 {
		_ = json.Unmarshal(m.EligibilityDetails, &app.Eligibility)
	}
	if app.Eligibility.Matched == nil {
		app.Eligibility.Matched = []string{}
	}
	if app.Eligibility.Missing == nil {
		app.Eligibility.Missing = []string{}
	}
	return app
}
