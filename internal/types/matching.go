package types

import "time"

// SkillSet 技能标签集合，比较时忽略大小写和首尾空白
type SkillSet []string

// Clone 返回副本，nil 返回空切片
func (s SkillSet) Clone() []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// RoleRequirement 职位要求
type RoleRequirement struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Department    string    `json:"department,omitempty"`
	Location      string    `json:"location,omitempty"`
	WorkType      string    `json:"work_type,omitempty"`
	Description   string    `json:"description,omitempty"`
	SalaryMin     *float64  `json:"salary_min,omitempty"`
	SalaryMax     *float64  `json:"salary_max,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Required      SkillSet  `json:"required_skills"`
	Preferred     SkillSet  `json:"preferred_skills"`
	MinExperience *float64  `json:"min_experience,omitempty"`
	MaxExperience *float64  `json:"max_experience,omitempty"`
	Active        bool      `json:"active"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// CandidateProfile 用于匹配的候选人画像，来自最近一次解析成功的简历
type CandidateProfile struct {
	CandidateID       string   `json:"candidate_id"`
	CVID              string   `json:"cv_id,omitempty"`
	TechnicalSkills   SkillSet `json:"technical_skills"`
	SoftSkills        SkillSet `json:"soft_skills"`
	Languages         SkillSet `json:"languages"`
	YearsOfExperience float64  `json:"years_of_experience"`
	ResumeText        string   `json:"resume_text,omitempty"`
	HasParsedSkills   bool     `json:"has_parsed_skills"`
}

// HasResume 是否关联了简历
func (p *CandidateProfile) HasResume() bool {
	return p != nil && p.CVID != ""
}

// ParsedSkills 返回结构化技能，没有解析数据时返回nil
func (p *CandidateProfile) ParsedSkills() *ParsedSkills {
	if p == nil || !p.HasParsedSkills {
		return nil
	}
	return &ParsedSkills{
		Technical:         p.TechnicalSkills,
		YearsOfExperience: p.YearsOfExperience,
	}
}

// ParsedSkills 规则匹配所需的结构化输入
type ParsedSkills struct {
	Technical         SkillSet
	YearsOfExperience float64
}

// ParsedResume 从 parsed_data 解码出的简历结构
type ParsedResume struct {
	TechnicalSkills   SkillSet
	SoftSkills        SkillSet
	Languages         SkillSet
	YearsOfExperience float64
	ResumeText        string
	HasSkills         bool
}

// SkillScore 规则匹配结果
type SkillScore struct {
	Score            float64
	MatchedRequired  []string
	MissingRequired  []string
	MatchedPreferred []string
	Reason           string
}

// EligibilityResult 资格校验结果
type EligibilityResult struct {
	Eligible    bool     `json:"eligible"`
	Matched     []string `json:"matched"`
	Missing     []string `json:"missing"`
	Explanation string   `json:"explanation"`
}

// MatchResult 候选人与某个职位的匹配结果
type MatchResult struct {
	RoleID           string   `json:"role_id"`
	RoleTitle        string   `json:"role_title"`
	Department       string   `json:"department,omitempty"`
	Location         string   `json:"location,omitempty"`
	WorkType         string   `json:"work_type,omitempty"`
	SalaryMax        *float64 `json:"salary_max,omitempty"`
	Currency         string   `json:"currency,omitempty"`
	MatchScore       float64  `json:"match_score"`
	Reason           string   `json:"reason"`
	SemanticScore    *float64 `json:"semantic_score"`
	RuleBasedScore   *float64 `json:"rule_based_score"`
	MatchedRequired  []string `json:"matched_non_negotiable_skills"`
	MatchedPreferred []string `json:"matched_preferred_skills"`
	MissingRequired  []string `json:"missing_non_negotiable_skills"`
	HasAllRequired   bool     `json:"has_all_required_skills"`
	IsEligible       bool     `json:"is_eligible"`
}

// MatchResponse 匹配接口返回
type MatchResponse struct {
	CandidateID  string        `json:"candidate_id"`
	CVID         string        `json:"cv_id,omitempty"`
	Matches      []MatchResult `json:"matches"`
	TotalMatches int           `json:"totalMatches"`
}

// Application 职位申请，保存提交时的资格校验快照
type Application struct {
	ID                string            `json:"id"`
	CandidateID       string            `json:"candidate_id"`
	RoleID            string            `json:"job_role_id"`
	CVID              string            `json:"cv_id"`
	Status            string            `json:"status"`
	EligibilityPassed bool              `json:"eligibility_check_passed"`
	Eligibility       EligibilityResult `json:"eligibility_details"`
	CombinedScore     float64           `json:"combined_score"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ApplicationStatusSubmitted 新申请的初始状态
const ApplicationStatusSubmitted = "submitted"
