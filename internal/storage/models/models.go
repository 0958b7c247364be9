package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// JobRole 职位表
type JobRole struct {
	ID                  string         `gorm:"type:varchar(36);primaryKey"`
	Title               string         `gorm:"type:varchar(255);not null"`
	Department          string         `gorm:"type:varchar(255)"`
	Location            string         `gorm:"type:varchar(255)"`
	WorkType            string         `gorm:"type:varchar(50)"`
	Description         string         `gorm:"type:text"`
	SalaryMin           *float64       `gorm:"type:float"`
	SalaryMax           *float64       `gorm:"type:float"`
	Currency            string         `gorm:"type:varchar(10)"`
	NonNegotiableSkills datatypes.JSON // 必备技能，JSON数组
	PreferredSkills     datatypes.JSON // 加分技能，JSON数组
	MinExperience       *float64       `gorm:"type:float"`
	MaxExperience       *float64       `gorm:"type:float"`
	IsActive            bool           `gorm:"not null;index:idx_job_roles_active_created,priority:1"`
	CreatedAt           time.Time      `gorm:"index:idx_job_roles_active_created,priority:2"`
	UpdatedAt           time.Time
}

func (JobRole) TableName() string {
	return "job_roles"
}

// Candidate 候选人表
type Candidate struct {
	ID                string    `gorm:"type:varchar(36);primaryKey"`
	Email             string    `gorm:"type:varchar(255);uniqueIndex"`
	FirstName         string    `gorm:"type:varchar(100)"`
	LastName          string    `gorm:"type:varchar(100)"`
	Location          string    `gorm:"type:varchar(255)"`
	YearsOfExperience *int      `gorm:"type:int"`
	IsActive          bool      `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Candidate) TableName() string {
	return "candidates"
}

// CV解析状态
const (
	CVStatusPending  = "pending"
	CVStatusParsed   = "parsed"
	CVStatusTextOnly = "text_only" // 只提取了全文，还没有结构化技能
	CVStatusFailed   = "failed"
)

// CandidateCV 候选人上传的简历，每次上传一条，解析结果存 ParsedData
type CandidateCV struct {
	ID          string         `gorm:"type:varchar(36);primaryKey"`
	CandidateID string         `gorm:"type:varchar(36);not null;index:idx_cvs_candidate_created,priority:1"`
	FileName    string         `gorm:"type:varchar(255)"`
	StoragePath string         `gorm:"type:varchar(1024)"` // MinIO对象路径
	Status      string         `gorm:"type:varchar(20);not null"`
	IsPrimary   bool           `gorm:"not null"`
	ParsedData  datatypes.JSON // 解析出的技能、年限和全文
	ResumeText  string         `gorm:"type:text"` // 上传PDF时抽取的全文，parsed_data 中没有全文时使用
	CreatedAt   time.Time      `gorm:"index:idx_cvs_candidate_created,priority:2"`
	UpdatedAt   time.Time
}

func (CandidateCV) TableName() string {
	return "candidate_cvs"
}

// Application 职位申请表，保存提交时的资格校验快照
type Application struct {
	ID                     string         `gorm:"type:varchar(36);primaryKey"`
	CandidateID            string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_app_candidate_role,priority:1"`
	JobRoleID              string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_app_candidate_role,priority:2;index:idx_app_role_score,priority:1"`
	CVID                   string         `gorm:"type:varchar(36)"`
	Status                 string         `gorm:"type:varchar(20);not null"`
	EligibilityCheckPassed bool           `gorm:"not null"`
	EligibilityDetails     datatypes.JSON
	CombinedScore          float64        `gorm:"index:idx_app_role_score,priority:2"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (Application) TableName() string {
	return "applications"
}

// IndexedChunk 向量索引中的一个分块，Vector 以JSON数组存储
type IndexedChunk struct {
	ID         string         `gorm:"type:varchar(36);primaryKey"`
	Tag        string         `gorm:"type:varchar(20);not null;index:idx_chunks_tag_owner,priority:1"`
	OwnerID    string         `gorm:"type:varchar(64);not null;index:idx_chunks_tag_owner,priority:2"`
	Title      string         `gorm:"type:varchar(255)"`
	Text       string         `gorm:"type:text;not null"`
	ChunkIndex int            `gorm:"not null"`
	Vector     datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
}

func (IndexedChunk) TableName() string {
	return "indexed_chunks"
}

// ToJSON 序列化为 datatypes.JSON，nil 切片序列化为 []
func ToJSON(v any) (datatypes.JSON, error) {
	if s, ok := v.([]string); ok && s == nil {
		v = []string{}
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
