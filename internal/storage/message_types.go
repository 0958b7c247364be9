package storage

import "time"

// ChangeEvent 职位变更或简历解析完成事件，经 outbox 发布到变更交换机
type ChangeEvent struct {
	EventType   string    `json:"event_type"`
	RoleID      string    `json:"role_id,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	CandidateID string    `json:"candidate_id,omitempty"`
	CVID        string    `json:"cv_id,omitempty"`
	ResumeText  string    `json:"resume_text,omitempty"` // 为空时由消费者从简历解析结果中读取
	OccurredAt  time.Time `json:"occurred_at"`
}
