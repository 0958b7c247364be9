package models

import "time"

// Outbox消息状态
const (
	OutboxStatusPending   = "PENDING"
	OutboxStatusPublished = "PUBLISHED"
	OutboxStatusFailed    = "FAILED"
)

// OutboxMessage 与业务数据同事务写入、由中继异步投递的消息
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(36);not null;index"`
	EventType        string     `gorm:"type:varchar(100);not null"`
	Payload          string     `gorm:"type:text;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"not null"`
	CreatedAt        time.Time  `gorm:"index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time
	ErrorMessage     string `gorm:"type:text"`
}

// TableName specifies the table name for the OutboxMessage model.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
