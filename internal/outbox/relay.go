package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"talent-match/internal/constants"
	"talent-match/internal/logger"
	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5
)

// Publisher 消息发布器，RabbitMQ 实现
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	skipLocked      bool
	done            chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	tracer          trace.Tracer
}

// Option 中继配置项
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每批处理的消息数
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewMessageRelay 创建消息中继。sqlite 不支持 SKIP LOCKED，由 driver 判断是否加行锁
func NewMessageRelay(db *gorm.DB, driver string, publisher Publisher, opts ...Option) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.Component("outbox-relay"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		skipLocked:      driver != "sqlite",
		done:            make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 在后台开始轮询
func (r *MessageRelay) Start() {
	r.logger.Info().Dur("interval", r.pollingInterval).Int("batch_size", r.batchSize).Msg("MessageRelay starting...")
	ticker := time.NewTicker(r.pollingInterval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				r.logger.Info().Msg("MessageRelay stopped.")
				return
			case <-ticker.C:
				if _, err := r.ProcessPending(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("处理待发送消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束，可重复调用
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

// ProcessPending 取一批 PENDING 消息并发布，返回成功发布的条数。
// 取消息和更新状态在同一事务内完成
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer tx.Rollback()

	query := tx
	if r.skipLocked {
		// 多实例时跳过已被其他事务锁定的行
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	err := query.Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Order("id asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, fmt.Errorf("查询待发送消息失败: %w", err)
	}

	// 空轮询不创建span
	if len(messages) == 0 {
		return 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	published := 0
	for _, msg := range messages {
		err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = models.OutboxStatusFailed
			}
			r.logger.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retries", msg.RetryCount).
				Msg("消息发布失败")
		} else {
			now := time.Now()
			msg.Status = models.OutboxStatusPublished
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
			published++
		}

		// 更新失败时整批回滚，下次轮询重新拾取
		if err := tx.Save(&msg).Error; err != nil {
			return 0, fmt.Errorf("更新消息 %d 状态失败: %w", msg.ID, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("提交消息状态失败: %w", err)
	}
	r.logger.Debug().Int("fetched", len(messages)).Int("published", published).Msg("outbox 批次处理完成")
	return published, nil
}

// NewChangeMessage 把变更事件包装为待发送的 outbox 消息
func NewChangeMessage(aggregateID, exchange, routingKey string, event storage.ChangeEvent) (models.OutboxMessage, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return models.OutboxMessage{}, fmt.Errorf("序列化变更事件失败: %w", err)
	}
	return models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        event.EventType,
		Payload:          string(payload),
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}

// NewRoleChangedMessage 职位保存后发出的 role.changed 消息
func NewRoleChangedMessage(roleID string, active bool, exchange, routingKey string) (models.OutboxMessage, error) {
	return NewChangeMessage(roleID, exchange, routingKey, storage.ChangeEvent{
		EventType: constants.EventTypeRoleChanged,
		RoleID:    roleID,
		Active:    &active,
	})
}
