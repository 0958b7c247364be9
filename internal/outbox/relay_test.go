package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/config"
	"talent-match/internal/constants"
	"talent-match/internal/outbox"
	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
)

type published struct {
	exchange   string
	routingKey string
	body       []byte
}

type fakePublisher struct {
	mu      sync.Mutex
	sent    []published
	failKey string
}

func (p *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if routingKey == p.failKey {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func newRelayDatabase(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(&config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "outbox.db"),
		LogLevel:    1,
		AutoMigrate: true,
	})
	require.NoError(t, err, "创建测试数据库失败")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewRoleChangedMessage(t *testing.T) {
	msg, err := outbox.NewRoleChangedMessage("role-1", false, "talent.change.exchange", "role.changed")
	require.NoError(t, err)
	assert.Equal(t, "role-1", msg.AggregateID)
	assert.Equal(t, constants.EventTypeRoleChanged, msg.EventType)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)

	var event storage.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, "role-1", event.RoleID)
	require.NotNil(t, event.Active)
	assert.False(t, *event.Active)
	assert.False(t, event.OccurredAt.IsZero(), "应自动填充事件时间")
}

// TestMessageRelay_ProcessPending 成功的消息标记为已发布，失败的累计重试直到FAILED
func TestMessageRelay_ProcessPending(t *testing.T) {
	db := newRelayDatabase(t)
	ctx := context.Background()

	good, err := outbox.NewRoleChangedMessage("role-1", true, "ex", "role.changed")
	require.NoError(t, err)
	bad, err := outbox.NewChangeMessage("cand-1", "ex", "bad.key", storage.ChangeEvent{EventType: constants.EventTypeResumeParsed, CandidateID: "cand-1"})
	require.NoError(t, err)
	require.NoError(t, db.DB().Create(&good).Error)
	require.NoError(t, db.DB().Create(&bad).Error)

	pub := &fakePublisher{failKey: "bad.key"}
	relay := outbox.NewMessageRelay(db.DB(), db.Driver(), pub, outbox.WithBatchSize(10))

	n, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "role.changed", pub.sent[0].routingKey)
	assert.JSONEq(t, good.Payload, string(pub.sent[0].body))

	var stored models.OutboxMessage
	require.NoError(t, db.DB().First(&stored, good.ID).Error)
	assert.Equal(t, models.OutboxStatusPublished, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	for i := 0; i < 4; i++ {
		_, err := relay.ProcessPending(ctx)
		require.NoError(t, err)
	}
	var failed models.OutboxMessage
	require.NoError(t, db.DB().First(&failed, bad.ID).Error)
	assert.Equal(t, models.OutboxStatusFailed, failed.Status, "超过重试次数后标记为失败")
	assert.Equal(t, 5, failed.RetryCount)
	assert.Contains(t, failed.ErrorMessage, "broker unavailable")

	n, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "没有待发送的消息")
	assert.Len(t, pub.sent, 1, "已发布的消息不会重复发送")
}

func TestMessageRelay_StartStop(t *testing.T) {
	db := newRelayDatabase(t)
	msg, err := outbox.NewRoleChangedMessage("role-1", true, "ex", "role.changed")
	require.NoError(t, err)
	require.NoError(t, db.DB().Create(&msg).Error)

	pub := &fakePublisher{}
	relay := outbox.NewMessageRelay(db.DB(), db.Driver(), pub, outbox.WithPollingInterval(10*time.Millisecond))
	relay.Start()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.sent) == 1
	}, 2*time.Second, 10*time.Millisecond, "后台轮询应发布消息")

	relay.Stop()
	relay.Stop()
}
