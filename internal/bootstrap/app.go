package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"talent-match/internal/api/handler"
	"talent-match/internal/api/router"
	"talent-match/internal/config"
	"talent-match/internal/events"
	"talent-match/internal/logger"
	"talent-match/internal/matching"
	"talent-match/internal/outbox"
	"talent-match/internal/parser"
	"talent-match/internal/processor"
	"talent-match/internal/ratelimit"
	"talent-match/internal/storage"
	"talent-match/internal/vectorindex"
)

// App 组装好的应用依赖，HTTP服务和命令行工具共用
type App struct {
	Config  *config.Config
	Storage *storage.Storage

	Embeddings *parser.EmbeddingService
	Index      *vectorindex.Index
	Aggregator *matching.Aggregator

	Roles        *storage.GormRoleRepository
	Candidates   *storage.GormCandidateRepository
	Applications *storage.GormApplicationRepository

	Match       *processor.MatchService
	Application *processor.ApplicationService
	Indexing    *processor.IndexService

	logger zerolog.Logger
}

// New 按配置初始化存储、embedding服务、向量索引和业务服务
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.Component("bootstrap")

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embeddings, err := newEmbeddingService(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	indexOpts := []vectorindex.Option{
		vectorindex.WithSplitter(vectorindex.NewSplitter(cfg.VectorIndex.ChunkSize, cfg.VectorIndex.ChunkOverlap)),
		vectorindex.WithSearchOverfetch(cfg.VectorIndex.SearchOverfetch),
		vectorindex.WithRebuildConcurrency(cfg.VectorIndex.RebuildConcurrency),
		vectorindex.WithEmbedBatchSize(cfg.Embedding.BatchSize),
	}
	if store.Redis != nil {
		indexOpts = append(indexOpts, vectorindex.WithLocker(store.Redis, time.Duration(cfg.VectorIndex.LockTTLSeconds)*time.Second))
	}
	index := vectorindex.New(store.Chunks, embeddings, indexOpts...)

	db := store.Database.DB()
	roles := storage.NewGormRoleRepository(db)
	candidates := storage.NewGormCandidateRepository(db)
	applications := storage.NewGormApplicationRepository(db)

	aggregator := matching.NewAggregator(roles, index,
		matching.WithSemanticTopK(cfg.Matching.SemanticTopK),
		matching.WithWeights(cfg.Matching.SemanticWeight, cfg.Matching.RuleWeight),
		matching.WithEligibilityThreshold(cfg.Matching.EligibilityThreshold),
	)

	var indexingOpts []processor.IndexServiceOption
	if store.RabbitMQ != nil {
		indexingOpts = append(indexingOpts, processor.WithChangeEvents(cfg.RabbitMQ.ChangeEventsExchange, cfg.RabbitMQ.RoleChangedRoutingKey))
	}
	if pdf, err := parser.NewEinoPDFTextExtractor(ctx); err != nil {
		log.Warn().Err(err).Msg("初始化PDF提取器失败，简历文件上传不可用")
	} else {
		var files processor.FileStore
		if store.MinIO != nil {
			files = store.MinIO
		}
		indexingOpts = append(indexingOpts, processor.WithResumeFiles(files, pdf, int64(cfg.Server.MaxUploadMB)<<20))
	}

	app := &App{
		Config:       cfg,
		Storage:      store,
		Embeddings:   embeddings,
		Index:        index,
		Aggregator:   aggregator,
		Roles:        roles,
		Candidates:   candidates,
		Applications: applications,
		Match:        processor.NewMatchService(roles, candidates, aggregator),
		Application:  processor.NewApplicationService(roles, candidates, applications, aggregator, cfg.Matching.AllowIneligibleApplications),
		Indexing:     processor.NewIndexService(roles, candidates, index, indexingOpts...),
		logger:       log,
	}
	log.Info().
		Str("index_backend", index.Backend()).
		Str("db_driver", store.Database.Driver()).
		Bool("change_events", store.RabbitMQ != nil).
		Bool("redis", store.Redis != nil).
		Msg("应用依赖初始化完成")
	return app, nil
}

func newEmbeddingService(cfg *config.Config, store *storage.Storage) (*parser.EmbeddingService, error) {
	embedder, err := parser.NewOpenAIEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("初始化embedding客户端失败: %w", err)
	}

	var opts []parser.ServiceOption
	opts = append(opts, parser.WithBatchSize(cfg.Embedding.BatchSize))
	if cfg.Embedding.QPM > 0 {
		opts = append(opts, parser.WithRateLimiter(ratelimit.NewTokenBucket(cfg.Embedding.QPM, 0)))
	}
	if ttl := time.Duration(cfg.Embedding.CacheTTLMinutes) * time.Minute; ttl > 0 {
		if store.Redis != nil {
			opts = append(opts, parser.WithVectorCache(store.Redis, ttl))
		} else {
			opts = append(opts, parser.WithVectorCache(parser.NewMemoryVectorCache(cfg.Embedding.CacheSize), ttl))
		}
	}
	return parser.NewEmbeddingService(embedder, cfg.Embedding.Model, cfg.Embedding.Dimensions, opts...)
}

// Handlers 构建HTTP处理器
func (a *App) Handlers() router.Handlers {
	return router.Handlers{
		Match:       handler.NewMatchHandler(a.Match),
		Application: handler.NewApplicationHandler(a.Application),
		Index:       handler.NewIndexHandler(a.Indexing),
		Health:      handler.NewHealthHandler(a.HealthChecks()),
	}
}

// HealthChecks 各依赖的健康检查
func (a *App) HealthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": a.Storage.Database.Ping,
		"vector_index": func(ctx context.Context) error {
			_, err := a.Index.Stats(ctx)
			return err
		},
	}
	if a.Storage.Redis != nil {
		checks["redis"] = a.Storage.Redis.Ping
	}
	return checks
}

// StartBackground 启动 outbox 中继和变更事件消费者，未配置RabbitMQ时不启动。
// 返回的函数停止全部后台任务
func (a *App) StartBackground(ctx context.Context) (func(), error) {
	mq := a.Storage.RabbitMQ
	if mq == nil {
		a.logger.Info().Msg("RabbitMQ未启用，职位变更同步索引")
		return func() {}, nil
	}

	relay := outbox.NewMessageRelay(a.Storage.Database.DB(), a.Storage.Database.Driver(), mq,
		outbox.WithPollingInterval(time.Duration(a.Config.RabbitMQ.RelayIntervalSeconds)*time.Second),
		outbox.WithBatchSize(a.Config.RabbitMQ.RelayBatchSize),
	)
	relay.Start()

	consumer := events.NewChangeConsumer(a.Index, a.Roles, a.Candidates)
	stopConsumer, err := mq.StartConsumer(ctx, a.Config.RabbitMQ.ReindexQueue, a.Config.RabbitMQ.PrefetchCount, consumer.HandleMessage)
	if err != nil {
		relay.Stop()
		return nil, fmt.Errorf("启动变更事件消费者失败: %w", err)
	}

	return func() {
		stopConsumer()
		relay.Stop()
	}, nil
}

// Close 释放全部连接
func (a *App) Close() {
	a.Storage.Close()
}
