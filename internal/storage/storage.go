package storage

import (
	"context"
	"fmt"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖。
// Database 和 Chunks 必须可用，MinIO/RabbitMQ/Redis 未配置或连接失败时为 nil
type Storage struct {
	Database *Database
	Chunks   ChunkStore
	Qdrant   *Qdrant
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
	Redis    *Redis
}

// NewStorage 创建存储管理器
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	log := logger.Component("storage")

	db, err := NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	s := &Storage{Database: db}

	switch cfg.VectorIndex.Backend {
	case "memory":
		s.Chunks = NewMemoryChunkStore()
	case "qdrant":
		s.Qdrant, err = NewQdrant(ctx, &cfg.Qdrant, cfg.Embedding.Dimensions,
			WithHttpTimeout(time.Duration(cfg.Qdrant.TimeoutSeconds)*time.Second))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化Qdrant失败: %w", err)
		}
		s.Chunks = s.Qdrant
	default:
		s.Chunks = NewGormChunkStore(db.DB())
	}
	log.Info().Str("backend", s.Chunks.Name()).Str("driver", db.Driver()).Msg("向量分块存储已就绪")

	if cfg.MinIO.Endpoint != "" {
		if s.MinIO, err = NewMinIO(ctx, &cfg.MinIO); err != nil {
			log.Warn().Err(err).Msg("初始化MinIO失败，简历文件上传不可用")
		}
	}

	if cfg.RabbitMQ.URL != "" {
		if s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ); err != nil {
			log.Warn().Err(err).Msg("初始化RabbitMQ失败，变更事件改为同步处理")
		} else if err = s.RabbitMQ.SetupChangeTopology(); err != nil {
			log.Warn().Err(err).Msg("声明变更事件拓扑失败")
		}
	}

	if cfg.Redis.Address != "" {
		if s.Redis, err = NewRedisAdapter(&cfg.Redis); err != nil {
			log.Warn().Err(err).Msg("初始化Redis失败，使用进程内向量缓存")
		}
	} else {
		log.Debug().Msg("Redis未配置, 跳过初始化")
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.Component("storage")
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.Database != nil {
		if err := s.Database.Close(); err != nil {
			log.Error().Err(err).Msg("关闭数据库连接失败")
		}
	}
}
