package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"talent-match/internal/storage/models"
	"talent-match/internal/types"
)

const chunkScanBatchSize = 500

// GormChunkStore 把分块和向量存在关系库的 indexed_chunks 表中，检索时在进程内计算距离
type GormChunkStore struct {
	db *gorm.DB
}

var _ ChunkStore = (*GormChunkStore)(nil)

// NewGormChunkStore 创建基于数据库的分块存储
func NewGormChunkStore(db *gorm.DB) *GormChunkStore {
	return &GormChunkStore{db: db}
}

func (s *GormChunkStore) Name() string { return "database" }

func (s *GormChunkStore) Upsert(ctx context.Context, chunks []types.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]models.IndexedChunk, 0, len(chunks))
	for _, c := range chunks {
		vec, err := models.ToJSON(c.Vector)
		if err != nil {
			return fmt.Errorf("序列化分块向量失败: %w", err)
		}
		rows = append(rows, models.IndexedChunk{
			ID:         c.ID,
			Tag:        string(c.Tag),
			OwnerID:    c.OwnerID,
			Title:      c.Title,
			Text:       c.Text,
			ChunkIndex: c.Index,
			Vector:     vec,
		})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return fmt.Errorf("写入分块失败: %w", err)
	}
	return nil
}

func (s *GormChunkStore) DeleteByOwner(ctx context.Context, tag types.ChunkTag, ownerID string) error {
	err := s.db.WithContext(ctx).
		Where("tag = ? AND owner_id = ?", string(tag), ownerID).
		Delete(&models.IndexedChunk{}).Error
	if err != nil {
		return fmt.Errorf("删除 %s/%s 的分块失败: %w", tag, ownerID, err)
	}
	return nil
}

func (s *GormChunkStore) Search(ctx context.Context, vector []float64, tag types.ChunkTag, limit int) ([]types.ScoredChunk, error) {
	if limit <= 0 {
		return []types.ScoredChunk{}, nil
	}

	hits := make([]types.ScoredChunk, 0, limit)
	var batch []models.IndexedChunk
	result := s.db.WithContext(ctx).
		Where("tag = ?", string(tag)).
		FindInBatches(&batch, chunkScanBatchSize, func(tx *gorm.DB, _ int) error {
			for _, row := range batch {
				var vec []float64
				if err := json.Unmarshal(row.Vector, &vec); err != nil {
					return fmt.Errorf("解析分块 %s 的向量失败: %w", row.ID, err)
				}
				d, err := L2Distance(vector, vec)
				if err != nil {
					return err
				}
				hits = append(hits, types.ScoredChunk{Chunk: chunkFromRow(row, vec), Distance: d})
			}
			// 每批之后只保留当前最近的 limit 个
			sortScored(hits)
			if len(hits) > limit {
				hits = hits[:limit]
			}
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("检索分块失败: %w", result.Error)
	}
	return hits, nil
}

func (s *GormChunkStore) Count(ctx context.Context, tag types.ChunkTag, ownerID string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.IndexedChunk{}).Where("tag = ?", string(tag))
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计分块失败: %w", err)
	}
	return n, nil
}

func (s *GormChunkStore) Clear(ctx context.Context, tag types.ChunkTag) error {
	err := s.db.WithContext(ctx).
		Where("tag = ?", string(tag)).
		Delete(&models.IndexedChunk{}).Error
	if err != nil {
		return fmt.Errorf("清空 %s 分块失败: %w", tag, err)
	}
	return nil
}

func chunkFromRow(row models.IndexedChunk, vec []float64) types.EmbeddedChunk {
	return types.EmbeddedChunk{
		ID:      row.ID,
		Tag:     types.ChunkTag(row.Tag),
		OwnerID: row.OwnerID,
		Title:   row.Title,
		Text:    row.Text,
		Index:   row.ChunkIndex,
		Vector:  vec,
	}
}
