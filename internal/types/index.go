package types

import "fmt"

// ChunkTag 分块所属的实体类型
type ChunkTag string

const (
	TagRole   ChunkTag = "role"
	TagResume ChunkTag = "resume"
)

// Valid 是否为已知标签
func (t ChunkTag) Valid() bool {
	return t == TagRole || t == TagResume
}

// ParseChunkTag 解析标签字符串，空字符串默认为role
func ParseChunkTag(s string) (ChunkTag, error) {
	if s == "" {
		return TagRole, nil
	}
	tag := ChunkTag(s)
	if !tag.Valid() {
		return "", fmt.Errorf("%w: 未知的分块标签 %q", ErrInvalidInput, s)
	}
	return tag, nil
}

// EmbeddedChunk 一个已向量化的文本分块
type EmbeddedChunk struct {
	ID      string    `json:"id"`
	Tag     ChunkTag  `json:"tag"`
	OwnerID string    `json:"owner_id"`
	Title   string    `json:"title,omitempty"`
	Text    string    `json:"text"`
	Index   int       `json:"chunk_index"`
	Vector  []float64 `json:"-"`
}

// ScoredChunk 向量存储返回的近邻分块，Distance为L2距离
type ScoredChunk struct {
	Chunk    EmbeddedChunk
	Distance float64
}

// SearchHit 按所属实体去重后的检索结果，Score范围0-100
type SearchHit struct {
	OwnerID  string  `json:"owner_id"`
	Title    string  `json:"title,omitempty"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
}

// IndexStats 索引统计
type IndexStats struct {
	Backend      string `json:"backend"`
	RoleChunks   int64  `json:"role_chunks"`
	ResumeChunks int64  `json:"resume_chunks"`
}
