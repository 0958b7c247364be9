package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "talent"

	// EmbeddingModulePrefix embedding模块
	EmbeddingModulePrefix = "embedding"
	// IndexModulePrefix 向量索引模块
	IndexModulePrefix = "index"

	// EntityVector 向量实体
	EntityVector = "vector"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyEmbeddingVector 文本向量缓存 (STRING, JSON数组)
	// 格式: talent:embedding:vector:{model}:{dim}:{sha256}
	KeyEmbeddingVector = AppPrefix + ":" + EmbeddingModulePrefix + ":" + EntityVector + ":%s:%d:%s"

	// KeyIndexOwnerLock 单个职位/简历重建分块时的分布式锁 (STRING)
	// 格式: talent:index:lock:{tag}:{ownerID}
	KeyIndexOwnerLock = AppPrefix + ":" + IndexModulePrefix + ":" + EntityLock + ":%s:%s"

	// KeyIndexRebuildLock 全量重建锁 (STRING)
	KeyIndexRebuildLock = AppPrefix + ":" + IndexModulePrefix + ":" + EntityLock + ":rebuild"
)
