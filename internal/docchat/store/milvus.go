package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/component/milvus"
	"github.com/kart-io/docchat/pkg/errors"
)

// milvus 集合中块内容字段的最大长度。
const milvusContentMaxLen = 65535

// MilvusIndex 基于 Milvus 共享集合的会话索引。
// 所有会话共用一个集合，靠 session_id 标量字段隔离；
// Release 按过滤表达式删除本会话的全部向量。
type MilvusIndex struct {
	client     *milvus.Client
	collection string
	sessionID  string

	mu       sync.Mutex
	count    int
	released bool
}

// NewMilvusIndex 创建指定会话的 Milvus 索引。
func NewMilvusIndex(client *milvus.Client, collection, sessionID string) *MilvusIndex {
	return &MilvusIndex{
		client:     client,
		collection: collection,
		sessionID:  sessionID,
	}
}

// EnsureCollection 创建（或复用）共享集合。
func EnsureCollection(ctx context.Context, client *milvus.Client, collection string, dimension int) error {
	schema := &milvus.CollectionSchema{
		Name:        collection,
		Description: "docchat session chunks",
		Dimension:   dimension,
		MetaFields: []milvus.MetaField{
			{Name: "session_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "chunk_offset", DataType: entity.FieldTypeInt64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: milvusContentMaxLen},
		},
	}
	return client.CreateCollection(ctx, schema)
}

// Build 把会话的全部块写入共享集合。
func (m *MilvusIndex) Build(ctx context.Context, chunks []textutil.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.ErrInvalidParam.WithMessagef("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return errors.ErrSessionClosed.WithMessage("index already released")
	}
	if len(chunks) == 0 {
		m.count = 0
		return nil
	}

	if err := EnsureCollection(ctx, m.client, m.collection, len(vectors[0])); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	normalized := make([][]float32, len(vectors))
	metadata := map[string][]any{
		"session_id":   make([]any, len(chunks)),
		"chunk_index":  make([]any, len(chunks)),
		"chunk_offset": make([]any, len(chunks)),
		"content":      make([]any, len(chunks)),
	}
	for i, chunk := range chunks {
		normalized[i] = textutil.NormalizeVector(vectors[i])
		metadata["session_id"][i] = m.sessionID
		metadata["chunk_index"][i] = int64(chunk.Index)
		metadata["chunk_offset"][i] = int64(chunk.Offset)
		metadata["content"][i] = textutil.TruncateString(chunk.Content, milvusContentMaxLen)
	}

	if _, err := m.client.Insert(ctx, m.collection, &milvus.InsertData{
		Embeddings: normalized,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert session chunks: %w", err)
	}

	m.count = len(chunks)
	return nil
}

// Search 在本会话范围内检索最相似的 k 个块。
// 返回存储的向量，便于用统一的 MMR 重排。
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil, errors.ErrSessionClosed.WithMessage("index already released")
	}
	count := m.count
	m.mu.Unlock()

	if k <= 0 || count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	expr := fmt.Sprintf("session_id == %q", m.sessionID)
	outputFields := []string{"session_id", "chunk_index", "chunk_offset", "content", "embedding"}

	query := textutil.NormalizeVector(vector)
	results, err := m.client.SearchWithFilter(ctx, m.collection, query, expr, k, outputFields)
	if err != nil {
		return nil, fmt.Errorf("search session chunks: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		chunk := textutil.Chunk{}
		if v, ok := r.Metadata["content"].(string); ok {
			chunk.Content = v
		}
		if v, ok := r.Metadata["chunk_index"].(int64); ok {
			chunk.Index = int(v)
		}
		if v, ok := r.Metadata["chunk_offset"].(int64); ok {
			chunk.Offset = int(v)
		}
		scored = append(scored, ScoredChunk{
			Chunk: chunk,
			// 归一化向量的内积即余弦相似度
			Score:  textutil.NormalizeCosineSimilarity(float64(r.Score)),
			Vector: r.Vector,
		})
	}

	return scored, nil
}

// Count 返回本会话写入的块数量。
func (m *MilvusIndex) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Release 删除本会话的全部向量。重复调用为空操作。
func (m *MilvusIndex) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil
	}
	m.released = true

	if m.count == 0 {
		return nil
	}
	m.count = 0

	expr := fmt.Sprintf("session_id == %q", m.sessionID)
	if err := m.client.DeleteByFilter(ctx, m.collection, expr); err != nil {
		return fmt.Errorf("release session chunks: %w", err)
	}
	return nil
}

var _ Index = (*MilvusIndex)(nil)
