package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/errors"
)

// MemoryIndex 进程内向量索引。
// 向量在插入时做 L2 归一化，检索用余弦相似度并归一化到 [0, 1]。
type MemoryIndex struct {
	mu       sync.RWMutex
	chunks   []textutil.Chunk
	vectors  [][]float32
	dim      int
	released bool
}

// NewMemoryIndex 创建内存索引。
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Build 构建索引。块与向量数量必须一致，向量维度必须统一。
func (m *MemoryIndex) Build(_ context.Context, chunks []textutil.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.ErrInvalidParam.WithMessagef("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return errors.ErrSessionClosed.WithMessage("index already released")
	}

	dim := 0
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if i == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return errors.ErrInvalidParam.WithMessagef("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		normalized[i] = textutil.NormalizeVector(v)
	}

	m.chunks = chunks
	m.vectors = normalized
	m.dim = dim
	return nil
}

// Search 返回与查询向量最相似的 k 个块，按分数降序。
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.released {
		return nil, errors.ErrSessionClosed.WithMessage("index already released")
	}
	if k <= 0 || len(m.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != m.dim {
		return nil, errors.ErrInvalidParam.WithMessagef("query dimension %d does not match index dimension %d", len(vector), m.dim)
	}

	query := textutil.NormalizeVector(vector)

	results := make([]ScoredChunk, len(m.chunks))
	for i := range m.chunks {
		sim := textutil.CosineSimilarity(query, m.vectors[i])
		results[i] = ScoredChunk{
			Chunk:  m.chunks[i],
			Score:  textutil.NormalizeCosineSimilarity(sim),
			Vector: m.vectors[i],
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count 返回索引中的块数量。
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Release 释放索引。重复调用为空操作。
func (m *MemoryIndex) Release(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = nil
	m.vectors = nil
	m.released = true
	return nil
}

var _ Index = (*MemoryIndex)(nil)
