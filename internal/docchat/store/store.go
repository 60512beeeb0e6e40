// Package store 提供会话级向量索引。
package store

import (
	"context"

	"github.com/kart-io/docchat/internal/pkg/textutil"
)

// ScoredChunk 表示一次检索命中的文档块。
type ScoredChunk struct {
	// Chunk 命中的文档块。
	Chunk textutil.Chunk
	// Score 归一化到 [0, 1] 的相似度分数。
	Score float64
	// Vector 块的嵌入向量，供多样性重排使用。
	Vector []float32
}

// Index 定义会话向量索引接口。
// Build 之后索引只读；Release 之后索引不可再用，重复 Release 为空操作。
type Index interface {
	// Build 用文档块及其向量构建索引。块与向量一一对应。
	Build(ctx context.Context, chunks []textutil.Chunk, vectors [][]float32) error

	// Search 返回与查询向量最相似的 k 个块，按分数降序。
	// k <= 0 返回空；k 大于块总数返回全部。
	Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)

	// Count 返回索引中的块数量。
	Count() int

	// Release 释放索引资源。
	Release(ctx context.Context) error
}

// MMRConfig 多样性检索（最大边际相关）配置。
type MMRConfig struct {
	// Lambda 相关性与多样性的权衡系数，越小越偏向多样性。
	Lambda float64
	// FetchK 重排前的候选数量。
	FetchK int
}

// DefaultMMRConfig 返回默认 MMR 配置。
func DefaultMMRConfig() MMRConfig {
	return MMRConfig{
		Lambda: 0.25,
		FetchK: 20,
	}
}

// MaxMarginalRelevance 从候选集中选出 k 个兼顾相关性与多样性的块。
// 每轮选择 argmax λ·sim(d,q) − (1−λ)·max sim(d,selected)。
// 候选应已按相似度降序排列。
func MaxMarginalRelevance(query []float32, candidates []ScoredChunk, k int, lambda float64) []ScoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k >= len(candidates) {
		k = len(candidates)
	}

	selected := make([]ScoredChunk, 0, k)
	remaining := make([]ScoredChunk, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := -1.0

		for i, cand := range remaining {
			simToQuery := textutil.CosineSimilarity(query, cand.Vector)

			maxSimToSelected := 0.0
			for _, s := range selected {
				if sim := textutil.CosineSimilarity(cand.Vector, s.Vector); sim > maxSimToSelected {
					maxSimToSelected = sim
				}
			}

			score := lambda*simToQuery - (1-lambda)*maxSimToSelected
			if i == 0 || score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
