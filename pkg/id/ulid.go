// Package id 提供会话和文档 ID 生成器。
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator 定义 ID 生成器接口
type Generator interface {
	Generate() string
}

// ULIDGenerator 使用 ULID 算法生成时间可排序的唯一 ID
//
// ULID 特性:
//   - 时间可排序 (毫秒精度)
//   - 词典序友好 (适合数据库索引)
//   - 26 字符长度 (vs UUID 36 字符)
//
// 格式: 01AN4Z07BY79KA1307SR9X4MV3
//   - 前 10 字符: 时间戳 (毫秒)
//   - 后 16 字符: 随机熵
type ULIDGenerator struct {
	entropy io.Reader
	mu      sync.Mutex
}

// NewULIDGenerator 创建新的 ULID 生成器
func NewULIDGenerator() *ULIDGenerator {
	// 使用单调熵源确保同一毫秒内生成的 ID 也是有序的
	entropy := ulid.Monotonic(rand.Reader, 0)
	return &ULIDGenerator{
		entropy: entropy,
	}
}

// Generate 实现 Generator 接口
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

var defaultGenerator = NewULIDGenerator()

// NewSessionID 使用默认生成器生成会话 ID。
func NewSessionID() string {
	return defaultGenerator.Generate()
}
