// Package metrics 提供文档问答服务的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// EngineMetrics 文档问答服务业务指标。
type EngineMetrics struct {
	// 会话指标
	sessionsCreated uint64 // 创建的会话数
	sessionsClosed  uint64 // 关闭的会话数（含空闲清理）
	sessionsSwept   uint64 // 因空闲被清理的会话数
	sessionsActive  int64  // 当前活跃会话数

	// 问答指标
	questionsTotal uint64 // 总提问次数
	answersTotal   uint64 // 成功回答次数
	answersErrors  uint64 // 回答失败次数

	// 检索指标
	retrievalTotal    uint64  // 总检索次数
	retrievalDuration float64 // 检索总耗时（秒）
	retrievalErrors   uint64  // 检索错误次数

	// 生成指标
	generationTotal    uint64  // 生成调用总次数
	generationDuration float64 // 生成总耗时（秒）
	generationErrors   uint64  // 生成错误次数
	generationRetries  uint64  // 生成重试次数

	// 索引指标
	documentsIndexed uint64 // 已索引文档数
	chunksIndexed    uint64 // 已索引分块数
	indexErrors      uint64 // 索引构建错误次数

	startTime  time.Time
	durationMu sync.Mutex
}

// globalEngineMetrics 全局指标实例。
var (
	globalEngineMetrics *EngineMetrics
	engineMetricsOnce   sync.Once
)

// GetEngineMetrics 获取全局指标实例。
func GetEngineMetrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		globalEngineMetrics = &EngineMetrics{
			startTime: time.Now(),
		}
	})
	return globalEngineMetrics
}

// RecordSessionCreated 记录会话创建。
func (m *EngineMetrics) RecordSessionCreated() {
	atomic.AddUint64(&m.sessionsCreated, 1)
	atomic.AddInt64(&m.sessionsActive, 1)
}

// RecordSessionClosed 记录会话关闭。swept 表示是否由空闲清理触发。
func (m *EngineMetrics) RecordSessionClosed(swept bool) {
	atomic.AddUint64(&m.sessionsClosed, 1)
	atomic.AddInt64(&m.sessionsActive, -1)
	if swept {
		atomic.AddUint64(&m.sessionsSwept, 1)
	}
}

// RecordQuestion 记录一次问答。
func (m *EngineMetrics) RecordQuestion(err error) {
	atomic.AddUint64(&m.questionsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.answersErrors, 1)
		return
	}
	atomic.AddUint64(&m.answersTotal, 1)
}

// RecordRetrieval 记录检索。
func (m *EngineMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}
	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordGeneration 记录生成调用。
func (m *EngineMetrics) RecordGeneration(duration time.Duration, err error) {
	atomic.AddUint64(&m.generationTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.generationErrors, 1)
		return
	}
	m.durationMu.Lock()
	m.generationDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordGenerationRetry 记录生成重试。
func (m *EngineMetrics) RecordGenerationRetry() {
	atomic.AddUint64(&m.generationRetries, 1)
}

// RecordIndexing 记录索引构建。
func (m *EngineMetrics) RecordIndexing(chunks int, err error) {
	if err != nil {
		atomic.AddUint64(&m.indexErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsIndexed, 1)
	atomic.AddUint64(&m.chunksIndexed, uint64(chunks))
}

// Export 导出 Prometheus 格式指标。
func (m *EngineMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	writeCounter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n\n", prefix, name, value))
	}
	writeGauge := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s gauge\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.6f\n\n", prefix, name, value))
	}

	writeCounter("sessions_created_total", "Total sessions created.", atomic.LoadUint64(&m.sessionsCreated))
	writeCounter("sessions_closed_total", "Total sessions closed.", atomic.LoadUint64(&m.sessionsClosed))
	writeCounter("sessions_swept_total", "Sessions closed by the idle sweeper.", atomic.LoadUint64(&m.sessionsSwept))
	writeGauge("sessions_active", "Currently active sessions.", float64(atomic.LoadInt64(&m.sessionsActive)))

	writeCounter("questions_total", "Total questions asked.", atomic.LoadUint64(&m.questionsTotal))
	writeCounter("answers_total", "Successful answers.", atomic.LoadUint64(&m.answersTotal))
	writeCounter("answers_errors_total", "Failed answers.", atomic.LoadUint64(&m.answersErrors))

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	generationDuration := m.generationDuration
	m.durationMu.Unlock()

	writeCounter("retrieval_total", "Total retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	writeGauge("retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)
	writeCounter("retrieval_errors_total", "Retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	writeCounter("generation_total", "Total generation calls.", atomic.LoadUint64(&m.generationTotal))
	writeGauge("generation_duration_seconds_total", "Total generation duration.", generationDuration)
	writeCounter("generation_errors_total", "Generation errors.", atomic.LoadUint64(&m.generationErrors))
	writeCounter("generation_retries_total", "Generation retries.", atomic.LoadUint64(&m.generationRetries))

	writeCounter("documents_indexed_total", "Documents indexed.", atomic.LoadUint64(&m.documentsIndexed))
	writeCounter("chunks_indexed_total", "Chunks indexed.", atomic.LoadUint64(&m.chunksIndexed))
	writeCounter("index_errors_total", "Index build errors.", atomic.LoadUint64(&m.indexErrors))

	writeGauge("uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Stats 返回当前统计信息（用于 API）。
func (m *EngineMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	generationDuration := m.generationDuration
	m.durationMu.Unlock()

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	generationTotal := atomic.LoadUint64(&m.generationTotal)
	avgGenerationDuration := 0.0
	if generationTotal > 0 {
		avgGenerationDuration = generationDuration / float64(generationTotal)
	}

	return map[string]interface{}{
		"sessions": map[string]interface{}{
			"created": atomic.LoadUint64(&m.sessionsCreated),
			"closed":  atomic.LoadUint64(&m.sessionsClosed),
			"swept":   atomic.LoadUint64(&m.sessionsSwept),
			"active":  atomic.LoadInt64(&m.sessionsActive),
		},
		"questions": map[string]interface{}{
			"total":   atomic.LoadUint64(&m.questionsTotal),
			"answers": atomic.LoadUint64(&m.answersTotal),
			"errors":  atomic.LoadUint64(&m.answersErrors),
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"generation": map[string]interface{}{
			"total":               generationTotal,
			"total_duration_secs": generationDuration,
			"avg_duration_secs":   avgGenerationDuration,
			"errors":              atomic.LoadUint64(&m.generationErrors),
			"retries":             atomic.LoadUint64(&m.generationRetries),
		},
		"indexing": map[string]interface{}{
			"documents_indexed": atomic.LoadUint64(&m.documentsIndexed),
			"chunks_indexed":    atomic.LoadUint64(&m.chunksIndexed),
			"errors":            atomic.LoadUint64(&m.indexErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset 重置所有指标（仅用于测试）。
func (m *EngineMetrics) Reset() {
	atomic.StoreUint64(&m.sessionsCreated, 0)
	atomic.StoreUint64(&m.sessionsClosed, 0)
	atomic.StoreUint64(&m.sessionsSwept, 0)
	atomic.StoreInt64(&m.sessionsActive, 0)
	atomic.StoreUint64(&m.questionsTotal, 0)
	atomic.StoreUint64(&m.answersTotal, 0)
	atomic.StoreUint64(&m.answersErrors, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.generationTotal, 0)
	atomic.StoreUint64(&m.generationErrors, 0)
	atomic.StoreUint64(&m.generationRetries, 0)
	atomic.StoreUint64(&m.documentsIndexed, 0)
	atomic.StoreUint64(&m.chunksIndexed, 0)
	atomic.StoreUint64(&m.indexErrors, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.generationDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
