package biz_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/errors"
	"github.com/kart-io/docchat/pkg/llm"
	"github.com/kart-io/docchat/pkg/llm/resilience"
)

// fakeEmbedder returns deterministic vectors derived from the text bytes.
type fakeEmbedder struct {
	calls    int32
	failures int32 // number of initial calls that fail
	failErr  error
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	var sum int
	for _, b := range []byte(text) {
		sum += int(b)
	}
	return []float32{
		float32(len(text)%7 + 1),
		float32(sum%11 + 1),
		float32(sum%13 + 1),
		1,
	}
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, f.failErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, f.failErr
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

// fakeGenerator records prompts and can fail, panic or block on demand.
type fakeGenerator struct {
	mu       sync.Mutex
	prompts  []string
	calls    int32
	response string
	failures int // number of initial calls that fail
	failErr  error
	panics   int           // number of initial calls that panic
	block    chan struct{} // when set, Generate waits for it or ctx
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	block := f.block
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	doPanic := f.panics > 0
	if doPanic {
		f.panics--
	}
	f.mu.Unlock()

	if doPanic {
		panic("generator fault")
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", f.failErr
	}
	if f.response != "" {
		return f.response, nil
	}
	return "generated answer", nil
}

func (f *fakeGenerator) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return f.Generate(ctx, messages[len(messages)-1].Content, "")
}

func (f *fakeGenerator) Name() string { return "fake-generator" }

func (f *fakeGenerator) recordedPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

const sampleText = `Go is a statically typed language designed at Google.
It compiles quickly and ships a garbage collector.

Goroutines are lightweight threads managed by the runtime.
Channels let goroutines communicate without explicit locks.

The standard library covers networking, compression and cryptography.`

func newTestEngine(t *testing.T, text string, gen llm.ChatProvider, config *biz.EngineConfig) *biz.Engine {
	t.Helper()

	splitter, err := textutil.NewRecursiveSplitter(120, 20)
	require.NoError(t, err)

	engine, err := biz.NewEngine(
		context.Background(),
		text,
		splitter,
		&fakeEmbedder{},
		gen,
		store.NewMemoryIndex(),
		config,
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return engine
}

func TestAnswerSuccessAppendsMemory(t *testing.T) {
	gen := &fakeGenerator{response: "the answer"}
	engine := newTestEngine(t, sampleText, gen, nil)

	assert.Equal(t, biz.StateReady, engine.State())
	assert.Greater(t, engine.ChunkCount(), 0)

	result, err := engine.Answer(context.Background(), "What are goroutines?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", result.Answer)
	assert.NotEmpty(t, result.Sources)

	assert.Equal(t, 1, engine.ExchangeCount())
	assert.Equal(t, biz.StateReady, engine.State())

	prompts := gen.recordedPrompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "What are goroutines?")
	assert.Contains(t, prompts[0], "Goroutines")
}

func TestAnswerIncludesConversationHistory(t *testing.T) {
	gen := &fakeGenerator{response: "answer"}
	engine := newTestEngine(t, sampleText, gen, nil)

	_, err := engine.Answer(context.Background(), "first question")
	require.NoError(t, err)
	_, err = engine.Answer(context.Background(), "second question")
	require.NoError(t, err)

	prompts := gen.recordedPrompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "Human: first question")
	assert.Contains(t, prompts[1], "Assistant: answer")
	assert.Equal(t, 2, engine.ExchangeCount())
}

func TestEmptyDocumentFallsBackWithoutGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	engine := newTestEngine(t, "   \n\t  ", gen, nil)

	assert.Equal(t, biz.StateReady, engine.State())
	assert.Equal(t, 0, engine.ChunkCount())

	result, err := engine.Answer(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, biz.NoContextAnswer, result.Answer)
	assert.Empty(t, result.Sources)

	// Fallback counts as a successful exchange; the generator stays cold.
	assert.Equal(t, 1, engine.ExchangeCount())
	assert.Equal(t, int32(0), atomic.LoadInt32(&gen.calls))
}

func TestGenerationFailureLeavesMemoryUnchanged(t *testing.T) {
	gen := &fakeGenerator{failures: 10, failErr: assert.AnError}
	engine := newTestEngine(t, sampleText, gen, nil)

	_, err := engine.Answer(context.Background(), "doomed question")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrGeneration.Code))
	assert.Equal(t, 0, engine.ExchangeCount())
}

func TestEmbeddingFailureLeavesMemoryUnchanged(t *testing.T) {
	gen := &fakeGenerator{}
	splitter, err := textutil.NewRecursiveSplitter(120, 20)
	require.NoError(t, err)

	// Indexing succeeds, then every question embedding fails.
	embedder := &fakeEmbedder{failErr: llm.ErrUnavailable}
	engine, err := biz.NewEngine(context.Background(), sampleText, splitter,
		embedder, gen, store.NewMemoryIndex(), nil)
	require.NoError(t, err)
	defer engine.Close()

	atomic.StoreInt32(&embedder.failures, 100)

	_, err = engine.Answer(context.Background(), "question")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrModelUnavailable.Code))
	assert.Equal(t, 0, engine.ExchangeCount())
	assert.Equal(t, int32(0), atomic.LoadInt32(&gen.calls))
}

func TestGeneratorPanicFailsQuestionNotSession(t *testing.T) {
	gen := &fakeGenerator{response: "recovered answer", panics: 1}
	engine := newTestEngine(t, sampleText, gen, nil)

	// 供应商崩溃只让这一个问题失败。
	_, err := engine.Answer(context.Background(), "what is a goroutine?")
	require.Error(t, err)
	assert.Equal(t, 0, engine.ExchangeCount())
	assert.Equal(t, biz.StateReady, engine.State())

	result, err := engine.Answer(context.Background(), "what is a channel?")
	require.NoError(t, err)
	assert.Equal(t, "recovered answer", result.Answer)
	assert.Equal(t, 1, engine.ExchangeCount())
}

func TestCanceledQuestionIsNotRemembered(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{response: "slow answer", block: release}
	engine := newTestEngine(t, sampleText, gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := engine.Answer(ctx, "abandoned question")
		done <- err
	}()

	// 等生成开始后再取消，让取消命中进行中的调用。
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&gen.calls) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	assert.True(t, errors.IsCode(err, errors.ErrContextCanceled.Code))

	require.Eventually(t, func() bool {
		return engine.State() == biz.StateReady
	}, time.Second, 5*time.Millisecond)

	// 被放弃的问题不进入记忆，会话照常服务后续问题。
	assert.Equal(t, 0, engine.ExchangeCount())

	close(release)
	result, err := engine.Answer(context.Background(), "next question")
	require.NoError(t, err)
	assert.Equal(t, "slow answer", result.Answer)
	assert.Equal(t, 1, engine.ExchangeCount())
}

func TestAnswerTimeout(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	config := biz.DefaultEngineConfig()
	config.AnswerTimeout = 30 * time.Millisecond
	engine := newTestEngine(t, sampleText, gen, config)

	_, err := engine.Answer(context.Background(), "slow question")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAnswerTimeout.Code))
	assert.Equal(t, 0, engine.ExchangeCount())
}

func TestContextTooLongIsNotRetriedAndFails(t *testing.T) {
	inner := &fakeGenerator{failures: 10, failErr: llm.ErrContextTooLong}
	gen := resilience.NewResilientChatProvider(inner, fastRetryConfig(), nil)
	engine := newTestEngine(t, sampleText, gen, nil)

	_, err := engine.Answer(context.Background(), "huge question")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrContextTooLong.Code))
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, 0, engine.ExchangeCount())

	assert.Equal(t, biz.TooLongAnswer, biz.FallbackMessage(err))
}

func TestRetryableFailureRecoversOnSecondAttempt(t *testing.T) {
	inner := &fakeGenerator{response: "recovered", failures: 1, failErr: llm.ErrRateLimited}
	gen := resilience.NewResilientChatProvider(inner, fastRetryConfig(), nil)
	engine := newTestEngine(t, sampleText, gen, nil)

	result, err := engine.Answer(context.Background(), "flaky question")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Answer)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, 1, engine.ExchangeCount())
}

func TestQuestionsAnswerInSubmissionOrder(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{response: "ok", block: release}
	engine := newTestEngine(t, sampleText, gen, nil)

	questions := []string{"question alpha", "question beta", "question gamma"}

	var wg sync.WaitGroup
	for _, q := range questions {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := engine.Answer(context.Background(), q)
			assert.NoError(t, err)
		}(q)
		// 等上一条进入队列后再提交下一条，保证提交顺序确定。
		time.Sleep(50 * time.Millisecond)
	}

	close(release)
	wg.Wait()

	prompts := gen.recordedPrompts()
	require.Len(t, prompts, 3)
	for i, q := range questions {
		assert.Contains(t, prompts[i], q, "prompt %d should carry %q", i, q)
	}
}

func TestFullQueueRejectsWithBusy(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{response: "ok", block: release}
	config := biz.DefaultEngineConfig()
	config.QueueSize = 1
	engine := newTestEngine(t, sampleText, gen, config)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Answer(context.Background(), "in flight")
	}()
	time.Sleep(50 * time.Millisecond) // worker is now blocked in the generator

	go func() {
		_, _ = engine.Answer(context.Background(), "queued")
	}()
	time.Sleep(50 * time.Millisecond)

	_, err := engine.Answer(context.Background(), "rejected")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSessionBusy.Code))

	close(release)
	<-done
}

func TestClosedSessionRejectsAnswers(t *testing.T) {
	gen := &fakeGenerator{}
	engine := newTestEngine(t, sampleText, gen, nil)

	require.NoError(t, engine.Close())
	assert.Equal(t, biz.StateClosed, engine.State())

	_, err := engine.Answer(context.Background(), "too late")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSessionClosed.Code))

	// Close 幂等。
	require.NoError(t, engine.Close())
}

func TestClosePendingQuestionsFailClosed(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{response: "ok", block: release}
	engine := newTestEngine(t, sampleText, gen, nil)

	inFlight := make(chan error, 1)
	go func() {
		_, err := engine.Answer(context.Background(), "in flight")
		inFlight <- err
	}()
	time.Sleep(50 * time.Millisecond)

	pending := make(chan error, 1)
	go func() {
		_, err := engine.Answer(context.Background(), "pending")
		pending <- err
	}()
	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() {
		closed <- engine.Close()
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-closed)
	assert.NoError(t, <-inFlight, "the in-flight question finishes normally")

	err := <-pending
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSessionClosed.Code))
}

func TestQuestionValidation(t *testing.T) {
	gen := &fakeGenerator{}
	config := biz.DefaultEngineConfig()
	config.MaxQuestionLen = 10
	engine := newTestEngine(t, sampleText, gen, config)

	tests := []struct {
		name     string
		question string
	}{
		{"空问题", ""},
		{"纯空白", "   \n\t "},
		{"超长问题", strings.Repeat("长", 11)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Answer(context.Background(), tt.question)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrQuestionInvalid.Code))
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&gen.calls))
}

func TestInitializationFailureReleasesIndex(t *testing.T) {
	splitter, err := textutil.NewRecursiveSplitter(120, 20)
	require.NoError(t, err)

	embedder := &fakeEmbedder{failures: 100, failErr: llm.ErrUnavailable}
	index := store.NewMemoryIndex()

	_, err = biz.NewEngine(context.Background(), sampleText, splitter,
		embedder, &fakeGenerator{}, index, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrModelUnavailable.Code))

	// 构建失败后索引已释放，不可再用。
	buildErr := index.Build(context.Background(),
		[]textutil.Chunk{{Content: "x"}}, [][]float32{{1, 0}})
	require.Error(t, buildErr)
}

func fastRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}
