package biz

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/metrics"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/errors"
	"github.com/kart-io/docchat/pkg/llm"
)

// EngineState is the lifecycle state of an answer engine.
type EngineState int32

const (
	// StateUninitialized means the index has not been built yet.
	StateUninitialized EngineState = iota
	// StateReady means the engine is idle and accepting questions.
	StateReady
	// StateAnswering means a question is currently being processed.
	StateAnswering
	// StateClosed means the engine was closed and its index released.
	StateClosed
)

// String returns the state name.
func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateAnswering:
		return "answering"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EngineConfig holds the tunables of a session answer engine.
type EngineConfig struct {
	// TopK is the number of chunks selected into the prompt.
	TopK int
	// FetchK is the number of candidates over-fetched for diversity reranking.
	FetchK int
	// MMRLambda balances query relevance against diversity. Low values
	// favor diversity.
	MMRLambda float64
	// MemoryWindow is the number of recent exchanges surfaced into prompts.
	MemoryWindow int
	// MaxQuestionLen is the maximum question length in runes.
	MaxQuestionLen int
	// QueueSize bounds the pending-question queue. A full queue rejects
	// with a busy error instead of blocking the caller.
	QueueSize int
	// AnswerTimeout is the per-question deadline.
	AnswerTimeout time.Duration
	// PromptTemplate is the answer prompt with {{history}}, {{context}}
	// and {{question}} placeholders.
	PromptTemplate string
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		TopK:           6,
		FetchK:         20,
		MMRLambda:      0.25,
		MemoryWindow:   10,
		MaxQuestionLen: 2000,
		QueueSize:      16,
		AnswerTimeout:  60 * time.Second,
		PromptTemplate: DefaultPromptTemplate,
	}
}

// complete fills zero values with defaults.
func (c *EngineConfig) complete() {
	def := DefaultEngineConfig()
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.FetchK <= 0 {
		c.FetchK = def.FetchK
	}
	if c.MMRLambda <= 0 {
		c.MMRLambda = def.MMRLambda
	}
	if c.MemoryWindow <= 0 {
		c.MemoryWindow = def.MemoryWindow
	}
	if c.MaxQuestionLen <= 0 {
		c.MaxQuestionLen = def.MaxQuestionLen
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = def.AnswerTimeout
	}
	if c.PromptTemplate == "" {
		c.PromptTemplate = def.PromptTemplate
	}
}

// SourceChunk describes a chunk that grounded an answer.
type SourceChunk struct {
	Index   int     `json:"index"`
	Offset  int     `json:"offset"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// AnswerResult is a successful answer with its supporting chunks.
type AnswerResult struct {
	Answer  string        `json:"answer"`
	Sources []SourceChunk `json:"sources,omitempty"`
	Elapsed time.Duration `json:"-"`
}

// answerRequest is one queued question awaiting the worker. ctx is the
// submitter's context: generation is canceled with it, and an answer whose
// submitter is gone is discarded instead of entering memory.
type answerRequest struct {
	ctx      context.Context
	question string
	result   chan answerOutcome
}

type answerOutcome struct {
	answer *AnswerResult
	err    error
}

// Engine answers questions over one document, one at a time, in submission
// order. It owns the session's vector index and conversation memory.
type Engine struct {
	embedder  llm.EmbeddingProvider
	generator llm.ChatProvider
	index     store.Index
	memory    *ConversationMemory
	config    *EngineConfig
	metrics   *metrics.EngineMetrics

	state      atomic.Int32
	lastActive atomic.Int64 // unix nano
	createdAt  time.Time

	mu         sync.Mutex // guards closed + queue submission
	closed     bool
	queue      chan *answerRequest
	workerDone chan struct{}
}

// NewEngine chunks and embeds the document text, builds the vector index
// and starts the answer worker. A build failure leaves nothing behind:
// the partially built index is released and an error is returned.
func NewEngine(
	ctx context.Context,
	text string,
	splitter textutil.Splitter,
	embedder llm.EmbeddingProvider,
	generator llm.ChatProvider,
	index store.Index,
	config *EngineConfig,
) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	config.complete()

	e := &Engine{
		embedder:   embedder,
		generator:  generator,
		index:      index,
		memory:     NewConversationMemory(),
		config:     config,
		metrics:    metrics.GetEngineMetrics(),
		createdAt:  time.Now(),
		queue:      make(chan *answerRequest, config.QueueSize),
		workerDone: make(chan struct{}),
	}
	e.state.Store(int32(StateUninitialized))
	e.touch()

	if err := e.initialize(ctx, text, splitter); err != nil {
		_ = index.Release(context.Background())
		return nil, err
	}

	e.state.Store(int32(StateReady))
	go e.worker()

	return e, nil
}

// initialize chunks, embeds and indexes the document text. An empty or
// whitespace-only document yields a valid zero-chunk session.
func (e *Engine) initialize(ctx context.Context, text string, splitter textutil.Splitter) error {
	chunks := splitter.Split(text)
	if len(chunks) == 0 {
		logger.Infow("session initialized without chunks, answers will use the no-context fallback")
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		e.metrics.RecordIndexing(0, err)
		return classifyModelError(err, errors.ErrEmbedding)
	}
	if len(vectors) != len(chunks) {
		err := errors.ErrEmbedding.WithMessagef(
			"embedding count %d does not match chunk count %d", len(vectors), len(chunks))
		e.metrics.RecordIndexing(0, err)
		return err
	}

	if err := e.index.Build(ctx, chunks, vectors); err != nil {
		e.metrics.RecordIndexing(0, err)
		return err
	}

	e.metrics.RecordIndexing(len(chunks), nil)
	logger.Infow("session index built", "chunks", len(chunks))
	return nil
}

// Answer submits a question and blocks until it is answered, the caller's
// context ends, or the session closes. Questions queue in submission order;
// a full queue fails fast with a busy error.
func (e *Engine) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	if err := validateQuestion(question, e.config.MaxQuestionLen); err != nil {
		return nil, err
	}

	req := &answerRequest{
		ctx:      ctx,
		question: question,
		result:   make(chan answerOutcome, 1),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.ErrSessionClosed
	}
	select {
	case e.queue <- req:
		e.touch()
		e.mu.Unlock()
	default:
		e.mu.Unlock()
		return nil, errors.ErrSessionBusy
	}

	select {
	case out := <-req.result:
		return out.answer, out.err
	case <-ctx.Done():
		return nil, errors.ErrContextCanceled.WithCause(ctx.Err())
	}
}

// worker is the single consumer of the question queue. It exits when the
// queue is closed, failing any drained questions with a closed error.
func (e *Engine) worker() {
	defer close(e.workerDone)

	for req := range e.queue {
		if e.isClosed() {
			req.result <- answerOutcome{err: errors.ErrSessionClosed}
			continue
		}

		e.state.Store(int32(StateAnswering))
		answer, err := e.processProtected(req)
		if !e.isClosed() {
			e.state.Store(int32(StateReady))
		}

		e.metrics.RecordQuestion(err)
		req.result <- answerOutcome{answer: answer, err: err}
	}
}

// processProtected contains a panicking provider: one bad question fails,
// the session and the process survive.
func (e *Engine) processProtected(req *answerRequest) (answer *AnswerResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorw("answer pipeline panic", "panic", rec, "question_len", len(req.question))
			answer = nil
			err = errors.ErrUnknown.WithMessagef("answer pipeline panic: %v", rec)
		}
	}()
	return e.process(req)
}

// process runs the full answer pipeline for one question under the
// per-question deadline, canceled early if the submitter is gone. Memory is
// appended only on success, and never for an abandoned question.
func (e *Engine) process(req *answerRequest) (*AnswerResult, error) {
	question := req.question

	// 提问方退出时生成随之取消。
	if req.ctx.Err() != nil {
		return nil, errors.ErrContextCanceled.WithCause(req.ctx.Err())
	}
	ctx, cancel := context.WithTimeout(req.ctx, e.config.AnswerTimeout)
	defer cancel()

	start := time.Now()

	// 零分块会话直接走兜底回答，不调用生成器。
	if e.index.Count() == 0 {
		e.memory.Append(question, NoContextAnswer)
		e.touch()
		return &AnswerResult{Answer: NoContextAnswer, Elapsed: time.Since(start)}, nil
	}

	selected, err := e.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		e.memory.Append(question, NoContextAnswer)
		e.touch()
		return &AnswerResult{Answer: NoContextAnswer, Elapsed: time.Since(start)}, nil
	}

	history := e.memory.Recent(e.config.MemoryWindow)
	prompt := ComposePrompt(e.config.PromptTemplate, selected, history, question)

	genStart := time.Now()
	answer, err := e.generator.Generate(ctx, prompt, "")
	e.metrics.RecordGeneration(time.Since(genStart), err)
	if err != nil {
		logger.Warnw("answer generation failed", "error", err.Error())
		return nil, classifyModelError(err, errors.ErrGeneration)
	}

	// 提问方已放弃的回答不进入记忆。
	if req.ctx.Err() != nil {
		return nil, errors.ErrContextCanceled.WithCause(req.ctx.Err())
	}

	sources := make([]SourceChunk, len(selected))
	for i, c := range selected {
		sources[i] = SourceChunk{
			Index:   c.Chunk.Index,
			Offset:  c.Chunk.Offset,
			Content: c.Chunk.Content,
			Score:   c.Score,
		}
	}

	e.memory.Append(question, answer)
	e.touch()

	return &AnswerResult{
		Answer:  answer,
		Sources: sources,
		Elapsed: time.Since(start),
	}, nil
}

// retrieve embeds the question, over-fetches candidates and selects a
// diverse top-k with maximal marginal relevance.
func (e *Engine) retrieve(ctx context.Context, question string) ([]store.ScoredChunk, error) {
	retrievalStart := time.Now()

	vector, err := e.embedder.EmbedSingle(ctx, question)
	if err != nil {
		e.metrics.RecordRetrieval(time.Since(retrievalStart), err)
		return nil, classifyModelError(err, errors.ErrEmbedding)
	}

	candidates, err := e.index.Search(ctx, vector, e.config.FetchK)
	e.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		return nil, err
	}

	return store.MaxMarginalRelevance(vector, candidates, e.config.TopK, e.config.MMRLambda), nil
}

// Close transitions the engine to Closed, fails all pending questions and
// releases the index. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.state.Store(int32(StateClosed))
	close(e.queue)
	e.mu.Unlock()

	// 等 worker 清空残留请求后再释放索引。
	<-e.workerDone

	if err := e.index.Release(context.Background()); err != nil {
		logger.Warnw("index release failed", "error", err.Error())
		return err
	}
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

// ChunkCount returns the number of indexed chunks.
func (e *Engine) ChunkCount() int {
	return e.index.Count()
}

// ExchangeCount returns the number of completed exchanges.
func (e *Engine) ExchangeCount() int {
	return e.memory.Len()
}

// CreatedAt returns the engine creation time.
func (e *Engine) CreatedAt() time.Time {
	return e.createdAt
}

// LastActive returns the time of the last accepted question or answer.
func (e *Engine) LastActive() time.Time {
	return time.Unix(0, e.lastActive.Load())
}

func (e *Engine) touch() {
	e.lastActive.Store(time.Now().UnixNano())
}

func (e *Engine) isClosed() bool {
	return e.State() == StateClosed
}

// validateQuestion rejects blank questions and questions over the length
// limit, counted in runes.
func validateQuestion(question string, maxLen int) error {
	trimmed := 0
	runes := 0
	for _, r := range question {
		runes++
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			trimmed++
		}
	}
	if trimmed == 0 {
		return errors.ErrQuestionInvalid.WithMessage("question is blank")
	}
	if runes > maxLen {
		return errors.ErrQuestionInvalid.WithMessagef("question exceeds %d characters", maxLen)
	}
	return nil
}

// classifyModelError maps provider failures onto the service error
// taxonomy. The context checks run first so a cancel or timeout does not
// surface as a provider outage.
func classifyModelError(err error, fallback *errors.Errno) error {
	switch {
	case stderrors.Is(err, context.Canceled):
		return errors.ErrContextCanceled.WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrAnswerTimeout.WithCause(err)
	case llm.IsContextTooLong(err):
		return errors.ErrContextTooLong.WithCause(err)
	case llm.IsRateLimited(err):
		return errors.ErrModelRateLimited.WithCause(err)
	case llm.IsUnavailable(err):
		return errors.ErrModelUnavailable.WithCause(err)
	default:
		return fallback.WithCause(err)
	}
}

// FallbackMessage maps a failed answer onto the graceful string shown to
// the user instead of a raw error.
func FallbackMessage(err error) string {
	if errors.IsCode(err, errors.ErrContextTooLong.Code) {
		return TooLongAnswer
	}
	return GenericFailureAnswer
}
