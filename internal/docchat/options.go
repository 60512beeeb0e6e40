// Package docchat provides the docchat server application.
package docchat

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	llmopts "github.com/kart-io/docchat/pkg/options/llm"
	logopts "github.com/kart-io/docchat/pkg/options/logger"
	milvusopts "github.com/kart-io/docchat/pkg/options/milvus"
	redisopts "github.com/kart-io/docchat/pkg/options/redis"
	httpopts "github.com/kart-io/docchat/pkg/options/server/http"
)

// Options contains all docchat server options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Milvus contains the optional Milvus index backend configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Redis contains the optional embedding cache configuration.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// Chunker contains text splitting configuration.
	Chunker *ChunkerOptions `json:"chunker" mapstructure:"chunker"`

	// Engine contains per-session answer engine configuration.
	Engine *EngineOptions `json:"engine" mapstructure:"engine"`

	// Registry contains session registry configuration.
	Registry *RegistryOptions `json:"registry" mapstructure:"registry"`

	// DataDir is the directory holding the document store database.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// EmbeddingDim is the embedding vector dimension, used when creating
	// the Milvus collection.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`
}

// ChunkerOptions 文本切分配置。
type ChunkerOptions struct {
	// ChunkSize 单个分块的最大字符数。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap 相邻分块的重叠字符数。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
}

// NewChunkerOptions 创建默认文本切分配置。
func NewChunkerOptions() *ChunkerOptions {
	return &ChunkerOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// EngineOptions contains per-session answer engine configuration.
type EngineOptions struct {
	// TopK is the number of chunks kept after diversity re-ranking.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// FetchK is the number of candidates fetched from the index before
	// re-ranking.
	FetchK int `json:"fetch-k" mapstructure:"fetch-k"`

	// MMRLambda balances relevance against diversity (0..1, higher
	// favors relevance).
	MMRLambda float64 `json:"mmr-lambda" mapstructure:"mmr-lambda"`

	// MemoryWindow is the number of past exchanges included in prompts.
	MemoryWindow int `json:"memory-window" mapstructure:"memory-window"`

	// MaxQuestionLen 问题最大字符数。
	MaxQuestionLen int `json:"max-question-len" mapstructure:"max-question-len"`

	// QueueSize is the per-session pending question queue capacity.
	QueueSize int `json:"queue-size" mapstructure:"queue-size"`

	// AnswerTimeout bounds a single retrieve-and-generate round.
	AnswerTimeout time.Duration `json:"answer-timeout" mapstructure:"answer-timeout"`
}

// NewEngineOptions creates new EngineOptions with defaults.
func NewEngineOptions() *EngineOptions {
	return &EngineOptions{
		TopK:           6,
		FetchK:         20,
		MMRLambda:      0.25,
		MemoryWindow:   10,
		MaxQuestionLen: 2000,
		QueueSize:      16,
		AnswerTimeout:  60 * time.Second,
	}
}

// RegistryOptions contains session registry configuration.
type RegistryOptions struct {
	// MaxSessions caps the number of concurrently live sessions.
	MaxSessions int `json:"max-sessions" mapstructure:"max-sessions"`

	// IdleTimeout 会话空闲多久后被回收。
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	// SweepInterval is how often idle sessions are swept.
	SweepInterval time.Duration `json:"sweep-interval" mapstructure:"sweep-interval"`

	// CreateTimeout bounds session creation, which embeds the whole document.
	CreateTimeout time.Duration `json:"create-timeout" mapstructure:"create-timeout"`
}

// NewRegistryOptions creates new RegistryOptions with defaults.
func NewRegistryOptions() *RegistryOptions {
	return &RegistryOptions{
		MaxSessions:   256,
		IdleTimeout:   30 * time.Minute,
		SweepInterval: 1 * time.Minute,
		CreateTimeout: 2 * time.Minute,
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		HTTP:         httpopts.NewOptions(),
		Log:          logopts.NewOptions(),
		Milvus:       milvusopts.NewOptions(),
		Redis:        redisopts.NewOptions(),
		Embedding:    llmopts.NewEmbeddingOptions(),
		Chat:         llmopts.NewChatOptions(),
		Chunker:      NewChunkerOptions(),
		Engine:       NewEngineOptions(),
		Registry:     NewRegistryOptions(),
		DataDir:      "_output/docchat-data",
		EmbeddingDim: 768, // nomic-embed-text dimension
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Redis.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Chat.AddFlags(fs, "chat")
	o.addChunkerFlags(fs)
	o.addEngineFlags(fs)
	o.addRegistryFlags(fs)

	fs.StringVar(&o.DataDir, "data-dir", o.DataDir, "Directory for the document store database")
	fs.IntVar(&o.EmbeddingDim, "embedding-dim", o.EmbeddingDim, "Embedding vector dimension")
}

func (o *Options) addChunkerFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Chunker.ChunkSize, "chunker.chunk-size", o.Chunker.ChunkSize, "Maximum characters per text chunk")
	fs.IntVar(&o.Chunker.ChunkOverlap, "chunker.chunk-overlap", o.Chunker.ChunkOverlap, "Characters of overlap between adjacent chunks")
}

func (o *Options) addEngineFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Engine.TopK, "engine.top-k", o.Engine.TopK, "Chunks kept after diversity re-ranking")
	fs.IntVar(&o.Engine.FetchK, "engine.fetch-k", o.Engine.FetchK, "Candidates fetched before re-ranking")
	fs.Float64Var(&o.Engine.MMRLambda, "engine.mmr-lambda", o.Engine.MMRLambda, "Relevance/diversity balance (0..1)")
	fs.IntVar(&o.Engine.MemoryWindow, "engine.memory-window", o.Engine.MemoryWindow, "Past exchanges included in prompts")
	fs.IntVar(&o.Engine.MaxQuestionLen, "engine.max-question-len", o.Engine.MaxQuestionLen, "Maximum question length in characters")
	fs.IntVar(&o.Engine.QueueSize, "engine.queue-size", o.Engine.QueueSize, "Pending question queue capacity per session")
	fs.DurationVar(&o.Engine.AnswerTimeout, "engine.answer-timeout", o.Engine.AnswerTimeout, "Timeout for a single answer round")
}

func (o *Options) addRegistryFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Registry.MaxSessions, "registry.max-sessions", o.Registry.MaxSessions, "Maximum concurrently live sessions")
	fs.DurationVar(&o.Registry.IdleTimeout, "registry.idle-timeout", o.Registry.IdleTimeout, "Idle duration before a session is reclaimed")
	fs.DurationVar(&o.Registry.SweepInterval, "registry.sweep-interval", o.Registry.SweepInterval, "Interval between idle session sweeps")
	fs.DurationVar(&o.Registry.CreateTimeout, "registry.create-timeout", o.Registry.CreateTimeout, "Timeout for session creation (document embedding)")
}

// Validate validates the options.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.HTTP.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Milvus.Validate()...)
	errs = append(errs, o.Redis.Validate()...)
	errs = append(errs, prefixErrors("embedding", o.Embedding.Validate())...)
	errs = append(errs, prefixErrors("chat", o.Chat.Validate())...)

	if o.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk-size must be positive"))
	}
	if o.Chunker.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk-overlap cannot be negative"))
	}
	if o.Chunker.ChunkOverlap >= o.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk-overlap must be smaller than chunker.chunk-size"))
	}
	if o.Engine.TopK <= 0 {
		errs = append(errs, fmt.Errorf("engine.top-k must be positive"))
	}
	if o.Engine.FetchK < o.Engine.TopK {
		errs = append(errs, fmt.Errorf("engine.fetch-k cannot be smaller than engine.top-k"))
	}
	if o.Engine.MMRLambda < 0 || o.Engine.MMRLambda > 1 {
		errs = append(errs, fmt.Errorf("engine.mmr-lambda must be in [0, 1]"))
	}
	if o.Engine.AnswerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.answer-timeout must be positive"))
	}
	if o.Registry.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("registry.max-sessions must be positive"))
	}
	if o.Registry.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.idle-timeout must be positive"))
	}
	if o.Registry.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("registry.sweep-interval must be positive"))
	}
	if o.Registry.CreateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.create-timeout must be positive"))
	}
	if o.DataDir == "" {
		errs = append(errs, fmt.Errorf("data-dir is required"))
	}
	if o.Milvus.Enabled && o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive when milvus is enabled"))
	}

	return errors.Join(errs...)
}

func prefixErrors(prefix string, errs []error) []error {
	if len(errs) == 0 {
		return nil
	}
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		out = append(out, fmt.Errorf("%s: %w", prefix, err))
	}
	return out
}

// Complete completes the options with defaults.
func (o *Options) Complete() error {
	return nil
}
