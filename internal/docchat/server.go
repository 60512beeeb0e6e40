package docchat

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/docstore"
	"github.com/kart-io/docchat/internal/docchat/handler"
	"github.com/kart-io/docchat/internal/docchat/router"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/component/milvus"
	"github.com/kart-io/docchat/pkg/id"
	"github.com/kart-io/docchat/pkg/llm"
	"github.com/kart-io/docchat/pkg/llm/resilience"
	"github.com/kart-io/docchat/pkg/pool"

	// 注册 LLM 供应商
	_ "github.com/kart-io/docchat/pkg/llm/ollama"
	_ "github.com/kart-io/docchat/pkg/llm/openai"
)

// Server is the assembled docchat server.
type Server struct {
	opts       *Options
	httpServer *http.Server
	registry   *biz.SessionRegistry

	redisClient  *goredis.Client
	milvusClient *milvus.Client
}

// NewServer wires up every component from the options.
func NewServer(opts *Options) (*Server, error) {
	// 1. 初始化协程池
	if err := pool.InitGlobal(); err != nil {
		return nil, fmt.Errorf("failed to initialize goroutine pools: %w", err)
	}
	logger.Info("Goroutine pools initialized")

	// 2. 初始化文档存储
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	docs, err := docstore.New(filepath.Join(opts.DataDir, "documents.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	logger.Infow("Document store initialized", "data_dir", opts.DataDir)

	// 3. 初始化 Redis 客户端（Embedding 缓存，连接失败时降级关闭）
	var redisClient *goredis.Client
	if opts.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         opts.Redis.Addr(),
			Password:     opts.Redis.Password,
			DB:           opts.Redis.Database,
			PoolSize:     opts.Redis.PoolSize,
			DialTimeout:  opts.Redis.DialTimeout,
			ReadTimeout:  opts.Redis.ReadTimeout,
			WriteTimeout: opts.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnw("failed to connect to redis, embedding cache disabled", "error", err.Error())
			_ = redisClient.Close()
			redisClient = nil
		} else {
			logger.Infow("Redis embedding cache initialized",
				"addr", opts.Redis.Addr(),
				"ttl", opts.Redis.CacheTTL,
			)
		}
	} else {
		logger.Info("Embedding cache is disabled")
	}

	// 4. 初始化 LLM 供应商
	embedder, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if redisClient != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient, &llm.EmbeddingCacheConfig{
			Enabled:   true,
			TTL:       opts.Redis.CacheTTL,
			KeyPrefix: "docchat:emb:",
		})
	}
	resilientEmbedder := resilience.NewResilientEmbeddingProvider(
		embedder, resilience.DefaultRetryConfig(), resilience.DefaultCircuitBreakerConfig())
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
	)

	generator, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	resilientGenerator := resilience.NewResilientChatProvider(
		generator, resilience.DefaultRetryConfig(), resilience.DefaultCircuitBreakerConfig())
	logger.Infow("Chat provider initialized",
		"provider", opts.Chat.Provider,
		"model", opts.Chat.Model,
	)

	// 5. 初始化向量索引后端
	var milvusClient *milvus.Client
	if opts.Milvus.Enabled {
		milvusClient, err = milvus.New(opts.Milvus)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), opts.Milvus.Timeout)
		err = store.EnsureCollection(ctx, milvusClient, opts.Milvus.Collection, opts.EmbeddingDim)
		cancel()
		if err != nil {
			_ = milvusClient.Close(context.Background())
			return nil, fmt.Errorf("failed to prepare milvus collection: %w", err)
		}
		logger.Infow("Milvus index backend initialized",
			"address", opts.Milvus.Address,
			"collection", opts.Milvus.Collection,
		)
	} else {
		logger.Info("Using in-memory vector index backend")
	}

	// 6. 初始化分块器和会话引擎工厂
	splitter, err := textutil.NewRecursiveSplitter(opts.Chunker.ChunkSize, opts.Chunker.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create text splitter: %w", err)
	}

	engineConfig := &biz.EngineConfig{
		TopK:           opts.Engine.TopK,
		FetchK:         opts.Engine.FetchK,
		MMRLambda:      opts.Engine.MMRLambda,
		MemoryWindow:   opts.Engine.MemoryWindow,
		MaxQuestionLen: opts.Engine.MaxQuestionLen,
		QueueSize:      opts.Engine.QueueSize,
		AnswerTimeout:  opts.Engine.AnswerTimeout,
	}
	indexIDs := id.NewULIDGenerator()
	newIndex := func() store.Index {
		if milvusClient != nil {
			return store.NewMilvusIndex(milvusClient, opts.Milvus.Collection, indexIDs.Generate())
		}
		return store.NewMemoryIndex()
	}
	factory := func(ctx context.Context, text string) (*biz.Engine, error) {
		cfg := *engineConfig
		return biz.NewEngine(ctx, text, splitter, resilientEmbedder, resilientGenerator, newIndex(), &cfg)
	}

	// 7. 初始化会话注册表
	registry := biz.NewSessionRegistry(factory, &biz.RegistryConfig{
		MaxSessions:   opts.Registry.MaxSessions,
		IdleTimeout:   opts.Registry.IdleTimeout,
		SweepInterval: opts.Registry.SweepInterval,
		CreateTimeout: opts.Registry.CreateTimeout,
	})
	registry.StartSweeper()
	logger.Info("Session registry initialized")

	// 8. 初始化 Handler 层并注册路由
	gin.SetMode(opts.HTTP.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog())

	router.Register(engine, &router.Handlers{
		Document: handler.NewDocumentHandler(docs, opts.HTTP.MaxUploadSize),
		Session:  handler.NewSessionHandler(registry),
		Chat:     handler.NewChatHandler(registry, docs),
		Health:   handler.NewHealthHandler(registry, opts.Embedding.Provider, opts.Chat.Provider),
	})

	return &Server{
		opts: opts,
		httpServer: &http.Server{
			Addr:         opts.HTTP.Addr,
			Handler:      engine,
			ReadTimeout:  opts.HTTP.ReadTimeout,
			WriteTimeout: opts.HTTP.WriteTimeout,
			IdleTimeout:  opts.HTTP.IdleTimeout,
		},
		registry:     registry,
		redisClient:  redisClient,
		milvusClient: milvusClient,
	}, nil
}

// Run starts the HTTP server and blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.opts.HTTP.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-quit:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	// 先关会话再停 HTTP，挂起的问题以会话关闭错误返回
	s.registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HTTP.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Warnw("http server shutdown did not complete cleanly", "error", err.Error())
	}

	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.milvusClient != nil {
		_ = s.milvusClient.Close(context.Background())
	}
	_ = pool.CloseGlobal()

	logger.Info("Server stopped")
	return nil
}

// accessLog logs one line per completed HTTP request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
