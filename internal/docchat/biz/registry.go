package biz

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/metrics"
	"github.com/kart-io/docchat/pkg/errors"
	"github.com/kart-io/docchat/pkg/id"
	"github.com/kart-io/docchat/pkg/pool"
)

// Session binds a session id to its owning user and answer engine.
type Session struct {
	ID        string
	UserID    string
	Engine    *Engine
	CreatedAt time.Time
}

// EngineFactory builds an engine for a document text. The registry stays
// ignorant of providers, splitters and index backends.
type EngineFactory func(ctx context.Context, text string) (*Engine, error)

// RegistryConfig holds session registry tunables.
type RegistryConfig struct {
	// MaxSessions caps concurrently live sessions.
	MaxSessions int
	// IdleTimeout is how long a session may sit without questions before
	// the sweeper closes it.
	IdleTimeout time.Duration
	// SweepInterval is how often the idle sweeper runs.
	SweepInterval time.Duration
	// CreateTimeout bounds session creation, which embeds the whole
	// document. Exceeding it returns a creation timeout error.
	CreateTimeout time.Duration
}

// DefaultRegistryConfig returns the default registry configuration.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		MaxSessions:   256,
		IdleTimeout:   30 * time.Minute,
		SweepInterval: time.Minute,
		CreateTimeout: 2 * time.Minute,
	}
}

// SessionRegistry tracks live sessions, enforces the capacity limit and
// sweeps idle sessions in the background.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newEngine EngineFactory
	ids       id.Generator
	config    *RegistryConfig
	metrics   *metrics.EngineMetrics

	sweepStop chan struct{}
	sweepOnce sync.Once
	stopOnce  sync.Once
}

// NewSessionRegistry creates a registry. Call StartSweeper to enable idle
// session cleanup.
func NewSessionRegistry(factory EngineFactory, config *RegistryConfig) *SessionRegistry {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = DefaultRegistryConfig().MaxSessions
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultRegistryConfig().IdleTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultRegistryConfig().SweepInterval
	}
	if config.CreateTimeout <= 0 {
		config.CreateTimeout = DefaultRegistryConfig().CreateTimeout
	}

	return &SessionRegistry{
		sessions:  make(map[string]*Session),
		newEngine: factory,
		ids:       id.NewULIDGenerator(),
		config:    config,
		metrics:   metrics.GetEngineMetrics(),
		sweepStop: make(chan struct{}),
	}
}

// Create builds a session for a user over the given document text. The
// engine is built synchronously under the creation deadline; a build
// failure registers nothing. Exceeding the capacity limit fails before
// any provider call.
func (r *SessionRegistry) Create(ctx context.Context, userID, text string) (*Session, error) {
	r.mu.RLock()
	count := len(r.sessions)
	r.mu.RUnlock()
	if count >= r.config.MaxSessions {
		return nil, errors.ErrCapacity.WithMessagef("session limit %d reached", r.config.MaxSessions)
	}

	buildCtx, cancel := context.WithTimeout(ctx, r.config.CreateTimeout)
	defer cancel()

	engine, err := r.newEngine(buildCtx, text)
	if err != nil {
		// 区分创建超时和供应商故障。
		if stderrors.Is(buildCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errors.ErrSessionCreateTimeout.WithCause(err)
		}
		return nil, err
	}

	session := &Session{
		ID:        r.ids.Generate(),
		UserID:    userID,
		Engine:    engine,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	// 构建引擎期间可能有并发创建，插入前再查一次容量。
	if len(r.sessions) >= r.config.MaxSessions {
		r.mu.Unlock()
		_ = engine.Close()
		return nil, errors.ErrCapacity.WithMessagef("session limit %d reached", r.config.MaxSessions)
	}
	r.sessions[session.ID] = session
	r.mu.Unlock()

	r.metrics.RecordSessionCreated()
	logger.Infow("session created",
		"session_id", session.ID,
		"user_id", userID,
		"chunks", engine.ChunkCount(),
	)

	return session, nil
}

// Get returns the session or a not-found error.
func (r *SessionRegistry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrSessionNotFound.WithMessagef("session %s", sessionID)
	}
	return session, nil
}

// Close closes the session's engine and removes it from the registry.
// Closing an unknown or already-closed session returns not-found.
func (r *SessionRegistry) Close(sessionID string) error {
	return r.closeSession(sessionID, false)
}

func (r *SessionRegistry) closeSession(sessionID string, swept bool) error {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return errors.ErrSessionNotFound.WithMessagef("session %s", sessionID)
	}

	if err := session.Engine.Close(); err != nil {
		logger.Warnw("session close failed", "session_id", sessionID, "error", err.Error())
	}
	r.metrics.RecordSessionClosed(swept)
	logger.Infow("session closed", "session_id", sessionID, "swept", swept)

	return nil
}

// CloseAll closes every live session and stops the sweeper. Used on
// shutdown.
func (r *SessionRegistry) CloseAll() {
	r.stopOnce.Do(func() {
		close(r.sweepStop)
	})

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Engine.Close(); err != nil {
			logger.Warnw("session close failed", "session_id", s.ID, "error", err.Error())
		}
		r.metrics.RecordSessionClosed(false)
	}

	if len(sessions) > 0 {
		logger.Infow("all sessions closed", "count", len(sessions))
	}
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartSweeper launches the idle sweep loop on the background worker pool,
// falling back to a plain goroutine when the pool is unavailable.
func (r *SessionRegistry) StartSweeper() {
	r.sweepOnce.Do(func() {
		loop := func() {
			ticker := time.NewTicker(r.config.SweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					r.sweepIdle()
				case <-r.sweepStop:
					return
				}
			}
		}

		if err := pool.SubmitToType(pool.BackgroundPool, loop); err != nil {
			logger.Warnw("background pool unavailable, sweeping on a raw goroutine",
				"error", err.Error(),
			)
			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						logger.Errorw("idle sweeper panic", "error", rec)
					}
				}()
				loop()
			}()
		}
	})
}

// sweepIdle closes every session idle longer than the idle timeout.
func (r *SessionRegistry) sweepIdle() {
	deadline := time.Now().Add(-r.config.IdleTimeout)

	r.mu.RLock()
	var idle []string
	for sid, s := range r.sessions {
		if s.Engine.LastActive().Before(deadline) {
			idle = append(idle, sid)
		}
	}
	r.mu.RUnlock()

	for _, sid := range idle {
		if err := r.closeSession(sid, true); err == nil {
			logger.Infow("idle session swept", "session_id", sid)
		}
	}
}
