package biz_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/errors"
)

func newTestFactory(t *testing.T) biz.EngineFactory {
	t.Helper()

	splitter, err := textutil.NewRecursiveSplitter(120, 20)
	require.NoError(t, err)

	return func(ctx context.Context, text string) (*biz.Engine, error) {
		return biz.NewEngine(ctx, text, splitter,
			&fakeEmbedder{}, &fakeGenerator{response: "ok"},
			store.NewMemoryIndex(), nil)
	}
}

func TestRegistryCreateGetClose(t *testing.T) {
	registry := biz.NewSessionRegistry(newTestFactory(t), nil)
	defer registry.CloseAll()

	session, err := registry.Create(context.Background(), "user-1", sampleText)
	require.NoError(t, err)
	assert.Len(t, session.ID, 26) // ULID
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, 1, registry.Count())

	got, err := registry.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)

	require.NoError(t, registry.Close(session.ID))
	assert.Equal(t, 0, registry.Count())

	// Get 和二次 Close 都是 NotFound。
	_, err = registry.Get(session.ID)
	assert.True(t, errors.IsCode(err, errors.ErrSessionNotFound.Code))
	err = registry.Close(session.ID)
	assert.True(t, errors.IsCode(err, errors.ErrSessionNotFound.Code))
}

func TestRegistryClosedSessionEngineRejects(t *testing.T) {
	registry := biz.NewSessionRegistry(newTestFactory(t), nil)
	defer registry.CloseAll()

	session, err := registry.Create(context.Background(), "user-1", sampleText)
	require.NoError(t, err)
	require.NoError(t, registry.Close(session.ID))

	_, err = session.Engine.Answer(context.Background(), "question")
	assert.True(t, errors.IsCode(err, errors.ErrSessionClosed.Code))
}

func TestRegistryCapacityLimit(t *testing.T) {
	config := biz.DefaultRegistryConfig()
	config.MaxSessions = 2
	registry := biz.NewSessionRegistry(newTestFactory(t), config)
	defer registry.CloseAll()

	_, err := registry.Create(context.Background(), "user-1", "text one")
	require.NoError(t, err)
	_, err = registry.Create(context.Background(), "user-1", "text two")
	require.NoError(t, err)

	_, err = registry.Create(context.Background(), "user-1", "text three")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCapacity.Code))
	assert.Equal(t, 2, registry.Count())
}

func TestRegistryFactoryFailureRegistersNothing(t *testing.T) {
	factory := func(ctx context.Context, text string) (*biz.Engine, error) {
		return nil, errors.ErrEmbedding.WithMessage("provider down")
	}
	registry := biz.NewSessionRegistry(factory, nil)

	_, err := registry.Create(context.Background(), "user-1", sampleText)
	require.Error(t, err)
	assert.Equal(t, 0, registry.Count())
}

// stallEmbedder blocks until the context ends, simulating a provider that
// never answers within the creation deadline.
type stallEmbedder struct{}

func (stallEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallEmbedder) Name() string { return "stall-embedder" }

func TestRegistryCreateTimeout(t *testing.T) {
	splitter, err := textutil.NewRecursiveSplitter(120, 20)
	require.NoError(t, err)

	factory := func(ctx context.Context, text string) (*biz.Engine, error) {
		return biz.NewEngine(ctx, text, splitter,
			stallEmbedder{}, &fakeGenerator{response: "ok"},
			store.NewMemoryIndex(), nil)
	}

	config := biz.DefaultRegistryConfig()
	config.CreateTimeout = 30 * time.Millisecond
	registry := biz.NewSessionRegistry(factory, config)

	_, err = registry.Create(context.Background(), "user-1", sampleText)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSessionCreateTimeout.Code))
	assert.Equal(t, 0, registry.Count())
}

func TestRegistryCloseAll(t *testing.T) {
	registry := biz.NewSessionRegistry(newTestFactory(t), nil)

	s1, err := registry.Create(context.Background(), "user-1", "text one")
	require.NoError(t, err)
	_, err = registry.Create(context.Background(), "user-1", "text two")
	require.NoError(t, err)

	registry.CloseAll()
	assert.Equal(t, 0, registry.Count())

	_, err = s1.Engine.Answer(context.Background(), "question")
	assert.True(t, errors.IsCode(err, errors.ErrSessionClosed.Code))
}

func TestRegistryIdleSweep(t *testing.T) {
	config := biz.DefaultRegistryConfig()
	config.IdleTimeout = 30 * time.Millisecond
	config.SweepInterval = 10 * time.Millisecond
	registry := biz.NewSessionRegistry(newTestFactory(t), config)
	defer registry.CloseAll()

	session, err := registry.Create(context.Background(), "user-1", sampleText)
	require.NoError(t, err)

	registry.StartSweeper()

	require.Eventually(t, func() bool {
		_, err := registry.Get(session.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond, "idle session should be swept")

	// 被清理的会话与显式关闭行为一致。
	_, err = session.Engine.Answer(context.Background(), "question")
	assert.True(t, errors.IsCode(err, errors.ErrSessionClosed.Code))
}

func TestRegistryActiveSessionSurvivesSweep(t *testing.T) {
	config := biz.DefaultRegistryConfig()
	config.IdleTimeout = 200 * time.Millisecond
	config.SweepInterval = 20 * time.Millisecond
	registry := biz.NewSessionRegistry(newTestFactory(t), config)
	defer registry.CloseAll()

	session, err := registry.Create(context.Background(), "user-1", sampleText)
	require.NoError(t, err)
	registry.StartSweeper()

	// 持续提问让会话保持活跃。
	for i := 0; i < 5; i++ {
		_, err := session.Engine.Answer(context.Background(), "keep alive")
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
	}

	_, err = registry.Get(session.ID)
	assert.NoError(t, err)
}
