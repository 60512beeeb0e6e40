package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/pkg/llm"
)

// flakyChatProvider 前 failCount 次调用返回 failErr，之后成功。
type flakyChatProvider struct {
	failCount int
	failErr   error
	calls     int
}

func (f *flakyChatProvider) Name() string { return "flaky" }

func (f *flakyChatProvider) Chat(_ context.Context, _ []llm.Message) (string, error) {
	f.calls++
	if f.calls <= f.failCount {
		return "", f.failErr
	}
	return "answer", nil
}

func (f *flakyChatProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	f.calls++
	if f.calls <= f.failCount {
		return "", f.failErr
	}
	return "answer", nil
}

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestResilientChatProvider_RetriesOnceOnRateLimit(t *testing.T) {
	provider := &flakyChatProvider{
		failCount: 1,
		failErr:   fmt.Errorf("%w: 状态码 429", llm.ErrRateLimited),
	}
	rp := NewResilientChatProvider(provider, fastRetryConfig(), nil)

	result, err := rp.Generate(context.Background(), "prompt", "")
	require.NoError(t, err)
	assert.Equal(t, "answer", result)
	assert.Equal(t, 2, provider.calls)
}

func TestResilientChatProvider_NoRetryOnContextTooLong(t *testing.T) {
	provider := &flakyChatProvider{
		failCount: 10,
		failErr:   fmt.Errorf("%w: prompt too long", llm.ErrContextTooLong),
	}
	rp := NewResilientChatProvider(provider, fastRetryConfig(), nil)

	_, err := rp.Generate(context.Background(), "prompt", "")
	require.Error(t, err)
	assert.True(t, llm.IsContextTooLong(err))
	assert.Equal(t, 1, provider.calls)
}

func TestResilientChatProvider_GivesUpAfterSecondFailure(t *testing.T) {
	provider := &flakyChatProvider{
		failCount: 10,
		failErr:   fmt.Errorf("%w: 状态码 503", llm.ErrUnavailable),
	}
	rp := NewResilientChatProvider(provider, fastRetryConfig(), nil)

	_, err := rp.Generate(context.Background(), "prompt", "")
	require.Error(t, err)
	assert.Equal(t, 2, provider.calls)
}

type flakyEmbeddingProvider struct {
	failCount int
	failErr   error
	calls     int
}

func (f *flakyEmbeddingProvider) Name() string { return "flaky-embed" }

func (f *flakyEmbeddingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failCount {
		return nil, f.failErr
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2}
	}
	return result, nil
}

func (f *flakyEmbeddingProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failCount {
		return nil, f.failErr
	}
	return []float32{0.1, 0.2}, nil
}

func TestResilientEmbeddingProvider_RetriesOnUnavailable(t *testing.T) {
	provider := &flakyEmbeddingProvider{
		failCount: 1,
		failErr:   fmt.Errorf("%w: connection refused", llm.ErrUnavailable),
	}
	rp := NewResilientEmbeddingProvider(provider, fastRetryConfig(), nil)

	embedding, err := rp.EmbedSingle(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, embedding, 2)
	assert.Equal(t, 2, provider.calls)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(ErrCircuitBreakerOpen))
	assert.False(t, IsRetryableError(errors.New("bad request")))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(llm.ErrRateLimited))
	assert.True(t, IsRetryableError(llm.ErrUnavailable))
}
