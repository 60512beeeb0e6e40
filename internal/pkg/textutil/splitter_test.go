package textutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/internal/pkg/textutil"
)

func TestSplitterConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		wantErr   bool
	}{
		{"合法配置", 1000, 200, false},
		{"零重叠", 100, 0, false},
		{"块大小为零", 0, 0, true},
		{"块大小为负", -1, 0, true},
		{"重叠为负", 100, -1, true},
		{"重叠等于块大小", 100, 100, true},
		{"重叠大于块大小", 100, 150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := textutil.NewWindowSplitter(tt.chunkSize, tt.overlap)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			_, err = textutil.NewRecursiveSplitter(tt.chunkSize, tt.overlap)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWindowSplitterEmptyInput(t *testing.T) {
	s, err := textutil.NewWindowSplitter(100, 20)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \n\t  "))
}

func TestWindowSplitterShortInput(t *testing.T) {
	s, err := textutil.NewWindowSplitter(100, 20)
	require.NoError(t, err)

	chunks := s.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].Offset)
}

func TestWindowSplitterExactOverlap(t *testing.T) {
	s, err := textutil.NewWindowSplitter(10, 3)
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 5)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	runes := []rune(text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		// 每个块内容必须与偏移处原文一致
		end := c.Offset + len([]rune(c.Content))
		assert.Equal(t, string(runes[c.Offset:end]), c.Content)

		if i > 0 {
			prev := chunks[i-1]
			prevEnd := prev.Offset + len([]rune(prev.Content))
			// 相邻块精确重叠 overlap 个字符（尾块除外前提相同）
			assert.Equal(t, 3, prevEnd-c.Offset, "chunk %d overlap", i)
		}
	}

	// 尾块覆盖到文本末尾
	last := chunks[len(chunks)-1]
	assert.Equal(t, len(runes), last.Offset+len([]rune(last.Content)))
}

func TestWindowSplitterUnicode(t *testing.T) {
	s, err := textutil.NewWindowSplitter(4, 1)
	require.NoError(t, err)

	text := "中文文本分割测试内容"
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	runes := []rune(text)
	for _, c := range chunks {
		end := c.Offset + len([]rune(c.Content))
		assert.Equal(t, string(runes[c.Offset:end]), c.Content)
		assert.LessOrEqual(t, len([]rune(c.Content)), 4)
	}
}

func TestRecursiveSplitterEmptyInput(t *testing.T) {
	s, err := textutil.NewRecursiveSplitter(100, 20)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("  \n\n  "))
}

func TestRecursiveSplitterPrefersParagraphBoundaries(t *testing.T) {
	s, err := textutil.NewRecursiveSplitter(50, 10)
	require.NoError(t, err)

	para1 := strings.Repeat("a", 40)
	para2 := strings.Repeat("b", 40)
	text := para1 + "\n\n" + para2

	chunks := s.Split(text)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, para1)
	assert.Contains(t, chunks[1].Content, para2)
	assert.NotContains(t, chunks[0].Content, "b")
}

func TestRecursiveSplitterChunksAreSubstrings(t *testing.T) {
	s, err := textutil.NewRecursiveSplitter(30, 8)
	require.NoError(t, err)

	text := "First paragraph with a few words.\n\nSecond paragraph here.\nThird line follows with more words than fit in one chunk."
	chunks := s.Split(text)
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len([]rune(c.Content)), 30)
		end := c.Offset + len([]rune(c.Content))
		require.LessOrEqual(t, end, len(runes))
		assert.Equal(t, string(runes[c.Offset:end]), c.Content)
	}

	// 偏移单调递增
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Offset, chunks[i-1].Offset)
	}
}

func TestRecursiveSplitterCoversFullText(t *testing.T) {
	s, err := textutil.NewRecursiveSplitter(20, 5)
	require.NoError(t, err)

	text := strings.Repeat("word ", 40)
	chunks := s.Split(text)
	require.NotEmpty(t, chunks)

	// 所有原文字符都被某个块覆盖
	runes := []rune(text)
	covered := make([]bool, len(runes))
	for _, c := range chunks {
		for i := c.Offset; i < c.Offset+len([]rune(c.Content)); i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		if !ok && strings.TrimSpace(string(runes[i])) != "" {
			t.Fatalf("rune %d (%q) not covered by any chunk", i, runes[i])
		}
	}
}

func TestRecursiveSplitterNoBoundaryFallsBackToWindow(t *testing.T) {
	s, err := textutil.NewRecursiveSplitter(10, 2)
	require.NoError(t, err)

	// 无任何分隔符的连续文本
	text := strings.Repeat("x", 35)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Content)), 10)
	}
}
