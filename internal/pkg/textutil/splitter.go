package textutil

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk 表示文档中的一个文本块。
type Chunk struct {
	// Content 块的文本内容。
	Content string
	// Index 块在文档中的序号，从 0 开始。
	Index int
	// Offset 块起始位置在原文中的 Unicode 字符偏移。
	Offset int
}

// Splitter 将文档文本分割成块。
type Splitter interface {
	Split(text string) []Chunk
}

const (
	// DefaultChunkSize 默认块大小（Unicode 字符数）。
	DefaultChunkSize = 1000
	// DefaultChunkOverlap 默认块重叠大小。
	DefaultChunkOverlap = 200
)

// validateSplitterConfig 校验分割参数。
func validateSplitterConfig(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize)
	}
	return nil
}

// WindowSplitter 固定滑动窗口分割器。
// 相邻块精确重叠 overlap 个字符，最后一块可能较短。
type WindowSplitter struct {
	chunkSize int
	overlap   int
}

// NewWindowSplitter 创建固定窗口分割器。
func NewWindowSplitter(chunkSize, overlap int) (*WindowSplitter, error) {
	if err := validateSplitterConfig(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &WindowSplitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split 将文本分割成重叠的块。空白文本返回零个块。
func (s *WindowSplitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.chunkSize {
		return []Chunk{{Content: text, Index: 0, Offset: 0}}
	}

	var chunks []Chunk
	step := s.chunkSize - s.overlap

	for i := 0; i < len(runes); i += step {
		end := i + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Content: string(runes[i:end]),
			Index:   len(chunks),
			Offset:  i,
		})
		if end == len(runes) {
			break
		}
	}

	return chunks
}

// RecursiveSplitter 分隔符感知的递归分割器。
// 依次尝试段落、行、空格边界，找不到合适边界时退化为字符窗口，
// 再把过小的片段合并成接近 chunkSize 的块并保留 overlap 重叠。
type RecursiveSplitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewRecursiveSplitter 创建递归分割器。
func NewRecursiveSplitter(chunkSize, overlap int) (*RecursiveSplitter, error) {
	if err := validateSplitterConfig(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &RecursiveSplitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: []string{"\n\n", "\n", " ", ""},
	}, nil
}

// Split 将文本分割成块。空白文本返回零个块。
// 每个块都是原文的连续子串，偏移按出现顺序在原文中定位。
func (s *RecursiveSplitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := s.splitText(text, s.separators)

	chunks := make([]Chunk, 0, len(pieces))
	searchFrom := 0 // 字节偏移；相邻块可能重叠，只保证起点单调递增
	for _, content := range pieces {
		start := searchFrom
		if idx := strings.Index(text[searchFrom:], content); idx >= 0 {
			start = searchFrom + idx
		}
		chunks = append(chunks, Chunk{
			Content: content,
			Index:   len(chunks),
			Offset:  utf8.RuneCountInString(text[:start]),
		})
		searchFrom = start + 1
	}

	return chunks
}

// splitText 递归分割并合并，返回每个块的内容。
func (s *RecursiveSplitter) splitText(text string, separators []string) []string {
	if len([]rune(text)) <= s.chunkSize {
		return []string{text}
	}

	// 选择第一个在文本中出现的分隔符
	separator := separators[len(separators)-1]
	var nextSeparators []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			nextSeparators = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, separator)

	var final []string
	var pending []string
	for _, piece := range splits {
		if len([]rune(piece)) <= s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		// 先合并已累积的小片段，再递归处理超大片段
		final = append(final, s.merge(pending)...)
		pending = nil
		if len(nextSeparators) == 0 {
			final = append(final, windowSplit(piece, s.chunkSize, s.overlap)...)
		} else {
			final = append(final, s.splitText(piece, nextSeparators)...)
		}
	}
	final = append(final, s.merge(pending)...)

	return final
}

// merge 把小片段合并成接近 chunkSize 的块，块之间保留约 overlap 的重叠。
func (s *RecursiveSplitter) merge(pieces []string) []string {
	if len(pieces) == 0 {
		return nil
	}

	var out []string
	var window []string
	total := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		out = append(out, strings.Join(window, ""))
	}

	for _, piece := range pieces {
		pieceLen := len([]rune(piece))
		if total+pieceLen > s.chunkSize && total > 0 {
			flush()
			// 从窗口头部收缩，既满足重叠预算也给新片段留出空间
			for len(window) > 0 && (total > s.overlap || total+pieceLen > s.chunkSize) {
				total -= len([]rune(window[0]))
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += pieceLen
	}
	flush()

	return out
}

// splitKeepSeparator 按分隔符分割且把分隔符保留在前一个片段尾部，
// 保证片段拼接后与原文完全一致。
func splitKeepSeparator(text, separator string) []string {
	if separator == "" {
		return strings.Split(text, "")
	}

	parts := strings.Split(text, separator)
	result := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += separator
		}
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// windowSplit 无边界可用时的字符级滑动窗口。
func windowSplit(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var out []string
	step := chunkSize - overlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
