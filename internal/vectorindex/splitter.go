package vectorindex

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Splitter 按字符数切分文本，相邻窗口保留重叠部分。
// 窗口末尾优先退到换行处，其次空白处，但不会退过窗口的一半
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter 创建切分器，非法参数回退为默认值
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
		if DefaultChunkOverlap < size {
			overlap = DefaultChunkOverlap
		}
	}
	return &Splitter{size: size, overlap: overlap}
}

// Size 窗口大小
func (s *Splitter) Size() int { return s.size }

// Overlap 重叠大小
func (s *Splitter) Overlap() int { return s.overlap }

// Split 切分文本，空白文本返回 nil
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= s.size {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + s.size
		if end > n {
			end = n
		}
		if end < n {
			if cut := s.breakPoint(runes[start:end]); cut > 0 {
				end = start + cut
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == n {
			break
		}

		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint 返回窗口内最后一个换行或空白之后的位置，找不到合适位置返回0
func (s *Splitter) breakPoint(window []rune) int {
	half := len(window) / 2
	for i := len(window) - 1; i > half; i-- {
		if window[i] == '\n' {
			return i + 1
		}
	}
	for i := len(window) - 1; i > half; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return 0
}
