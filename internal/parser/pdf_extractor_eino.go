package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"

	"talent-match/internal/logger"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取简历文本
type EinoPDFTextExtractor struct {
	parser  einoParser.Parser
	timeout time.Duration
	logger  zerolog.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithExtractTimeout 设置单个文件的解析超时
func WithExtractTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithDocumentParser 替换底层解析器
func WithDocumentParser(p einoParser.Parser) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.parser = p
	}
}

// NewEinoPDFTextExtractor 初始化 PDF 文本提取器，整份文档作为一段文本返回
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	extractor := &EinoPDFTextExtractor{
		timeout: 30 * time.Second,
		logger:  logger.Component("pdf_extractor"),
	}
	for _, option := range options {
		option(extractor)
	}

	if extractor.parser == nil {
		p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
		if err != nil {
			return nil, fmt.Errorf("创建PDF解析器失败: %w", err)
		}
		extractor.parser = p
	}
	return extractor, nil
}

// ExtractText 从 reader 提取全文，uri 仅用于日志和元数据
func (e *EinoPDFTextExtractor) ExtractText(ctx context.Context, reader io.Reader, uri string) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader,
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{"extraction_time": start.Format(time.RFC3339)}),
	)
	if err != nil {
		e.logger.Error().Err(err).Str("uri", uri).Msg("PDF解析失败")
		return "", fmt.Errorf("解析PDF %s 失败: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("PDF %s 没有可提取的内容", uri)
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if c := strings.TrimSpace(doc.Content); c != "" {
			parts = append(parts, c)
		}
	}
	text := strings.Join(parts, "\n\n")

	e.logger.Info().
		Str("uri", uri).
		Int("documents", len(docs)).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("PDF文本提取完成")
	return text, nil
}
