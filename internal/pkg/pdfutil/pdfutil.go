// Package pdfutil 提供 PDF 文本提取。
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kart-io/docchat/pkg/errors"
)

// ExtractText 从 PDF 字节流中提取全部文本，页与页之间以空行分隔。
// 空文件、无法解析的文件或无任何可提取文本的文件返回 ErrExtraction。
func ExtractText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.ErrExtraction.WithMessage("PDF file is empty")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.ErrExtraction.WithCause(fmt.Errorf("failed to parse PDF: %w", err))
	}

	pageCount := reader.NumPage()
	var content strings.Builder

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// 跳过无法解析的页面
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(text)
	}

	if content.Len() == 0 {
		return "", errors.ErrExtraction.WithMessage("no extractable text in PDF")
	}

	return content.String(), nil
}

// ValidateFilename 校验上传文件名必须带 .pdf 扩展名。
func ValidateFilename(name string) error {
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return errors.ErrDocumentInvalid.WithMessagef("only PDF files are supported, got: %s", name)
	}
	return nil
}
