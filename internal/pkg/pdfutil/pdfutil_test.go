package pdfutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docchat/internal/pkg/pdfutil"
	"github.com/kart-io/docchat/pkg/errors"
)

func TestExtractTextEmptyInput(t *testing.T) {
	_, err := pdfutil.ExtractText(nil)
	assert.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExtraction.Code))

	_, err = pdfutil.ExtractText([]byte{})
	assert.Error(t, err)
}

func TestExtractTextCorruptInput(t *testing.T) {
	_, err := pdfutil.ExtractText([]byte("this is not a pdf document"))
	assert.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExtraction.Code))
}

func TestRejectionMessagesAreEnglish(t *testing.T) {
	// 错误文案面向英文客户端，覆盖 MessageEN。
	_, err := pdfutil.ExtractText(nil)
	assert.Equal(t, "PDF file is empty", errors.FromError(err).Message("en"))

	err = pdfutil.ValidateFilename("notes.txt")
	assert.Contains(t, errors.FromError(err).Message("en"), "only PDF files are supported")
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"小写扩展名", "report.pdf", false},
		{"大写扩展名", "REPORT.PDF", false},
		{"混合大小写", "Report.Pdf", false},
		{"文本文件", "notes.txt", true},
		{"无扩展名", "document", true},
		{"扩展名在中间", "file.pdf.exe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pdfutil.ValidateFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
