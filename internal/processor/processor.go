package processor

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"docqa-rag/internal/models"

	"github.com/ledongthuc/pdf"
)

// Processor extracts plain text from uploaded documents.
type Processor struct {
	MaxFileBytes int64
}

// New creates a processor that rejects files larger than maxFileBytes before
// any extraction work happens.
func New(maxFileBytes int64) *Processor {
	return &Processor{MaxFileBytes: maxFileBytes}
}

// CheckSize rejects oversized payloads. It runs against the raw upload,
// before the file is saved or parsed.
func (p *Processor) CheckSize(size int64) error {
	if p.MaxFileBytes > 0 && size > p.MaxFileBytes {
		return fmt.Errorf("file size %d exceeds limit of %d bytes", size, p.MaxFileBytes)
	}
	return nil
}

// ExtractText reads the document at filePath and returns its raw text
// content. The file type decides the extraction strategy.
func (p *Processor) ExtractText(filePath string, fileType models.FileType) (string, error) {
	switch fileType {
	case models.FileTypePDF:
		return p.extractPDF(filePath)
	case models.FileTypeTXT:
		return p.extractTXT(filePath)
	default:
		return "", fmt.Errorf("unsupported file type: %q", fileType)
	}
}

func (p *Processor) extractPDF(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract plain text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return buf.String(), nil
}

func (p *Processor) extractTXT(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file is not valid UTF-8")
	}
	return string(data), nil
}
