package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF indicates the bytes do not start with a PDF header.
var ErrNotPDF = errors.New("artifact is not a PDF")

// Info describes a validated PDF.
type Info struct {
	Size  int
	Pages int
	Text  string
}

// Inspect validates data as a PDF and extracts its page count and plain text.
// Pages whose text cannot be decoded are skipped.
func Inspect(data []byte) (info Info, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return Info{}, ErrNotPDF
	}
	defer func() {
		if r := recover(); r != nil {
			info, err = Info{}, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("parse pdf: %w", err)
	}
	pages := reader.NumPage()
	if pages == 0 {
		return Info{}, errors.New("parse pdf: document has no pages")
	}
	var text strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(content)
		text.WriteString("\n")
	}
	return Info{Size: len(data), Pages: pages, Text: strings.TrimSpace(text.String())}, nil
}
