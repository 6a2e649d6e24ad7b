// Package extract converts uploaded documents to plain text. Only the
// formats in the upload allow-set are supported; page and sheet markers are
// kept so the model can cite where content came from.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat reports an extension outside the allow-set.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoText reports a parseable file from which nothing could be read.
	ErrNoText = errors.New("no text could be extracted")
)

// Text extracts plain text from the file, dispatching on extension.
func Text(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return pdfText(name, data)
	case ".xlsx":
		return xlsxText(name, data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func pdfText(name string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf %s: %w", name, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// keep going, a single broken page should not void the rest
			log.Printf("extract: pdf %s page %d: %v", name, i, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", i)
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n")
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("pdf %s: %w", name, ErrNoText)
	}
	return out, nil
}

func xlsxText(name string, data []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse xlsx %s: %w", name, err)
	}
	defer wb.Close()

	var sb strings.Builder
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			log.Printf("extract: xlsx %s sheet %s: %v", name, sheet, err)
			continue
		}
		fmt.Fprintf(&sb, "\n--- Sheet: %s ---\n", sheet)
		for rowNum, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if v := strings.TrimSpace(cell); v != "" {
					cells = append(cells, v)
				}
			}
			if len(cells) > 0 {
				fmt.Fprintf(&sb, "Row %d: %s\n", rowNum+1, strings.Join(cells, " | "))
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" || !strings.Contains(out, "Row") {
		return "", fmt.Errorf("xlsx %s: %w", name, ErrNoText)
	}
	return out, nil
}
