// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText returns the text of the first pages pages of the PDF at path,
// one line per text row. The pdf reader panics on some malformed files, so
// a panic is reported as an error.
func ExtractText(path string, pages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt PDF: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	if total == 0 {
		return "", ErrNoPages
	}
	if pages <= 0 || pages > total {
		pages = total
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("reading text on page %d: %w", i, err)
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			line := strings.TrimSpace(strings.Join(words, " "))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	text = strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
