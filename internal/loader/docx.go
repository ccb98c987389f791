package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

// DocxLoader reads the paragraphs of word/document.xml as one page.
type DocxLoader struct{}

func NewDocxLoader() *DocxLoader {
	return &DocxLoader{}
}

func (l *DocxLoader) Load(_ context.Context, path string) ([]Page, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}

		text, err := parseDocumentXML(content)
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, nil
		}
		return []Page{{Text: text, Metadata: chunk.Metadata{}}}, nil
	}
	return nil, fmt.Errorf("docx %s: word/document.xml not found", path)
}

// parseDocumentXML walks the WordprocessingML tokens and emits one line per
// paragraph wherever it sits, so table cells, text boxes and nested tables
// are kept. Tabs and breaks inside runs become whitespace.
func parseDocumentXML(content []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var (
		b      strings.Builder
		line   strings.Builder
		inText bool
		seen   bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			seen = true
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteString("\t")
			case "br", "cr":
				line.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(line.String())
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(el)
			}
		}
	}
	if !seen {
		return "", fmt.Errorf("parse document.xml: no elements")
	}
	b.WriteString(line.String())
	return strings.TrimSpace(b.String()), nil
}
