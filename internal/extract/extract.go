// Package extract turns uploaded resume documents into plain text.
package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeDOC  = "application/msword"

	// MaxUploadSize is the largest accepted document.
	MaxUploadSize = 2 << 20
)

var (
	// ErrUnsupportedType is returned for anything other than PDF or Word documents.
	ErrUnsupportedType = errors.New("unsupported file type, upload PDF or DOCX")
	// ErrNoText means the document parsed but contained no text.
	ErrNoText = errors.New("no text could be extracted")
)

// Supported reports whether mimeType can be extracted.
func Supported(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case MimePDF, MimeDOCX, MimeDOC:
		return true
	}
	return false
}

// MimeTypeFor guesses the document type from a file name.
func MimeTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".doc":
		return MimeDOC
	}
	return ""
}

// SetPDFLicense registers a unidoc metered key. An empty key is ignored.
func SetPDFLicense(key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("set pdf license: %w", err)
	}
	return nil
}

// Extractor converts documents to cleaned text.
type Extractor struct {
	logger *zap.Logger
}

// New returns an Extractor.
func New(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{logger: log}
}

// Text extracts and cleans the text of data according to mimeType.
func (e *Extractor) Text(data []byte, mimeType string) (string, error) {
	var (
		raw string
		err error
	)

	switch normalizeMime(mimeType) {
	case MimePDF:
		raw, err = e.pdfText(data)
	case MimeDOCX, MimeDOC:
		raw, err = docxText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if err != nil {
		return "", err
	}

	text := CleanText(raw)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func (e *Extractor) pdfText(data []byte) (string, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	pages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("count pdf pages: %w", err)
	}
	if pages == 0 {
		return "", fmt.Errorf("%w: pdf has no pages", ErrNoText)
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			e.logger.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			e.logger.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			e.logger.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	return b.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer doc.Close()

	return documentText(doc.Editable().GetContent())
}

// documentText flattens WordprocessingML into paragraphs of plain text.
func documentText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return b.String(), nil
}

var (
	trailingBlanks = regexp.MustCompile(`[ \t]+\n`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// CleanText drops NUL bytes, trailing blanks and runs of empty lines.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u0000", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingBlanks.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
