// CLAUDE:SUMMARY Turns a fetched body into storable text: selector extraction, HTML sanitize+markdown, PDF text.
// Package normalize reduces fetched bodies to the text stored on a source.
package normalize

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Body kinds reported in Result.Kind.
const (
	KindText     = "text"
	KindHTML     = "html"
	KindMarkdown = "markdown"
	KindPDF      = "pdf"
)

// Input is one body to normalize.
type Input struct {
	Body        []byte
	ContentType string
	Selector    string
	SourceURL   string
}

// Result is the normalized text.
type Result struct {
	Text string
	Kind string
	// SelectorMissed is true when a selector was given, the body was HTML,
	// and nothing matched. The whole document is kept in that case.
	SelectorMissed bool
}

// Normalizer holds the HTML pipeline.
type Normalizer struct {
	markdown  bool
	sanitizer *bluemonday.Policy
	md        *converter.Converter
}

// New creates a Normalizer. With markdown enabled HTML bodies are sanitized
// and converted to markdown; otherwise HTML is kept raw unless a selector
// narrows it to text.
func New(markdown bool) *Normalizer {
	return &Normalizer{
		markdown:  markdown,
		sanitizer: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Normalize reduces in.Body to text.
func (n *Normalizer) Normalize(in Input) (*Result, error) {
	switch kind(in.ContentType, in.Body) {
	case KindPDF:
		text, err := pdfText(in.Body)
		if err != nil {
			return nil, fmt.Errorf("normalize: pdf: %w", err)
		}
		return &Result{Text: text, Kind: KindPDF}, nil
	case KindHTML:
		return n.normalizeHTML(in)
	default:
		return &Result{Text: toUTF8(in.Body), Kind: KindText}, nil
	}
}

func (n *Normalizer) normalizeHTML(in Input) (*Result, error) {
	raw := toUTF8(in.Body)
	selector := strings.TrimSpace(in.Selector)
	if selector == "" {
		return n.finishHTML(raw, in.SourceURL, false)
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("normalize: parse html: %w", err)
	}
	nodes := Select(doc, selector)
	if len(nodes) == 0 {
		return n.finishHTML(raw, in.SourceURL, true)
	}

	if !n.markdown {
		parts := make([]string, 0, len(nodes))
		for _, node := range nodes {
			if t := Text(node); t != "" {
				parts = append(parts, t)
			}
		}
		return &Result{Text: strings.Join(parts, "\n\n"), Kind: KindText}, nil
	}

	var buf bytes.Buffer
	for _, node := range nodes {
		if err := html.Render(&buf, node); err != nil {
			return nil, fmt.Errorf("normalize: render selection: %w", err)
		}
		buf.WriteByte('\n')
	}
	return n.finishHTML(buf.String(), in.SourceURL, false)
}

func (n *Normalizer) finishHTML(fragment, sourceURL string, missed bool) (*Result, error) {
	if !n.markdown {
		return &Result{Text: fragment, Kind: KindHTML, SelectorMissed: missed}, nil
	}
	clean := n.sanitizer.Sanitize(fragment)
	md, err := n.md.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil {
		return nil, fmt.Errorf("normalize: markdown: %w", err)
	}
	return &Result{Text: strings.TrimSpace(md), Kind: KindMarkdown, SelectorMissed: missed}, nil
}

func kind(contentType string, body []byte) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mt == "application/pdf" || bytes.HasPrefix(body, []byte("%PDF-")):
		return KindPDF
	case mt == "text/html" || mt == "application/xhtml+xml":
		return KindHTML
	case mt == "" && looksLikeHTML(body):
		return KindHTML
	}
	return KindText
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func toUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}
